package mapdata

import (
	"sort"
	"sync"
)

// defaultConnectionWeightThreshold is the minimum shared-landmark count for a
// covisibility edge to be kept by UpdateConnections.
const defaultConnectionWeightThreshold = 15

// GraphNode maintains one keyframe's covisibility edges, its spanning-tree
// parent/children links, and its loop edges. The node holds a plain
// back-pointer to its owning keyframe; the keyframe owns the node.
//
// The node's mutex is never held while calling into another node or into a
// keyframe, so cross-node operations (mutual edge updates, spanning-tree
// recovery) cannot form lock cycles.
type GraphNode struct {
	owner *Keyframe

	mu                    sync.Mutex
	connections           map[*Keyframe]int
	orderedCovisibilities []*Keyframe
	orderedWeights        []int
	spanningParent        *Keyframe
	spanningParentIsSet   bool
	spanningChildren      map[*Keyframe]struct{}
	loopEdges             map[*Keyframe]struct{}
}

func newGraphNode(owner *Keyframe) *GraphNode {
	return &GraphNode{
		owner:            owner,
		connections:      map[*Keyframe]int{},
		spanningChildren: map[*Keyframe]struct{}{},
		loopEdges:        map[*Keyframe]struct{}{},
	}
}

// UpdateConnections recounts shared landmarks against every other keyframe
// and rebuilds this node's covisibility edges. Edges at or above threshold
// are kept; if none reach it, the single strongest edge is kept so the
// keyframe never goes disconnected. The first update also assigns the
// spanning parent (strongest covisibility), except for the origin keyframe
// which roots the tree.
func (node *GraphNode) UpdateConnections(threshold int) {
	weights := map[*Keyframe]int{}
	for _, lm := range node.owner.Landmarks() {
		if lm == nil || lm.WillBeErased() {
			continue
		}
		for kf := range lm.Observations() {
			if kf == node.owner {
				continue
			}
			weights[kf]++
		}
	}
	if len(weights) == 0 {
		return
	}

	var topKf *Keyframe
	topWeight := 0
	kept := map[*Keyframe]int{}
	for kf, w := range weights {
		if w > topWeight || (w == topWeight && (topKf == nil || kf.ID < topKf.ID)) {
			topKf, topWeight = kf, w
		}
		if w >= threshold {
			kept[kf] = w
		}
	}
	if len(kept) == 0 {
		kept[topKf] = topWeight
	}

	for kf, w := range kept {
		kf.GraphNode().AddConnection(node.owner, w)
	}

	node.mu.Lock()
	node.connections = kept
	node.rebuildCovisibilityOrderLocked()
	firstConnection := !node.spanningParentIsSet
	node.mu.Unlock()

	// the origin keyframe roots the spanning tree and never gets a parent
	if firstConnection && node.owner.ID != 0 {
		node.SetSpanningParent(topKf)
		topKf.GraphNode().AddSpanningChild(node.owner)
	}
}

// AddConnection installs or updates a covisibility edge to the given keyframe.
func (node *GraphNode) AddConnection(kf *Keyframe, weight int) {
	node.mu.Lock()
	defer node.mu.Unlock()
	node.connections[kf] = weight
	node.rebuildCovisibilityOrderLocked()
}

// EraseConnection removes the covisibility edge to the given keyframe, if any.
func (node *GraphNode) EraseConnection(kf *Keyframe) {
	node.mu.Lock()
	defer node.mu.Unlock()
	if _, ok := node.connections[kf]; !ok {
		return
	}
	delete(node.connections, kf)
	node.rebuildCovisibilityOrderLocked()
}

// EraseAllConnections drops every covisibility edge, on both endpoints.
func (node *GraphNode) EraseAllConnections() {
	node.mu.Lock()
	others := make([]*Keyframe, 0, len(node.connections))
	for kf := range node.connections {
		others = append(others, kf)
	}
	node.connections = map[*Keyframe]int{}
	node.orderedCovisibilities = nil
	node.orderedWeights = nil
	node.mu.Unlock()

	for _, kf := range others {
		kf.GraphNode().EraseConnection(node.owner)
	}
}

// NumConnections returns the current covisibility edge count.
func (node *GraphNode) NumConnections() int {
	node.mu.Lock()
	defer node.mu.Unlock()
	return len(node.connections)
}

// Covisibilities returns the connected keyframes ordered by descending weight.
func (node *GraphNode) Covisibilities() []*Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	out := make([]*Keyframe, len(node.orderedCovisibilities))
	copy(out, node.orderedCovisibilities)
	return out
}

// TopNCovisibilities returns up to n connected keyframes with the highest
// weights.
func (node *GraphNode) TopNCovisibilities(n int) []*Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	if n > len(node.orderedCovisibilities) {
		n = len(node.orderedCovisibilities)
	}
	out := make([]*Keyframe, n)
	copy(out, node.orderedCovisibilities[:n])
	return out
}

// CovisibilitiesOverWeight returns the connected keyframes whose edge weight
// is at least the given weight, ordered by descending weight.
func (node *GraphNode) CovisibilitiesOverWeight(weight int) []*Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	var out []*Keyframe
	for i, kf := range node.orderedCovisibilities {
		if node.orderedWeights[i] < weight {
			break
		}
		out = append(out, kf)
	}
	return out
}

// WeightOf returns the covisibility weight to the given keyframe, zero if
// unconnected.
func (node *GraphNode) WeightOf(kf *Keyframe) int {
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.connections[kf]
}

func (node *GraphNode) rebuildCovisibilityOrderLocked() {
	node.orderedCovisibilities = node.orderedCovisibilities[:0]
	for kf := range node.connections {
		node.orderedCovisibilities = append(node.orderedCovisibilities, kf)
	}
	sort.Slice(node.orderedCovisibilities, func(i, j int) bool {
		a, b := node.orderedCovisibilities[i], node.orderedCovisibilities[j]
		wa, wb := node.connections[a], node.connections[b]
		if wa != wb {
			return wa > wb
		}
		return a.ID < b.ID
	})
	node.orderedWeights = node.orderedWeights[:0]
	for _, kf := range node.orderedCovisibilities {
		node.orderedWeights = append(node.orderedWeights, node.connections[kf])
	}
}

// SetSpanningParent assigns the spanning-tree parent. It is set once, from
// the first connection update or by the map loader.
func (node *GraphNode) SetSpanningParent(parent *Keyframe) {
	node.mu.Lock()
	defer node.mu.Unlock()
	node.spanningParent = parent
	node.spanningParentIsSet = true
}

// SpanningParent returns the spanning-tree parent, nil for the tree root.
func (node *GraphNode) SpanningParent() *Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.spanningParent
}

// ChangeSpanningParent reattaches this node under a new parent, fixing up
// both parents' child sets.
func (node *GraphNode) ChangeSpanningParent(newParent *Keyframe) {
	node.mu.Lock()
	oldParent := node.spanningParent
	node.spanningParent = newParent
	node.spanningParentIsSet = true
	node.mu.Unlock()

	if oldParent != nil {
		oldParent.GraphNode().EraseSpanningChild(node.owner)
	}
	if newParent != nil {
		newParent.GraphNode().AddSpanningChild(node.owner)
	}
}

// AddSpanningChild records a spanning-tree child.
func (node *GraphNode) AddSpanningChild(child *Keyframe) {
	node.mu.Lock()
	defer node.mu.Unlock()
	node.spanningChildren[child] = struct{}{}
}

// EraseSpanningChild removes a spanning-tree child.
func (node *GraphNode) EraseSpanningChild(child *Keyframe) {
	node.mu.Lock()
	defer node.mu.Unlock()
	delete(node.spanningChildren, child)
}

// HasSpanningChild reports whether the given keyframe is a spanning child of
// this node.
func (node *GraphNode) HasSpanningChild(child *Keyframe) bool {
	node.mu.Lock()
	defer node.mu.Unlock()
	_, ok := node.spanningChildren[child]
	return ok
}

// SpanningChildren returns the spanning-tree children ordered by ID.
func (node *GraphNode) SpanningChildren() []*Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	out := make([]*Keyframe, 0, len(node.spanningChildren))
	for kf := range node.spanningChildren {
		out = append(out, kf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecoverSpanningConnections reattaches this node's spanning children to
// surviving ancestors before the owning keyframe leaves the map. Children are
// greedily assigned to the candidate parent they share the most covisibility
// weight with; the candidate set starts as just this node's parent and grows
// with each reattached child. Children with no covisibility into the
// candidate set fall back to the parent directly. Must run after
// EraseAllConnections has cleared this node's own edges and before the
// keyframe is dropped from the map index.
func (node *GraphNode) RecoverSpanningConnections() {
	node.mu.Lock()
	parent := node.spanningParent
	remaining := make(map[*Keyframe]struct{}, len(node.spanningChildren))
	for child := range node.spanningChildren {
		remaining[child] = struct{}{}
	}
	node.spanningChildren = map[*Keyframe]struct{}{}
	node.mu.Unlock()

	candidates := map[*Keyframe]struct{}{}
	if parent != nil {
		candidates[parent] = struct{}{}
	}

	for len(remaining) > 0 && len(candidates) > 0 {
		var bestChild, bestParent *Keyframe
		maxWeight := 0
		for child := range remaining {
			if child.WillBeErased() {
				continue
			}
			childNode := child.GraphNode()
			for _, cand := range childNode.Covisibilities() {
				if _, ok := candidates[cand]; !ok {
					continue
				}
				if w := childNode.WeightOf(cand); w > maxWeight {
					maxWeight, bestChild, bestParent = w, child, cand
				}
			}
		}
		if bestChild == nil {
			break
		}
		bestChild.GraphNode().ChangeSpanningParent(bestParent)
		candidates[bestChild] = struct{}{}
		delete(remaining, bestChild)
	}

	// leftovers without covisibility into the candidate set hang off the
	// dead node's own parent
	if parent != nil {
		for child := range remaining {
			child.GraphNode().ChangeSpanningParent(parent)
		}
		parent.GraphNode().EraseSpanningChild(node.owner)
	}
}

// AddLoopEdge records a loop-closure edge. A keyframe participating in a loop
// must survive pose-graph optimization, so this also pins it against erasure.
func (node *GraphNode) AddLoopEdge(kf *Keyframe) {
	node.mu.Lock()
	node.loopEdges[kf] = struct{}{}
	node.mu.Unlock()
	node.owner.SetNotToBeErased()
}

// LoopEdges returns the recorded loop edges ordered by ID.
func (node *GraphNode) LoopEdges() []*Keyframe {
	node.mu.Lock()
	defer node.mu.Unlock()
	out := make([]*Keyframe, 0, len(node.loopEdges))
	for kf := range node.loopEdges {
		out = append(out, kf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasLoopEdge reports whether any loop edge is recorded.
func (node *GraphNode) HasLoopEdge() bool {
	node.mu.Lock()
	defer node.mu.Unlock()
	return len(node.loopEdges) > 0
}
