// Package mapdata implements the map-graph consistency core of a visual
// mapping pipeline: keyframes, the landmarks they observe, the covisibility
// graph and spanning tree linking them, and the map/BoW indices they are
// registered in. Keyframes, landmarks, and graph nodes are shared mutable
// objects touched by the tracking, mapping, and loop-closing threads at once;
// every type here carries its own fine-grained locking.
package mapdata

import (
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/mapgraph/bow"
	"go.viam.com/mapgraph/camera"
	"go.viam.com/mapgraph/features"
	"go.viam.com/mapgraph/spatialmath"
)

// Keyframe is a retained camera pose sample: a timestamped pose estimate plus
// the frame's observed features and their landmark associations, anchored
// into the covisibility graph.
//
// Two independent locks guard its mutable state: one for the pose cache, one
// for the landmark/marker tables, so pose optimization never contends with
// observation bookkeeping. When both are taken together, the observation lock
// comes first; that order holds everywhere in this package.
type Keyframe struct {
	ID        uint
	Timestamp float64

	// shared immutable configuration, referenced rather than owned
	Camera    *camera.Pinhole
	ORBParams *features.ORBParams

	// immutable feature bundle, set once at construction
	Observation *FrameObservation

	poseMu  sync.Mutex
	poseCW  spatialmath.RigidTransform
	poseWC  spatialmath.RigidTransform
	transWC r3.Vector

	obsMu     sync.Mutex
	landmarks []*Landmark
	markers   map[uint]*Marker

	// BoW vectors are written by ComputeBow only; callers serialize those
	// calls themselves.
	bowVec     bow.Vector
	bowFeatVec bow.FeatureVector

	graphNode *GraphNode

	cannotBeErased atomic.Bool
	willBeErased   atomic.Bool
}

// NewKeyframeFromFrame promotes a tracking frame into a keyframe, inheriting
// its pose, observation bundle, landmark table, markers, and BoW vectors. The
// graph node is attached before the keyframe is returned, so callers never
// see a partially wired keyframe.
func NewKeyframeFromFrame(id uint, frm *Frame) *Keyframe {
	kf := &Keyframe{
		ID:          id,
		Timestamp:   frm.Timestamp,
		Camera:      frm.Camera,
		ORBParams:   frm.ORBParams,
		Observation: frm.Observation,
		landmarks:   frm.Landmarks(),
		markers:     map[uint]*Marker{},
		bowVec:      frm.BowVec,
		bowFeatVec:  frm.BowFeatVec,
	}
	for mid, mkr := range frm.markers2D {
		kf.markers[mid] = mkr
	}
	kf.SetPoseCW(frm.PoseCW)
	kf.graphNode = newGraphNode(kf)
	return kf
}

// NewKeyframe builds a keyframe from raw parts, as the map loader does. The
// caller is expected to populate landmark associations and graph edges
// afterward.
func NewKeyframe(
	id uint,
	timestamp float64,
	poseCW spatialmath.RigidTransform,
	cam *camera.Pinhole,
	orbParams *features.ORBParams,
	obs *FrameObservation,
	bowVec bow.Vector,
	bowFeatVec bow.FeatureVector,
) *Keyframe {
	kf := &Keyframe{
		ID:          id,
		Timestamp:   timestamp,
		Camera:      cam,
		ORBParams:   orbParams,
		Observation: obs,
		landmarks:   make([]*Landmark, obs.NumKeypoints),
		markers:     map[uint]*Marker{},
		bowVec:      bowVec,
		bowFeatVec:  bowFeatVec,
	}
	kf.SetPoseCW(poseCW)
	kf.graphNode = newGraphNode(kf)
	return kf
}

// GraphNode returns the keyframe's covisibility graph node.
func (kf *Keyframe) GraphNode() *GraphNode {
	return kf.graphNode
}

// SetPoseCW replaces the world-to-camera pose and recomputes the cached
// camera-to-world form in the same critical section, so readers never observe
// a pose pair that are not exact inverses.
func (kf *Keyframe) SetPoseCW(poseCW spatialmath.RigidTransform) {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	kf.poseCW = poseCW
	kf.poseWC = poseCW.Inverse()
	kf.transWC = kf.poseWC.Translation
}

// PoseCW returns a copy of the world-to-camera pose.
func (kf *Keyframe) PoseCW() spatialmath.RigidTransform {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	return kf.poseCW
}

// PoseWC returns a copy of the camera-to-world pose.
func (kf *Keyframe) PoseWC() spatialmath.RigidTransform {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	return kf.poseWC
}

// TransWC returns the camera center in world coordinates.
func (kf *Keyframe) TransWC() r3.Vector {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	return kf.transWC
}

// RotCW returns the rotation block of the world-to-camera pose.
func (kf *Keyframe) RotCW() spatialmath.RotationMatrix {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	return kf.poseCW.Rotation
}

// TransCW returns the translation block of the world-to-camera pose.
func (kf *Keyframe) TransCW() r3.Vector {
	kf.poseMu.Lock()
	defer kf.poseMu.Unlock()
	return kf.poseCW.Translation
}

// BowIsAvailable reports whether the BoW vectors have been computed.
func (kf *Keyframe) BowIsAvailable() bool {
	return len(kf.bowVec) > 0 && len(kf.bowFeatVec) > 0
}

// ComputeBow quantizes the keyframe's descriptors with the given vocabulary.
// Idempotent, but not safe to call concurrently with itself; the place
// recognition owner serializes it.
func (kf *Keyframe) ComputeBow(vocab *bow.Vocabulary) {
	kf.bowVec, kf.bowFeatVec = vocab.Transform(kf.Observation.Descriptors)
}

// BowVector returns the keyframe's word vector.
func (kf *Keyframe) BowVector() bow.Vector {
	return kf.bowVec
}

// BowFeatureVector returns the keyframe's word-to-keypoint feature vector.
func (kf *Keyframe) BowFeatureVector() bow.FeatureVector {
	return kf.bowFeatVec
}

// AddLandmark installs a landmark at a keypoint slot, overwriting any
// previous occupant; callers detach the old landmark first if that matters.
func (kf *Keyframe) AddLandmark(lm *Landmark, idx int) {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	kf.landmarks[idx] = lm
}

// EraseLandmarkWithIndex clears a keypoint slot unconditionally.
func (kf *Keyframe) EraseLandmarkWithIndex(idx int) {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	kf.landmarks[idx] = nil
}

// EraseLandmark clears the slot the landmark records for this keyframe. A
// landmark with no recorded association here is a no-op.
func (kf *Keyframe) EraseLandmark(lm *Landmark) {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	if idx, ok := lm.IndexInKeyframe(kf); ok {
		kf.landmarks[idx] = nil
	}
}

// LandmarkAt returns the landmark at the given keypoint slot, nil if empty.
func (kf *Keyframe) LandmarkAt(idx int) *Landmark {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	return kf.landmarks[idx]
}

// Landmarks returns a point-in-time copy of the whole landmark table; entries
// may be nil.
func (kf *Keyframe) Landmarks() []*Landmark {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	out := make([]*Landmark, len(kf.landmarks))
	copy(out, kf.landmarks)
	return out
}

// ValidLandmarks returns the de-duplicated set of non-empty slots whose
// landmarks are not being erased.
func (kf *Keyframe) ValidLandmarks() []*Landmark {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	seen := make(map[*Landmark]struct{}, len(kf.landmarks))
	var out []*Landmark
	for _, lm := range kf.landmarks {
		if lm == nil || lm.WillBeErased() {
			continue
		}
		if _, ok := seen[lm]; ok {
			continue
		}
		seen[lm] = struct{}{}
		out = append(out, lm)
	}
	return out
}

// NumTrackedLandmarks counts valid landmarks meeting an observation-count
// threshold. A threshold of zero counts every valid landmark unconditionally;
// this is deliberately not the same as "landmarks with at least zero
// observations", and callers depend on the distinction.
func (kf *Keyframe) NumTrackedLandmarks(minObs int) int {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	num := 0
	if minObs > 0 {
		for _, lm := range kf.landmarks {
			if lm == nil || lm.WillBeErased() {
				continue
			}
			if lm.NumObservations() >= minObs {
				num++
			}
		}
	} else {
		for _, lm := range kf.landmarks {
			if lm == nil || lm.WillBeErased() {
				continue
			}
			num++
		}
	}
	return num
}

// UpdateLandmarks re-registers this keyframe as an observer of every valid
// landmark in the table and refreshes each landmark's statistics. Landmarks
// synchronize these calls internally and never call back into a keyframe
// while holding their own lock, which is what makes holding the observation
// lock across them safe.
func (kf *Keyframe) UpdateLandmarks() {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	for idx, lm := range kf.landmarks {
		if lm == nil || lm.WillBeErased() {
			continue
		}
		lm.AddObservation(kf, idx)
		lm.UpdateMeanNormalAndObsScaleVariance()
		lm.ComputeDescriptor()
	}
}

// AddMarker records a fiducial marker observed by this keyframe.
func (kf *Keyframe) AddMarker(mkr *Marker) {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	kf.markers[mkr.ID] = mkr
}

// Markers returns the observed markers ordered by ID.
func (kf *Keyframe) Markers() []*Marker {
	kf.obsMu.Lock()
	defer kf.obsMu.Unlock()
	out := make([]*Marker, 0, len(kf.markers))
	for _, mkr := range kf.markers {
		out = append(out, mkr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KeypointsInCell returns the keypoint indices near the reference pixel
// within the given pyramid level range.
func (kf *Keyframe) KeypointsInCell(refX, refY, margin float64, minLevel, maxLevel int) []int {
	return KeypointsInCell(kf.Camera, kf.Observation, refX, refY, margin, minLevel, maxLevel)
}

// TriangulateStereo back-projects the keypoint at the given index to world
// coordinates using its depth measurement. The pose is copied under the lock;
// the geometry runs outside it.
func (kf *Keyframe) TriangulateStereo(idx int) (r3.Vector, bool) {
	kf.poseMu.Lock()
	poseWC := kf.poseWC
	kf.poseMu.Unlock()
	return TriangulateStereo(kf.Camera, poseWC, kf.Observation, idx)
}

// DepthIsAvailable reports whether the camera setup provides keypoint depth.
func (kf *Keyframe) DepthIsAvailable() bool {
	return kf.Camera.HasDepth()
}

// MedianDepth returns the lower-median depth of the keyframe's landmarks
// along the camera's viewing axis, optionally of absolute values. It errors
// when no slot holds a landmark, rather than indexing an empty sequence.
func (kf *Keyframe) MedianDepth(abs bool) (float64, error) {
	kf.obsMu.Lock()
	landmarks := make([]*Landmark, len(kf.landmarks))
	copy(landmarks, kf.landmarks)
	kf.poseMu.Lock()
	poseCW := kf.poseCW
	kf.poseMu.Unlock()
	kf.obsMu.Unlock()

	rotCWRow2 := poseCW.Rotation.Row(2)
	transCWZ := poseCW.Translation.Z

	depths := make([]float64, 0, len(landmarks))
	for _, lm := range landmarks {
		if lm == nil {
			continue
		}
		depth := rotCWRow2.Dot(lm.PosInWorld()) + transCWZ
		if abs && depth < 0 {
			depth = -depth
		}
		depths = append(depths, depth)
	}
	if len(depths) == 0 {
		return 0, errors.Errorf("keyframe %d has no landmarks to compute a median depth from", kf.ID)
	}

	sort.Float64s(depths)
	return depths[(len(depths)-1)/2], nil
}

// SetNotToBeErased pins the keyframe against erasure while a caller (such as
// an active loop-closure window) depends on it.
func (kf *Keyframe) SetNotToBeErased() {
	kf.cannotBeErased.Store(true)
}

// SetToBeErased releases the erasure pin. The request is refused while the
// graph node records a loop edge; loop membership always wins.
func (kf *Keyframe) SetToBeErased() {
	if !kf.graphNode.HasLoopEdge() {
		kf.cannotBeErased.Store(false)
	}
}

// WillBeErased reports whether the erasure cascade has committed.
func (kf *Keyframe) WillBeErased() bool {
	return kf.willBeErased.Load()
}

// PrepareForErasing retires the keyframe from the map. The origin keyframe
// and pinned keyframes are refused silently; callers that need to know check
// WillBeErased afterward. The erased flag commits first, and the compare-and-
// swap guarantees the cascade body runs at most once even under concurrent
// calls. Once committed the cascade runs to completion:
//
//  1. every valid landmark drops this keyframe from its observer list and,
//     if it survives, refreshes its descriptor and viewing statistics;
//  2. the graph node erases its covisibility edges and reattaches its
//     spanning children to surviving ancestors;
//  3. stale reference-keyframe pointers are redirected to the spanning
//     parent;
//  4. the keyframe leaves the map database and the BoW index.
func (kf *Keyframe) PrepareForErasing(mapDB *MapDatabase, bowDB *BowDatabase) {
	if kf == mapDB.OriginKeyframe() {
		return
	}
	if kf.cannotBeErased.Load() {
		return
	}
	if !kf.willBeErased.CompareAndSwap(false, true) {
		return
	}
	golog.Global().Debugw("erasing keyframe", "id", kf.ID)

	kf.obsMu.Lock()
	for _, lm := range kf.landmarks {
		if lm == nil || lm.WillBeErased() {
			continue
		}
		lm.EraseObservation(mapDB, kf)
		if !lm.WillBeErased() {
			lm.ComputeDescriptor()
			lm.UpdateMeanNormalAndObsScaleVariance()
		}
	}
	kf.obsMu.Unlock()

	kf.graphNode.EraseAllConnections()
	kf.graphNode.RecoverSpanningConnections()

	mapDB.ReplaceReferenceKeyframe(kf, kf.graphNode.SpanningParent())

	mapDB.EraseKeyframe(kf)
	bowDB.EraseKeyframe(kf)
}
