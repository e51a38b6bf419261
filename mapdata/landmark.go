package mapdata

import (
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/atomic"

	"go.viam.com/mapgraph/features"
)

// Landmark is a persistent 3D point estimate observed by one or more
// keyframes. Keyframes hold it through their landmark tables and it holds
// back-references to its observers; neither direction implies ownership.
//
// All internal state sits behind a single mutex. The mutex is never held
// across a call into a keyframe, so keyframe code may call into landmarks
// while holding its own observation lock without a lock cycle.
type Landmark struct {
	ID uint

	mu           sync.Mutex
	posW         r3.Vector
	meanNormal   r3.Vector
	minValidDist float64
	maxValidDist float64
	descriptor   features.Descriptor
	observations map[*Keyframe]int
	refKeyframe  *Keyframe

	willBeErased atomic.Bool
}

// NewLandmark creates a landmark at the given world position. The reference
// keyframe anchors the scale statistics until it is erased.
func NewLandmark(id uint, posW r3.Vector, refKeyframe *Keyframe) *Landmark {
	return &Landmark{
		ID:           id,
		posW:         posW,
		observations: map[*Keyframe]int{},
		refKeyframe:  refKeyframe,
	}
}

// PosInWorld returns the landmark's world position.
func (lm *Landmark) PosInWorld() r3.Vector {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.posW
}

// SetPosInWorld moves the landmark to a new world position.
func (lm *Landmark) SetPosInWorld(pos r3.Vector) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.posW = pos
}

// MeanNormal returns the mean viewing direction over all observers.
func (lm *Landmark) MeanNormal() r3.Vector {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.meanNormal
}

// ValidDistanceRange returns the distance band the landmark is expected to be
// observable in, derived from the scale level it was detected at.
func (lm *Landmark) ValidDistanceRange() (min, max float64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.minValidDist, lm.maxValidDist
}

// Descriptor returns the landmark's representative descriptor.
func (lm *Landmark) Descriptor() features.Descriptor {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.descriptor
}

// AddObservation records that the keyframe observes this landmark at the
// given keypoint index.
func (lm *Landmark) AddObservation(kf *Keyframe, idx int) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, ok := lm.observations[kf]; ok {
		return
	}
	lm.observations[kf] = idx
	if lm.refKeyframe == nil {
		lm.refKeyframe = kf
	}
}

// EraseObservation detaches the keyframe from this landmark's observer list.
// When the last observer goes away the landmark erases itself from the map.
func (lm *Landmark) EraseObservation(mapDB *MapDatabase, kf *Keyframe) {
	lm.mu.Lock()
	if _, ok := lm.observations[kf]; !ok {
		lm.mu.Unlock()
		return
	}
	delete(lm.observations, kf)
	if lm.refKeyframe == kf {
		lm.refKeyframe = nil
		for other := range lm.observations {
			lm.refKeyframe = other
			break
		}
	}
	empty := len(lm.observations) == 0
	lm.mu.Unlock()

	if empty {
		lm.PrepareForErasing(mapDB)
	}
}

// Observations returns a copy of the observer table: keyframe to the keypoint
// index this landmark appears at.
func (lm *Landmark) Observations() map[*Keyframe]int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make(map[*Keyframe]int, len(lm.observations))
	for kf, idx := range lm.observations {
		out[kf] = idx
	}
	return out
}

// IndexInKeyframe returns the keypoint index this landmark is observed at in
// the given keyframe, if any.
func (lm *Landmark) IndexInKeyframe(kf *Keyframe) (int, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	idx, ok := lm.observations[kf]
	return idx, ok
}

// IsObservedInKeyframe reports whether the given keyframe observes this
// landmark.
func (lm *Landmark) IsObservedInKeyframe(kf *Keyframe) bool {
	_, ok := lm.IndexInKeyframe(kf)
	return ok
}

// NumObservations returns the current observer count.
func (lm *Landmark) NumObservations() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.observations)
}

// RefKeyframe returns the keyframe anchoring the scale statistics.
func (lm *Landmark) RefKeyframe() *Keyframe {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.refKeyframe
}

// ComputeDescriptor recomputes the representative descriptor: the observer
// descriptor minimizing the median Hamming distance to all the others.
func (lm *Landmark) ComputeDescriptor() {
	observations := lm.Observations()

	descs := make([]features.Descriptor, 0, len(observations))
	for kf, idx := range observations {
		if kf.WillBeErased() {
			continue
		}
		descs = append(descs, kf.Observation.Descriptors[idx])
	}
	if len(descs) == 0 {
		return
	}

	best := 0
	bestMedian := -1
	for i := range descs {
		dists := make([]int, 0, len(descs)-1)
		for j := range descs {
			if i == j {
				continue
			}
			dists = append(dists, features.HammingDistance(descs[i], descs[j]))
		}
		median := 0
		if len(dists) > 0 {
			sort.Ints(dists)
			median = dists[(len(dists)-1)/2]
		}
		if bestMedian < 0 || median < bestMedian {
			best, bestMedian = i, median
		}
	}

	lm.mu.Lock()
	lm.descriptor = descs[best]
	lm.mu.Unlock()
}

// UpdateMeanNormalAndObsScaleVariance refreshes the mean viewing direction
// and the valid-distance band after the observer set changed. Observer poses
// are read outside the landmark mutex.
func (lm *Landmark) UpdateMeanNormalAndObsScaleVariance() {
	lm.mu.Lock()
	observations := make(map[*Keyframe]int, len(lm.observations))
	for kf, idx := range lm.observations {
		observations[kf] = idx
	}
	refKeyframe := lm.refKeyframe
	posW := lm.posW
	lm.mu.Unlock()

	if len(observations) == 0 || refKeyframe == nil {
		return
	}

	var meanNormal r3.Vector
	n := 0
	for kf := range observations {
		normal := posW.Sub(kf.TransWC())
		if norm := normal.Norm(); norm > 0 {
			meanNormal = meanNormal.Add(normal.Mul(1 / norm))
			n++
		}
	}
	if n == 0 {
		return
	}
	meanNormal = meanNormal.Mul(1 / float64(n))

	camToLmDist := posW.Sub(refKeyframe.TransWC()).Norm()
	refIdx := observations[refKeyframe]
	level := refKeyframe.Observation.Keypoints[refIdx].Octave
	orbParams := refKeyframe.ORBParams
	maxValidDist := camToLmDist * orbParams.ScaleFactorAt(level)
	minValidDist := maxValidDist * orbParams.InvScaleFactorAt(orbParams.NumLevels-1)

	lm.mu.Lock()
	lm.meanNormal = meanNormal
	lm.maxValidDist = maxValidDist
	lm.minValidDist = minValidDist
	lm.mu.Unlock()
}

// WillBeErased reports whether the landmark has been retired from the map.
func (lm *Landmark) WillBeErased() bool {
	return lm.willBeErased.Load()
}

// PrepareForErasing retires the landmark: every observer keyframe drops its
// table entry and the map database forgets it. The erased flag commits first
// so concurrent readers skip the landmark while the cascade runs; the cascade
// body runs at most once.
func (lm *Landmark) PrepareForErasing(mapDB *MapDatabase) {
	if !lm.willBeErased.CompareAndSwap(false, true) {
		return
	}

	lm.mu.Lock()
	observations := lm.observations
	lm.observations = map[*Keyframe]int{}
	lm.refKeyframe = nil
	lm.mu.Unlock()

	for kf, idx := range observations {
		kf.EraseLandmarkWithIndex(idx)
	}
	mapDB.EraseLandmark(lm)
}
