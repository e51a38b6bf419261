package mapdata

import (
	"sync"

	"go.viam.com/mapgraph/spatialmath"
)

// frameRecord is one tracked frame's localization result: which keyframe it
// was tracked against and the camera pose relative to that keyframe.
type frameRecord struct {
	refKeyframe *Keyframe
	relPoseCR   spatialmath.RigidTransform
	timestamp   float64
	isLost      bool
}

// FrameStatistics records, per tracked frame, the reference keyframe and the
// frame's pose relative to it. Because poses are stored relative, the records
// survive pose-graph optimization; they only need patching when a reference
// keyframe is erased.
type FrameStatistics struct {
	mu      sync.Mutex
	records map[uint]frameRecord
	// frame IDs grouped by reference keyframe, for erasure-time rewrites
	frameIDsPerKeyframe map[*Keyframe][]uint
	numValid            int
}

// NewFrameStatistics creates an empty statistics table.
func NewFrameStatistics() *FrameStatistics {
	return &FrameStatistics{
		records:             map[uint]frameRecord{},
		frameIDsPerKeyframe: map[*Keyframe][]uint{},
	}
}

// Update records the localization result of a tracked frame.
func (fs *FrameStatistics) Update(frm *Frame, refKeyframe *Keyframe, isLost bool) {
	rec := frameRecord{
		refKeyframe: refKeyframe,
		timestamp:   frm.Timestamp,
		isLost:      isLost,
	}
	if !isLost && refKeyframe != nil {
		// pose of the frame's camera in the reference keyframe's camera frame
		rec.relPoseCR = frm.PoseCW.Compose(refKeyframe.PoseWC())
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if prev, ok := fs.records[frm.ID]; ok {
		fs.dropFrameIDLocked(prev.refKeyframe, frm.ID)
		if !prev.isLost {
			fs.numValid--
		}
	}
	fs.records[frm.ID] = rec
	if refKeyframe != nil {
		fs.frameIDsPerKeyframe[refKeyframe] = append(fs.frameIDsPerKeyframe[refKeyframe], frm.ID)
	}
	if !isLost {
		fs.numValid++
	}
}

// ReplaceReferenceKeyframe rewrites every record referencing old so it
// references replacement instead, re-expressing the stored relative pose so
// the frame's world pose is unchanged.
func (fs *FrameStatistics) ReplaceReferenceKeyframe(old, replacement *Keyframe) {
	var oldPoseCW, replacementPoseWC spatialmath.RigidTransform
	if replacement != nil {
		oldPoseCW = old.PoseCW()
		replacementPoseWC = replacement.PoseWC()
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	frameIDs := fs.frameIDsPerKeyframe[old]
	delete(fs.frameIDsPerKeyframe, old)
	for _, id := range frameIDs {
		rec := fs.records[id]
		if rec.refKeyframe != old {
			continue
		}
		if replacement == nil {
			rec.refKeyframe = nil
			rec.isLost = true
		} else {
			// frame_cw = rel * old_cw  =>  rel' = rel * old_cw * new_wc
			rec.refKeyframe = replacement
			rec.relPoseCR = rec.relPoseCR.Compose(oldPoseCW).Compose(replacementPoseWC)
			fs.frameIDsPerKeyframe[replacement] = append(fs.frameIDsPerKeyframe[replacement], id)
		}
		fs.records[id] = rec
	}
}

// ReferenceKeyframe returns the reference keyframe recorded for a frame.
func (fs *FrameStatistics) ReferenceKeyframe(frameID uint) (*Keyframe, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.records[frameID]
	if !ok || rec.refKeyframe == nil {
		return nil, false
	}
	return rec.refKeyframe, true
}

// FramePoseCW reconstructs a frame's world-to-camera pose from its relative
// record and the reference keyframe's current pose.
func (fs *FrameStatistics) FramePoseCW(frameID uint) (spatialmath.RigidTransform, bool) {
	fs.mu.Lock()
	rec, ok := fs.records[frameID]
	fs.mu.Unlock()
	if !ok || rec.isLost || rec.refKeyframe == nil {
		return spatialmath.RigidTransform{}, false
	}
	return rec.relPoseCR.Compose(rec.refKeyframe.PoseCW()), true
}

// NumValidFrames returns the count of frames tracked without being lost.
func (fs *FrameStatistics) NumValidFrames() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.numValid
}

func (fs *FrameStatistics) dropFrameIDLocked(kf *Keyframe, frameID uint) {
	if kf == nil {
		return
	}
	ids := fs.frameIDsPerKeyframe[kf]
	for i, id := range ids {
		if id == frameID {
			fs.frameIDsPerKeyframe[kf] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}
