package mapdata

import (
	"github.com/pkg/errors"

	"go.viam.com/mapgraph/bow"
	"go.viam.com/mapgraph/camera"
	"go.viam.com/mapgraph/features"
	"go.viam.com/mapgraph/spatialmath"
)

// FrameObservation is the immutable feature bundle extracted from one image:
// undistorted keypoints, their descriptors, and per-keypoint stereo/depth
// measurements. It is set once at construction and shared by reference, so it
// needs no locking.
type FrameObservation struct {
	NumKeypoints int
	Keypoints    []features.KeyPoint
	Descriptors  []features.Descriptor
	// StereoXRight holds the matched right-image x coordinate per keypoint,
	// or a negative value when there is no stereo match.
	StereoXRight []float64
	// Depths holds the measured depth per keypoint, or a non-positive value
	// when depth is unavailable.
	Depths []float64

	// keypoint indices bucketed by grid cell, indexed [col][row]
	cellIndices [][][]int
}

// NewFrameObservation validates the per-keypoint arrays and buckets the
// keypoints into the camera's cell grid.
func NewFrameObservation(
	cam *camera.Pinhole,
	keypoints []features.KeyPoint,
	descriptors []features.Descriptor,
	stereoXRight, depths []float64,
) (*FrameObservation, error) {
	n := len(keypoints)
	if len(descriptors) != n {
		return nil, errors.Errorf("descriptor count %d does not match keypoint count %d", len(descriptors), n)
	}
	if stereoXRight == nil {
		stereoXRight = make([]float64, n)
		for i := range stereoXRight {
			stereoXRight[i] = -1
		}
	}
	if depths == nil {
		depths = make([]float64, n)
		for i := range depths {
			depths[i] = -1
		}
	}
	if len(stereoXRight) != n || len(depths) != n {
		return nil, errors.Errorf(
			"stereo/depth counts (%d, %d) do not match keypoint count %d", len(stereoXRight), len(depths), n)
	}

	obs := &FrameObservation{
		NumKeypoints: n,
		Keypoints:    keypoints,
		Descriptors:  descriptors,
		StereoXRight: stereoXRight,
		Depths:       depths,
	}
	obs.assignKeypointsToGrid(cam)
	return obs, nil
}

func (obs *FrameObservation) assignKeypointsToGrid(cam *camera.Pinhole) {
	cols, rows := cam.GridCols, cam.GridRows
	if cols <= 0 {
		cols = camera.DefaultGridCols
	}
	if rows <= 0 {
		rows = camera.DefaultGridRows
	}
	obs.cellIndices = make([][][]int, cols)
	for c := range obs.cellIndices {
		obs.cellIndices[c] = make([][]int, rows)
	}
	for i, kp := range obs.Keypoints {
		if col, row, ok := cam.CellIndex(kp.Pt); ok {
			obs.cellIndices[col][row] = append(obs.cellIndices[col][row], i)
		}
	}
}

// Frame is a transient tracking-thread pose sample: the raw material a
// keyframe is promoted from. Frames live on a single thread, so unlike
// keyframes they carry no locks.
type Frame struct {
	ID          uint
	Timestamp   float64
	Camera      *camera.Pinhole
	ORBParams   *features.ORBParams
	Observation *FrameObservation

	PoseCW spatialmath.RigidTransform

	BowVec     bow.Vector
	BowFeatVec bow.FeatureVector

	// landmark associations by keypoint index; nil entries are unmatched
	landmarks []*Landmark
	markers2D map[uint]*Marker
}

// NewFrame creates a tracking frame with an empty landmark table sized to the
// observation's keypoint count.
func NewFrame(
	id uint,
	timestamp float64,
	poseCW spatialmath.RigidTransform,
	cam *camera.Pinhole,
	orbParams *features.ORBParams,
	obs *FrameObservation,
) *Frame {
	return &Frame{
		ID:          id,
		Timestamp:   timestamp,
		Camera:      cam,
		ORBParams:   orbParams,
		Observation: obs,
		PoseCW:      poseCW,
		landmarks:   make([]*Landmark, obs.NumKeypoints),
		markers2D:   map[uint]*Marker{},
	}
}

// AddLandmark associates a landmark with the keypoint at the given index.
func (frm *Frame) AddLandmark(lm *Landmark, idx int) {
	frm.landmarks[idx] = lm
}

// Landmarks returns a copy of the frame's landmark table.
func (frm *Frame) Landmarks() []*Landmark {
	out := make([]*Landmark, len(frm.landmarks))
	copy(out, frm.landmarks)
	return out
}

// AddMarker records a fiducial marker detected in this frame.
func (frm *Frame) AddMarker(mkr *Marker) {
	frm.markers2D[mkr.ID] = mkr
}

// ComputeBow quantizes the frame's descriptors with the given vocabulary.
func (frm *Frame) ComputeBow(vocab *bow.Vocabulary) {
	frm.BowVec, frm.BowFeatVec = vocab.Transform(frm.Observation.Descriptors)
}
