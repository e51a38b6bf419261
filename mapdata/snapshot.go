package mapdata

import (
	"encoding/json"

	"go.viam.com/mapgraph/features"
)

// keyframeJSON is the persisted keyframe layout. Field names and the -1
// sentinel for absent IDs are part of the interchange contract; loaders match
// them byte for byte.
type keyframeJSON struct {
	Timestamp     float64               `json:"ts"`
	CameraName    string                `json:"cam"`
	ORBParamsName string                `json:"orb_params"`
	RotCW         [3][3]float64         `json:"rot_cw"`
	TransCW       [3]float64            `json:"trans_cw"`
	NumKeypoints  int                   `json:"n_keypts"`
	UndistKeypts  []features.KeyPoint   `json:"undist_keypts"`
	XRights       []float64             `json:"x_rights"`
	Depths        []float64             `json:"depths"`
	Descriptors   []features.Descriptor `json:"descs"`
	LandmarkIDs   []int                 `json:"lm_ids"`
	SpanParent    int                   `json:"span_parent"`
	SpanChildren  []int                 `json:"span_children"`
	LoopEdges     []int                 `json:"loop_edges"`
}

// MarshalJSON produces the keyframe's structural snapshot: configuration by
// name, pose, feature arrays, landmark associations as parallel IDs, and
// graph linkage as IDs. Read-only; resolving IDs back to objects is the
// loader's concern.
func (kf *Keyframe) MarshalJSON() ([]byte, error) {
	out := keyframeJSON{
		Timestamp:     kf.Timestamp,
		CameraName:    kf.Camera.Name,
		ORBParamsName: kf.ORBParams.Name,
		NumKeypoints:  kf.Observation.NumKeypoints,
		UndistKeypts:  kf.Observation.Keypoints,
		XRights:       kf.Observation.StereoXRight,
		Depths:        kf.Observation.Depths,
		Descriptors:   kf.Observation.Descriptors,
		SpanParent:    -1,
	}

	poseCW := kf.PoseCW()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.RotCW[i][j] = poseCW.Rotation.At(i, j)
		}
	}
	out.TransCW = [3]float64{poseCW.Translation.X, poseCW.Translation.Y, poseCW.Translation.Z}

	landmarks := kf.Landmarks()
	out.LandmarkIDs = make([]int, len(landmarks))
	for i, lm := range landmarks {
		if lm != nil && !lm.WillBeErased() {
			out.LandmarkIDs[i] = int(lm.ID)
		} else {
			out.LandmarkIDs[i] = -1
		}
	}

	if parent := kf.graphNode.SpanningParent(); parent != nil {
		out.SpanParent = int(parent.ID)
	}
	children := kf.graphNode.SpanningChildren()
	out.SpanChildren = make([]int, len(children))
	for i, child := range children {
		out.SpanChildren[i] = int(child.ID)
	}
	loopEdges := kf.graphNode.LoopEdges()
	out.LoopEdges = make([]int, len(loopEdges))
	for i, kfLoop := range loopEdges {
		out.LoopEdges[i] = int(kfLoop.ID)
	}

	return json.Marshal(out)
}

type landmarkJSON struct {
	PosW            [3]float64 `json:"pos_w"`
	RefKeyframeID   int        `json:"ref_keyfrm"`
	NumObservations int        `json:"n_obs"`
}

// MarshalJSON produces the landmark's structural snapshot.
func (lm *Landmark) MarshalJSON() ([]byte, error) {
	pos := lm.PosInWorld()
	out := landmarkJSON{
		PosW:            [3]float64{pos.X, pos.Y, pos.Z},
		RefKeyframeID:   -1,
		NumObservations: lm.NumObservations(),
	}
	if ref := lm.RefKeyframe(); ref != nil {
		out.RefKeyframeID = int(ref.ID)
	}
	return json.Marshal(out)
}
