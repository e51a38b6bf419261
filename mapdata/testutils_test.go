package mapdata

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/mapgraph/camera"
	"go.viam.com/mapgraph/features"
	"go.viam.com/mapgraph/spatialmath"
)

func testCamera() *camera.Pinhole {
	return &camera.Pinhole{
		Name:           "stereo_test",
		Setup:          camera.Stereo,
		Width:          640,
		Height:         480,
		Fx:             500,
		Fy:             500,
		Ppx:            320,
		Ppy:            240,
		FocalXBaseline: 50,
		GridCols:       64,
		GridRows:       48,
	}
}

func testORBParams() *features.ORBParams {
	return features.NewORBParams("default", 8, 1.2)
}

// testObservation spreads n keypoints along the image diagonal with distinct
// descriptors and valid depths.
func testObservation(t *testing.T, cam *camera.Pinhole, n int) *FrameObservation {
	t.Helper()
	keypoints := make([]features.KeyPoint, n)
	descriptors := make([]features.Descriptor, n)
	depths := make([]float64, n)
	for i := 0; i < n; i++ {
		keypoints[i] = features.KeyPoint{
			Pt:     r2.Point{X: float64(10 + i*20), Y: float64(10 + i*15)},
			Octave: i % 3,
		}
		descriptors[i][0] = byte(i + 1)
		depths[i] = float64(i + 1)
	}
	obs, err := NewFrameObservation(cam, keypoints, descriptors, nil, depths)
	test.That(t, err, test.ShouldBeNil)
	return obs
}

func testKeyframe(t *testing.T, id uint, numKeypoints int) *Keyframe {
	t.Helper()
	cam := testCamera()
	return NewKeyframe(
		id, float64(id),
		spatialmath.NewZeroRigidTransform(),
		cam, testORBParams(),
		testObservation(t, cam, numKeypoints),
		nil, nil,
	)
}

func testLandmarkAt(id uint, pos r3.Vector) *Landmark {
	return NewLandmark(id, pos, nil)
}

// observe wires both directions of a keyframe-landmark association.
func observe(kf *Keyframe, lm *Landmark, idx int) {
	kf.AddLandmark(lm, idx)
	lm.AddObservation(kf, idx)
}
