package mapdata

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/mapgraph/camera"
	"go.viam.com/mapgraph/spatialmath"
)

// KeypointsInCell returns the indices of keypoints within margin pixels of the
// reference point, filtered to the given pyramid level range. A negative
// minLevel or maxLevel disables that bound. The lookup walks only the grid
// cells intersecting the margin square, not the whole keypoint set.
func KeypointsInCell(
	cam *camera.Pinhole,
	obs *FrameObservation,
	refX, refY, margin float64,
	minLevel, maxLevel int,
) []int {
	var indices []int

	minCol, maxCol, minRow, maxRow, ok := cam.CellBounds(r2.Point{X: refX, Y: refY}, margin)
	if !ok {
		return indices
	}

	checkLevels := 0 <= minLevel || 0 <= maxLevel
	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			for _, idx := range obs.cellIndices[col][row] {
				kp := obs.Keypoints[idx]
				if checkLevels {
					if 0 <= minLevel && kp.Octave < minLevel {
						continue
					}
					if 0 <= maxLevel && maxLevel < kp.Octave {
						continue
					}
				}
				if math.Abs(kp.Pt.X-refX) > margin || math.Abs(kp.Pt.Y-refY) > margin {
					continue
				}
				indices = append(indices, idx)
			}
		}
	}
	return indices
}

// TriangulateStereo back-projects the keypoint at the given index into world
// coordinates using its depth measurement and the supplied camera-to-world
// pose. The second return is false when the keypoint has no valid depth.
func TriangulateStereo(
	cam *camera.Pinhole,
	poseWC spatialmath.RigidTransform,
	obs *FrameObservation,
	idx int,
) (r3.Vector, bool) {
	depth := obs.Depths[idx]
	if depth <= 0 {
		return r3.Vector{}, false
	}
	kp := obs.Keypoints[idx]
	posC := cam.PixelToPoint(kp.Pt.X, kp.Pt.Y, depth)
	return poseWC.TransformPoint(posC), true
}
