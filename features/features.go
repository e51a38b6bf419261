// Package features holds the immutable visual-feature data attached to frames
// and keyframes: binary descriptors, keypoints, and the ORB scale pyramid
// parameters shared across the pipeline.
package features

import (
	"math"
	"math/bits"

	"github.com/golang/geo/r2"
)

// DescriptorLength is the byte length of a binary ORB descriptor.
const DescriptorLength = 32

// Descriptor is a 256-bit binary feature descriptor.
type Descriptor [DescriptorLength]byte

// HammingDistance returns the number of differing bits between two descriptors.
func HammingDistance(a, b Descriptor) int {
	dist := 0
	for i := 0; i < DescriptorLength; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

// KeyPoint is a detected image feature: undistorted pixel location, patch
// orientation in degrees, and the pyramid level it was detected at.
type KeyPoint struct {
	Pt     r2.Point
	Angle  float64
	Octave int
}

// ORBParams is the scale pyramid configuration a set of frames was extracted
// with. It is shared by reference and never mutated after construction.
type ORBParams struct {
	Name        string
	NumLevels   int
	ScaleFactor float64

	scaleFactors    []float64
	invScaleFactors []float64
}

// NewORBParams precomputes the per-level scale factors for the given pyramid.
func NewORBParams(name string, numLevels int, scaleFactor float64) *ORBParams {
	p := &ORBParams{
		Name:            name,
		NumLevels:       numLevels,
		ScaleFactor:     scaleFactor,
		scaleFactors:    make([]float64, numLevels),
		invScaleFactors: make([]float64, numLevels),
	}
	for lvl := 0; lvl < numLevels; lvl++ {
		p.scaleFactors[lvl] = math.Pow(scaleFactor, float64(lvl))
		p.invScaleFactors[lvl] = 1.0 / p.scaleFactors[lvl]
	}
	return p
}

// ScaleFactorAt returns the scale factor of the given pyramid level.
func (p *ORBParams) ScaleFactorAt(level int) float64 {
	return p.scaleFactors[level]
}

// InvScaleFactorAt returns the inverse scale factor of the given pyramid level.
func (p *ORBParams) InvScaleFactorAt(level int) float64 {
	return p.invScaleFactors[level]
}

// PredictScaleLevel returns the pyramid level a landmark at the given distance
// would be detected at, given the maximum distance it remains valid at.
func (p *ORBParams) PredictScaleLevel(maxValidDist, camToLmDist float64) int {
	ratio := maxValidDist / camToLmDist
	level := int(math.Ceil(math.Log(ratio) / math.Log(p.ScaleFactor)))
	if level < 0 {
		return 0
	}
	if level >= p.NumLevels {
		return p.NumLevels - 1
	}
	return level
}
