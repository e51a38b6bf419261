package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RigidTransform is a 4x4 homogeneous rigid transform represented as a
// rotation plus a translation. It is a value type so callers can copy it
// under a lock and hand out the copy.
type RigidTransform struct {
	Rotation    RotationMatrix
	Translation r3.Vector
}

// NewRigidTransform creates a transform from a rotation and a translation.
func NewRigidTransform(rot RotationMatrix, trans r3.Vector) RigidTransform {
	return RigidTransform{Rotation: rot, Translation: trans}
}

// NewZeroRigidTransform returns the identity transform.
func NewZeroRigidTransform() RigidTransform {
	return RigidTransform{Rotation: NewZeroRotationMatrix()}
}

// NewRigidTransformFromQuaternion creates a transform from a unit quaternion
// and a translation.
func NewRigidTransformFromQuaternion(q quat.Number, trans r3.Vector) RigidTransform {
	return RigidTransform{Rotation: NewRotationMatrixFromQuaternion(q), Translation: trans}
}

// Inverse returns the exact inverse: R' = Rᵀ, t' = -Rᵀ t.
func (rt RigidTransform) Inverse() RigidTransform {
	rotInv := rt.Rotation.Transpose()
	return RigidTransform{
		Rotation:    rotInv,
		Translation: rotInv.MulVec(rt.Translation).Mul(-1),
	}
}

// Compose returns the transform equivalent to applying other first, then rt.
func (rt RigidTransform) Compose(other RigidTransform) RigidTransform {
	return RigidTransform{
		Rotation:    rt.Rotation.Mul(other.Rotation),
		Translation: rt.Rotation.MulVec(other.Translation).Add(rt.Translation),
	}
}

// TransformPoint applies the transform to a point.
func (rt RigidTransform) TransformPoint(p r3.Vector) r3.Vector {
	return rt.Rotation.MulVec(p).Add(rt.Translation)
}

// AlmostEqual reports whether two transforms agree element-wise within epsilon.
func AlmostEqual(a, b RigidTransform, epsilon float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.Rotation.At(i, j)-b.Rotation.At(i, j)) > epsilon {
				return false
			}
		}
	}
	diff := a.Translation.Sub(b.Translation)
	return math.Abs(diff.X) <= epsilon && math.Abs(diff.Y) <= epsilon && math.Abs(diff.Z) <= epsilon
}
