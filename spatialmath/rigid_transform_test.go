package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestRotationMatrixQuaternionRoundTrip(t *testing.T) {
	cases := []quat.Number{
		{Real: 1},
		{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)},
		{Real: math.Cos(math.Pi / 6), Imag: math.Sin(math.Pi / 6)},
		{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5},
	}
	for _, q := range cases {
		rm := NewRotationMatrixFromQuaternion(q)
		got := rm.Quaternion()
		// q and -q encode the same rotation
		if got.Real*q.Real+got.Imag*q.Imag+got.Jmag*q.Jmag+got.Kmag*q.Kmag < 0 {
			got = quat.Number{Real: -got.Real, Imag: -got.Imag, Jmag: -got.Jmag, Kmag: -got.Kmag}
		}
		test.That(t, got.Real, test.ShouldAlmostEqual, q.Real, 1e-9)
		test.That(t, got.Imag, test.ShouldAlmostEqual, q.Imag, 1e-9)
		test.That(t, got.Jmag, test.ShouldAlmostEqual, q.Jmag, 1e-9)
		test.That(t, got.Kmag, test.ShouldAlmostEqual, q.Kmag, 1e-9)
	}
}

func TestRigidTransformInverse(t *testing.T) {
	q := quat.Number{Real: math.Cos(math.Pi / 8), Jmag: math.Sin(math.Pi / 8)}
	rt := NewRigidTransformFromQuaternion(q, r3.Vector{X: 1, Y: -2, Z: 3})

	inv := rt.Inverse()
	test.That(t, AlmostEqual(rt.Compose(inv), NewZeroRigidTransform(), 1e-12), test.ShouldBeTrue)
	test.That(t, AlmostEqual(inv.Compose(rt), NewZeroRigidTransform(), 1e-12), test.ShouldBeTrue)
	test.That(t, AlmostEqual(inv.Inverse(), rt, 1e-12), test.ShouldBeTrue)
}

func TestRigidTransformPoint(t *testing.T) {
	// 90 degrees about z then translate
	q := quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)}
	rt := NewRigidTransformFromQuaternion(q, r3.Vector{X: 10})

	got := rt.TransformPoint(r3.Vector{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 10, 1e-12)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-12)

	back := rt.Inverse().TransformPoint(got)
	test.That(t, back.X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, back.Y, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestRotationMatrixRows(t *testing.T) {
	rm := NewRotationMatrix([9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	test.That(t, rm.Row(2), test.ShouldResemble, r3.Vector{X: 7, Y: 8, Z: 9})
	test.That(t, rm.Col(0), test.ShouldResemble, r3.Vector{X: 1, Y: 4, Z: 7})
	test.That(t, rm.Transpose().Row(0), test.ShouldResemble, r3.Vector{X: 1, Y: 4, Z: 7})
	test.That(t, rm.At(1, 2), test.ShouldEqual, 6)
}
