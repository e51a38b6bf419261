package camera

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func testCam() *Pinhole {
	return &Pinhole{
		Name:           "stereo_test",
		Setup:          Stereo,
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

func TestCheckValid(t *testing.T) {
	cam := testCam()
	test.That(t, cam.CheckValid(), test.ShouldBeNil)

	bad := testCam()
	bad.Fx = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	noBaseline := testCam()
	noBaseline.FocalXBaseline = 0
	test.That(t, noBaseline.CheckValid(), test.ShouldNotBeNil)
	noBaseline.Setup = Monocular
	test.That(t, noBaseline.CheckValid(), test.ShouldBeNil)
	test.That(t, noBaseline.HasDepth(), test.ShouldBeFalse)
	test.That(t, cam.HasDepth(), test.ShouldBeTrue)
}

func TestPixelPointRoundTrip(t *testing.T) {
	cam := testCam()
	p := cam.PixelToPoint(400, 300, 2)
	test.That(t, p.X, test.ShouldAlmostEqual, (400.0-320.0)/500.0*2.0)
	test.That(t, p.Z, test.ShouldEqual, 2.0)

	px := cam.PointToPixel(r3.Vector{X: p.X, Y: p.Y, Z: p.Z})
	test.That(t, px.X, test.ShouldAlmostEqual, 400)
	test.That(t, px.Y, test.ShouldAlmostEqual, 300)
}

func TestCellIndex(t *testing.T) {
	cam := testCam()

	col, row, ok := cam.CellIndex(r2.Point{X: 0, Y: 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, col, test.ShouldEqual, 0)
	test.That(t, row, test.ShouldEqual, 0)

	col, row, ok = cam.CellIndex(r2.Point{X: 639, Y: 479})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, col, test.ShouldEqual, 63)
	test.That(t, row, test.ShouldEqual, 47)

	_, _, ok = cam.CellIndex(r2.Point{X: 640, Y: 100})
	test.That(t, ok, test.ShouldBeFalse)
	_, _, ok = cam.CellIndex(r2.Point{X: -1, Y: 100})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestCellBounds(t *testing.T) {
	cam := testCam()

	minCol, maxCol, minRow, maxRow, ok := cam.CellBounds(r2.Point{X: 320, Y: 240}, 10)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, minCol, test.ShouldBeLessThanOrEqualTo, maxCol)
	test.That(t, minRow, test.ShouldBeLessThanOrEqualTo, maxRow)

	// entirely off-image
	_, _, _, _, ok = cam.CellBounds(r2.Point{X: -100, Y: -100}, 10)
	test.That(t, ok, test.ShouldBeFalse)

	// margin overlapping the border clamps instead of failing
	minCol, _, minRow, _, ok = cam.CellBounds(r2.Point{X: 2, Y: 2}, 30)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, minCol, test.ShouldEqual, 0)
	test.That(t, minRow, test.ShouldEqual, 0)
}
