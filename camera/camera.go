// Package camera provides the pinhole camera model keyframes reference: the
// intrinsic parameters needed to back-project features and the grid layout
// used to bucket keypoints for cell queries.
package camera

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// SetupType describes how a camera produces depth, if at all.
type SetupType int

const (
	// Monocular cameras have no depth source.
	Monocular SetupType = iota
	// Stereo cameras derive depth from a second imager at a known baseline.
	Stereo
	// RGBD cameras pair the imager with a direct depth sensor.
	RGBD
)

// String returns a human-readable setup name.
func (s SetupType) String() string {
	switch s {
	case Monocular:
		return "monocular"
	case Stereo:
		return "stereo"
	case RGBD:
		return "rgbd"
	default:
		return fmt.Sprintf("SetupType(%d)", int(s))
	}
}

// DefaultGridCols and DefaultGridRows bucket keypoints for cell queries.
const (
	DefaultGridCols = 64
	DefaultGridRows = 48
)

// Pinhole holds the parameters necessary to do a perspective projection of a
// 3D scene to the 2D plane, plus the stereo baseline and the keypoint grid
// layout. It is shared by reference across frames and never mutated.
type Pinhole struct {
	Name   string    `json:"name"`
	Setup  SetupType `json:"setup"`
	Width  int       `json:"width_px"`
	Height int       `json:"height_px"`
	Fx     float64   `json:"fx"`
	Fy     float64   `json:"fy"`
	Ppx    float64   `json:"ppx"`
	Ppy    float64   `json:"ppy"`
	// FocalXBaseline is fx times the stereo baseline in meters; zero for
	// monocular setups.
	FocalXBaseline float64 `json:"focal_x_baseline"`

	GridCols int `json:"grid_cols"`
	GridRows int `json:"grid_rows"`
}

// CheckValid checks if the fields for Pinhole have valid inputs.
func (params *Pinhole) CheckValid() error {
	if params == nil {
		return errors.New("camera parameters do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return errors.Errorf("invalid size (%d, %d)", params.Width, params.Height)
	}
	if params.Fx <= 0 || params.Fy <= 0 {
		return errors.Errorf("invalid focal lengths (%f, %f)", params.Fx, params.Fy)
	}
	if params.Ppx < 0 || params.Ppy < 0 {
		return errors.Errorf("invalid principal point (%f, %f)", params.Ppx, params.Ppy)
	}
	if params.Setup != Monocular && params.FocalXBaseline <= 0 {
		return errors.Errorf("invalid focal-x-baseline %f for %s setup", params.FocalXBaseline, params.Setup)
	}
	return nil
}

// HasDepth reports whether the camera produces depth for its keypoints.
func (params *Pinhole) HasDepth() bool {
	return params.Setup != Monocular
}

// Baseline returns the stereo baseline in meters.
func (params *Pinhole) Baseline() float64 {
	return params.FocalXBaseline / params.Fx
}

// PixelToPoint back-projects a pixel with depth to a 3D point in the camera
// frame.
func (params *Pinhole) PixelToPoint(x, y, z float64) r3.Vector {
	return r3.Vector{
		X: (x - params.Ppx) / params.Fx * z,
		Y: (y - params.Ppy) / params.Fy * z,
		Z: z,
	}
}

// PointToPixel projects a 3D point in the camera frame to a pixel.
func (params *Pinhole) PointToPixel(p r3.Vector) r2.Point {
	return r2.Point{
		X: p.X/p.Z*params.Fx + params.Ppx,
		Y: p.Y/p.Z*params.Fy + params.Ppy,
	}
}

// CellIndex returns the grid cell containing the given pixel and whether the
// pixel falls inside the image bounds at all.
func (params *Pinhole) CellIndex(pt r2.Point) (col, row int, ok bool) {
	if pt.X < 0 || pt.Y < 0 || pt.X >= float64(params.Width) || pt.Y >= float64(params.Height) {
		return 0, 0, false
	}
	cols, rows := params.gridShape()
	col = int(pt.X * float64(cols) / float64(params.Width))
	row = int(pt.Y * float64(rows) / float64(params.Height))
	return col, row, true
}

// CellBounds returns the half-open pixel ranges covered by the cells that
// intersect the square of the given margin around a reference pixel.
func (params *Pinhole) CellBounds(ref r2.Point, margin float64) (minCol, maxCol, minRow, maxRow int, ok bool) {
	cols, rows := params.gridShape()
	cellW := float64(params.Width) / float64(cols)
	cellH := float64(params.Height) / float64(rows)

	minCol = int((ref.X - margin) / cellW)
	maxCol = int((ref.X + margin) / cellW)
	minRow = int((ref.Y - margin) / cellH)
	maxRow = int((ref.Y + margin) / cellH)

	if maxCol < 0 || minCol >= cols || maxRow < 0 || minRow >= rows {
		return 0, 0, 0, 0, false
	}
	if minCol < 0 {
		minCol = 0
	}
	if maxCol >= cols {
		maxCol = cols - 1
	}
	if minRow < 0 {
		minRow = 0
	}
	if maxRow >= rows {
		maxRow = rows - 1
	}
	return minCol, maxCol, minRow, maxRow, true
}

func (params *Pinhole) gridShape() (cols, rows int) {
	cols, rows = params.GridCols, params.GridRows
	if cols <= 0 {
		cols = DefaultGridCols
	}
	if rows <= 0 {
		rows = DefaultGridRows
	}
	return cols, rows
}
