package mapdata

import (
	"sync"

	"github.com/golang/geo/r3"
)

// Marker is a square fiducial marker placed in the environment. Its corner
// positions are refined by the mapping thread, so they sit behind a lock like
// landmark positions do.
type Marker struct {
	ID uint

	mu      sync.Mutex
	corners [4]r3.Vector
}

// NewMarker creates a marker with the given world-frame corner positions.
func NewMarker(id uint, corners [4]r3.Vector) *Marker {
	return &Marker{ID: id, corners: corners}
}

// CornersInWorld returns a copy of the marker's corner positions.
func (mkr *Marker) CornersInWorld() [4]r3.Vector {
	mkr.mu.Lock()
	defer mkr.mu.Unlock()
	return mkr.corners
}

// SetCornersInWorld replaces the marker's corner positions.
func (mkr *Marker) SetCornersInWorld(corners [4]r3.Vector) {
	mkr.mu.Lock()
	defer mkr.mu.Unlock()
	mkr.corners = corners
}
