package features

import (
	"encoding/json"

	"github.com/golang/geo/r2"
)

type keyPointJSON struct {
	Pt  [2]float64 `json:"pt"`
	Ang float64    `json:"ang"`
	Oct int        `json:"oct"`
}

// MarshalJSON encodes the keypoint in the interchange layout used by the map
// snapshot format.
func (kp KeyPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyPointJSON{
		Pt:  [2]float64{kp.Pt.X, kp.Pt.Y},
		Ang: kp.Angle,
		Oct: kp.Octave,
	})
}

// UnmarshalJSON decodes a keypoint from its interchange layout.
func (kp *KeyPoint) UnmarshalJSON(data []byte) error {
	var raw keyPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kp.Pt = r2.Point{X: raw.Pt[0], Y: raw.Pt[1]}
	kp.Angle = raw.Ang
	kp.Octave = raw.Oct
	return nil
}
