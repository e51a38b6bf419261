package mapdata

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"
)

// mapSnapshot is the on-disk map layout: every live keyframe and landmark
// keyed by ID, plus the next IDs to assign on reload.
type mapSnapshot struct {
	Keyframes      map[string]json.RawMessage `json:"keyframes"`
	Landmarks      map[string]json.RawMessage `json:"landmarks"`
	NextKeyframeID uint                       `json:"keyframe_next_id"`
	NextLandmarkID uint                       `json:"landmark_next_id"`
}

// SaveMap writes a structural snapshot of the map database to the given path.
// Keyframe and landmark sections are marshaled in parallel; the write itself
// is a single encode.
func SaveMap(path string, mapDB *MapDatabase) error {
	snapshot := mapSnapshot{
		Keyframes:      map[string]json.RawMessage{},
		Landmarks:      map[string]json.RawMessage{},
		NextKeyframeID: mapDB.MaxKeyframeID() + 1,
	}

	keyframes := mapDB.AllKeyframes()
	landmarks := mapDB.AllLandmarks()
	for _, lm := range landmarks {
		if lm.ID >= snapshot.NextLandmarkID {
			snapshot.NextLandmarkID = lm.ID + 1
		}
	}

	var group errgroup.Group
	group.Go(func() error {
		for _, kf := range keyframes {
			data, err := json.Marshal(kf)
			if err != nil {
				return errors.Wrapf(err, "marshaling keyframe %d", kf.ID)
			}
			snapshot.Keyframes[strconv.FormatUint(uint64(kf.ID), 10)] = data
		}
		return nil
	})
	group.Go(func() error {
		for _, lm := range landmarks {
			data, err := json.Marshal(lm)
			if err != nil {
				return errors.Wrapf(err, "marshaling landmark %d", lm.ID)
			}
			snapshot.Landmarks[strconv.FormatUint(uint64(lm.ID), 10)] = data
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating map snapshot file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	return multierr.Combine(
		errors.Wrap(json.NewEncoder(f).Encode(snapshot), "encoding map snapshot"),
		errors.Wrap(f.Sync(), "syncing map snapshot"),
	)
}
