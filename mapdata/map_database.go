package mapdata

import (
	"sort"
	"sync"

	"github.com/edaniels/golog"
)

// MapDatabase owns the live keyframe and landmark sets. The first keyframe
// registered becomes the map origin; the origin is never erasable and roots
// the spanning tree.
type MapDatabase struct {
	logger golog.Logger

	mu            sync.Mutex
	keyframes     map[uint]*Keyframe
	landmarks     map[uint]*Landmark
	origin        *Keyframe
	maxKeyframeID uint

	frameStats *FrameStatistics
}

// NewMapDatabase creates an empty map database.
func NewMapDatabase(logger golog.Logger) *MapDatabase {
	return &MapDatabase{
		logger:     logger,
		keyframes:  map[uint]*Keyframe{},
		landmarks:  map[uint]*Landmark{},
		frameStats: NewFrameStatistics(),
	}
}

// AddKeyframe registers a keyframe in the live set. The first keyframe added
// becomes the origin.
func (db *MapDatabase) AddKeyframe(kf *Keyframe) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.keyframes[kf.ID] = kf
	if db.origin == nil {
		db.origin = kf
	}
	if kf.ID > db.maxKeyframeID {
		db.maxKeyframeID = kf.ID
	}
}

// EraseKeyframe removes a keyframe from the live set. Only the erasure
// cascade calls this; use Keyframe.PrepareForErasing to retire a keyframe.
func (db *MapDatabase) EraseKeyframe(kf *Keyframe) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.keyframes, kf.ID)
}

// KeyframeByID returns the live keyframe with the given ID, if any.
func (db *MapDatabase) KeyframeByID(id uint) (*Keyframe, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	kf, ok := db.keyframes[id]
	return kf, ok
}

// HasKeyframe reports whether a keyframe with the given ID is live.
func (db *MapDatabase) HasKeyframe(id uint) bool {
	_, ok := db.KeyframeByID(id)
	return ok
}

// AllKeyframes returns the live keyframes ordered by ID.
func (db *MapDatabase) AllKeyframes() []*Keyframe {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*Keyframe, 0, len(db.keyframes))
	for _, kf := range db.keyframes {
		out = append(out, kf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NumKeyframes returns the live keyframe count.
func (db *MapDatabase) NumKeyframes() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.keyframes)
}

// MaxKeyframeID returns the highest keyframe ID ever registered.
func (db *MapDatabase) MaxKeyframeID() uint {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.maxKeyframeID
}

// OriginKeyframe returns the designated origin keyframe.
func (db *MapDatabase) OriginKeyframe() *Keyframe {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.origin
}

// AddLandmark registers a landmark in the live set.
func (db *MapDatabase) AddLandmark(lm *Landmark) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.landmarks[lm.ID] = lm
}

// EraseLandmark removes a landmark from the live set. Only the landmark's own
// erasure path calls this.
func (db *MapDatabase) EraseLandmark(lm *Landmark) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.landmarks, lm.ID)
}

// LandmarkByID returns the live landmark with the given ID, if any.
func (db *MapDatabase) LandmarkByID(id uint) (*Landmark, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	lm, ok := db.landmarks[id]
	return lm, ok
}

// AllLandmarks returns the live landmarks ordered by ID.
func (db *MapDatabase) AllLandmarks() []*Landmark {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*Landmark, 0, len(db.landmarks))
	for _, lm := range db.landmarks {
		out = append(out, lm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NumLandmarks returns the live landmark count.
func (db *MapDatabase) NumLandmarks() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.landmarks)
}

// UpdateFrameStatistics records which keyframe a tracked frame was localized
// against.
func (db *MapDatabase) UpdateFrameStatistics(frm *Frame, refKeyframe *Keyframe, isLost bool) {
	db.frameStats.Update(frm, refKeyframe, isLost)
}

// FrameStats exposes the per-frame tracking statistics.
func (db *MapDatabase) FrameStats() *FrameStatistics {
	return db.frameStats
}

// ReplaceReferenceKeyframe redirects every frame-statistics record pointing
// at an erased keyframe to its surviving spanning parent, so downstream
// consumers never hold an erased reference keyframe.
func (db *MapDatabase) ReplaceReferenceKeyframe(old, replacement *Keyframe) {
	if db.logger != nil {
		db.logger.Debugw("replacing reference keyframe", "old", old.ID)
	}
	db.frameStats.ReplaceReferenceKeyframe(old, replacement)
}

// Clear empties the database entirely.
func (db *MapDatabase) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.keyframes = map[uint]*Keyframe{}
	db.landmarks = map[uint]*Landmark{}
	db.origin = nil
	db.maxKeyframeID = 0
	db.frameStats = NewFrameStatistics()
	if db.logger != nil {
		db.logger.Debug("map database cleared")
	}
}
