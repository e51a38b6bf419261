package mapdata

import (
	"sort"
	"sync"

	"github.com/edaniels/golog"

	"go.viam.com/mapgraph/bow"
)

// BowDatabase is the inverted index used for place recognition: each
// vocabulary word maps to the keyframes whose BoW vector contains it.
type BowDatabase struct {
	logger golog.Logger

	mu            sync.Mutex
	invertedIndex map[bow.WordID]map[*Keyframe]struct{}
}

// NewBowDatabase creates an empty inverted index.
func NewBowDatabase(logger golog.Logger) *BowDatabase {
	return &BowDatabase{
		logger:        logger,
		invertedIndex: map[bow.WordID]map[*Keyframe]struct{}{},
	}
}

// AddKeyframe indexes a keyframe under every word of its BoW vector. The
// keyframe must have its BoW vector computed.
func (db *BowDatabase) AddKeyframe(kf *Keyframe) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for word := range kf.BowVector() {
		kfs, ok := db.invertedIndex[word]
		if !ok {
			kfs = map[*Keyframe]struct{}{}
			db.invertedIndex[word] = kfs
		}
		kfs[kf] = struct{}{}
	}
}

// EraseKeyframe removes a keyframe from every word it was indexed under.
func (db *BowDatabase) EraseKeyframe(kf *Keyframe) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for word := range kf.BowVector() {
		kfs, ok := db.invertedIndex[word]
		if !ok {
			continue
		}
		delete(kfs, kf)
		if len(kfs) == 0 {
			delete(db.invertedIndex, word)
		}
	}
}

// KeyframesWithSharedWords returns the indexed keyframes sharing at least
// minShared words with the query vector, ordered by descending shared-word
// count. Keyframes being erased are skipped.
func (db *BowDatabase) KeyframesWithSharedWords(vec bow.Vector, minShared int) []*Keyframe {
	if minShared < 1 {
		minShared = 1
	}

	db.mu.Lock()
	sharedCounts := map[*Keyframe]int{}
	for word := range vec {
		for kf := range db.invertedIndex[word] {
			sharedCounts[kf]++
		}
	}
	db.mu.Unlock()

	out := make([]*Keyframe, 0, len(sharedCounts))
	for kf, n := range sharedCounts {
		if n < minShared || kf.WillBeErased() {
			continue
		}
		out = append(out, kf)
	}
	sort.Slice(out, func(i, j int) bool {
		if sharedCounts[out[i]] != sharedCounts[out[j]] {
			return sharedCounts[out[i]] > sharedCounts[out[j]]
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clear empties the index.
func (db *BowDatabase) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.invertedIndex = map[bow.WordID]map[*Keyframe]struct{}{}
	if db.logger != nil {
		db.logger.Debug("bow database cleared")
	}
}
