// Package bow implements the bag-of-words representation used for place
// recognition: a vocabulary of binary words, the sparse word vectors derived
// from a keyframe's descriptors, and scoring between vectors.
package bow

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/mapgraph/features"
)

// WordID identifies a vocabulary word.
type WordID uint32

// Vector is a sparse, L1-normalized word histogram of a descriptor set.
type Vector map[WordID]float64

// FeatureVector groups the keypoint indices of a descriptor set by the word
// each descriptor quantized to.
type FeatureVector map[WordID][]uint32

// Vocabulary quantizes binary descriptors into words. This is a flat
// vocabulary: every descriptor is matched against every word, which is plenty
// for the vocabulary sizes used in tests and small maps.
type Vocabulary struct {
	words []features.Descriptor
}

// NewVocabulary creates a vocabulary from the given word descriptors.
func NewVocabulary(words []features.Descriptor) (*Vocabulary, error) {
	if len(words) == 0 {
		return nil, errors.New("vocabulary needs at least one word")
	}
	v := &Vocabulary{words: make([]features.Descriptor, len(words))}
	copy(v.words, words)
	return v, nil
}

// NumWords returns the vocabulary size.
func (v *Vocabulary) NumWords() int {
	return len(v.words)
}

// ClosestWord returns the word with minimum Hamming distance to the
// descriptor. Ties break toward the lower word ID.
func (v *Vocabulary) ClosestWord(desc features.Descriptor) WordID {
	best := 0
	bestDist := features.HammingDistance(desc, v.words[0])
	for i := 1; i < len(v.words); i++ {
		if d := features.HammingDistance(desc, v.words[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return WordID(best)
}

// Transform quantizes a descriptor set into its word vector and feature
// vector. The word vector is L1-normalized; the feature vector maps each word
// to the keypoint indices whose descriptors landed on it.
func (v *Vocabulary) Transform(descs []features.Descriptor) (Vector, FeatureVector) {
	vec := make(Vector)
	featVec := make(FeatureVector)
	if len(descs) == 0 {
		return vec, featVec
	}
	for i, desc := range descs {
		w := v.ClosestWord(desc)
		vec[w]++
		featVec[w] = append(featVec[w], uint32(i))
	}
	norm := float64(len(descs))
	for w := range vec {
		vec[w] /= norm
	}
	return vec, featVec
}

// L1Score scores two normalized word vectors on [0, 1]; identical vectors
// score 1.
func L1Score(a, b Vector) float64 {
	var accum float64
	for w, av := range a {
		if bv, ok := b[w]; ok {
			accum += math.Abs(av-bv) - math.Abs(av) - math.Abs(bv)
		}
	}
	// accum collapses to -2 for identical vectors and 0 for disjoint ones
	return -0.5 * accum
}

// SharedWords counts the words present in both vectors.
func SharedWords(a, b Vector) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
