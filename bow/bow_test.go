package bow

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/mapgraph/features"
)

func word(b byte) features.Descriptor {
	var d features.Descriptor
	for i := range d {
		d[i] = b
	}
	return d
}

func testVocab(t *testing.T) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary([]features.Descriptor{word(0x00), word(0x0F), word(0xFF)})
	test.That(t, err, test.ShouldBeNil)
	return v
}

func TestNewVocabularyEmpty(t *testing.T) {
	_, err := NewVocabulary(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClosestWord(t *testing.T) {
	v := testVocab(t)
	test.That(t, v.NumWords(), test.ShouldEqual, 3)
	test.That(t, v.ClosestWord(word(0x00)), test.ShouldEqual, WordID(0))
	test.That(t, v.ClosestWord(word(0x01)), test.ShouldEqual, WordID(0))
	test.That(t, v.ClosestWord(word(0x0F)), test.ShouldEqual, WordID(1))
	test.That(t, v.ClosestWord(word(0xFE)), test.ShouldEqual, WordID(2))
}

func TestTransform(t *testing.T) {
	v := testVocab(t)
	vec, featVec := v.Transform([]features.Descriptor{word(0x00), word(0xFF), word(0xFF), word(0x0F)})

	test.That(t, vec[0], test.ShouldAlmostEqual, 0.25)
	test.That(t, vec[1], test.ShouldAlmostEqual, 0.25)
	test.That(t, vec[2], test.ShouldAlmostEqual, 0.5)
	test.That(t, featVec[2], test.ShouldResemble, []uint32{1, 2})
	test.That(t, featVec[0], test.ShouldResemble, []uint32{0})

	emptyVec, emptyFeat := v.Transform(nil)
	test.That(t, emptyVec, test.ShouldBeEmpty)
	test.That(t, emptyFeat, test.ShouldBeEmpty)
}

func TestL1Score(t *testing.T) {
	a := Vector{0: 0.5, 1: 0.5}
	test.That(t, L1Score(a, a), test.ShouldAlmostEqual, 1.0)

	disjoint := Vector{2: 1.0}
	test.That(t, L1Score(a, disjoint), test.ShouldAlmostEqual, 0.0)

	b := Vector{0: 0.5, 2: 0.5}
	test.That(t, L1Score(a, b), test.ShouldAlmostEqual, 0.5)
}

func TestSharedWords(t *testing.T) {
	a := Vector{0: 0.5, 1: 0.25, 3: 0.25}
	b := Vector{1: 0.5, 3: 0.5}
	test.That(t, SharedWords(a, b), test.ShouldEqual, 2)
	test.That(t, SharedWords(a, Vector{}), test.ShouldEqual, 0)
}
