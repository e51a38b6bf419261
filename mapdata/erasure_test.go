package mapdata

import (
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/mapgraph/bow"
	"go.viam.com/mapgraph/features"
)

// erasureFixture builds a three-keyframe map with shared landmarks:
//
//	lmA: kf0, kf1     lmB: kf0, kf1, kf2     lmC: kf1, kf2
//
// covisibility weights: kf0-kf1 = 2, kf1-kf2 = 2, kf0-kf2 = 1; spanning tree
// kf0 -> kf1 -> kf2.
type erasureFixture struct {
	mapDB         *MapDatabase
	bowDB         *BowDatabase
	kf0, kf1, kf2 *Keyframe
	lmA, lmB, lmC *Landmark
}

func newErasureFixture(t *testing.T) *erasureFixture {
	t.Helper()
	logger := golog.NewTestLogger(t)
	f := &erasureFixture{
		mapDB: NewMapDatabase(logger),
		bowDB: NewBowDatabase(logger),
		kf0:   testKeyframe(t, 0, 4),
		kf1:   testKeyframe(t, 1, 4),
		kf2:   testKeyframe(t, 2, 4),
		lmA:   testLandmarkAt(1, r3.Vector{Z: 1}),
		lmB:   testLandmarkAt(2, r3.Vector{X: 1, Z: 2}),
		lmC:   testLandmarkAt(3, r3.Vector{Y: 1, Z: 3}),
	}

	observe(f.kf0, f.lmA, 0)
	observe(f.kf1, f.lmA, 0)
	observe(f.kf0, f.lmB, 1)
	observe(f.kf1, f.lmB, 1)
	observe(f.kf2, f.lmB, 0)
	observe(f.kf1, f.lmC, 2)
	observe(f.kf2, f.lmC, 1)

	for _, kf := range []*Keyframe{f.kf0, f.kf1, f.kf2} {
		f.mapDB.AddKeyframe(kf)
	}
	for _, lm := range []*Landmark{f.lmA, f.lmB, f.lmC} {
		f.mapDB.AddLandmark(lm)
	}
	f.kf1.GraphNode().UpdateConnections(1)
	f.kf2.GraphNode().UpdateConnections(1)
	return f
}

func TestErasureCascade(t *testing.T) {
	f := newErasureFixture(t)

	// sanity: spanning tree is kf0 -> kf1 -> kf2
	test.That(t, f.kf1.GraphNode().SpanningParent(), test.ShouldEqual, f.kf0)
	test.That(t, f.kf2.GraphNode().SpanningParent(), test.ShouldEqual, f.kf1)
	test.That(t, f.kf0.GraphNode().HasSpanningChild(f.kf1), test.ShouldBeTrue)

	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeTrue)

	// no landmark lists kf1 as an observer anymore
	for _, lm := range []*Landmark{f.lmA, f.lmB, f.lmC} {
		test.That(t, lm.IsObservedInKeyframe(f.kf1), test.ShouldBeFalse)
	}
	// landmarks with surviving observers stay in the map
	test.That(t, f.mapDB.NumLandmarks(), test.ShouldEqual, 3)
	test.That(t, f.lmC.NumObservations(), test.ShouldEqual, 1)

	// the graph node reports no covisibility edges for kf1
	test.That(t, f.kf1.GraphNode().NumConnections(), test.ShouldEqual, 0)
	test.That(t, f.kf2.GraphNode().WeightOf(f.kf1), test.ShouldEqual, 0)

	// the spanning tree reattached kf2 under kf0
	test.That(t, f.kf2.GraphNode().SpanningParent(), test.ShouldEqual, f.kf0)
	test.That(t, f.kf0.GraphNode().HasSpanningChild(f.kf2), test.ShouldBeTrue)
	test.That(t, f.kf0.GraphNode().HasSpanningChild(f.kf1), test.ShouldBeFalse)

	// kf1 left the live set
	test.That(t, f.mapDB.HasKeyframe(1), test.ShouldBeFalse)
	test.That(t, f.mapDB.NumKeyframes(), test.ShouldEqual, 2)
}

func TestErasureRefusesOrigin(t *testing.T) {
	f := newErasureFixture(t)
	f.kf0.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf0.WillBeErased(), test.ShouldBeFalse)
	test.That(t, f.mapDB.HasKeyframe(0), test.ShouldBeTrue)
}

func TestErasureRefusesPinned(t *testing.T) {
	f := newErasureFixture(t)

	f.kf1.SetNotToBeErased()
	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeFalse)
	test.That(t, f.mapDB.HasKeyframe(1), test.ShouldBeTrue)

	f.kf1.SetToBeErased()
	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeTrue)
	test.That(t, f.mapDB.HasKeyframe(1), test.ShouldBeFalse)
}

func TestLoopEdgeWinsOverUnpin(t *testing.T) {
	f := newErasureFixture(t)

	f.kf1.GraphNode().AddLoopEdge(f.kf2)
	test.That(t, f.kf1.GraphNode().HasLoopEdge(), test.ShouldBeTrue)

	// the unpin request is refused while a loop edge exists
	f.kf1.SetToBeErased()
	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeFalse)
	test.That(t, f.mapDB.HasKeyframe(1), test.ShouldBeTrue)
}

func TestErasureIdempotent(t *testing.T) {
	f := newErasureFixture(t)

	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeTrue)
	numKfs := f.mapDB.NumKeyframes()
	parent := f.kf2.GraphNode().SpanningParent()

	// the second call is a complete no-op
	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, f.kf1.WillBeErased(), test.ShouldBeTrue)
	test.That(t, f.mapDB.NumKeyframes(), test.ShouldEqual, numKfs)
	test.That(t, f.kf2.GraphNode().SpanningParent(), test.ShouldEqual, parent)
}

func TestErasureConcurrentCallsRunOnce(t *testing.T) {
	f := newErasureFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
		}()
	}
	wg.Wait()

	test.That(t, f.kf1.WillBeErased(), test.ShouldBeTrue)
	test.That(t, f.mapDB.NumKeyframes(), test.ShouldEqual, 2)
	test.That(t, f.kf2.GraphNode().SpanningParent(), test.ShouldEqual, f.kf0)
}

func TestErasureRemovesFromBowDatabase(t *testing.T) {
	f := newErasureFixture(t)

	var w0, w1 features.Descriptor
	w1[0] = 0xFF
	vocab, err := bow.NewVocabulary([]features.Descriptor{w0, w1})
	test.That(t, err, test.ShouldBeNil)

	f.kf1.ComputeBow(vocab)
	f.bowDB.AddKeyframe(f.kf1)
	test.That(t, len(f.bowDB.KeyframesWithSharedWords(f.kf1.BowVector(), 1)), test.ShouldEqual, 1)

	f.kf1.PrepareForErasing(f.mapDB, f.bowDB)
	test.That(t, len(f.bowDB.KeyframesWithSharedWords(f.kf1.BowVector(), 1)), test.ShouldEqual, 0)
}

func TestLandmarkErasedWhenLastObserverGoes(t *testing.T) {
	logger := golog.NewTestLogger(t)
	mapDB := NewMapDatabase(logger)
	bowDB := NewBowDatabase(logger)

	kf0 := testKeyframe(t, 0, 2)
	kf1 := testKeyframe(t, 1, 2)
	mapDB.AddKeyframe(kf0)
	mapDB.AddKeyframe(kf1)

	shared := testLandmarkAt(1, r3.Vector{Z: 1})
	observe(kf0, shared, 0)
	observe(kf1, shared, 0)
	solo := testLandmarkAt(2, r3.Vector{Z: 2})
	observe(kf1, solo, 1)
	mapDB.AddLandmark(shared)
	mapDB.AddLandmark(solo)
	kf1.GraphNode().UpdateConnections(1)

	kf1.PrepareForErasing(mapDB, bowDB)

	// the landmark observed only by kf1 erased itself
	test.That(t, solo.WillBeErased(), test.ShouldBeTrue)
	_, ok := mapDB.LandmarkByID(2)
	test.That(t, ok, test.ShouldBeFalse)
	// the shared landmark survives with one observer
	test.That(t, shared.WillBeErased(), test.ShouldBeFalse)
	test.That(t, shared.NumObservations(), test.ShouldEqual, 1)
}
