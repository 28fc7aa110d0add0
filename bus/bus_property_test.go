package bus

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPushPollRoundTripProperty validates testable property 4: push
// followed immediately by poll (no intervening pushes) returns the same
// event, byte-for-byte except for Timestamp.
func TestPushPollRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("push then poll returns the same BeatBoundary payload", prop.ForAll(
		func(beatTenths, quantum, bufferID int) bool {
			beat := float64(beatTenths) / 10
			b := New()
			if err := b.PushBeat(beat, quantum, bufferID); err != nil {
				t.Logf("push failed: %v", err)
				return false
			}
			var evt BusEvent
			if !b.Poll(&evt) {
				return false
			}
			return evt.Kind == KindBeatBoundary &&
				evt.BeatBoundary.Beat == beat &&
				evt.BeatBoundary.Quantum == quantum &&
				evt.BeatBoundary.BufferID == bufferID
		},
		gen.IntRange(-10000, 10000),
		gen.IntRange(1, 32),
		gen.IntRange(0, 31),
	))

	properties.TestingRun(t)
}

// TestFillToCapacityProperty validates testable property 6: filling the
// bus to capacity returns Full on the next push; draining one and pushing
// one succeeds afterward.
func TestFillToCapacityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("bus rejects a push once full, accepts one after draining one", prop.ForAll(
		func(fillTo int) bool {
			b := New()
			for i := 0; i < fillTo; i++ {
				if err := b.PushTimer(i, nil); err != nil {
					return false
				}
			}
			if err := b.PushTimer(fillTo, nil); err != ErrFull {
				return false
			}
			var evt BusEvent
			if !b.Poll(&evt) {
				return false
			}
			return b.PushTimer(-1, nil) == nil
		},
		gen.IntRange(Capacity-1, Capacity-1),
	))

	properties.TestingRun(t)
}

// TestDispatchAllCoalescingProperty validates scenario S5 and testable
// property 5: N sequential pushes followed by one DispatchAll invokes the
// handler exactly N times, in push order, and the final observed value is
// the one from the Nth push.
func TestDispatchAllCoalescingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("N sequential pushes dispatch exactly N times in order", prop.ForAll(
		func(n int) bool {
			b := New()
			var observed []float64
			b.SetHandler(KindLinkTempo, func(_ any, evt BusEvent) {
				observed = append(observed, evt.LinkTempo.BPM)
			})

			for i := 0; i < n; i++ {
				if err := b.PushLinkTempo(float64(100 + i)); err != nil {
					return false
				}
			}
			count := b.DispatchAll(nil)
			if count != n || len(observed) != n {
				return false
			}
			for i, v := range observed {
				if v != float64(100+i) {
					return false
				}
			}
			return n == 0 || observed[len(observed)-1] == float64(100+n-1)
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestConcurrentPushersSerializeUnderMutex exercises S5's concurrency
// shape directly (10 goroutines each pushing one LinkTempo event),
// checking the bus still reports exactly 10 queued events afterward.
func TestConcurrentPushersSerializeUnderMutex(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = b.PushLinkTempo(float64(100 + v))
		}(i)
	}
	wg.Wait()

	if got := b.Count(); got != 10 {
		t.Fatalf("expected 10 queued events, got %d", got)
	}
}
