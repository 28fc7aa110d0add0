package bus

import "testing"

func TestPushPollRoundTrip(t *testing.T) {
	b := New()
	if err := b.PushBeat(1.5, 4, 2); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.IsEmpty() {
		t.Fatal("expected non-empty bus after push")
	}

	var evt BusEvent
	if !b.Poll(&evt) {
		t.Fatal("expected poll to succeed")
	}
	if evt.Kind != KindBeatBoundary {
		t.Fatalf("expected KindBeatBoundary, got %v", evt.Kind)
	}
	if evt.BeatBoundary.Beat != 1.5 || evt.BeatBoundary.Quantum != 4 || evt.BeatBoundary.BufferID != 2 {
		t.Fatalf("unexpected payload: %+v", evt.BeatBoundary)
	}
	if !b.IsEmpty() {
		t.Fatal("expected empty bus after poll")
	}
}

func TestPushFullReturnsErrFull(t *testing.T) {
	b := New()
	var lastErr error
	for i := 0; i < Capacity; i++ {
		lastErr = b.PushTimer(i, nil)
		if lastErr != nil {
			break
		}
	}
	if lastErr != ErrFull {
		t.Fatalf("expected ErrFull once ring fills, got %v", lastErr)
	}
}

func TestDispatchAllInvokesHandlerInPushOrder(t *testing.T) {
	b := New()
	var seen []int
	b.SetHandler(KindLangCallback, func(ctx any, evt BusEvent) {
		seen = append(seen, evt.LangCallback.SlotID)
	})

	for i := 0; i < 5; i++ {
		if err := b.PushLangCallback(i, 0); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	n := b.DispatchAll(nil)
	if n != 5 {
		t.Fatalf("expected 5 dispatched, got %d", n)
	}
	for i, id := range seen {
		if id != i {
			t.Fatalf("expected push order preserved, got %v", seen)
		}
	}
	if !b.IsEmpty() {
		t.Fatal("expected bus drained after DispatchAll")
	}
}

func TestDispatchAllSkipsUnhandledKinds(t *testing.T) {
	b := New()
	if err := b.PushLinkPeers(3); err != nil {
		t.Fatalf("push: %v", err)
	}
	n := b.DispatchAll(nil)
	if n != 1 {
		t.Fatalf("expected 1 dispatched even with no handler installed, got %d", n)
	}
}

func TestPushCustomCopiesPayload(t *testing.T) {
	b := New()
	data := []byte("hello")
	if err := b.PushCustom("tag", data); err != nil {
		t.Fatalf("push: %v", err)
	}
	data[0] = 'X'

	var evt BusEvent
	if !b.Poll(&evt) {
		t.Fatal("expected poll to succeed")
	}
	if string(evt.Custom.Payload) != "hello" {
		t.Fatalf("expected copied payload unaffected by caller mutation, got %q", evt.Custom.Payload)
	}
}

func TestWakeSignalsAtMostOncePerDrain(t *testing.T) {
	b := New()
	_ = b.PushTimer(1, nil)
	_ = b.PushTimer(2, nil)

	select {
	case <-b.Wake():
	default:
		t.Fatal("expected a pending wake after two pushes")
	}
	select {
	case <-b.Wake():
		t.Fatal("expected wake to have collapsed to a single pending signal")
	default:
	}
}
