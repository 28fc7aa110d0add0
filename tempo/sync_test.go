package tempo

import "testing"

func TestGetTempoBeforeInitIsZero(t *testing.T) {
	s := New(nil, nil)
	if got := s.GetTempo(); got != 0 {
		t.Fatalf("expected 0 before Init, got %v", got)
	}
}

func TestEffectiveTempoFallsBackWhenUninitialized(t *testing.T) {
	s := New(nil, nil)
	if got := s.EffectiveTempo(140); got != 140 {
		t.Fatalf("expected fallback 140, got %v", got)
	}
}

func TestGetBeatBeforeInitIsZero(t *testing.T) {
	s := New(nil, nil)
	if got := s.GetBeat(4); got != 0 {
		t.Fatalf("expected 0 before Init, got %v", got)
	}
}

func TestEnableIsIndependentOfInit(t *testing.T) {
	s := New(nil, nil)
	if s.IsEnabled() {
		t.Fatal("expected not enabled by default before Init")
	}
	s.Enable(true)
	if !s.IsEnabled() {
		t.Fatal("expected Enable(true) to take effect even pre-Init")
	}
}

func TestInitThenCleanupRoundTrip(t *testing.T) {
	s := New(nil, nil)
	if err := s.Init(120); err != nil {
		t.Skipf("network init unavailable in this sandbox: %v", err)
	}
	defer s.Cleanup()

	if got := s.GetTempo(); got != 120 {
		t.Fatalf("expected tempo 120 after Init, got %v", got)
	}
	if err := s.Init(100); err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized on double Init, got %v", err)
	}
}

func TestClampBoundsTempo(t *testing.T) {
	if got := clamp(5); got != minTempo {
		t.Fatalf("expected clamp to minTempo, got %v", got)
	}
	if got := clamp(5000); got != maxTempo {
		t.Fatalf("expected clamp to maxTempo, got %v", got)
	}
	if got := clamp(120); got != 120 {
		t.Fatalf("expected 120 unchanged, got %v", got)
	}
}

func TestNormalizeQuantumDefaultsNonPositive(t *testing.T) {
	if got := normalizeQuantum(0); got != DefaultQuantum {
		t.Fatalf("expected DefaultQuantum, got %d", got)
	}
	if got := normalizeQuantum(-3); got != DefaultQuantum {
		t.Fatalf("expected DefaultQuantum, got %d", got)
	}
	if got := normalizeQuantum(8); got != 8 {
		t.Fatalf("expected 8 unchanged, got %d", got)
	}
}

func TestCheckCallbacksInvokesPendingSubscribersOnce(t *testing.T) {
	s := New(nil, nil)
	calls := 0
	s.SetPeersCallback(func(n int, userdata any) { calls++ }, nil)

	s.notePeers(3) // simulates the network goroutine
	s.CheckCallbacks()
	s.CheckCallbacks() // second call must be a no-op, nothing pending

	if calls != 1 {
		t.Fatalf("expected callback invoked exactly once, got %d", calls)
	}
}
