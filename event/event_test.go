package event

import (
	"testing"
	"time"
)

func TestSortForTimelineOrdersNoteOffBeforeNoteOn(t *testing.T) {
	events := []Event{
		{Tick: 100, Kind: NoteOn, Data1: 60},
		{Tick: 100, Kind: NoteOff, Data1: 60},
		{Tick: 50, Kind: Note, Data1: 62},
	}
	SortForTimeline(events, true)

	if events[0].Tick != 50 {
		t.Fatalf("expected earliest tick first, got %+v", events[0])
	}
	if events[1].Kind != NoteOff || events[2].Kind != NoteOn {
		t.Fatalf("expected NoteOff before NoteOn at equal tick, got %v then %v", events[1].Kind, events[2].Kind)
	}
}

func TestScheduleValidateRejectsEmpty(t *testing.T) {
	s := &Schedule{}
	if err := s.Validate(); err != ErrEmptySchedule {
		t.Fatalf("expected ErrEmptySchedule, got %v", err)
	}
}

func TestScheduleTotalDuration(t *testing.T) {
	s := &Schedule{
		UseTicks: true,
		Events: []Event{
			{Tick: 0, DurationTicks: 480},
			{Tick: 480, DurationTicks: 240},
		},
	}
	if got := s.TotalDuration(); got != 720 {
		t.Fatalf("expected 720, got %d", got)
	}
}

func TestScheduleCloneIsIndependent(t *testing.T) {
	s := &Schedule{Events: []Event{{Tick: 1}}, InitialTempo: 120}
	clone := s.Clone()
	clone.Events[0].Tick = 999

	if s.Events[0].Tick != 1 {
		t.Fatalf("mutating clone affected original: %+v", s.Events[0])
	}
}

func TestTickToDurationAtDefaultTempo(t *testing.T) {
	d := TickToDuration(TicksPerQuarter, 120)
	want := 500 * time.Millisecond
	if diff := d - want; diff > time.Millisecond || diff < -time.Millisecond {
		t.Fatalf("expected ~%v, got %v", want, d)
	}
}

func TestTickToDurationFallsBackToDefaultTempo(t *testing.T) {
	d1 := TickToDuration(TicksPerQuarter, 0)
	d2 := TickToDuration(TicksPerQuarter, DefaultTempo)
	if d1 != d2 {
		t.Fatalf("expected non-positive bpm to fall back to DefaultTempo: %v != %v", d1, d2)
	}
}
