package playback

import (
	"time"

	"github.com/shakfu/loopruntime/event"
)

// run is the engine's single timer goroutine: it owns all slot mutation
// and all sink writes. It cooperatively dispatches timer expirations and
// explicit wake signals (new Play, Stop, shutdown).
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		deadline, hasDeadline := e.nextDeadline()

		var timerC <-chan time.Time
		var timer *time.Timer
		if hasDeadline {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-e.shutdown:
			if timer != nil {
				timer.Stop()
			}
			e.shutdownAll()
			return
		case <-e.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}

		e.processDue()
	}
}

// nextDeadline returns the earliest armed wake time among active slots.
func (e *Engine) nextDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next time.Time
	has := false
	for i := 0; i < MaxSlots; i++ {
		if !e.active[i] || e.slots[i] == nil {
			continue
		}
		s := e.slots[i]
		if s.stopFlag.Load() {
			return time.Now(), true
		}
		if s.hasWake && (!has || s.nextWakeAt.Before(next)) {
			next = s.nextWakeAt
			has = true
		}
	}
	return next, has
}

// processDue services every active slot that is due: a slot with
// stopFlag set is flushed immediately regardless of its timer; a slot
// whose nextWakeAt has passed is advanced.
func (e *Engine) processDue() {
	now := time.Now()
	for i := 0; i < MaxSlots; i++ {
		e.mu.Lock()
		active := e.active[i]
		s := e.slots[i]
		e.mu.Unlock()
		if !active || s == nil {
			continue
		}

		if s.stopFlag.Load() {
			e.finalizeStop(s)
			continue
		}
		if s.hasWake && !s.nextWakeAt.After(now) {
			e.advance(s)
		}
	}
}

// advance moves slot s forward to the current wall-clock instant: it
// emits all due events, fires due note-offs (ms mode), and rearms or
// finalizes the slot.
func (e *Engine) advance(s *slot) {
	current := e.currentPosition(s)

	for s.cursor < len(s.sched.Events) {
		evt := s.sched.Events[s.cursor]
		if evt.Position(s.useTicks) > current {
			break
		}
		e.emit(s, evt)
		s.cursor++
	}

	if !s.useTicks {
		e.flushDueNoteOffs(s, current)
	}

	e.rearmOrFinalize(s, current)
}

// currentPosition advances the slot's position accounting state to "now"
// and returns the resulting position on the active timeline. Tick
// position is derived by integrating wall-clock elapsed time against the
// slot's current tempo since the last checkpoint, so a mid-stream Tempo
// event changes the rate of future ticks without rewriting the past.
func (e *Engine) currentPosition(s *slot) int64 {
	now := time.Now()
	if s.useTicks {
		elapsed := now.Sub(s.lastWall)
		deltaTicks := elapsed.Seconds() * s.tempo * float64(event.TicksPerQuarter) / 60.0
		s.positionTicks += deltaTicks
		s.lastWall = now
		return int64(s.positionTicks)
	}
	s.positionMs = now.Sub(s.startWall).Milliseconds()
	s.lastWall = now
	return s.positionMs
}

// emit sends one event to the slot's sink, per the kind-specific
// semantics in spec section 4.E.
func (e *Engine) emit(s *slot, evt event.Event) {
	switch evt.Kind {
	case event.Note:
		_ = s.sink.SendNoteOn(evt.Channel, evt.Data1, evt.Data2)
		if !s.useTicks {
			off := s.positionMs + evt.DurationMs
			e.insertActiveNote(s, evt.Channel, evt.Data1, off)
		}
		// Tick mode: automatic off is disabled; the schedule must carry
		// an explicit NoteOff event for this note.
	case event.NoteOn:
		_ = s.sink.SendNoteOn(evt.Channel, evt.Data1, evt.Data2)
	case event.NoteOff:
		_ = s.sink.SendNoteOff(evt.Channel, evt.Data1)
		e.removeActiveNote(s, evt.Channel, evt.Data1)
	case event.CC:
		_ = s.sink.SendCC(evt.Channel, evt.Data1, evt.Data2)
	case event.Program:
		_ = s.sink.SendProgram(evt.Channel, evt.Data1)
	case event.Tempo:
		if s.useTicks {
			s.tempo = float64(evt.Data1)
		}
	}
}

// insertActiveNote records a pending automatic note-off, applying the
// overflow policy: if the table is full, the oldest entry is flushed
// (note-off sent immediately) before the new one is inserted, preserving
// the voice limit and preventing hung notes.
func (e *Engine) insertActiveNote(s *slot, channel, pitch uint8, offAt int64) {
	if len(s.activeNotes) >= MaxActiveNotes {
		oldest := 0
		for i := 1; i < len(s.activeNotes); i++ {
			if s.activeNotes[i].seq < s.activeNotes[oldest].seq {
				oldest = i
			}
		}
		victim := s.activeNotes[oldest]
		_ = s.sink.SendNoteOff(victim.channel, victim.pitch)
		s.activeNotes = append(s.activeNotes[:oldest], s.activeNotes[oldest+1:]...)
	}
	s.noteSeq++
	s.activeNotes = append(s.activeNotes, activeNote{channel: channel, pitch: pitch, offAt: offAt, seq: s.noteSeq})
}

func (e *Engine) removeActiveNote(s *slot, channel, pitch uint8) {
	for i, n := range s.activeNotes {
		if n.channel == channel && n.pitch == pitch {
			s.activeNotes = append(s.activeNotes[:i], s.activeNotes[i+1:]...)
			return
		}
	}
}

// flushDueNoteOffs sends an automatic note-off for every pending entry
// whose off time has arrived (ms mode only).
func (e *Engine) flushDueNoteOffs(s *slot, current int64) {
	i := 0
	for i < len(s.activeNotes) {
		n := s.activeNotes[i]
		if n.offAt <= current {
			_ = s.sink.SendNoteOff(n.channel, n.pitch)
			s.activeNotes = append(s.activeNotes[:i], s.activeNotes[i+1:]...)
			continue
		}
		i++
	}
}

// rearmOrFinalize computes the slot's next wake target (min of next
// event position and earliest pending note-off), rearms the slot's
// timer, or finalizes it to Idle if there is no further work.
func (e *Engine) rearmOrFinalize(s *slot, current int64) {
	hasNext := false
	var nextPos int64

	if s.cursor < len(s.sched.Events) {
		nextPos = s.sched.Events[s.cursor].Position(s.useTicks)
		hasNext = true
	}
	if !s.useTicks {
		for _, n := range s.activeNotes {
			if !hasNext || n.offAt < nextPos {
				nextPos = n.offAt
				hasNext = true
			}
		}
	}

	done := s.cursor >= len(s.sched.Events) && (s.useTicks || len(s.activeNotes) == 0)
	if done {
		e.finalizeIdle(s)
		return
	}
	if !hasNext {
		e.finalizeIdle(s)
		return
	}

	delta := nextPos - current
	if delta < 0 {
		delta = 0
	}
	var dur time.Duration
	if s.useTicks {
		dur = event.TickToDuration(uint32(delta), s.tempo)
	} else {
		dur = time.Duration(delta) * time.Millisecond
	}
	s.hasWake = true
	s.nextWakeAt = time.Now().Add(dur)
}

// finalizeStop handles a Running->StopRequested->Idle transition: it
// sends an immediate note-off for every active note, then frees the
// slot, regardless of how much of the schedule remained.
func (e *Engine) finalizeStop(s *slot) {
	for _, n := range s.activeNotes {
		_ = s.sink.SendNoteOff(n.channel, n.pitch)
	}
	s.activeNotes = nil
	e.finalizeIdle(s)
}

func (e *Engine) finalizeIdle(s *slot) {
	s.state = Idle
	s.hasWake = false

	e.mu.Lock()
	e.active[s.id] = false
	e.slots[s.id] = nil
	e.activeCount--
	e.mu.Unlock()

	if e.bus != nil {
		_ = e.bus.PushLangCallback(s.id, int(Idle))
	}
}

// shutdownAll flushes every active slot's notes off on engine Cleanup.
func (e *Engine) shutdownAll() {
	e.mu.Lock()
	var toFlush []*slot
	for i := 0; i < MaxSlots; i++ {
		if e.active[i] && e.slots[i] != nil {
			toFlush = append(toFlush, e.slots[i])
		}
	}
	e.mu.Unlock()

	for _, s := range toFlush {
		e.finalizeStop(s)
	}
}
