// Package host assembles one instance of every singleton subsystem
// (bus, tempo sync, playback engine, live-loop registry, dispatcher,
// callback runtime, interpreter registry) into a single runtime and
// drives its main loop.
package host

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shakfu/loopruntime/bus"
	"github.com/shakfu/loopruntime/callback"
	"github.com/shakfu/loopruntime/dispatch"
	"github.com/shakfu/loopruntime/event"
	"github.com/shakfu/loopruntime/lang"
	"github.com/shakfu/loopruntime/lang/btml"
	"github.com/shakfu/loopruntime/liveloop"
	"github.com/shakfu/loopruntime/playback"
	"github.com/shakfu/loopruntime/sink"
	"github.com/shakfu/loopruntime/tempo"
)

// Host owns every long-lived subsystem and the main loop that ticks
// LiveLoopRegistry and drains the cross-thread bus.
type Host struct {
	log *slog.Logger

	Bus        *bus.Bus
	Tempo      *tempo.Sync
	Playback   *playback.Engine
	LiveLoops  *liveloop.Registry
	Callbacks  *callback.Runtime
	Dispatcher *dispatch.Dispatcher
	Langs      *lang.Registry

	sink sink.Sink

	tickInterval time.Duration
	stop         chan struct{}
	done         chan struct{}
}

// Options configures New.
type Options struct {
	Logger       *slog.Logger
	InitialTempo float64
	TickInterval time.Duration // default 10ms
}

// New assembles a Host and starts its owned goroutines (the playback
// timer, and the tempo-sync network clock started by Tempo.Init). It does
// not start the main loop; call Run for that.
func New(opts Options) (*Host, error) {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 10 * time.Millisecond
	}

	b := bus.New()
	pb := playback.New(b, lg)
	pb.Init()

	ts := tempo.New(b, lg)
	initialTempo := opts.InitialTempo
	if initialTempo <= 0 {
		initialTempo = event.DefaultTempo
	}

	rt := callback.NewRuntime()
	disp := dispatch.New(b, rt, lg)

	langs := lang.NewRegistry()
	langs.Register(btml.New())

	h := &Host{
		log:          lg,
		Bus:          b,
		Tempo:        ts,
		Playback:     pb,
		Callbacks:    rt,
		Dispatcher:   disp,
		Langs:        langs,
		tickInterval: tickInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	h.LiveLoops = liveloop.New(ts, b, nil)

	if err := ts.Init(initialTempo); err != nil {
		return nil, fmt.Errorf("loopruntime/host: tempo init: %w", err)
	}
	return h, nil
}

// SetSink installs the default sink used by Play.
func (h *Host) SetSink(s sink.Sink) { h.sink = s }

// Run starts the main loop: every tickInterval it drains pending
// TempoSync subscriber callbacks, calls LiveLoops.Tick(), then
// Dispatcher.Dispatch(), until Stop is called. Blocks until Stop.
func (h *Host) Run() {
	defer close(h.done)
	ticker := time.NewTicker(h.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.Tempo.CheckCallbacks()
			h.LiveLoops.Tick()
			h.Dispatcher.Dispatch(h)
		}
	}
}

// Stop ends the main loop and blocks until Run has returned.
func (h *Host) Stop() {
	close(h.stop)
	<-h.done
}

// Cleanup stops the playback engine and the tempo-sync network clock. It
// does not stop the main loop; call Stop for that.
func (h *Host) Cleanup() {
	h.Playback.Cleanup()
	h.Tempo.Cleanup()
}

// Compile resolves and runs an interpreter over source, using filename's
// extension (or a "#lang:" directive) to pick the interpreter.
func (h *Host) Compile(filename, source string) (*event.Schedule, error) {
	interp, err := h.Langs.Resolve(filename, source)
	if err != nil {
		return nil, err
	}
	return interp.Compile(source)
}

// Play compiles source and starts it playing against the host's default
// sink, returning the new playback slot id.
func (h *Host) Play(filename, source string) (int, error) {
	if h.sink == nil {
		return -1, fmt.Errorf("loopruntime/host: no sink configured")
	}
	sched, err := h.Compile(filename, source)
	if err != nil {
		return -1, err
	}
	return h.Playback.Play(sched, h.sink)
}
