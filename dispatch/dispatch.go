// Package dispatch wires the cross-thread event bus to the callback
// runtime: it installs one default handler per bus event kind, translating
// each BusEvent into a named-callback invocation the running script can
// hook.
package dispatch

import (
	"log/slog"

	"github.com/shakfu/loopruntime/bus"
	"github.com/shakfu/loopruntime/callback"
)

// Callback names invoked for the built-in bus event kinds. A script that
// doesn't define one of these is simply not notified of that event class.
const (
	OnLangCallback  = "on_slot_done"
	OnLinkPeers     = "on_peers_changed"
	OnLinkTempo     = "on_tempo_changed"
	OnLinkTransport = "on_transport_changed"
	OnBeatBoundary  = "on_beat"
)

// Dispatcher installs bus handlers that forward built-in event kinds to
// named callbacks, and lets the host register additional handlers for
// Timer and Custom events, which have no fixed callback name.
type Dispatcher struct {
	log *slog.Logger
	bus *bus.Bus
	rt  *callback.Runtime

	timerHandler  bus.Handler
	customHandler bus.Handler
}

// New creates a Dispatcher and installs its default handlers on b. rt may
// be nil, in which case default handlers are no-ops (useful for a host
// that only wants bus draining, e.g. a status server with no script
// runtime).
func New(b *bus.Bus, rt *callback.Runtime, lg *slog.Logger) *Dispatcher {
	if lg == nil {
		lg = slog.Default()
	}
	d := &Dispatcher{log: lg, bus: b, rt: rt}
	d.installDefaults()
	return d
}

func (d *Dispatcher) installDefaults() {
	d.bus.SetHandler(bus.KindLangCallback, func(_ any, evt bus.BusEvent) {
		if d.rt != nil {
			d.rt.TryInvoke(OnLangCallback, evt.LangCallback.SlotID, evt.LangCallback.Status)
		}
	})
	d.bus.SetHandler(bus.KindLinkPeers, func(_ any, evt bus.BusEvent) {
		if d.rt != nil {
			d.rt.TryInvoke(OnLinkPeers, evt.LinkPeers.Count)
		}
	})
	d.bus.SetHandler(bus.KindLinkTempo, func(_ any, evt bus.BusEvent) {
		if d.rt != nil {
			d.rt.TryInvoke(OnLinkTempo, evt.LinkTempo.BPM)
		}
	})
	d.bus.SetHandler(bus.KindLinkTransport, func(_ any, evt bus.BusEvent) {
		if d.rt != nil {
			d.rt.TryInvoke(OnLinkTransport, evt.LinkTransport.Playing)
		}
	})
	d.bus.SetHandler(bus.KindBeatBoundary, func(_ any, evt bus.BusEvent) {
		if d.rt != nil {
			d.rt.TryInvoke(OnBeatBoundary, evt.BeatBoundary.Beat, evt.BeatBoundary.Quantum, evt.BeatBoundary.BufferID)
		}
	})
	d.bus.SetHandler(bus.KindTimer, func(ctx any, evt bus.BusEvent) {
		if d.timerHandler != nil {
			d.timerHandler(ctx, evt)
		}
	})
	d.bus.SetHandler(bus.KindCustom, func(ctx any, evt bus.BusEvent) {
		if d.customHandler != nil {
			d.customHandler(ctx, evt)
		}
	})
}

// SetTimerHandler installs the handler invoked for Timer events. Timer
// events carry an opaque id and userdata assigned by whoever called
// bus.PushTimer, so there is no fixed callback-name mapping for them;
// the host decides what a timer id means.
func (d *Dispatcher) SetTimerHandler(h bus.Handler) { d.timerHandler = h }

// SetCustomHandler installs the handler invoked for Custom events, keyed
// by the host's own tag convention.
func (d *Dispatcher) SetCustomHandler(h bus.Handler) { d.customHandler = h }

// Dispatch drains every event currently queued on the bus, invoking the
// handler installed for each one's kind. It returns the number of events
// processed. ctx is passed through to Timer/Custom handlers untouched.
func (d *Dispatcher) Dispatch(ctx any) int {
	return d.bus.DispatchAll(ctx)
}
