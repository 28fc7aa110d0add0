// Command loopruntimed is the live-coding runtime's CLI entrypoint:
// "play" runs a BTML buffer against a sink until it finishes or is
// interrupted, "export" compiles it to a Standard MIDI File, and "serve"
// runs the host's main loop with the read-only status API attached.
//
// Grounded on ako-backing-tracks/main.go's flat args-then-switch command
// dispatch, with the --soundfont flag carried over; the TUI-driven "play"
// path and the strudel/tablature export commands are dropped along with
// display/ and strudel/ (out of scope: no UI host, no pattern-language
// export target).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/shakfu/loopruntime/event"
	"github.com/shakfu/loopruntime/host"
	"github.com/shakfu/loopruntime/host/statusapi"
	"github.com/shakfu/loopruntime/internal/config"
	"github.com/shakfu/loopruntime/internal/logging"
	"github.com/shakfu/loopruntime/sink"
	"github.com/shakfu/loopruntime/sink/meltysynth"
	"github.com/shakfu/loopruntime/sink/midiport"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	rest := os.Args[2:]

	cfg, err := config.Parse(rest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	var runErr error
	switch command {
	case "play":
		runErr = runPlay(cfg, log, fs(rest))
	case "export":
		runErr = runExport(fs(rest))
	case "serve":
		runErr = runServe(cfg, log)
	default:
		printUsage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

// fs strips flag-shaped tokens already consumed by config.Parse, leaving
// only positional arguments (the subcommand's own filename argument).
func fs(args []string) []string {
	var positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			// -tempo-sync is a boolean flag and never takes a separate value.
			isBool := strings.TrimLeft(a, "-") == "tempo-sync"
			if !isBool && !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		positional = append(positional, a)
	}
	return positional
}

func printUsage() {
	fmt.Println("usage: loopruntimed <play|export|serve> [flags] [args]")
	fmt.Println()
	fmt.Println("  play <file.btml>             compile and play a buffer until it finishes")
	fmt.Println("  export <file.btml> [out.mid] compile a buffer to a Standard MIDI File")
	fmt.Println("  serve                        run the host main loop with the status API")
	fmt.Println()
	fmt.Println("flags: -soundfont, -log-level, -log-format, -status-addr, -tempo, -tempo-sync, -midi-port")
	fmt.Println("flags must come before the filename, e.g. play -soundfont x.sf2 file.btml")
}

func runPlay(cfg *config.Config, log interface {
	Info(msg string, args ...any)
}, positional []string) error {
	if len(positional) < 1 {
		return fmt.Errorf("play requires a BTML file")
	}
	filename := positional[0]
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	h, err := host.New(host.Options{InitialTempo: cfg.InitialTempo})
	if err != nil {
		return err
	}
	defer h.Cleanup()

	snk, closeSink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()
	h.SetSink(snk)

	id, err := h.Play(filename, string(data))
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}
	log.Info("playing", "file", filename, "slot", id)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.Playback.Wait(id, 10*60*1000)
		close(done)
	}()

	select {
	case <-ctx.Done():
		_ = h.Playback.Stop(id)
		<-done
	case <-done:
	}
	return nil
}

// openSink picks meltysynth (in-process) if a SoundFont is configured,
// otherwise falls back to a live MIDI output port.
func openSink(cfg *config.Config) (sink.Sink, func() error, error) {
	if cfg.SoundFont != "" {
		data, err := os.ReadFile(cfg.SoundFont)
		if err != nil {
			return nil, nil, fmt.Errorf("read soundfont: %w", err)
		}
		snk, err := meltysynth.New(data)
		if err != nil {
			return nil, nil, err
		}
		return snk, snk.Close, nil
	}
	if cfg.MIDIPort != "" {
		snk, err := midiport.Open(cfg.MIDIPort)
		if err != nil {
			return nil, nil, err
		}
		return snk, snk.Close, nil
	}
	return nil, nil, fmt.Errorf("no -soundfont or -midi-port configured")
}

func runExport(positional []string) error {
	if len(positional) < 1 {
		return fmt.Errorf("export requires a BTML file")
	}
	filename := positional[0]
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	h, err := host.New(host.Options{})
	if err != nil {
		return err
	}
	defer h.Cleanup()

	sched, err := h.Compile(filename, string(data))
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	outputPath := ""
	if len(positional) >= 2 {
		outputPath = positional[1]
	}
	if outputPath == "" {
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		outputPath = base + ".mid"
	}

	if err := writeSMF(sched, outputPath); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	fmt.Printf("Wrote %s\n", outputPath)
	return nil
}

// writeSMF renders a tick-mode Schedule to a Standard MIDI File, the
// inverse of lang/btml's Schedule generation: one track per channel that
// appears in the schedule, events sorted and delta-encoded the way
// ako-backing-tracks/midi.GenerateFromTrack assembled its smf.Track
// values.
func writeSMF(sched *event.Schedule, path string) error {
	if !sched.UseTicks {
		return fmt.Errorf("export only supports tick-mode schedules")
	}

	byChannel := make(map[uint8][]event.Event)
	var channels []uint8
	for _, e := range sched.Events {
		if _, ok := byChannel[e.Channel]; !ok {
			channels = append(channels, e.Channel)
		}
		byChannel[e.Channel] = append(byChannel[e.Channel], e)
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(event.TicksPerQuarter)

	var tempoTrack smf.Track
	tempoTrack.Add(0, smf.MetaTempo(sched.InitialTempo))
	tempoTrack.Close(0)
	s.Add(tempoTrack)

	for _, ch := range channels {
		evts := byChannel[ch]
		event.SortForTimeline(evts, true)

		var tr smf.Track
		var prevTick uint32
		for _, e := range evts {
			delta := e.Tick - prevTick
			var msg midi.Message
			switch e.Kind {
			case event.NoteOn, event.Note:
				msg = midi.NoteOn(ch, e.Data1, e.Data2)
			case event.NoteOff:
				msg = midi.NoteOff(ch, e.Data1)
			case event.CC:
				msg = midi.ControlChange(ch, e.Data1, e.Data2)
			case event.Program:
				msg = midi.ProgramChange(ch, e.Data1)
			default:
				continue
			}
			tr.Add(delta, msg)
			prevTick = e.Tick
		}
		tr.Close(0)
		s.Add(tr)
	}

	return s.WriteFile(path)
}

func runServe(cfg *config.Config, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) error {
	h, err := host.New(host.Options{InitialTempo: cfg.InitialTempo})
	if err != nil {
		return err
	}
	defer h.Cleanup()

	if cfg.TempoSyncEnabled {
		h.Tempo.Enable(true)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go h.Run()
	defer h.Stop()

	if cfg.StatusAddr == "" {
		log.Info("serving with no status API (set -status-addr to enable)")
		<-ctx.Done()
		return nil
	}

	srv := statusapi.New(h, nil)
	log.Info("status API listening", "addr", cfg.StatusAddr)
	return srv.Run(ctx, cfg.StatusAddr)
}
