// Package config defines the process-wide configuration surface, parsed
// from command-line flags with environment-variable overrides. Grounded
// on rustyguts-bken/server/main.go's flat flag.String/flag.Int/
// flag.Duration block.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every host-wide tunable.
type Config struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	StatusAddr string // host/statusapi listen address; empty disables it

	SoundFont string // default SoundFont path for sink/fluidsynth and sink/meltysynth
	MIDIPort  string // default output port name substring for sink/midiport

	TempoSyncEnabled bool
	InitialTempo     float64
}

// Parse builds a Config from args (pass os.Args[1:] from main), applying
// environment-variable defaults first so flags can still override them.
// Like flag.Parse, it stops at the first positional argument: flags must
// precede the filename, e.g. "play -soundfont x.sf2 file.btml", not after.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("loopruntimed", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOOPRUNTIME_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", envOr("LOOPRUNTIME_LOG_FORMAT", "text"), "log format: text, json")
	fs.StringVar(&cfg.StatusAddr, "status-addr", envOr("LOOPRUNTIME_STATUS_ADDR", ""), "status HTTP listen address (empty disables the status server)")
	fs.StringVar(&cfg.SoundFont, "soundfont", envOr("LOOPRUNTIME_SOUNDFONT", ""), "path to a SoundFont (.sf2) file")
	fs.StringVar(&cfg.MIDIPort, "midi-port", envOr("LOOPRUNTIME_MIDI_PORT", ""), "output MIDI port name substring")
	fs.BoolVar(&cfg.TempoSyncEnabled, "tempo-sync", envOrBool("LOOPRUNTIME_TEMPO_SYNC", false), "enable network tempo sync on startup")
	fs.Float64Var(&cfg.InitialTempo, "tempo", envOrFloat("LOOPRUNTIME_TEMPO", 120), "initial tempo in BPM")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
