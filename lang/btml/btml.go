// Package btml implements a lang.Interpreter for BTML, a YAML dialect
// describing a chord progression plus generative rhythm/bass/drums/
// melody rules. Grounded wholesale on ako-backing-tracks's parser +
// theory + midi packages, adapted from "compile to an SMF file for
// FluidSynth/file playback" into "compile to an event.Schedule for
// playback.Engine".
package btml

import (
	"fmt"

	"github.com/shakfu/loopruntime/event"
)

// Interpreter compiles BTML source into a Schedule.
type Interpreter struct{}

// New creates a BTML Interpreter. It carries no state between calls.
func New() *Interpreter { return &Interpreter{} }

func (*Interpreter) Name() string { return "btml" }

func (*Interpreter) Extensions() []string { return []string{"btml", "yaml", "yml"} }

// Compile parses source as a BTML document and generates its Schedule.
func (*Interpreter) Compile(source string) (*event.Schedule, error) {
	t, err := parseTrack(source)
	if err != nil {
		return nil, fmt.Errorf("loopruntime/lang/btml: parse: %w", err)
	}
	sched, err := compile(t)
	if err != nil {
		return nil, fmt.Errorf("loopruntime/lang/btml: generate: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("loopruntime/lang/btml: %w", err)
	}
	return sched, nil
}

// EvalBuffer re-evaluates a live-coding buffer. BTML carries no state
// between evaluations, so this is Compile under another name.
func (i *Interpreter) EvalBuffer(source string) (*event.Schedule, error) {
	return i.Compile(source)
}
