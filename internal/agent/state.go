// Package agent runs the bounded Reason-Act-Observe loop that gathers
// member data through tools and synthesizes a draft answer.
package agent

import (
	"fmt"

	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/costs"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
)

// TerminationReason records why the loop stopped iterating.
type TerminationReason string

const (
	// TerminationSynthesisReady means reasoning signalled enough data.
	TerminationSynthesisReady TerminationReason = "SYNTHESIS_READY"
	// TerminationMaxIterations means the iteration budget ran out.
	TerminationMaxIterations TerminationReason = "MAX_ITERATIONS"
	// TerminationExhausted means no further action could be chosen
	// (including unparseable reasoning output, which fails closed).
	TerminationExhausted TerminationReason = "EXHAUSTED"
	// TerminationCancelled means the caller cancelled the query.
	TerminationCancelled TerminationReason = "CANCELLED"
)

// State is the mutable working state of one loop invocation. It is owned
// exclusively by that invocation and discarded after the loop emits its
// result.
type State struct {
	Query          string
	Member         profile.MemberContext
	Classification classifier.Result

	Trace       tools.Trace
	DraftAnswer string
	Citations   []string
	Iterations  int
	Termination TerminationReason

	// Costs accumulates LLM and tool spend attributable to this loop.
	Costs costs.Accumulator
}

// SynthesisError marks a failed synthesis call. It is fatal to the loop
// invocation: the caller must not deliver any answer for it.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
