package pipeline

import (
	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
)

// Outcome is the controller instruction produced by one stage attempt.
type Outcome int

const (
	// Advance moves the run to the next stage and applies the Delta.
	Advance Outcome = iota

	// Retry repeats the current stage with the same inputs.
	Retry

	// Abort fails the run immediately.
	Abort
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Advance:
		return "advance"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Delta is the state change carried by an [Advance] result. Exactly one field
// is set: Concept for the concept stage, Record for draft and refine.
type Delta struct {
	Concept string
	Record  *monster.Record
}

// Result is the outcome of a single stage attempt.
type Result struct {
	Outcome Outcome

	// Delta is set when Outcome is Advance.
	Delta Delta

	// Err is the classified cause when Outcome is Retry or Abort: a
	// [*monster.ValidationError] or a [*llm.ServiceError].
	Err error

	// Usage is the token accounting reported for the attempt, if any.
	Usage llm.Usage
}

// AdvanceWith returns an [Advance] result carrying d.
func AdvanceWith(d Delta) Result { return Result{Outcome: Advance, Delta: d} }

// RetrySameStage returns a [Retry] result with cause err.
func RetrySameStage(err error) Result { return Result{Outcome: Retry, Err: err} }

// AbortWith returns an [Abort] result with cause err.
func AbortWith(err error) Result { return Result{Outcome: Abort, Err: err} }
