package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/stage"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
)

// Sentinel errors matched by [*RunError] via errors.Is.
var (
	// ErrPipelineExhausted means a stage used up its attempts without
	// producing a valid result.
	ErrPipelineExhausted = errors.New("pipeline: retry bound exhausted")

	// ErrCancelled means the caller cancelled the run.
	ErrCancelled = errors.New("pipeline: run cancelled")

	// ErrContextWindow means a prompt cannot fit the model's context window.
	// Retrying the same prompt cannot help.
	ErrContextWindow = errors.New("pipeline: prompt exceeds model context window")
)

// FailureKind classifies why a run reached the Failed state.
type FailureKind int

const (
	// KindExhausted is a stage that failed max_attempts times in a row.
	KindExhausted FailureKind = iota + 1

	// KindPermanent is a non-retryable failure such as an authentication
	// error or an oversized prompt.
	KindPermanent

	// KindCancelled is a run abandoned by its caller.
	KindCancelled

	// KindInternal is a broken invariant inside the pipeline itself.
	KindInternal
)

// String returns the kind name used in logs, metrics and API responses.
func (k FailureKind) String() string {
	switch k {
	case KindExhausted:
		return "exhausted"
	case KindPermanent:
		return "permanent"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RunError is the terminal failure of a run. It is the only error the
// pipeline surfaces to callers.
//
// errors.Is matches [ErrPipelineExhausted] or [ErrCancelled] according to
// Kind, and errors.As reaches the last classified cause
// ([*monster.ValidationError] or [*llm.ServiceError]).
type RunError struct {
	// Stage is the stage that failed.
	Stage stage.Stage

	Kind FailureKind

	// Attempts is the number of completion calls made for Stage.
	Attempts int

	// Err is the last classified cause.
	Err error
}

// Error implements error.
func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed (%s after %d attempts): %v", e.Stage, e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes the cause and the sentinel for Kind.
func (e *RunError) Unwrap() []error {
	errs := []error{e.Err}
	switch e.Kind {
	case KindExhausted:
		errs = append(errs, ErrPipelineExhausted)
	case KindCancelled:
		errs = append(errs, ErrCancelled)
	}
	return errs
}

// Cause returns a short label for err used as a log field and metric
// attribute: the validation kind, the service error kind, "cancelled", or ""
// for nil.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	var ve *monster.ValidationError
	if errors.As(err, &ve) {
		return ve.Kind.String()
	}
	if errors.Is(err, ErrContextWindow) {
		return "context_window"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return "cancelled"
	}
	var se *llm.ServiceError
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	return "unknown"
}
