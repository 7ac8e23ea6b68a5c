// Package pipeline drives a monster through the generation stages.
//
// A run starts from five narrative answers and walks
// Concept → Draft → Refine → Finalized. Each stage attempt is one completion
// call performed by an [Executor]; the [Controller] decides whether to
// advance, retry the same stage, or fail the run. Every failure surfaces as a
// [*RunError].
//
// Runs are independent: a Controller holds no per-run state and may be used
// concurrently. [RunBatch] generates many monsters in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/observe"
)

// Sink receives each finalized run. Implementations live in the sink package.
type Sink interface {
	Write(ctx context.Context, st *State) error
}

// Controller runs the stage state machine for one run at a time per call.
type Controller struct {
	runner  StageRunner
	cfg     Config
	sink    Sink
	metrics *observe.Metrics

	// wait blocks for a retry backoff. Replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// Option configures a [Controller].
type Option func(*Controller)

// WithSink delivers every finalized run to s.
func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController returns a Controller that drives runner under the retry
// policy in cfg. Zero config fields take their defaults.
func NewController(runner StageRunner, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		runner: runner,
		cfg:    cfg.WithDefaults(),
		wait:   sleep,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run generates one monster from answers.
//
// The returned state is always non-nil and terminal. On failure the error is
// the state's [*RunError]. When a sink is configured and fails, Run returns
// the sink error but the state stays Finalized.
func (c *Controller) Run(ctx context.Context, answers narrative.Answers) (*State, error) {
	st := newState(answers)
	ctx = observe.WithRunID(ctx, st.RunID)
	ctx, span := observe.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", st.RunID)),
	)
	defer span.End()

	c.metrics.ActiveRuns.Add(ctx, 1)
	defer c.metrics.ActiveRuns.Add(ctx, -1)

	log := observe.Logger(ctx)
	log.Info("generation started")

	if err := c.loop(ctx, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Failure.Kind.String())
		c.metrics.RecordRun(ctx, "failed", st.Failure.Kind.String())
		log.Warn("generation failed",
			"stage", st.Failure.Stage.String(),
			"kind", st.Failure.Kind.String(),
			"attempts", st.Failure.Attempts,
			"cause", Cause(st.Failure.Err),
			"err", st.Failure.Err,
		)
		return st, err
	}

	c.metrics.RecordRun(ctx, "finalized", "")
	log.Info("generation finalized", "name", st.Draft.Name, "calls", st.Calls)

	if c.sink != nil {
		if err := c.sink.Write(ctx, st); err != nil {
			log.Error("failed to write finalized monster", "err", err)
			return st, fmt.Errorf("pipeline: write run %s: %w", st.RunID, err)
		}
	}
	return st, nil
}

// loop advances st until it is terminal. It returns the *RunError stored in
// st.Failure, or nil once the run finalizes.
func (c *Controller) loop(ctx context.Context, st *State) error {
	log := observe.Logger(ctx)
	for !st.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return st.fail(KindCancelled, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		res := c.runner.Run(ctx, st.Stage, st.view())
		st.Attempts++
		st.Calls++

		switch res.Outcome {
		case Advance:
			done, attempts := st.Stage, st.Attempts
			if err := st.apply(res.Delta); err != nil {
				return st.fail(KindInternal, err)
			}
			log.Info("stage advanced", "stage", done.String(), "attempts", attempts)

		case Retry:
			if st.Attempts >= c.cfg.MaxAttempts {
				return st.fail(KindExhausted, res.Err)
			}
			log.Warn("stage attempt rejected, retrying",
				"stage", st.Stage.String(),
				"attempt", st.Attempts,
				"cause", Cause(res.Err),
				"err", res.Err,
			)
			if err := c.wait(ctx, c.cfg.backoff(st.Attempts)); err != nil {
				return st.fail(KindCancelled, fmt.Errorf("%w: %w", ErrCancelled, err))
			}

		default:
			kind := KindPermanent
			if errors.Is(res.Err, ErrCancelled) || ctx.Err() != nil {
				kind = KindCancelled
			}
			return st.fail(kind, res.Err)
		}
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
