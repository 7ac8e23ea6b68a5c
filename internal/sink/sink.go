// Package sink delivers finalized monsters to their destinations: stat-block
// files on disk, a PostgreSQL table, a Discord channel, or the terminal.
//
// Every sink accepts only finalized runs. [Multi] fans one run out to several
// sinks and reports every failure.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

// ErrNotFinalized is returned when a sink is handed a run that did not reach
// the Finalized stage.
var ErrNotFinalized = errors.New("sink: run is not finalized")

// Sink is an output destination for finalized runs.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write stores or publishes the finalized record of st.
	Write(ctx context.Context, st *pipeline.State) error
}

// record returns the finalized record of st after re-validating it.
func record(st *pipeline.State) (*monster.Record, error) {
	if st == nil || st.Record() == nil {
		return nil, ErrNotFinalized
	}
	rec := st.Record()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("sink: refusing invalid record: %w", err)
	}
	return rec, nil
}

// Multi writes each run to every configured sink in order. A failing sink
// does not stop the others; all failures are joined.
type Multi struct {
	sinks   []Sink
	metrics *observe.Metrics
}

var (
	_ Sink          = (*Multi)(nil)
	_ pipeline.Sink = (*Multi)(nil)
)

// NewMulti returns a Multi over sinks. A nil metrics uses
// [observe.DefaultMetrics].
func NewMulti(metrics *observe.Metrics, sinks ...Sink) *Multi {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Multi{sinks: sinks, metrics: metrics}
}

// Name implements [Sink].
func (m *Multi) Name() string { return "multi" }

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Write implements [Sink].
func (m *Multi) Write(ctx context.Context, st *pipeline.State) error {
	if _, err := record(st); err != nil {
		return err
	}
	log := observe.Logger(ctx)

	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, st); err != nil {
			m.metrics.RecordSinkWrite(ctx, s.Name(), "error")
			log.Warn("sink write failed", "sink", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("sink: %s: %w", s.Name(), err))
			continue
		}
		m.metrics.RecordSinkWrite(ctx, s.Name(), "ok")
		log.Debug("sink write ok", "sink", s.Name())
	}
	return errors.Join(errs...)
}
