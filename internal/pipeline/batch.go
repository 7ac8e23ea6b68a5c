package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/bestiary/internal/narrative"
)

// Runner generates one monster. [*Controller] implements it.
type Runner interface {
	Run(ctx context.Context, answers narrative.Answers) (*State, error)
}

var _ Runner = (*Controller)(nil)

// BatchResult is the outcome of one run in a batch.
type BatchResult struct {
	// Index is the position of the answers in the input slice.
	Index int
	State *State
	Err   error
}

// RunBatch generates one monster per answer set with at most concurrency
// runs in flight (unbounded when concurrency <= 0). A failed run does not
// stop the others. Results are returned in input order.
func RunBatch(ctx context.Context, r Runner, answers []narrative.Answers, concurrency int) []BatchResult {
	results := make([]BatchResult, len(answers))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, a := range answers {
		g.Go(func() error {
			st, err := r.Run(ctx, a)
			results[i] = BatchResult{Index: i, State: st, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
