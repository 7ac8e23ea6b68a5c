package pipeline

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/stage"
)

// State is the progress of one generation run. The [Controller] owns it
// while the run is in flight; callers receive it once the run is terminal.
type State struct {
	// RunID uniquely identifies the run in logs, metrics and storage.
	RunID string

	Answers narrative.Answers

	// Concept is set once the concept stage advances.
	Concept string

	// Draft is the latest validated record. After the run finalizes it holds
	// the refined record.
	Draft *monster.Record

	Stage stage.Stage

	// Attempts is the number of completion calls made for the current stage.
	// It resets to zero on every advance.
	Attempts int

	// Calls is the total number of completion calls made by the run.
	Calls int

	// Advances lists the stages that completed, in order.
	Advances []stage.Stage

	// Failure is set when Stage is Failed.
	Failure *RunError
}

func newState(a narrative.Answers) *State {
	return &State{
		RunID:   uuid.NewString(),
		Answers: a,
		Stage:   stage.Concept,
	}
}

// Record returns the finalized record, or nil when the run did not finalize.
func (s *State) Record() *monster.Record {
	if s.Stage != stage.Finalized {
		return nil
	}
	return s.Draft
}

// view returns the read-only input for the current stage. The draft is
// cloned so a stage cannot mutate run state.
func (s *State) view() stage.View {
	return stage.View{
		Answers: s.Answers,
		Concept: s.Concept,
		Draft:   s.Draft.Clone(),
	}
}

// apply records a successful stage and moves to the next one.
func (s *State) apply(d Delta) error {
	switch s.Stage {
	case stage.Concept:
		if strings.TrimSpace(d.Concept) == "" {
			return errors.New("pipeline: concept stage advanced without a concept")
		}
		s.Concept = d.Concept
	case stage.Draft, stage.Refine:
		if d.Record == nil {
			return errors.New("pipeline: " + s.Stage.String() + " stage advanced without a record")
		}
		s.Draft = d.Record
	default:
		return errors.New("pipeline: advance from terminal stage " + s.Stage.String())
	}
	s.Advances = append(s.Advances, s.Stage)
	s.Stage = s.Stage.Next()
	s.Attempts = 0
	return nil
}

// fail moves the run to Failed with the given cause.
func (s *State) fail(kind FailureKind, cause error) *RunError {
	re := &RunError{Stage: s.Stage, Kind: kind, Attempts: s.Attempts, Err: cause}
	s.Failure = re
	s.Stage = stage.Failed
	return re
}
