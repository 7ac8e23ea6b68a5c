// Package stage defines the phases of a generation run and the read-only view
// of run state that each phase works from. It is shared by the prompt builder
// and the pipeline so neither depends on the other.
package stage

import (
	"fmt"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
)

// Stage is a phase of the generation pipeline.
type Stage int

const (
	// Concept asks the model for a short monster premise.
	Concept Stage = iota

	// Draft asks for a complete stat block built on the premise.
	Draft

	// Refine asks for a balanced, corrected version of the draft.
	Refine

	// Finalized is the terminal success state.
	Finalized

	// Failed is the terminal failure state.
	Failed
)

// Generating lists the stages that call the model, in execution order.
var Generating = []Stage{Concept, Draft, Refine}

// String returns the lower-case stage name used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case Concept:
		return "concept"
	case Draft:
		return "draft"
	case Refine:
		return "refine"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s Stage) Terminal() bool { return s == Finalized || s == Failed }

// Next returns the stage that follows a successful s. Refine is followed by
// Finalized; terminal stages have no successor and return themselves.
func (s Stage) Next() Stage {
	switch s {
	case Concept:
		return Draft
	case Draft:
		return Refine
	case Refine:
		return Finalized
	default:
		return s
	}
}

// View is a read-only snapshot of run state handed to a stage. Draft is a
// private copy; mutating it does not affect the run.
type View struct {
	Answers narrative.Answers
	Concept string
	Draft   *monster.Record
}
