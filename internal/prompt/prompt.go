// Package prompt builds the model prompts for each generation stage.
//
// [Build] is a pure function of the stage and the run view: the same input
// always yields byte-identical text, so prompts can be compared in tests and
// cached by providers.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/stage"
)

// SystemPrompt is sent with every stage.
const SystemPrompt = "You are a veteran tabletop role-playing game designer who creates original, " +
	"balanced monsters for fifth-edition style games. Follow the output format you are given exactly."

// Errors returned by [Build] when the view lacks the input a stage needs.
var (
	ErrNoConcept = errors.New("prompt: draft stage requires a concept")
	ErrNoDraft   = errors.New("prompt: refine stage requires a draft")
)

// Build returns the user prompt for st.
func Build(st stage.Stage, v stage.View) (string, error) {
	switch st {
	case stage.Concept:
		return buildConcept(v), nil
	case stage.Draft:
		if strings.TrimSpace(v.Concept) == "" {
			return "", ErrNoConcept
		}
		return buildDraft(v), nil
	case stage.Refine:
		if v.Draft == nil {
			return "", ErrNoDraft
		}
		return buildRefine(v)
	default:
		return "", fmt.Errorf("prompt: no prompt for %s stage", st)
	}
}

func writeAnswers(b *strings.Builder, a narrative.Answers) {
	for i, q := range narrative.Questions {
		fmt.Fprintf(b, "%d. %s: %s\n", i+1, q.Label, a[i])
	}
}

func buildConcept(v stage.View) string {
	var b strings.Builder
	b.WriteString("Narrative inputs from the game master:\n")
	writeAnswers(&b, v.Answers)
	b.WriteString("\n")
	b.WriteString("Create a unique and imaginative monster concept that fully reflects the narrative inputs above. ")
	b.WriteString("Provide a brief description, one or two paragraphs, that captures its essence. ")
	b.WriteString("Reply with the description only: no headings, no stat block, no JSON.\n")
	return b.String()
}

func buildDraft(v stage.View) string {
	var b strings.Builder
	b.WriteString("Narrative inputs from the game master:\n")
	writeAnswers(&b, v.Answers)
	b.WriteString("\nMonster concept:\n")
	b.WriteString(strings.TrimSpace(v.Concept))
	b.WriteString("\n\n")
	b.WriteString("Turn this concept into a complete monster stat block.\n\n")
	writeSchema(&b)
	b.WriteString("\nRULES:\n")
	b.WriteString("- Give the monster a unique, evocative name that reflects its nature.\n")
	b.WriteString("- Weave the narrative inputs into the abilities, actions and lore.\n")
	b.WriteString("- Every field is required. Do not use placeholders such as \"Unknown\".\n")
	writeOutputRules(&b)
	return b.String()
}

func buildRefine(v stage.View) (string, error) {
	data, err := monster.Encode(v.Draft)
	if err != nil {
		return "", fmt.Errorf("prompt: encode draft: %w", err)
	}

	var b strings.Builder
	b.WriteString("Review and refine this monster draft:\n")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString("REFINEMENT INSTRUCTIONS:\n")
	b.WriteString("- Balance the armor class, hit points, ability scores and action damage against each other.\n")
	b.WriteString("- Keep the monster interesting and unique; keep its name unless it is a placeholder.\n")
	b.WriteString("- Return the complete corrected record, not a list of changes.\n\n")
	writeSchema(&b)
	writeOutputRules(&b)
	return b.String(), nil
}

// writeSchema enumerates every field of the record with its constraints.
func writeSchema(b *strings.Builder) {
	sizes := make([]string, len(monster.Sizes))
	for i, s := range monster.Sizes {
		sizes[i] = `"` + string(s) + `"`
	}

	b.WriteString("The JSON object MUST contain exactly these fields:\n")
	b.WriteString("- \"name\": non-empty string\n")
	fmt.Fprintf(b, "- \"size\": one of %s\n", strings.Join(sizes, ", "))
	b.WriteString("- \"type\": non-empty string, the creature type (e.g. Aberration, Fey, Fiend)\n")
	b.WriteString("- \"alignment\": non-empty string\n")
	b.WriteString("- \"armor_class\": positive integer\n")
	b.WriteString("- \"hit_points\": positive integer\n")
	fmt.Fprintf(b, "- \"abilities\": object with integer keys \"strength\", \"dexterity\", \"constitution\", "+
		"\"intelligence\", \"wisdom\", \"charisma\", each between %d and %d\n",
		monster.MinAbilityScore, monster.MaxAbilityScore)
	fmt.Fprintf(b, "- \"speed\": object mapping one or more of %s to a non-negative integer speed in feet\n",
		quoteAll(monster.SpeedModes))
	b.WriteString("- \"special_abilities\": non-empty list of objects with non-empty string fields \"name\" and \"description\"\n")
	b.WriteString("- \"actions\": non-empty list of objects with non-empty string fields \"name\" and \"description\"\n")
	b.WriteString("- \"lore\": non-empty string with backstory and ecology\n")
}

func writeOutputRules(b *strings.Builder) {
	b.WriteString("\nOUTPUT FORMAT:\n")
	b.WriteString("- Reply with ONLY one valid JSON object.\n")
	b.WriteString("- Do NOT include explanations, Markdown, or code fences.\n")
	b.WriteString("- Numbers must be plain JSON integers, not strings with units.\n")
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, ", ")
}
