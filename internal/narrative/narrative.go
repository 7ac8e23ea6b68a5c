// Package narrative holds the five seed questions that shape a monster and
// the ways of collecting their answers: interactively on a terminal or from a
// YAML answers file.
//
// Answers are free text. Empty answers are allowed; the generation pipeline
// treats them as empty strings.
package narrative

// Position of each question in [Answers].
const (
	DarkSecret = iota
	Environment
	Motivation
	Interaction
	Terror

	// Count is the number of narrative questions.
	Count
)

// Question is one fixed narrative prompt.
type Question struct {
	// Key is the field name used in YAML answers files and API payloads.
	Key string `json:"key"`

	// Label is the short heading embedded in generation prompts.
	Label string `json:"label"`

	// Text is the question shown to the user.
	Text string `json:"text"`
}

// Questions lists the narrative questions in answer order.
var Questions = [Count]Question{
	{Key: "dark_secret", Label: "Dark Secret", Text: "What dark secret haunts this monster's past?"},
	{Key: "environment", Label: "Unique Environment", Text: "In what unique environment does this monster thrive?"},
	{Key: "motivation", Label: "Unexpected Motivation", Text: "What is the monster's most unexpected motivation?"},
	{Key: "interaction", Label: "Creature Interaction", Text: "How does this monster interact with other creatures?"},
	{Key: "terror", Label: "Terrifying Aspect", Text: "What makes this monster truly terrifying?"},
}

// Answers holds one answer per question, in [Questions] order.
type Answers [Count]string

// DarkSecret returns the answer to "What dark secret haunts this monster's past?".
func (a Answers) DarkSecret() string { return a[DarkSecret] }

// Environment returns the answer describing where the monster thrives.
func (a Answers) Environment() string { return a[Environment] }

// Motivation returns the monster's unexpected motivation.
func (a Answers) Motivation() string { return a[Motivation] }

// Interaction returns how the monster treats other creatures.
func (a Answers) Interaction() string { return a[Interaction] }

// Terror returns what makes the monster terrifying.
func (a Answers) Terror() string { return a[Terror] }

// Set is the keyed form of [Answers] used in YAML files and JSON payloads.
type Set struct {
	DarkSecret  string `yaml:"dark_secret" json:"dark_secret"`
	Environment string `yaml:"environment" json:"environment"`
	Motivation  string `yaml:"motivation" json:"motivation"`
	Interaction string `yaml:"interaction" json:"interaction"`
	Terror      string `yaml:"terror" json:"terror"`
}

// Answers converts s to positional form.
func (s Set) Answers() Answers {
	return Answers{s.DarkSecret, s.Environment, s.Motivation, s.Interaction, s.Terror}
}

// SetOf converts positional answers to keyed form.
func SetOf(a Answers) Set {
	return Set{
		DarkSecret:  a[DarkSecret],
		Environment: a[Environment],
		Motivation:  a[Motivation],
		Interaction: a[Interaction],
		Terror:      a[Terror],
	}
}
