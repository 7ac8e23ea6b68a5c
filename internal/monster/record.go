// Package monster defines the stat-block record produced by the generation
// pipeline and the boundary that turns untrusted model output into one.
//
// Model replies are parsed into a loosely-typed tree with [ParseResponse] and
// checked against the schema with [Validate]. A [Record] obtained from
// [Validate] is always complete: every field is present and in range. There is
// no repair step; a reply that fails validation is rejected as a whole.
package monster

import (
	"strings"
)

// Size is a creature size category.
type Size string

// Size categories, smallest first.
const (
	SizeTiny       Size = "Tiny"
	SizeSmall      Size = "Small"
	SizeMedium     Size = "Medium"
	SizeLarge      Size = "Large"
	SizeHuge       Size = "Huge"
	SizeGargantuan Size = "Gargantuan"
)

// Sizes lists every valid [Size] in ascending order.
var Sizes = []Size{SizeTiny, SizeSmall, SizeMedium, SizeLarge, SizeHuge, SizeGargantuan}

// ParseSize matches s against the size categories, ignoring case and
// surrounding whitespace.
func ParseSize(s string) (Size, bool) {
	s = strings.TrimSpace(s)
	for _, sz := range Sizes {
		if strings.EqualFold(s, string(sz)) {
			return sz, true
		}
	}
	return "", false
}

// Ability score bounds, inclusive.
const (
	MinAbilityScore = 1
	MaxAbilityScore = 30
)

// Abilities holds the six ability scores.
type Abilities struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Modifier returns the ability modifier for score, rounding down.
func Modifier(score int) int {
	d := score - 10
	if d < 0 {
		return (d - 1) / 2
	}
	return d / 2
}

// ability describes one entry of [Abilities] for table-driven access.
type ability struct {
	key   string // canonical lower-case key
	abbr  string // three-letter abbreviation
	label string
	get   func(*Abilities) *int
}

var abilityTable = []ability{
	{"strength", "str", "Strength", func(a *Abilities) *int { return &a.Strength }},
	{"dexterity", "dex", "Dexterity", func(a *Abilities) *int { return &a.Dexterity }},
	{"constitution", "con", "Constitution", func(a *Abilities) *int { return &a.Constitution }},
	{"intelligence", "int", "Intelligence", func(a *Abilities) *int { return &a.Intelligence }},
	{"wisdom", "wis", "Wisdom", func(a *Abilities) *int { return &a.Wisdom }},
	{"charisma", "cha", "Charisma", func(a *Abilities) *int { return &a.Charisma }},
}

// AbilityScore is one ability of a record, as returned by [AbilityScores].
type AbilityScore struct {
	Key   string // "strength"
	Abbr  string // "STR"
	Label string // "Strength"
	Score int
}

// AbilityScores lists the six abilities of a in display order.
func AbilityScores(a Abilities) []AbilityScore {
	out := make([]AbilityScore, 0, len(abilityTable))
	for _, ab := range abilityTable {
		out = append(out, AbilityScore{
			Key:   ab.key,
			Abbr:  strings.ToUpper(ab.abbr),
			Label: ab.label,
			Score: *ab.get(&a),
		})
	}
	return out
}

// Movement modes in display order.
const (
	SpeedWalk   = "walk"
	SpeedFly    = "fly"
	SpeedSwim   = "swim"
	SpeedClimb  = "climb"
	SpeedBurrow = "burrow"
)

// SpeedModes lists the recognised movement modes in display order.
var SpeedModes = []string{SpeedWalk, SpeedFly, SpeedSwim, SpeedClimb, SpeedBurrow}

func isSpeedMode(mode string) bool {
	for _, m := range SpeedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Speed maps a movement mode to its speed in feet.
type Speed map[string]int

// Feature is a named trait or action with a free-form description.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Record is a schema-complete monster stat block.
//
// The JSON field order is the canonical wire order used by [Encode] and by the
// prompts that ask a model for a record.
type Record struct {
	Name             string    `json:"name"`
	Size             Size      `json:"size"`
	Type             string    `json:"type"`
	Alignment        string    `json:"alignment"`
	ArmorClass       int       `json:"armor_class"`
	HitPoints        int       `json:"hit_points"`
	Abilities        Abilities `json:"abilities"`
	Speed            Speed     `json:"speed"`
	SpecialAbilities []Feature `json:"special_abilities"`
	Actions          []Feature `json:"actions"`
	Lore             string    `json:"lore"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Speed != nil {
		c.Speed = make(Speed, len(r.Speed))
		for k, v := range r.Speed {
			c.Speed[k] = v
		}
	}
	c.SpecialAbilities = append([]Feature(nil), r.SpecialAbilities...)
	c.Actions = append([]Feature(nil), r.Actions...)
	return &c
}
