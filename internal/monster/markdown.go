package monster

import (
	"fmt"
	"strings"
)

// Markdown renders r as a Markdown stat block with the sections Basic
// Information, Abilities, Speed, Special Abilities, Actions and Lore.
func Markdown(r *Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Name)

	b.WriteString("## Basic Information\n")
	fmt.Fprintf(&b, "- **Size:** %s\n", r.Size)
	fmt.Fprintf(&b, "- **Type:** %s\n", r.Type)
	fmt.Fprintf(&b, "- **Alignment:** %s\n", r.Alignment)
	fmt.Fprintf(&b, "- **Armor Class:** %d\n", r.ArmorClass)
	fmt.Fprintf(&b, "- **Hit Points:** %d\n\n", r.HitPoints)

	b.WriteString("## Abilities\n")
	for _, ab := range abilityTable {
		score := *ab.get(&r.Abilities)
		fmt.Fprintf(&b, "- **%s:** %d (%s)\n", ab.label, score, formatModifier(Modifier(score)))
	}
	b.WriteString("\n")

	b.WriteString("## Speed\n")
	for _, mode := range SpeedModes {
		if ft, ok := r.Speed[mode]; ok {
			fmt.Fprintf(&b, "- **%s:** %d ft.\n", strings.ToUpper(mode[:1])+mode[1:], ft)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Special Abilities\n")
	writeFeatures(&b, r.SpecialAbilities)

	b.WriteString("## Actions\n")
	writeFeatures(&b, r.Actions)

	b.WriteString("## Lore\n")
	b.WriteString(strings.TrimSpace(r.Lore))
	b.WriteString("\n")

	return b.String()
}

func writeFeatures(b *strings.Builder, fs []Feature) {
	for _, f := range fs {
		fmt.Fprintf(b, "### %s\n%s\n\n", f.Name, strings.TrimSpace(f.Description))
	}
}

func formatModifier(m int) string {
	if m >= 0 {
		return fmt.Sprintf("+%d", m)
	}
	return fmt.Sprintf("%d", m)
}
