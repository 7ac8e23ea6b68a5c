package sink

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

// Discord embed limits.
const (
	embedTitleMax       = 256
	embedDescriptionMax = 4096
	embedFieldMax       = 1024
)

// embedColorPurple is the embed sidebar color for a new monster.
const embedColorPurple = 0x8E44AD

// EmbedSender posts an embed to a channel. *discordgo.Session satisfies it.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts a summary embed of each finalized monster to a Discord
// channel.
type DiscordSink struct {
	sender    EmbedSender
	channelID string
}

var _ Sink = (*DiscordSink)(nil)

// NewDiscordSink returns a DiscordSink posting to channelID through sender.
func NewDiscordSink(sender EmbedSender, channelID string) *DiscordSink {
	return &DiscordSink{sender: sender, channelID: channelID}
}

// NewDiscordSession creates a bot session for token. The session only uses
// the REST API, so no gateway connection is opened.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("sink: discord: bot token must not be empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("sink: discord: create session: %w", err)
	}
	return s, nil
}

// Name implements [Sink].
func (s *DiscordSink) Name() string { return "discord" }

// Write implements [Sink].
func (s *DiscordSink) Write(ctx context.Context, st *pipeline.State) error {
	rec, err := record(st)
	if err != nil {
		return err
	}
	embed := BuildEmbed(st.RunID, rec)
	if _, err := s.sender.ChannelMessageSendEmbed(s.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sink: discord: send to channel %s: %w", s.channelID, err)
	}
	return nil
}

// BuildEmbed renders rec as a Discord embed: defenses and abilities as
// inline fields, features as block fields, lore as the description.
func BuildEmbed(runID string, rec *monster.Record) *discordgo.MessageEmbed {
	header := fmt.Sprintf("*%s %s, %s*", rec.Size, rec.Type, rec.Alignment)

	fields := []*discordgo.MessageEmbedField{
		{Name: "Armor Class", Value: fmt.Sprintf("%d", rec.ArmorClass), Inline: true},
		{Name: "Hit Points", Value: fmt.Sprintf("%d", rec.HitPoints), Inline: true},
		{Name: "Speed", Value: formatSpeed(rec.Speed), Inline: true},
	}
	for _, a := range monster.AbilityScores(rec.Abilities) {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   a.Abbr,
			Value:  fmt.Sprintf("%d (%+d)", a.Score, monster.Modifier(a.Score)),
			Inline: true,
		})
	}
	if len(rec.SpecialAbilities) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Special Abilities",
			Value: truncate(formatFeatures(rec.SpecialAbilities), embedFieldMax),
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  "Actions",
		Value: truncate(formatFeatures(rec.Actions), embedFieldMax),
	})

	embed := &discordgo.MessageEmbed{
		Title:       truncate(rec.Name, embedTitleMax),
		Description: truncate(header+"\n\n"+rec.Lore, embedDescriptionMax),
		Color:       embedColorPurple,
		Fields:      fields,
	}
	if runID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "run " + runID}
	}
	return embed
}

func formatSpeed(sp monster.Speed) string {
	var parts []string
	for _, mode := range monster.SpeedModes {
		if v, ok := sp[mode]; ok {
			parts = append(parts, fmt.Sprintf("%s %d ft.", mode, v))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func formatFeatures(fs []monster.Feature) string {
	var b strings.Builder
	for i, f := range fs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "**%s.** %s", f.Name, f.Description)
	}
	return b.String()
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
