package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

// Terminal rendering defaults.
const (
	DefaultTerminalStyle = "auto"
	DefaultTerminalWidth = 80
)

// TerminalSink renders the Markdown stat block of each finalized monster to a
// writer, styled for the terminal with glamour.
type TerminalSink struct {
	mu    sync.Mutex
	w     io.Writer
	style string
	width int
}

var _ Sink = (*TerminalSink)(nil)

// TerminalOption configures a [TerminalSink].
type TerminalOption func(*TerminalSink)

// WithStyle selects a glamour standard style ("auto", "dark", "light",
// "notty", ...). Default: "auto".
func WithStyle(style string) TerminalOption {
	return func(s *TerminalSink) { s.style = style }
}

// WithWordWrap sets the wrap width in columns. Default: 80.
func WithWordWrap(width int) TerminalOption {
	return func(s *TerminalSink) { s.width = width }
}

// NewTerminalSink returns a TerminalSink writing to w.
func NewTerminalSink(w io.Writer, opts ...TerminalOption) *TerminalSink {
	s := &TerminalSink{w: w, style: DefaultTerminalStyle, width: DefaultTerminalWidth}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements [Sink].
func (s *TerminalSink) Name() string { return "terminal" }

// Write implements [Sink].
func (s *TerminalSink) Write(_ context.Context, st *pipeline.State) error {
	rec, err := record(st)
	if err != nil {
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(s.style),
		glamour.WithWordWrap(s.width),
	)
	if err != nil {
		return fmt.Errorf("sink: terminal: %w", err)
	}
	out, err := r.Render(monster.Markdown(rec))
	if err != nil {
		return fmt.Errorf("sink: terminal: render: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, out); err != nil {
		return fmt.Errorf("sink: terminal: %w", err)
	}
	return nil
}
