package app_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/bestiary/internal/app"
	"github.com/MrWong99/bestiary/internal/config"
	"github.com/MrWong99/bestiary/internal/health"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/stage"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
	llmmock "github.com/MrWong99/bestiary/pkg/provider/llm/mock"
)

const testConcept = "A lantern-bearing husk that walks the drowned causeway."

const testRecord = `{
  "name": "Drowned Lampwarden",
  "size": "Large",
  "type": "Undead",
  "alignment": "Lawful Neutral",
  "armor_class": 15,
  "hit_points": 110,
  "abilities": {"strength": 18, "dexterity": 10, "constitution": 16, "intelligence": 11, "wisdom": 14, "charisma": 13},
  "speed": {"walk": 30, "swim": 40},
  "special_abilities": [{"name": "Drowned Light", "description": "Sheds dim green light in a 30-foot radius."}],
  "actions": [{"name": "Lantern Swing", "description": "Melee Weapon Attack: +7 to hit, 2d8+4 bludgeoning."}],
  "lore": "Sailors still leave oil on the shore for it."
}`

var testAnswers = narrative.Answers{"secret", "lake", "memory", "eels", "lantern"}

// testConfig returns a defaulted config that writes files into a temp dir and
// never sleeps between retries.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	noWait := time.Duration(0)
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "stub", Model: "stub-1"}},
		Pipeline:  config.PipelineConfig{RetryBackoff: &noWait},
		Sinks:     config.SinksConfig{Files: config.FileSinkConfig{Dir: t.TempDir()}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// finalizing returns a provider that completes one full run.
func finalizing() *llmmock.Provider {
	return &llmmock.Provider{Script: []llmmock.Reply{
		{Content: testConcept},
		{Content: testRecord},
		{Content: testRecord},
	}}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func checkerNames(cs []health.Checker) []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// ─── fakes ───────────────────────────────────────────────────────────────────

type row struct{ err error }

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*time.Time); ok {
		*p = time.Now()
	}
	return nil
}

// fakeDB accepts every statement and counts inserts.
type fakeDB struct {
	mu      sync.Mutex
	execs   []string
	inserts int
	execErr error
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(sql, "INSERT") {
		d.inserts++
	}
	return row{}
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, sql)
	return pgconn.CommandTag{}, d.execErr
}

type fakeDiscord struct {
	mu     sync.Mutex
	embeds int
}

func (f *fakeDiscord) ChannelMessageSendEmbed(string, *discordgo.MessageEmbed, ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds++
	return &discordgo.Message{}, nil
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_RunWritesFiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg, app.WithProvider(finalizing(), "stub"))

	st, err := a.Run(context.Background(), testAnswers)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if st.Stage != stage.Finalized {
		t.Fatalf("stage = %s, want finalized", st.Stage)
	}
	for _, name := range []string{"drowned_lampwarden.json", "drowned_lampwarden.md"} {
		if _, err := os.Stat(filepath.Join(cfg.Sinks.Files.Dir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
	if got := checkerNames(a.Checkers()); !slices.Equal(got, []string{"output_dir", "providers"}) {
		t.Errorf("checkers = %v", got)
	}
	if a.Store() != nil {
		t.Error("Store() should be nil without a database")
	}
}

func TestNew_AllSinks(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sinks.Discord = config.DiscordSinkConfig{ChannelID: "123"}
	cfg.Sinks.Terminal.Style = "notty"
	db := &fakeDB{}
	discord := &fakeDiscord{}
	var term strings.Builder

	a := newApp(t, cfg,
		app.WithProvider(finalizing(), "stub"),
		app.WithDB(db),
		app.WithDiscordSender(discord),
		app.WithTerminal(&term),
	)
	if a.Store() == nil {
		t.Fatal("Store() is nil with an injected database")
	}
	if len(db.execs) != 1 {
		t.Fatalf("migrations = %d, want 1", len(db.execs))
	}

	if _, err := a.Run(context.Background(), testAnswers); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if db.inserts != 1 {
		t.Errorf("postgres inserts = %d, want 1", db.inserts)
	}
	if discord.embeds != 1 {
		t.Errorf("discord embeds = %d, want 1", discord.embeds)
	}
	if !strings.Contains(term.String(), "Drowned Lampwarden") {
		t.Errorf("terminal output missing monster name:\n%s", term.String())
	}
}

func TestNew_MigrateFails(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(t), nil,
		app.WithProvider(finalizing(), "stub"),
		app.WithDB(&fakeDB{execErr: errors.New("permission denied")}),
	)
	if err == nil || !strings.Contains(err.Error(), "init sinks") {
		t.Errorf("err = %v, want init sinks error", err)
	}
}

func TestNew_ProviderFromRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		fallbacks    []config.ProviderEntry
		wantErr      bool
		wantCheckers []string
	}{
		{
			name:         "primary only",
			wantCheckers: []string{"output_dir", "providers"},
		},
		{
			name:         "with fallbacks",
			fallbacks:    []config.ProviderEntry{{Name: "stub", Model: "stub-2"}},
			wantCheckers: []string{"output_dir", "providers"},
		},
		{
			name:      "unknown fallback",
			fallbacks: []config.ProviderEntry{{Name: "missing"}},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var models []string
			var mu sync.Mutex
			reg := config.NewRegistry()
			reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
				mu.Lock()
				models = append(models, e.Model)
				mu.Unlock()
				return finalizing(), nil
			})

			cfg := testConfig(t)
			cfg.Providers.Fallbacks = tt.fallbacks
			a, err := app.New(context.Background(), cfg, reg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			defer a.Shutdown(context.Background())

			if got := checkerNames(a.Checkers()); !slices.Equal(got, tt.wantCheckers) {
				t.Errorf("checkers = %v, want %v", got, tt.wantCheckers)
			}
			if len(models) != 1+len(tt.fallbacks) {
				t.Errorf("factory calls = %v", models)
			}
			if _, err := a.Run(context.Background(), testAnswers); err != nil {
				t.Errorf("Run() error: %v", err)
			}
		})
	}
}

func TestNew_NoRegistry(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(t), nil); err == nil {
		t.Error("expected error without a registry or injected provider")
	}
}

// ─── Batch ───────────────────────────────────────────────────────────────────

func TestApp_Batch(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sinks.Files.Disabled = true
	p := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.Contains(req.Messages[len(req.Messages)-1].Content, "JSON object") {
			return &llm.CompletionResponse{Content: testRecord}, nil
		}
		return &llm.CompletionResponse{Content: testConcept}, nil
	}}
	a := newApp(t, cfg, app.WithProvider(p, "stub"))

	results := a.Batch(context.Background(), []narrative.Answers{testAnswers, testAnswers, testAnswers})
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
		if r.Err != nil {
			t.Errorf("results[%d] error: %v", i, r.Err)
		}
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	level := new(slog.LevelVar)
	p := &llmmock.Provider{CompleteErr: llm.NewTransient(errors.New("overloaded"))}
	a := newApp(t, cfg, app.WithProvider(p, "stub"), app.WithLogLevel(level))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Pipeline.MaxAttempts = 1
	if err := a.Reload(&next); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if a.Config() != &next {
		t.Error("Config() does not return the reloaded config")
	}

	st, err := a.Run(context.Background(), testAnswers)
	if err == nil {
		t.Fatal("expected failure from an always-failing provider")
	}
	if st.Calls != 1 {
		t.Errorf("calls = %d, want 1 after max_attempts reload", st.Calls)
	}
}

func TestApp_ReloadAddsFallbacksToReadiness(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("down", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{CompleteErr: llm.NewTransient(errors.New("overloaded"))}, nil
	})
	cfg := testConfig(t)
	cfg.Providers.LLM = config.ProviderEntry{Name: "down"}
	a, err := app.New(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Shutdown(context.Background())

	var providers health.Checker
	for _, c := range a.Checkers() {
		if c.Name == "providers" {
			providers = c
		}
	}
	if providers.Check == nil {
		t.Fatal("no providers checker without fallbacks")
	}
	if err := providers.Check(context.Background()); err != nil {
		t.Fatalf("providers check without fallbacks = %v, want nil", err)
	}

	next := *cfg
	next.Providers.Fallbacks = []config.ProviderEntry{{Name: "down", Model: "backup"}}
	next.Providers.Breaker.MaxFailures = 1
	next.Pipeline.MaxAttempts = 1
	if err := a.Reload(&next); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if _, err := a.Run(context.Background(), testAnswers); err == nil {
		t.Fatal("expected failure when every provider is down")
	}
	if err := providers.Check(context.Background()); err == nil {
		t.Error("providers check passed with every breaker open after reload")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), nil, app.WithProvider(finalizing(), "stub"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}
