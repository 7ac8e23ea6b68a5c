// Package app wires the Bestiary subsystems into a running application.
//
// New builds the completion client (with optional failover), the output
// sinks and the pipeline controller from a [config.Config]. The CLI, the HTTP
// server and the MCP tool server all generate monsters through the same App.
// Shutdown releases everything New acquired.
//
// For testing, inject doubles via functional options (WithProvider, WithDB,
// WithDiscordSender). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/bestiary/internal/config"
	"github.com/MrWong99/bestiary/internal/health"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/pipeline"
	"github.com/MrWong99/bestiary/internal/resilience"
	"github.com/MrWong99/bestiary/internal/sink"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
)

// App owns all subsystem lifetimes. It is safe for concurrent use; each
// generation request gets its own run state.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	// Injected or built in New.
	provider     llm.Provider
	injectedLLM  bool
	providerName string
	fallback     *resilience.LLMFallback
	db           sink.DB
	discord      sink.EmbedSender
	terminal     io.Writer

	sinks *sink.Multi
	store *sink.PostgresStore
	files *sink.FileSink

	mu   sync.Mutex // serialises Reload
	ctrl atomic.Pointer[pipeline.Controller]

	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

var _ pipeline.Runner = (*App)(nil)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProvider injects a completion client instead of creating one through
// the registry. Provider config changes are ignored on [App.Reload].
func WithProvider(p llm.Provider, name string) Option {
	return func(a *App) {
		a.provider = p
		a.providerName = name
		a.injectedLLM = true
	}
}

// WithDB injects the PostgreSQL connection used by the monster store instead
// of opening a pool from sinks.postgres_dsn.
func WithDB(db sink.DB) Option {
	return func(a *App) { a.db = db }
}

// WithDiscordSender injects the Discord client instead of opening a bot
// session from sinks.discord.token.
func WithDiscordSender(s sink.EmbedSender) Option {
	return func(a *App) { a.discord = s }
}

// WithTerminal renders each finalized monster to w. Only the interactive CLI
// sets this; servers leave stdout alone.
func WithTerminal(w io.Writer) Option {
	return func(a *App) { a.terminal = w }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.Reload] adjust the process log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. reg resolves provider
// names; it may be nil when a provider is injected with [WithProvider].
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Completion client ─────────────────────────────────────────────
	if !a.injectedLLM {
		if err := a.initProvider(cfg); err != nil {
			return nil, fmt.Errorf("app: init provider: %w", err)
		}
	}

	// ── 2. Sinks ─────────────────────────────────────────────────────────
	if err := a.initSinks(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	// ── 3. Controller ────────────────────────────────────────────────────
	a.ctrl.Store(a.buildController(cfg))

	slog.Info("bestiary ready",
		"provider", a.providerName,
		"sinks", a.sinks.Len(),
		"max_attempts", cfg.Pipeline.MaxAttempts,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initProvider creates the primary provider and, when fallbacks are
// configured, wraps everything in an [resilience.LLMFallback].
func (a *App) initProvider(cfg *config.Config) error {
	if a.registry == nil {
		return fmt.Errorf("no provider registry")
	}
	primary, err := a.registry.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return err
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.Fallbacks) == 0 {
		a.provider, a.providerName, a.fallback = primary, cfg.Providers.LLM.Name, nil
		return nil
	}

	fb := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Providers.Breaker.MaxFailures,
			ResetTimeout: cfg.Providers.Breaker.ResetTimeout,
		},
	})
	for i, entry := range cfg.Providers.Fallbacks {
		p, err := a.registry.CreateLLM(entry)
		if err != nil {
			return fmt.Errorf("fallback %d: %w", i, err)
		}
		fb.AddFallback(fmt.Sprintf("%s#%d", entry.Name, i+1), p)
		slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
	}
	a.provider, a.providerName, a.fallback = fb, "failover", fb
	return nil
}

// initSinks opens every configured output. Sinks are written in the order
// terminal, files, postgres, discord.
func (a *App) initSinks(ctx context.Context) error {
	var sinks []sink.Sink
	sc := a.cfg.Sinks

	if a.terminal != nil && !sc.Terminal.Disabled {
		var opts []sink.TerminalOption
		if sc.Terminal.Style != "" {
			opts = append(opts, sink.WithStyle(sc.Terminal.Style))
		}
		if sc.Terminal.Width > 0 {
			opts = append(opts, sink.WithWordWrap(sc.Terminal.Width))
		}
		sinks = append(sinks, sink.NewTerminalSink(a.terminal, opts...))
	}

	if !sc.Files.Disabled {
		a.files = sink.NewFileSink(sc.Files.Dir)
		sinks = append(sinks, a.files)
		a.checkers = append(a.checkers, health.OutputDir(sc.Files.Dir))
	}

	if a.db == nil && sc.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, sc.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		a.checkers = append(a.checkers, health.Postgres(pool))
		a.db = pool
	}
	if a.db != nil {
		a.store = sink.NewPostgresStore(a.db)
		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, a.store)
	}

	if a.discord == nil && sc.Discord.Enabled() {
		session, err := sink.NewDiscordSession(sc.Discord.Token)
		if err != nil {
			return err
		}
		a.discord = session
	}
	if a.discord != nil {
		sinks = append(sinks, sink.NewDiscordSink(a.discord, sc.Discord.ChannelID))
	}

	// Registered even without fallbacks: a reload may add them later.
	a.checkers = append(a.checkers, health.Providers(liveProviders{a}))

	a.sinks = sink.NewMulti(a.metrics, sinks...)
	return nil
}

// buildController assembles an executor and controller for cfg's policy
// around the current provider.
func (a *App) buildController(cfg *config.Config) *pipeline.Controller {
	core := cfg.Core()
	exec := pipeline.NewExecutor(a.provider, core,
		pipeline.WithProviderName(a.providerName),
		pipeline.WithExecutorMetrics(a.metrics),
	)
	opts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}
	if a.sinks.Len() > 0 {
		opts = append(opts, pipeline.WithSink(a.sinks))
	}
	return pipeline.NewController(exec, core, opts...)
}

// ─── Generation ──────────────────────────────────────────────────────────────

// Run generates one monster with the current controller. It implements
// [pipeline.Runner].
func (a *App) Run(ctx context.Context, answers narrative.Answers) (*pipeline.State, error) {
	return a.ctrl.Load().Run(ctx, answers)
}

// Batch generates one monster per answer set, running at most
// pipeline.concurrency of them at once.
func (a *App) Batch(ctx context.Context, answers []narrative.Answers) []pipeline.BatchResult {
	return pipeline.RunBatch(ctx, a, answers, a.Config().Pipeline.Concurrency)
}

// Config returns the configuration the App currently runs with.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Store returns the PostgreSQL monster store, or nil when none is configured.
func (a *App) Store() *sink.PostgresStore { return a.store }

// Checkers returns the readiness checks for the configured dependencies.
func (a *App) Checkers() []health.Checker { return a.checkers }

// liveProviders exposes the breakers of the current failover group, which
// [App.Reload] may replace.
type liveProviders struct{ a *App }

func (l liveProviders) group() *resilience.FallbackGroup[llm.Provider] {
	l.a.mu.Lock()
	defer l.a.mu.Unlock()
	if l.a.fallback == nil {
		return nil
	}
	return l.a.fallback.Group()
}

func (l liveProviders) Names() []string {
	if g := l.group(); g != nil {
		return g.Names()
	}
	return nil
}

func (l liveProviders) Breaker(name string) *resilience.CircuitBreaker {
	if g := l.group(); g != nil {
		return g.Breaker(name)
	}
	return nil
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a new configuration to future runs. The log level, the
// pipeline policy and the provider selection take effect immediately; runs
// in flight finish with the controller they started with. Sections that are
// only read at startup are reported and otherwise ignored.
func (a *App) Reload(next *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Compare(a.cfg, next)
	if !d.Changed() {
		return nil
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
	if d.ProvidersChanged && !a.injectedLLM {
		if err := a.initProvider(next); err != nil {
			return fmt.Errorf("app: reload provider: %w", err)
		}
	}
	if d.PipelineChanged || d.ProvidersChanged {
		a.ctrl.Store(a.buildController(next))
		slog.Info("pipeline reconfigured", "provider", a.providerName, "max_attempts", next.Pipeline.MaxAttempts)
	}
	a.cfg = next
	return nil
}

// SlogLevel maps a config log level onto slog.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases subsystems in init order. If ctx expires before all
// closers finish, remaining closers are skipped and ctx's error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}
