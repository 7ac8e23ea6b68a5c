// Command bestiary generates tabletop monster stat blocks with an LLM.
//
// It runs a three-stage pipeline (concept, draft, refine) seeded by five
// narrative answers and delivers every validated monster to the configured
// outputs. The same pipeline is reachable interactively ("generate"), over
// HTTP ("serve") and as an MCP tool server on stdio ("mcp").
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/bestiary/internal/app"
	"github.com/MrWong99/bestiary/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds [app.App.Shutdown] after a command finishes.
const shutdownTimeout = 15 * time.Second

var (
	// Global flags
	configPath string
	envFile    string

	// logLevel is shared by the default logger and config hot reload.
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "bestiary",
	Short: "Generate tabletop monster stat blocks with an LLM",
	Long: `Bestiary turns five narrative answers into a complete, validated monster
stat block. A model first writes a prose concept, then drafts the stat block
as JSON, then refines it for balance. Every model reply is validated against
the schema; invalid replies are retried, never repaired.

Provider credentials are read from the configuration file, where ${VAR}
references are expanded from the environment. A .env file in the working
directory is loaded first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil {
			// The default .env is optional; an explicit one is not.
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file %q: %w", envFile, err)
			}
		}
		slog.SetDefault(newLogger(cmd.ErrOrStderr()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.Version = version

	rootCmd.AddCommand(generateCmd, serveCmd, mcpCmd)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bestiary: %v\n", err)
		return 1
	}
	return 0
}

// ── Shared command plumbing ───────────────────────────────────────────────────

// loadConfig reads --config and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}
	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.Debug("configuration loaded", "config", configPath)
	return cfg, nil
}

// newApplication wires an [app.App] with the built-in providers.
func newApplication(ctx context.Context, cfg *config.Config, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	a, err := app.New(ctx, cfg, reg, append(opts, app.WithLogLevel(logLevel))...)
	if err != nil {
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	return a, nil
}

// shutdown releases a with a bounded timeout.
func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, mode string) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Bestiary startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Mode", mode)
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	for i, fb := range cfg.Providers.Fallbacks {
		printProvider(w, fmt.Sprintf("Fallback %d", i+1), fb.Name, fb.Model)
	}
	printRow(w, "Max attempts", fmt.Sprint(cfg.Pipeline.MaxAttempts))
	printRow(w, "Output dir", enabled(!cfg.Sinks.Files.Disabled, cfg.Sinks.Files.Dir))
	printRow(w, "PostgreSQL", enabled(cfg.Sinks.PostgresDSN != "", "configured"))
	printRow(w, "Discord", enabled(cfg.Sinks.Discord.Enabled(), "channel "+cfg.Sinks.Discord.ChannelID))
	if mode == "serve" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 18 {
		value = string(r[:17]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-18s ║\n", label, value)
}

func enabled(on bool, value string) string {
	if !on {
		return "(disabled)"
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to w at the shared [logLevel]. Logs never go to
// stdout: the terminal output and the MCP stdio transport own it.
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
