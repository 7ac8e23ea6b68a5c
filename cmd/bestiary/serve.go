package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/bestiary/internal/app"
	"github.com/MrWong99/bestiary/internal/config"
	"github.com/MrWong99/bestiary/internal/health"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/server"
)

var (
	listenAddr string
	noWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP generation API",
	Long: `Serves POST /v1/monsters, the stored-monster routes when PostgreSQL is
configured, /healthz, /readyz and /metrics.

The configuration file is watched for changes. The log level, the pipeline
policy and the provider selection are applied to new requests without a
restart; the listen address, TLS and outputs require one.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides server.listen_addr)")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the configuration file on change")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	ctx := cmd.Context()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "bestiary",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	printStartupSummary(cmd.ErrOrStderr(), cfg, "serve")

	a, err := newApplication(ctx, cfg, app.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer shutdown(a)

	// ── Hot reload ────────────────────────────────────────────────────────────
	if !noWatch {
		w, err := config.NewWatcher(configPath, func(_, next *config.Config) {
			if listenAddr != "" {
				next.Server.ListenAddr = listenAddr
			}
			if err := a.Reload(next); err != nil {
				slog.Error("config reload failed", "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer w.Stop()
	}

	opts := []server.Option{
		server.WithHealth(health.New(a.Checkers()...)),
		server.WithMetrics(metrics),
	}
	if st := a.Store(); st != nil {
		opts = append(opts, server.WithStore(st))
	}

	var certFile, keyFile string
	if tls := cfg.Server.TLS; tls != nil {
		certFile, keyFile = tls.CertFile, tls.KeyFile
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := server.New(a, opts...).ListenAndServe(ctx, cfg.Server.ListenAddr, certFile, keyFile); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}
