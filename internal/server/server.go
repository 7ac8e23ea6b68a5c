// Package server exposes monster generation over HTTP.
//
// Routes:
//
//   - POST /v1/monsters: run the pipeline for five narrative answers.
//   - GET /v1/monsters, GET /v1/monsters/{id}: stored monsters (only when a
//     store is configured).
//   - GET /v1/questions: the narrative questions in answer order.
//   - GET /healthz, GET /readyz: see package health.
//   - GET /metrics: Prometheus scrape endpoint.
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/bestiary/internal/health"
	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/pipeline"
	"github.com/MrWong99/bestiary/internal/sink"
)

const (
	// maxBodyBytes caps the size of a generation request body.
	maxBodyBytes = 64 << 10

	readHeaderTimeout = 10 * time.Second

	// ShutdownTimeout bounds the drain of in-flight generation requests.
	ShutdownTimeout = 2 * time.Minute

	// DefaultDrainGrace is how long /readyz reports draining before the
	// listener closes.
	DefaultDrainGrace = 5 * time.Second
)

// Store serves finalized monsters back. [*sink.PostgresStore] satisfies it.
type Store interface {
	Get(ctx context.Context, runID string) (*sink.Entry, error)
	List(ctx context.Context, limit int) ([]sink.Entry, error)
}

// Server is the HTTP API of the generator.
type Server struct {
	gen     pipeline.Runner
	store   Store
	health  *health.Handler
	metrics *observe.Metrics
	promh   http.Handler

	drainGrace time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithStore enables the read routes under /v1/monsters.
func WithStore(s Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithHealth serves /healthz and /readyz from h. Default: a handler with no
// checkers.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetrics sets the metrics used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Default: promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.promh = h }
}

// WithDrainGrace sets how long the server keeps accepting requests with
// /readyz failing before it shuts down. Zero shuts down at once.
// Default: [DefaultDrainGrace].
func WithDrainGrace(d time.Duration) Option {
	return func(srv *Server) { srv.drainGrace = max(d, 0) }
}

// New returns a Server that generates monsters with gen.
func New(gen pipeline.Runner, opts ...Option) *Server {
	s := &Server{gen: gen, drainGrace: DefaultDrainGrace}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.promh == nil {
		s.promh = promhttp.Handler()
	}
	return s
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/monsters", s.createMonster)
	mux.HandleFunc("GET /v1/questions", s.listQuestions)
	if s.store != nil {
		mux.HandleFunc("GET /v1/monsters", s.listMonsters)
		mux.HandleFunc("GET /v1/monsters/{id}", s.getMonster)
	}
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.promh)
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves on addr until ctx ends. It then fails /readyz for the
// drain grace period so load balancers stop routing, and drains in-flight
// requests for up to [ShutdownTimeout]. TLS is used when both certFile and
// keyFile are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if certFile != "" && keyFile != "" {
			slog.Info("http server listening", "addr", addr, "tls", true)
			serveErr <- httpServer.ListenAndServeTLS(certFile, keyFile)
			return
		}
		slog.Info("http server listening", "addr", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.health.SetDraining(true)
		if s.drainGrace > 0 {
			slog.Info("http server draining", "grace", s.drainGrace)
			grace := time.NewTimer(s.drainGrace)
			select {
			case <-grace.C:
			case err := <-serveErr:
				grace.Stop()
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server: serve: %w", err)
				}
				return nil
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// monsterResponse is the body of a successful generation.
type monsterResponse struct {
	RunID   string          `json:"run_id"`
	Concept string          `json:"concept"`
	Record  *monster.Record `json:"record"`

	// SinkError is set when the monster was generated but could not be
	// delivered to every configured output.
	SinkError string `json:"sink_error,omitempty"`
}

// failureResponse describes a run that ended in the Failed state.
type failureResponse struct {
	RunID    string `json:"run_id"`
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createMonster(w http.ResponseWriter, r *http.Request) {
	var set narrative.Set
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&set); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	st, err := s.gen.Run(r.Context(), set.Answers())
	if st != nil && st.Record() != nil {
		resp := monsterResponse{RunID: st.RunID, Concept: st.Concept, Record: st.Record()}
		if err != nil {
			resp.SinkError = err.Error()
		}
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		resp := failureResponse{
			Stage:    runErr.Stage.String(),
			Kind:     runErr.Kind.String(),
			Reason:   pipeline.Cause(runErr.Err),
			Attempts: runErr.Attempts,
			Error:    runErr.Error(),
		}
		if st != nil {
			resp.RunID = st.RunID
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	observe.Logger(r.Context()).Error("generation returned no result", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "generation failed"})
}

func (s *Server) listMonsters(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.store.List(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("list monsters", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not list monsters"})
		return
	}
	if entries == nil {
		entries = []sink.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"monsters": entries})
}

func (s *Server) getMonster(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.Get(r.Context(), id)
	if err != nil {
		observe.Logger(r.Context()).Error("get monster", "run_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load monster"})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "monster not found"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) listQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": narrative.Questions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}
