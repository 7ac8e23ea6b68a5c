package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/prompt"
	"github.com/MrWong99/bestiary/internal/stage"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
	"github.com/MrWong99/bestiary/pkg/types"
)

// StageRunner performs one attempt of a generation stage. [*Executor] is the
// production implementation; tests substitute scripted runners.
type StageRunner interface {
	Run(ctx context.Context, st stage.Stage, v stage.View) Result
}

// Executor runs a single attempt of a stage: it builds the prompt, makes
// exactly one completion call, and turns the reply into a [Result]. It never
// retries; that decision belongs to the [Controller].
//
// Executor is safe for concurrent use.
type Executor struct {
	provider     llm.Provider
	providerName string
	cfg          Config
	metrics      *observe.Metrics
}

var _ StageRunner = (*Executor)(nil)

// ExecutorOption configures an [Executor].
type ExecutorOption func(*Executor)

// WithProviderName sets the provider label used in metrics. Default: "llm".
func WithProviderName(name string) ExecutorOption {
	return func(e *Executor) { e.providerName = name }
}

// WithExecutorMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithExecutorMetrics(m *observe.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor returns an Executor that calls p with the request settings in
// cfg. Zero config fields take their defaults.
func NewExecutor(p llm.Provider, cfg Config, opts ...ExecutorOption) *Executor {
	e := &Executor{
		provider:     p,
		providerName: "llm",
		cfg:          cfg.WithDefaults(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Run performs one attempt of st against the view v.
//
// Transient service errors, request timeouts and invalid replies yield
// [Retry]. Permanent service errors, oversized prompts and caller
// cancellation yield [Abort].
func (e *Executor) Run(ctx context.Context, st stage.Stage, v stage.View) Result {
	ctx, span := observe.StartSpan(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage", st.String())),
	)
	defer span.End()

	start := time.Now()
	res := e.run(ctx, st, v)
	e.metrics.RecordStageAttempt(ctx, st.String(), res.Outcome.String(), Cause(res.Err), time.Since(start).Seconds())

	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, Cause(res.Err))
	}
	return res
}

func (e *Executor) run(ctx context.Context, st stage.Stage, v stage.View) Result {
	if err := ctx.Err(); err != nil {
		return AbortWith(fmt.Errorf("%w: %w", ErrCancelled, err))
	}

	userPrompt, err := prompt.Build(st, v)
	if err != nil {
		return AbortWith(llm.NewPermanent(fmt.Errorf("pipeline: build %s prompt: %w", st, err)))
	}

	messages := []types.Message{{Role: types.RoleUser, Content: userPrompt}}
	if err := e.preflight(messages); err != nil {
		return AbortWith(err)
	}

	req := llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: prompt.SystemPrompt,
		Model:        e.cfg.Model,
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
		JSONMode:     st != stage.Concept,
	}

	resp, err := e.complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return AbortWith(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		}
		se := llm.Classify(err)
		e.metrics.RecordProviderError(ctx, e.providerName, se.Kind.String())
		if se.Kind == llm.Transient {
			return RetrySameStage(se)
		}
		return AbortWith(se)
	}

	res := interpret(st, resp.Content)
	res.Usage = resp.Usage
	return res
}

// preflight rejects prompts that cannot fit the provider's context window
// together with the completion budget. Providers that report no window, or
// fail to count, are not checked.
func (e *Executor) preflight(messages []types.Message) error {
	window := e.provider.Capabilities().ContextWindow
	if window <= 0 {
		return nil
	}
	counted := append([]types.Message{{Role: types.RoleSystem, Content: prompt.SystemPrompt}}, messages...)
	n, err := e.provider.CountTokens(counted)
	if err != nil {
		return nil
	}
	if n+e.cfg.MaxTokens > window {
		return llm.NewPermanent(fmt.Errorf("%w: %d prompt + %d completion tokens > %d",
			ErrContextWindow, n, e.cfg.MaxTokens, window))
	}
	return nil
}

// complete makes the single provider call for an attempt, bounded by the
// request timeout. An expired request timeout is transient.
func (e *Executor) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Complete(callCtx, req)
	e.metrics.RecordLLMDuration(ctx, e.providerName, time.Since(start).Seconds())

	switch {
	case err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		e.metrics.RecordProviderRequest(ctx, e.providerName, "timeout")
		return nil, llm.NewTransient(fmt.Errorf("pipeline: completion timed out after %s: %w", e.cfg.RequestTimeout, err))
	case err != nil:
		e.metrics.RecordProviderRequest(ctx, e.providerName, "error")
		return nil, err
	case resp == nil:
		e.metrics.RecordProviderRequest(ctx, e.providerName, "error")
		return nil, llm.NewTransient(errors.New("pipeline: provider returned no response"))
	}

	e.metrics.RecordProviderRequest(ctx, e.providerName, "ok")
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		e.metrics.RecordTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, nil
}

// interpret turns a reply into a Result for st. Invalid replies are retried.
func interpret(st stage.Stage, content string) Result {
	if st == stage.Concept {
		concept := monster.StripReasoning(content)
		if concept == "" {
			return RetrySameStage(&monster.ValidationError{
				Field:  "concept",
				Kind:   monster.Empty,
				Reason: "model returned no concept text",
			})
		}
		return AdvanceWith(Delta{Concept: concept})
	}

	tree, err := monster.ParseResponse(content)
	if err != nil {
		return RetrySameStage(err)
	}
	rec, err := monster.Validate(tree)
	if err != nil {
		return RetrySameStage(err)
	}
	return AdvanceWith(Delta{Record: rec})
}
