package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/pkg/provider/llm"
	"github.com/MrWong99/bestiary/pkg/types"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// completion backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend. Call it before the first
// Complete.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group, e.g. for breaker inspection.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// Complete sends the request to the first healthy backend and returns its
// response. When every backend fails the returned [*llm.ServiceError] is
// transient if any backend failed transiently or was skipped by an open
// breaker, and permanent only when all of them were rejected permanently.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, name, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, classifyFailover(err)
	}
	if name != f.group.entries[0].name {
		observe.Logger(ctx).Info("completion served by fallback provider", "provider", name)
	}
	return resp, nil
}

// classifyFailover keeps the retry semantics of the individual failures.
func classifyFailover(err error) error {
	var ae *AttemptsError
	if !errors.As(err, &ae) {
		return err
	}
	kind := llm.Permanent
	for _, a := range ae.Attempts {
		if errors.Is(a.Err, ErrCircuitOpen) || llm.IsTransient(a.Err) {
			kind = llm.Transient
			break
		}
	}
	return &llm.ServiceError{Kind: kind, Err: err}
}

// CountTokens uses the primary's estimator. Counting is local, so it does not
// take part in failover.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return f.group.entries[0].value.CountTokens(messages)
}

// Capabilities returns the capabilities of the primary.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.entries[0].value.Capabilities()
}
