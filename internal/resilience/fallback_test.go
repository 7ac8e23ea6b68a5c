package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type namedBackend struct {
	name string
	err  error
}

func newGroup(backends ...namedBackend) *FallbackGroup[namedBackend] {
	cfg := FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}}
	fg := NewFallbackGroup(backends[0], backends[0].name, cfg)
	for _, b := range backends[1:] {
		fg.AddFallback(b.name, b)
	}
	return fg
}

func call(b namedBackend) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return "from " + b.name, nil
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		backends []namedBackend
		want     string
		served   string
	}{
		{
			name:     "primary success",
			backends: []namedBackend{{name: "a"}, {name: "b"}},
			want:     "from a",
			served:   "a",
		},
		{
			name:     "failover to second",
			backends: []namedBackend{{name: "a", err: errTest}, {name: "b"}},
			want:     "from b",
			served:   "b",
		},
		{
			name:     "failover to last",
			backends: []namedBackend{{name: "a", err: errTest}, {name: "b", err: errTest}, {name: "c"}},
			want:     "from c",
			served:   "c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, served, err := ExecuteWithResult(context.Background(), newGroup(tt.backends...), call)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || served != tt.served {
				t.Errorf("got (%q, %q), want (%q, %q)", got, served, tt.want, tt.served)
			}
		})
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	t.Parallel()
	errA, errB := errors.New("a down"), errors.New("b down")
	fg := newGroup(namedBackend{name: "a", err: errA}, namedBackend{name: "b", err: errB})

	_, _, err := ExecuteWithResult(context.Background(), fg, call)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both backend errors wrapped", err)
	}
	var ae *AttemptsError
	if !errors.As(err, &ae) || len(ae.Attempts) != 2 || ae.Attempts[0].Name != "a" {
		t.Errorf("attempts = %+v", ae)
	}
}

func TestExecuteWithResult_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newGroup(namedBackend{name: "a", err: errTest}, namedBackend{name: "b"})

	// MaxFailures 1: the first call trips a's breaker.
	if _, _, err := ExecuteWithResult(context.Background(), fg, call); err != nil {
		t.Fatal(err)
	}
	if fg.Breaker("a").State() != StateOpen {
		t.Fatalf("breaker a = %v, want open", fg.Breaker("a").State())
	}

	calls := 0
	_, served, err := ExecuteWithResult(context.Background(), fg, func(b namedBackend) (string, error) {
		calls++
		return call(b)
	})
	if err != nil || served != "b" {
		t.Fatalf("served = %q, err = %v", served, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (open breaker skipped)", calls)
	}
}

func TestExecuteWithResult_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	fg := newGroup(namedBackend{name: "a"}, namedBackend{name: "b"})

	var tried []string
	_, _, err := ExecuteWithResult(ctx, fg, func(b namedBackend) (string, error) {
		tried = append(tried, b.name)
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(tried, []string{"a"}) {
		t.Errorf("tried = %v, want only the primary", tried)
	}
	if fg.Breaker("a").State() != StateClosed {
		t.Error("cancellation must not trip the breaker")
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	fg := newGroup(namedBackend{name: "groq"}, namedBackend{name: "openai"})
	if got := fg.Names(); !slices.Equal(got, []string{"groq", "openai"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}
