package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	node := graph.NodeFunc(func(ctx context.Context, s graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		attempts++
		if attempts < 3 {
			return graph.NodeResult{Err: &graph.TransientError{Message: "503"}}
		}
		return graph.NodeResult{Delta: graph.State{"ok": true}}
	})

	wrapped := Retry(RetryConfig{MaxAttempts: 5, Backoff: graph.BackoffFixed, BaseDelay: time.Millisecond})(node)
	res := wrapped.Run(context.Background(), graph.State{}, graph.RuntimeConfig{})
	if res.Err != nil {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var attempts int
	node := graph.NodeFunc(func(ctx context.Context, s graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		attempts++
		return graph.NodeResult{Err: &graph.TransientError{Message: "always fails"}}
	})

	wrapped := Retry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})(node)
	res := wrapped.Run(context.Background(), graph.State{}, graph.RuntimeConfig{})
	if res.Err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

// TestRetry_NonRetryableBypassesLoop enforces spec.md 4.3/7: a
// ValidationError never gets retried, regardless of MaxAttempts.
func TestRetry_NonRetryableBypassesLoop(t *testing.T) {
	var attempts int
	node := graph.NodeFunc(func(ctx context.Context, s graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		attempts++
		return graph.NodeResult{Err: &graph.ValidationError{Message: "bad field"}}
	})

	wrapped := Retry(RetryConfig{MaxAttempts: 5})(node)
	res := wrapped.Run(context.Background(), graph.State{}, graph.RuntimeConfig{})
	if res.Err == nil {
		t.Fatal("expected validation error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetry_InterruptBypassesLoop(t *testing.T) {
	var attempts int
	node := graph.NodeFunc(func(ctx context.Context, s graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		attempts++
		return graph.NodeResult{Interrupt: &graph.Interrupt{Question: "approve?"}}
	})

	wrapped := Retry(RetryConfig{MaxAttempts: 5})(node)
	res := wrapped.Run(context.Background(), graph.State{}, graph.RuntimeConfig{})
	if res.Interrupt == nil {
		t.Fatal("expected interrupt to propagate unchanged")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt before surfacing interrupt, got %d", attempts)
	}
}

func TestRetry_OnAttemptHookInvoked(t *testing.T) {
	var hookCalls []int
	node := graph.NodeFunc(func(ctx context.Context, s graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		return graph.NodeResult{Err: &graph.TransientError{Message: "fail"}}
	})

	wrapped := Retry(RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		OnAttempt:   func(attempt int, err error) { hookCalls = append(hookCalls, attempt) },
	})(node)
	_ = wrapped.Run(context.Background(), graph.State{}, graph.RuntimeConfig{})
	if len(hookCalls) != 2 {
		t.Fatalf("expected OnAttempt called twice, got %v", hookCalls)
	}
}
