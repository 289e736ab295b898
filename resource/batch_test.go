package resource

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBatchProcessor_FlushOnMaxSize(t *testing.T) {
	var calls int
	var mu sync.Mutex
	fn := func(ctx context.Context, items []int) ([]int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		out := make([]int, len(items))
		for i, v := range items {
			out[i] = v * 2
		}
		return out, nil
	}
	bp := NewBatchProcessor(3, time.Hour, fn, BatchHooks[int, int]{})
	defer bp.Close()

	var wg sync.WaitGroup
	results := make([]int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := bp.Submit(context.Background(), i)
			if err != nil {
				t.Errorf("submit: %v", err)
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 batch call, got %d", calls)
	}
}

func TestBatchProcessor_FlushOnMaxWait(t *testing.T) {
	fn := func(ctx context.Context, items []int) ([]int, error) {
		return items, nil
	}
	bp := NewBatchProcessor(100, 20*time.Millisecond, fn, BatchHooks[int, int]{})
	defer bp.Close()

	r, err := bp.Submit(context.Background(), 42)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r != 42 {
		t.Fatalf("expected 42, got %d", r)
	}
}

func TestBatchProcessor_ManualFlush(t *testing.T) {
	fn := func(ctx context.Context, items []int) ([]int, error) { return items, nil }
	bp := NewBatchProcessor(100, time.Hour, fn, BatchHooks[int, int]{})
	defer bp.Close()

	done := make(chan struct{})
	var result int
	go func() {
		result, _ = bp.Submit(context.Background(), 7)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	bp.Flush()

	select {
	case <-done:
		if result != 7 {
			t.Fatalf("expected 7, got %d", result)
		}
	case <-time.After(time.Second):
		t.Fatal("flush did not unblock pending submit")
	}
}

func TestBatchProcessor_ItemErrorFallback(t *testing.T) {
	fn := func(ctx context.Context, items []int) ([]int, error) {
		return nil, errBatchFailed
	}
	hooks := BatchHooks[int, int]{
		OnItemError: func(item int, err error) (int, bool) {
			return -1, true
		},
	}
	bp := NewBatchProcessor(1, time.Hour, fn, hooks)
	defer bp.Close()

	r, err := bp.Submit(context.Background(), 5)
	if err != nil {
		t.Fatalf("expected fallback to suppress error, got %v", err)
	}
	if r != -1 {
		t.Fatalf("expected fallback value -1, got %d", r)
	}
}

var errBatchFailed = &testErr{"batch failed"}
