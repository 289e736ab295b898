package resource

import (
	"context"
	"testing"
)

type sliceCursor struct {
	rows []int
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context, n int) ([]int, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	end := c.pos + n
	if end > len(c.rows) {
		end = len(c.rows)
	}
	out := c.rows[c.pos:end]
	c.pos = end
	return out, nil
}

func (c *sliceCursor) Close() error { return nil }

func TestStreamingExecutor_PagesAllRows(t *testing.T) {
	rows := make([]int, 23)
	for i := range rows {
		rows[i] = i
	}
	cur := &sliceCursor{rows: rows}
	exec := NewStreamingExecutor[int](StreamConfig{ChunkSize: 5})

	var seen []int
	report, _, err := exec.Run(context.Background(), cur, func(ctx context.Context, chunk []int) error {
		seen = append(seen, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.RowCount != 23 {
		t.Fatalf("expected 23 rows, got %d", report.RowCount)
	}
	if report.ChunkCount != 5 {
		t.Fatalf("expected 5 chunks, got %d", report.ChunkCount)
	}
	if len(seen) != 23 {
		t.Fatalf("expected to see 23 rows, got %d", len(seen))
	}
}

func TestStreamingExecutor_CancelStopsPromptly(t *testing.T) {
	rows := make([]int, 1000)
	cur := &sliceCursor{rows: rows}
	exec := NewStreamingExecutor[int](StreamConfig{ChunkSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	report, _, err := exec.Run(ctx, cur, func(c context.Context, chunk []int) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Cancelled {
		t.Fatal("expected report.Cancelled to be true")
	}
	if report.RowCount >= 1000 {
		t.Fatalf("expected early stop, got full row count %d", report.RowCount)
	}
}

func TestStreamingExecutor_SampleCap(t *testing.T) {
	rows := make([]int, 100)
	for i := range rows {
		rows[i] = i
	}
	cur := &sliceCursor{rows: rows}
	exec := NewStreamingExecutor[int](StreamConfig{ChunkSize: 10, SampleSize: 5})

	report, sample, err := exec.Run(context.Background(), cur, func(ctx context.Context, chunk []int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sample) != 5 {
		t.Fatalf("expected sample of 5, got %d", len(sample))
	}
	if report.SampledRows != 5 {
		t.Fatalf("expected report.SampledRows 5, got %d", report.SampledRows)
	}
}
