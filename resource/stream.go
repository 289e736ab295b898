package resource

import (
	"context"
	"math/rand"
)

// Cursor is the minimal capability a streaming query source must expose:
// fetch the next page of up to n rows. A nil/empty page with a nil error
// signals exhaustion.
type Cursor[Row any] interface {
	Next(ctx context.Context, n int) ([]Row, error)
	Close() error
}

// ChunkHandler processes one fetched chunk; its completion throttles the
// next fetch, providing backpressure (spec.md 4.6).
type ChunkHandler[Row any] func(ctx context.Context, chunk []Row) error

// StreamConfig configures a StreamingExecutor run.
type StreamConfig struct {
	ChunkSize  int
	SampleSize int // 0 means unbounded
	// MemoryProbe, if set, is polled after each chunk to populate
	// StreamReport.PeakMemory (an optional observability hook; spec.md
	// 4.6 lists peak_memory as optional).
	MemoryProbe func() int64
}

// StreamReport summarizes a completed streaming run (spec.md 4.6:
// "Reports {row_count, chunk_count, cancelled, sampled_rows,
// peak_memory?}").
type StreamReport struct {
	RowCount    int
	ChunkCount  int
	Cancelled   bool
	SampledRows int
	PeakMemory  int64
}

// StreamingExecutor pages a Cursor in ChunkSize chunks, invoking an
// on_chunk handler whose completion throttles the next fetch, optionally
// capping retained rows via reservoir sampling when SampleSize is set, and
// stopping promptly on ctx cancellation (spec.md 4.6).
type StreamingExecutor[Row any] struct {
	cfg StreamConfig
}

// NewStreamingExecutor constructs an executor. cfg.ChunkSize must be >= 1.
func NewStreamingExecutor[Row any](cfg StreamConfig) *StreamingExecutor[Row] {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	return &StreamingExecutor[Row]{cfg: cfg}
}

// Run streams cur through handler until exhaustion, ctx cancellation, or a
// handler error. When cfg.SampleSize > 0 the returned sample in the report
// is maintained via reservoir sampling (Algorithm R) so every row seen has
// equal probability of retention regardless of total row count.
func (s *StreamingExecutor[Row]) Run(ctx context.Context, cur Cursor[Row], handler ChunkHandler[Row]) (StreamReport, []Row, error) {
	var report StreamReport
	var sample []Row
	seen := 0

	for {
		select {
		case <-ctx.Done():
			report.Cancelled = true
			return report, sample, nil
		default:
		}

		chunk, err := cur.Next(ctx, s.cfg.ChunkSize)
		if err != nil {
			return report, sample, err
		}
		if len(chunk) == 0 {
			break
		}

		if err := handler(ctx, chunk); err != nil {
			return report, sample, err
		}

		report.RowCount += len(chunk)
		report.ChunkCount++
		if s.cfg.MemoryProbe != nil {
			if m := s.cfg.MemoryProbe(); m > report.PeakMemory {
				report.PeakMemory = m
			}
		}

		if s.cfg.SampleSize > 0 {
			for _, row := range chunk {
				seen++
				if len(sample) < s.cfg.SampleSize {
					sample = append(sample, row)
				} else if j := rand.Intn(seen); j < s.cfg.SampleSize {
					sample[j] = row
				}
			}
		}

		select {
		case <-ctx.Done():
			report.Cancelled = true
			return report, sample, nil
		default:
		}
	}

	report.SampledRows = len(sample)
	return report, sample, nil
}
