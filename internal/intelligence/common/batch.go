// Package common provides the shared machinery of the analysis stages:
// a generic bounded fan-out batch processor with per-item timeout and a
// jittered exponential retry policy.
package common

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Result types
// ─────────────────────────────────────────────────────────────────────────────

// ItemStatus classifies the outcome of one processed item.
type ItemStatus string

const (
	ItemStatusOK        ItemStatus = "ok"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// ItemResult is the outcome of one item, positioned by input index.
type ItemResult[R any] struct {
	Index    int
	Result   R
	Error    error
	Status   ItemStatus
	Attempts int
	Duration time.Duration
}

// BatchResult aggregates a whole Process call. Results are index-aligned
// with the input slice.
type BatchResult[R any] struct {
	Results   []ItemResult[R]
	Succeeded int
	Failed    int
	Cancelled int
	Duration  time.Duration
}

// Successes returns the successful results in input order.
func (r *BatchResult[R]) Successes() []R {
	out := make([]R, 0, r.Succeeded)
	for _, item := range r.Results {
		if item.Status == ItemStatusOK {
			out = append(out, item.Result)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Retry policy
// ─────────────────────────────────────────────────────────────────────────────

// RetryPolicy drives per-item retries with jittered exponential backoff.
// Retryable decides which errors are worth another attempt; nil retries only
// transient source failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Retryable      func(error) bool
}

// DefaultRetryPolicy retries transient failures twice, backing off from
// 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Retryable:      appErrors.IsTransient,
	}
}

// NoRetry gives every item a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// shouldRetry reports whether attempt (zero-based) may be followed by
// another.
func (p RetryPolicy) shouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	if p.Retryable == nil {
		return appErrors.IsTransient(err)
	}
	return p.Retryable(err)
}

// backoff computes the pause before the given zero-based retry, jittered
// ±25% so retry storms decorrelate.
func (p RetryPolicy) backoff(retry int) time.Duration {
	base := float64(p.InitialBackoff)
	if base <= 0 {
		base = float64(100 * time.Millisecond)
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2.0
	}
	for i := 0; i < retry; i++ {
		base *= mult
	}
	if max := float64(p.MaxBackoff); max > 0 && base > max {
		base = max
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(base * jitter)
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch processor
// ─────────────────────────────────────────────────────────────────────────────

// ProcessFunc handles one item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// BatchProcessor fans a slice out to at most concurrency workers, bounding
// each item by itemTimeout and retrying per policy. Per-item failures never
// abort the batch; cancellation of the batch context marks the remaining
// items cancelled and returns promptly.
type BatchProcessor[T, R any] struct {
	concurrency int
	itemTimeout time.Duration
	retry       RetryPolicy
	logger      logging.Logger
}

// NewBatchProcessor builds a processor. concurrency < 1 is clamped to 1;
// itemTimeout <= 0 means no per-item bound.
func NewBatchProcessor[T, R any](concurrency int, itemTimeout time.Duration, retry RetryPolicy, logger logging.Logger) *BatchProcessor[T, R] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchProcessor[T, R]{
		concurrency: concurrency,
		itemTimeout: itemTimeout,
		retry:       retry,
		logger:      logger,
	}
}

// Process runs fn over every item and returns the aggregated result. The
// returned BatchResult is never nil.
func (p *BatchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) *BatchResult[R] {
	started := time.Now()
	result := &BatchResult[R]{Results: make([]ItemResult[R], len(items))}
	if len(items) == 0 {
		result.Duration = time.Since(started)
		return result
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Everything not yet dispatched is cancelled in place.
			for j := i; j < len(items); j++ {
				result.Results[j] = ItemResult[R]{
					Index:  j,
					Error:  appErrors.Cancelled("batch cancelled before item started"),
					Status: ItemStatusCancelled,
				}
			}
			wg.Wait()
			p.finalize(result, started)
			return result
		}

		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-sem }()
			result.Results[idx] = p.processOne(ctx, idx, it, fn)
		}(i, item)
	}

	wg.Wait()
	p.finalize(result, started)
	return result
}

// processOne runs one item through the attempt loop.
func (p *BatchProcessor[T, R]) processOne(ctx context.Context, idx int, item T, fn ProcessFunc[T, R]) ItemResult[R] {
	started := time.Now()
	out := ItemResult[R]{Index: idx}

	for attempt := 0; ; attempt++ {
		out.Attempts = attempt + 1

		itemCtx := ctx
		var cancel context.CancelFunc
		if p.itemTimeout > 0 {
			itemCtx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		}
		res, err := fn(itemCtx, item)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			out.Result = res
			out.Status = ItemStatusOK
			out.Duration = time.Since(started)
			return out
		}

		if ctx.Err() != nil {
			out.Error = appErrors.Wrap(ctx.Err(), appErrors.CodeCancelled, "batch cancelled mid-item")
			out.Status = ItemStatusCancelled
			out.Duration = time.Since(started)
			return out
		}

		if !p.retry.shouldRetry(attempt, err) {
			out.Error = err
			out.Status = ItemStatusFailed
			out.Duration = time.Since(started)
			return out
		}

		pause := p.retry.backoff(attempt)
		p.logger.Debug("batch item retrying",
			logging.Int("index", idx),
			logging.Int("attempt", attempt+1),
			logging.Duration("backoff", pause),
			logging.Err(err))

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			out.Error = appErrors.Wrap(ctx.Err(), appErrors.CodeCancelled, "batch cancelled during backoff")
			out.Status = ItemStatusCancelled
			out.Duration = time.Since(started)
			return out
		case <-timer.C:
		}
	}
}

// finalize fills the aggregate counters.
func (p *BatchProcessor[T, R]) finalize(result *BatchResult[R], started time.Time) {
	for _, item := range result.Results {
		switch item.Status {
		case ItemStatusOK:
			result.Succeeded++
		case ItemStatusCancelled:
			result.Cancelled++
		default:
			result.Failed++
		}
	}
	result.Duration = time.Since(started)
}
