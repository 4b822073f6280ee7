package common

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

func TestBatchProcessor_AllSucceed(t *testing.T) {
	t.Parallel()

	p := NewBatchProcessor[int, string](4, time.Second, NoRetry(), logging.NewNopLogger())
	result := p.Process(context.Background(), []int{1, 2, 3},
		func(_ context.Context, n int) (string, error) {
			return strconv.Itoa(n * 10), nil
		})

	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"10", "20", "30"}, result.Successes())
	for i, item := range result.Results {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, ItemStatusOK, item.Status)
		assert.Equal(t, 1, item.Attempts)
	}
}

func TestBatchProcessor_PerItemFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	p := NewBatchProcessor[int, int](2, time.Second, NoRetry(), logging.NewNopLogger())
	result := p.Process(context.Background(), []int{1, 2, 3, 4},
		func(_ context.Context, n int) (int, error) {
			if n%2 == 0 {
				return 0, errors.New("even numbers fail")
			}
			return n, nil
		})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []int{1, 3}, result.Successes())
	assert.Equal(t, ItemStatusFailed, result.Results[1].Status)
	assert.Error(t, result.Results[1].Error)
}

func TestBatchProcessor_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int32
	p := NewBatchProcessor[int, int](3, time.Second, NoRetry(), logging.NewNopLogger())

	result := p.Process(context.Background(), make([]int, 20),
		func(_ context.Context, n int) (int, error) {
			c := current.Add(1)
			for {
				observed := peak.Load()
				if c <= observed || peak.CompareAndSwap(observed, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return n, nil
		})

	assert.Equal(t, 20, result.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchProcessor_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	policy := RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
		Retryable:      appErrors.IsTransient,
	}
	p := NewBatchProcessor[int, string](1, time.Second, policy, logging.NewNopLogger())

	result := p.Process(context.Background(), []int{1},
		func(_ context.Context, _ int) (string, error) {
			if calls.Add(1) < 3 {
				return "", appErrors.SourceTransient("upstream 503")
			}
			return "ok", nil
		})

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 3, result.Results[0].Attempts)
}

func TestBatchProcessor_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := NewBatchProcessor[int, string](1, time.Second, DefaultRetryPolicy(), logging.NewNopLogger())

	result := p.Process(context.Background(), []int{1},
		func(_ context.Context, _ int) (string, error) {
			calls.Add(1)
			return "", appErrors.Validation("malformed record")
		})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int32(1), calls.Load(), "validation errors are not retryable")
}

func TestBatchProcessor_CancellationMarksRemaining(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	p := NewBatchProcessor[int, int](1, time.Second, NoRetry(), logging.NewNopLogger())

	go func() {
		<-started
		cancel()
	}()

	var once atomic.Bool
	result := p.Process(ctx, make([]int, 10),
		func(c context.Context, n int) (int, error) {
			if once.CompareAndSwap(false, true) {
				close(started)
			}
			select {
			case <-c.Done():
				return 0, c.Err()
			case <-time.After(50 * time.Millisecond):
				return n, nil
			}
		})

	assert.Greater(t, result.Cancelled, 0)
	assert.Equal(t, 10, result.Succeeded+result.Failed+result.Cancelled)
}

func TestBatchProcessor_EmptyInput(t *testing.T) {
	t.Parallel()

	p := NewBatchProcessor[int, int](4, time.Second, NoRetry(), logging.NewNopLogger())
	result := p.Process(context.Background(), nil,
		func(_ context.Context, n int) (int, error) { return n, nil })

	assert.Equal(t, 0, result.Succeeded)
	assert.Empty(t, result.Results)
}

func TestRetryPolicy_BackoffBounds(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}

	for retry := 0; retry < 8; retry++ {
		got := policy.backoff(retry)
		assert.LessOrEqual(t, got, time.Duration(float64(time.Second)*1.25),
			"retry %d exceeded jittered max", retry)
		assert.Greater(t, got, time.Duration(0))
	}

	// First retry stays near the initial backoff.
	first := policy.backoff(0)
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)
}
