package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/r-near/near-harness/pkg/logger"
)

func Test_Bridge_Do(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	var ran bool
	err := b.Do(t.Context(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func Test_Bridge_Do_submissionOrder(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	// Operations submitted sequentially from one goroutine must execute in
	// submission order.
	var got []int
	for i := range 50 {
		err := b.Do(t.Context(), func(ctx context.Context) error {
			got = append(got, i)
			return nil
		})
		require.NoError(t, err)
	}

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func Test_Bridge_Do_serializesConcurrentCallers(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		wg       sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				err := b.Do(t.Context(), func(ctx context.Context) error {
					n := inFlight.Add(1)
					if n > maxSeen.Load() {
						maxSeen.Store(n)
					}
					time.Sleep(time.Millisecond)
					inFlight.Add(-1)

					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Never more than one operation on the executor at a time.
	assert.Equal(t, int32(1), maxSeen.Load())
}

func Test_Bridge_Do_afterClose(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	b.Close()
	b.Close() // idempotent

	err := b.Do(t.Context(), func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func Test_Bridge_Do_recoversDeadExecutor(t *testing.T) {
	t.Parallel()

	lggr, logs := logger.TestObserved(t, zapcore.WarnLevel)
	b := New(lggr)
	defer b.Close()

	// A panicking operation reports its failure and kills the executor.
	err := b.Do(t.Context(), func(ctx context.Context) error {
		panic("boom")
	})
	require.ErrorContains(t, err, "operation panicked: boom")

	// The next operation transparently runs on a fresh executor.
	err = b.Do(t.Context(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessageSnippet("starting a new one").Len())
}

func Test_Bridge_Do_doesNotRetryOperationErrors(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	var calls atomic.Int32
	err := b.Do(t.Context(), func(ctx context.Context) error {
		calls.Add(1)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int32(1), calls.Load())
}

func Test_Bridge_Do_contextExpiry(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A caller whose context expires while another operation is in flight
	// gets the context error back instead of hanging.
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := b.Do(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func Test_Call(t *testing.T) {
	t.Parallel()

	b := New(logger.Test(t))
	defer b.Close()

	got, err := Call(t.Context(), b, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Call(t.Context(), b, func(ctx context.Context) (int, error) {
		return 0, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
}
