package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct{ id int }

func TestGet_MemoizesAfterSuccess(t *testing.T) {
	var calls atomic.Int32
	v := New[*session](time.Second)

	initFn := func(ctx context.Context) (*session, error) {
		n := calls.Add(1)
		return &session{id: int(n)}, nil
	}

	first, err := v.Get(context.Background(), initFn)
	require.NoError(t, err)
	second, err := v.Get(context.Background(), initFn)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateReady, v.State())
}

func runConcurrent(t *testing.T, v *Value[*session], n int, initFn func(context.Context) (*session, error)) ([]*session, []error) {
	t.Helper()

	results := make([]*session, n)
	errs := make([]error, n)

	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = v.Get(context.Background(), initFn)
		}(i)
	}
	started.Wait()
	done.Wait()
	return results, errs
}

func TestGet_ConcurrentCallersShareOneAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	v := New[*session](5 * time.Second)

	initFn := func(ctx context.Context) (*session, error) {
		calls.Add(1)
		<-release
		return &session{id: 42}, nil
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	results, errs := runConcurrent(t, v, 32, initFn)

	assert.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestGet_FailureSharedAndReset(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	authErr := errors.New("auth rejected")
	v := New[*session](5 * time.Second)

	failing := func(ctx context.Context) (*session, error) {
		calls.Add(1)
		<-release
		return nil, authErr
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	_, errs := runConcurrent(t, v, 16, failing)

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, authErr)
	}
	assert.Equal(t, StateUninitialized, v.State())

	got, err := v.Get(context.Background(), func(ctx context.Context) (*session, error) {
		calls.Add(1)
		return &session{id: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_CallerCancellationDoesNotAbortInit(t *testing.T) {
	release := make(chan struct{})
	var initErr atomic.Value
	v := New[*session](5 * time.Second)

	initFn := func(ctx context.Context) (*session, error) {
		<-release
		if err := ctx.Err(); err != nil {
			initErr.Store(err)
			return nil, err
		}
		return &session{id: 1}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := v.Get(ctx, initFn)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return v.State() == StateInitializing }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return v.State() == StateReady }, time.Second, 5*time.Millisecond)
	assert.Nil(t, initErr.Load())
}

func TestGet_InitTimeout(t *testing.T) {
	v := New[*session](20 * time.Millisecond)

	_, err := v.Get(context.Background(), func(ctx context.Context) (*session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUninitialized, v.State())
}
