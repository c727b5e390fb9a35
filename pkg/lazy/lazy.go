// Package lazy memoizes a value that is expensive to build, such as an
// authenticated backend session. Concurrent first callers share a single
// in-flight initialization; a failed initialization is reported to every
// waiter and leaves the value unset so the next call starts over.
package lazy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

const flightKey = "init"

// Value is safe for concurrent use. The zero value is ready to use and has no
// initialization timeout.
type Value[T any] struct {
	timeout time.Duration

	mu       sync.RWMutex
	val      T
	ready    bool
	inflight atomic.Bool
	group    singleflight.Group
}

// New returns a Value whose initializer runs under the given timeout.
func New[T any](timeout time.Duration) *Value[T] {
	return &Value[T]{timeout: timeout}
}

// Load returns the memoized value without initializing it.
func (v *Value[T]) Load() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.ready
}

func (v *Value[T]) State() State {
	if _, ok := v.Load(); ok {
		return StateReady
	}
	if v.inflight.Load() {
		return StateInitializing
	}
	return StateUninitialized
}

// Get returns the memoized value, running initFn if no value is stored yet.
// initFn runs detached from the caller's cancellation so that one waiter giving
// up does not fail the others; ctx only bounds how long this caller waits.
func (v *Value[T]) Get(ctx context.Context, initFn func(context.Context) (T, error)) (T, error) {
	if val, ok := v.Load(); ok {
		return val, nil
	}

	ch := v.group.DoChan(flightKey, func() (any, error) {
		if val, ok := v.Load(); ok {
			return val, nil
		}

		v.inflight.Store(true)
		defer v.inflight.Store(false)

		initCtx := context.WithoutCancel(ctx)
		if v.timeout > 0 {
			var cancel context.CancelFunc
			initCtx, cancel = context.WithTimeout(initCtx, v.timeout)
			defer cancel()
		}

		val, err := initFn(initCtx)
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.val = val
		v.ready = true
		v.mu.Unlock()

		return val, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
