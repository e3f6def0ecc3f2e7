package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTaskPanicked wraps a panic recovered from a task's work function.
	ErrTaskPanicked = errors.New("task panicked")
	// ErrTaskRunning is returned by Result before the task has finished.
	ErrTaskRunning = errors.New("task still running")
)

// Task is a handle to work running on its own goroutine.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result T
	err    error
}

// Go starts fn on a new goroutine with a cancellable child of ctx.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		result, err := t.call(ctx, fn)
		t.mu.Lock()
		t.result, t.err = result, err
		t.mu.Unlock()
	}()

	return t
}

func (t *Task[T]) call(ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn(ctx)
}

// Done is closed once the work function has returned.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Result returns the outcome without blocking.
func (t *Task[T]) Result() (T, error) {
	select {
	case <-t.done:
	default:
		var zero T
		return zero, ErrTaskRunning
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Cancel cancels the task's context. It does not wait.
func (t *Task[T]) Cancel() {
	t.cancel()
}
