// Package batch runs a slice of independent tasks with bounded concurrency.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrBatchCancelled marks tasks that were never started, or a batch whose
// parent context ended, after the runner failed fast.
var ErrBatchCancelled = errors.New("batch cancelled")

// Task is one unit of work. It must honour ctx cancellation.
type Task[T any] func(ctx context.Context) (T, error)

// TaskError carries the index of the task that failed the batch.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string { return fmt.Sprintf("batch task %d: %v", e.Index, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

type outcome[T any] struct {
	idx int
	val T
	err error
}

// Run executes tasks with at most limit running at once and returns results
// in submission order. The first failure cancels the batch: tasks not yet
// started are skipped, in-flight tasks see ctx cancelled and are not waited
// for, and no partial results are returned.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) ([]T, error) {
	if limit < 1 {
		return nil, fmt.Errorf("batch limit must be >= 1, got %d", limit)
	}
	n := len(tasks)
	if n == 0 {
		return []T{}, nil
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The first failing task records itself and cancels before releasing its
	// slot, so the launcher can never admit another task after a failure.
	var (
		failOnce sync.Once
		failErr  error
	)
	fail := func(idx int, err error) {
		failOnce.Do(func() {
			failErr = &TaskError{Index: idx, Err: err}
			cancel()
		})
	}

	sem := semaphore.NewWeighted(int64(limit))
	// Buffered for every slot so abandoned goroutines never block.
	done := make(chan outcome[T], n)

	go func() {
		for i, task := range tasks {
			if err := sem.Acquire(ctx, 1); err != nil {
				skipFrom(done, i, n)
				return
			}
			if ctx.Err() != nil {
				sem.Release(1)
				skipFrom(done, i, n)
				return
			}
			go func(i int, task Task[T]) {
				defer sem.Release(1)
				v, err := task(ctx)
				if err != nil {
					fail(i, err)
				}
				done <- outcome[T]{idx: i, val: v, err: err}
			}(i, task)
		}
	}()

	results := make([]T, n)
	for received := 0; received < n; received++ {
		select {
		case o := <-done:
			if o.err != nil {
				return nil, batchError(parent, failErr)
			}
			results[o.idx] = o.val
		case <-parent.Done():
			return nil, batchError(parent, nil)
		}
	}
	return results, nil
}

func batchError(parent context.Context, failErr error) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBatchCancelled, err)
	}
	if failErr != nil {
		return failErr
	}
	return ErrBatchCancelled
}

func skipFrom[T any](done chan<- outcome[T], from, n int) {
	for j := from; j < n; j++ {
		done <- outcome[T]{idx: j, err: ErrBatchCancelled}
	}
}
