// Package workpool runs a batch of items on a fixed number of workers.
//
// Workers claim items in queue order and report every item individually;
// one item's failure never stops the others from draining.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Result is the outcome of one item. Index is the item's position in the
// input slice.
type Result struct {
	Index int
	Err   error
}

// PanicError is recorded for an item whose function panicked.
type PanicError struct {
	Index int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workpool: item %d panicked: %v", e.Index, e.Value)
}

// Run processes items with at most k concurrent calls to fn and returns one
// Result per item, in item order.
//
// k <= 0 starts one worker per item. Once ctx is done workers stop claiming;
// unclaimed items report ctx.Err() and in-flight calls finish on their own.
func Run[T any](ctx context.Context, k int, items []T, fn func(ctx context.Context, i int, item T) error) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}
	if k <= 0 || k > len(items) {
		k = len(items)
	}

	var (
		next    atomic.Int64
		claimed = make([]bool, len(items))
		wg      sync.WaitGroup
	)

	worker := func() {
		defer wg.Done()
		for {
			if ctx.Err() != nil {
				return
			}
			i := int(next.Add(1) - 1)
			if i >= len(items) {
				return
			}
			claimed[i] = true
			results[i] = Result{Index: i, Err: call(ctx, i, items[i], fn)}
		}
	}

	wg.Add(k)
	for range k {
		go worker()
	}
	wg.Wait()

	for i := range results {
		if !claimed[i] {
			results[i] = Result{Index: i, Err: ctx.Err()}
		}
	}
	return results
}

func call[T any](ctx context.Context, i int, item T, fn func(context.Context, int, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Index: i, Value: r}
		}
	}()
	return fn(ctx, i, item)
}

// Errors joins the failures in results, or returns nil when every item succeeded.
func Errors(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns the indexes of items that failed, in item order.
func Failed(results []Result) []int {
	var out []int
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Index)
		}
	}
	return out
}
