package apply

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// runPool runs fn once per item, fanned out across a bounded number of
// concurrent workers, and merges every call's returned Stats into one. This
// generalizes the teacher's channel-semaphore API slot scheduler into a
// weighted semaphore sized by the apply pipeline's worker count (§5 "Fan-out
// within a phase"): workers pull from items, failures accumulate into the
// merged Stats rather than aborting the phase.
func runPool[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) Stats) Stats {
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))

	var mu sync.Mutex
	var merged Stats
	var wg sync.WaitGroup

	for _, item := range items {
		item := item
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled: stop launching new work; in-flight workers
			// still drain via wg.Wait below.
			mu.Lock()
			merged.recordError(err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s := fn(ctx, item)
			mu.Lock()
			mergeInto(&merged, s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return merged
}

// mergeInto folds one unit's Stats into an accumulator, concatenating error
// samples up to the shared cap.
func mergeInto(acc *Stats, s Stats) {
	acc.Total += s.Total
	acc.Created += s.Created
	acc.Updated += s.Updated
	acc.Skipped += s.Skipped
	acc.Failed += s.Failed
	for _, e := range s.Errors {
		if len(acc.Errors) >= maxSampledErrors {
			break
		}
		acc.Errors = append(acc.Errors, e)
	}
}
