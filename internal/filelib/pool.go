package filelib

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// runPool fans fn out across items with at most limit concurrent workers,
// merging every call's Stats into one. Mirrors internal/apply's worker pool
// (itself a generalization of the teacher's channel-semaphore API
// scheduler) since the file sync has its own bounded fan-out requirement
// independent of the apply pipeline's phases.
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
			merged.merge(s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return merged
}
