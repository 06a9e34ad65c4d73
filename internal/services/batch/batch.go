// Package batch runs per-item work in fixed-width concurrent chunks.
package batch

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/logger"

	"golang.org/x/sync/errgroup"
)

// DefaultWidth is the number of items processed concurrently per chunk.
const DefaultWidth = 10

type slot[R any] struct {
	value R
	ok    bool
}

// Run applies fn to every item, width items at a time. A chunk starts only
// after the previous one has settled. Items whose fn returns an error or
// panics are logged and left out; the remaining results keep input order.
func Run[T, R any](ctx context.Context, log *logger.Logger, items []T, width int, fn func(context.Context, T) (R, error)) []R {
	if len(items) == 0 {
		return []R{}
	}
	if width <= 0 {
		width = DefaultWidth
	}

	startTime := time.Now()
	slots := make([]slot[R], len(items))

	for start := 0; start < len(items); start += width {
		end := min(start+width, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				value, err := call(ctx, fn, items[i])
				if err != nil {
					log.Warn("Batch item %d failed: %v", i, err)
					return nil
				}
				slots[i] = slot[R]{value: value, ok: true}
				return nil
			})
		}
		_ = g.Wait()
	}

	results := make([]R, 0, len(items))
	for _, s := range slots {
		if s.ok {
			results = append(results, s.value)
		}
	}

	log.Debug("Batch complete: %d submitted, %d succeeded in %s",
		len(items), len(results), time.Since(startTime))

	return results
}

func call[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
