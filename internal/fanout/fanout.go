// Package fanout runs one task per channel concurrently and gathers the
// results in channel order.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/njoerd114/channelsync/internal/model"
)

// Cancelled is recorded for channel tasks that were never started because
// the cycle was cancelled.
const Cancelled = "sync cancelled"

// NewBulkhead returns a semaphore with size slots, at least one. Services
// share one across calls so concurrent cycles draw from the same slots.
func NewBulkhead(size int) *semaphore.Weighted {
	return semaphore.NewWeighted(int64(max(size, 1)))
}

// Channels runs task once per channel, holding one bulkhead slot per
// running task, and returns the results in channel order. A task that
// panics is reported through failed like any other channel failure. Once
// ctx is done no new tasks start; tasks already running finish on their own.
func Channels[T any](ctx context.Context, log *slog.Logger, slots *semaphore.Weighted, channels []model.ChannelSettings,
	task func(ctx context.Context, ch model.ChannelSettings) T,
	failed func(ch model.ChannelSettings, reason string) T,
) []T {
	results := make([]T, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		// Acquire may succeed on a done context, so check first.
		if ctx.Err() != nil || slots.Acquire(ctx, 1) != nil {
			for j := i; j < len(channels); j++ {
				results[j] = failed(channels[j], Cancelled)
			}
			break
		}
		g.Go(func() error {
			defer slots.Release(1)
			defer func() {
				if r := recover(); r != nil {
					log.Error("channel task panicked", "channel", ch.Name, "panic", r)
					results[i] = failed(ch, fmt.Sprintf("internal error: %v", r))
				}
			}()
			results[i] = task(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
