package fanout

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func channels(names ...string) []model.ChannelSettings {
	out := make([]model.ChannelSettings, 0, len(names))
	for _, n := range names {
		out = append(out, model.ChannelSettings{Name: n})
	}
	return out
}

func TestChannels_OrderedResults(t *testing.T) {
	delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 0, "c": 10 * time.Millisecond}
	got := Channels(context.Background(), testLogger, NewBulkhead(3), channels("a", "b", "c"),
		func(_ context.Context, ch model.ChannelSettings) string {
			time.Sleep(delays[ch.Name])
			return ch.Name
		},
		func(ch model.ChannelSettings, reason string) string { return reason },
	)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results = %v, want %v", got, want)
			break
		}
	}
}

func TestChannels_BoundedConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	Channels(context.Background(), testLogger, NewBulkhead(2), channels("a", "b", "c", "d", "e"),
		func(context.Context, model.ChannelSettings) bool {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return true
		},
		func(model.ChannelSettings, string) bool { return false },
	)
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak.Load())
	}
}

func TestChannels_PanicContained(t *testing.T) {
	got := Channels(context.Background(), testLogger, NewBulkhead(2), channels("a", "b"),
		func(_ context.Context, ch model.ChannelSettings) string {
			if ch.Name == "a" {
				panic("boom")
			}
			return "ok"
		},
		func(_ model.ChannelSettings, reason string) string { return reason },
	)
	if got[0] != "internal error: boom" || got[1] != "ok" {
		t.Errorf("results = %v", got)
	}
}

func TestChannels_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var started atomic.Int32
	got := Channels(ctx, testLogger, NewBulkhead(1), channels("a", "b"),
		func(context.Context, model.ChannelSettings) string {
			started.Add(1)
			return "ran"
		},
		func(_ model.ChannelSettings, reason string) string { return reason },
	)
	if started.Load() != 0 {
		t.Errorf("%d tasks started after cancellation", started.Load())
	}
	for _, r := range got {
		if r != Cancelled {
			t.Errorf("result = %q, want %q", r, Cancelled)
		}
	}
}

func TestChannels_SharedBulkheadAcrossCalls(t *testing.T) {
	slots := NewBulkhead(2)
	var running, peak atomic.Int32
	task := func(context.Context, model.ChannelSettings) bool {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return true
	}
	failed := func(model.ChannelSettings, string) bool { return false }

	done := make(chan struct{})
	go func() {
		defer close(done)
		Channels(context.Background(), testLogger, slots, channels("a", "b", "c"), task, failed)
	}()
	Channels(context.Background(), testLogger, slots, channels("d", "e", "f"), task, failed)
	<-done

	if peak.Load() > 2 {
		t.Errorf("peak concurrency across calls = %d, want at most 2", peak.Load())
	}
}

func TestChannels_CancelledWhileWaitingForSlot(t *testing.T) {
	slots := NewBulkhead(1)
	if err := slots.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got := Channels(ctx, testLogger, slots, channels("a"),
		func(context.Context, model.ChannelSettings) string { return "ran" },
		func(_ model.ChannelSettings, reason string) string { return reason },
	)
	if len(got) != 1 || got[0] != Cancelled {
		t.Errorf("results = %v, want [%q]", got, Cancelled)
	}
}
