package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestSetup_RequiresEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty endpoint, got nil")
	}
	if shutdown == nil {
		t.Fatal("shutdown must be non-nil even on error")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestCounter_NoopMeter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := Counter(noop.NewMeterProvider().Meter("test"), logger, "channelsync.test", "test counter")
	if c == nil {
		t.Fatal("Counter returned nil")
	}
	c.Add(context.Background(), 1)
}
