// Package manager orchestrates the channel adapters for a property. It
// maps room types into each channel's id space, fans pushes and fetches
// out to every enabled channel, normalizes reservations, and aggregates
// per-channel outcomes so that one channel's failure never aborts the
// others.
//
// Every adapter call runs under its own timeout, behind a per-(property,
// channel) circuit breaker, with transport failures retried by
// [channel.Retry].
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/fanout"
	"github.com/njoerd114/channelsync/internal/model"
)

const otelScope = "channelsync/manager"

// ConfigStore provides property configurations.
type ConfigStore interface {
	ChannelConfiguration(ctx context.Context, propertyID string) (model.ChannelConfiguration, error)
}

// ReservationSink persists normalized reservations into the system of
// record. It returns the stored record, which carries the local id.
type ReservationSink interface {
	UpsertReservation(ctx context.Context, r model.ChannelReservation) (model.ChannelReservation, error)
}

// Options tunes adapter call handling.
type Options struct {
	AdapterTimeout time.Duration
	MaxConcurrent  int
	RetryAttempts  int
	Breaker        BreakerSettings
	// ReservationWindowDays is how far ahead SyncAllChannels fetches.
	ReservationWindowDays int
}

func (o *Options) applyDefaults() {
	if o.AdapterTimeout <= 0 {
		o.AdapterTimeout = channel.DefaultTimeout
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = channel.DefaultMaxAttempts
	}
	if o.Breaker == (BreakerSettings{}) {
		o.Breaker = DefaultBreakerSettings()
	}
	if o.ReservationWindowDays <= 0 {
		o.ReservationWindowDays = 365
	}
}

// Manager is the channel manager. It is safe for concurrent use.
type Manager struct {
	registry *channel.Registry
	configs  ConfigStore
	sink     ReservationSink
	clock    clockwork.Clock
	opts     Options
	breakers *breakers
	slots    *semaphore.Weighted
	log      *slog.Logger
	tracer   trace.Tracer
}

// New creates a Manager. sink may be nil, in which case fetched
// reservations are returned but not persisted.
func New(registry *channel.Registry, configs ConfigStore, sink ReservationSink, clk clockwork.Clock, opts Options, logger *slog.Logger) *Manager {
	opts.applyDefaults()
	return &Manager{
		registry: registry,
		configs:  configs,
		sink:     sink,
		clock:    clk,
		opts:     opts,
		breakers: newBreakers(opts.Breaker, logger),
		slots:    fanout.NewBulkhead(opts.MaxConcurrent),
		log:      logger,
		tracer:   otel.Tracer(otelScope),
	}
}

// config loads and defaults a property configuration. This is the only
// failure the fan-out operations return as an error.
func (m *Manager) config(ctx context.Context, propertyID string) (model.ChannelConfiguration, error) {
	cfg, err := m.configs.ChannelConfiguration(ctx, propertyID)
	if err != nil {
		return model.ChannelConfiguration{}, fmt.Errorf("loading configuration for property %s: %w", propertyID, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (m *Manager) adapterFor(name string) (channel.Adapter, error) {
	a, ok := m.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q: %w", name, channel.ErrNotConfigured)
	}
	return a, nil
}

// call runs one adapter operation for a property's channel. Retryable
// failures trip the breaker; authentication and validation failures are
// returned without counting against the channel's health.
func (m *Manager) call(ctx context.Context, propertyID, channelName, op string, fn func(ctx context.Context) error) error {
	ctx, span := m.tracer.Start(ctx, "manager."+op, trace.WithAttributes(
		attribute.String("property.id", propertyID),
		attribute.String("channel.name", channelName),
	))
	defer span.End()

	cb := m.breakers.get(propertyID, channelName)
	attempts := 0
	err := channel.Retry(ctx, m.opts.RetryAttempts, func() error {
		attempts++
		var callErr error
		_, brErr := cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.AdapterTimeout)
			defer cancel()
			callErr = fn(callCtx)
			if channel.Retryable(callErr) {
				return nil, callErr
			}
			return nil, nil
		})
		if brErr != nil {
			return brErr
		}
		return callErr
	})

	span.SetAttributes(attribute.Int("call.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.log.Error("channel call failed", "property_id", propertyID, "channel", channelName, "op", op, "attempts", attempts, "error", err)
	}
	return err
}

// describe renders a channel error for result structs.
func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, channel.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, channel.ErrNotConfigured):
		return "channel not configured"
	case isBreakerRejection(err):
		return "channel unavailable: circuit open"
	default:
		return err.Error()
	}
}

func elapsedMS(start, end time.Time) int64 {
	return end.Sub(start).Milliseconds()
}
