package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/channelsync/internal/inventory"
	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/proplock"
	"github.com/njoerd114/channelsync/internal/telemetry"
)

const (
	otelScope          = "channelsync/sync"
	spanCycle          = "sync.cycle"
	spanProperty       = "sync.property"
	metricUpdates      = "channelsync.sync.inventory.updates"
	metricConflicts    = "channelsync.sync.conflicts"
	metricReservations = "channelsync.sync.reservations"
	metricRateDates    = "channelsync.sync.rate_dates"
	metricErrors       = "channelsync.sync.errors"
	metricSkipped      = "channelsync.sync.skipped"

	maxConcurrentProperties = 4
)

// Stats summarises one cycle across all properties.
type Stats struct {
	Properties       int
	Skipped          int
	InventoryUpdates int
	Conflicts        int
	Reservations     int
	RateDates        int
	Errors           int
}

func (s *Stats) add(o Stats) {
	s.Properties += o.Properties
	s.Skipped += o.Skipped
	s.InventoryUpdates += o.InventoryUpdates
	s.Conflicts += o.Conflicts
	s.Reservations += o.Reservations
	s.RateDates += o.RateDates
	s.Errors += o.Errors
}

// Engine runs distribution cycles. Create one with [NewEngine] and start it
// with [Engine.Run].
type Engine struct {
	properties   Properties
	inventory    InventorySyncer
	reservations ReservationSyncer
	rates        RateSyncer
	pollInterval time.Duration
	clock        clockwork.Clock
	log          *slog.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer          trace.Tracer
	cntUpdates      metric.Int64Counter
	cntConflicts    metric.Int64Counter
	cntReservations metric.Int64Counter
	cntRateDates    metric.Int64Counter
	cntErrors       metric.Int64Counter
	cntSkipped      metric.Int64Counter
}

// NewEngine creates an Engine. rates may be nil, which turns off the rate
// step for every property.
func NewEngine(properties Properties, inv InventorySyncer, reservations ReservationSyncer, rates RateSyncer, pollInterval time.Duration, clk clockwork.Clock, logger *slog.Logger) *Engine {
	meter := otel.Meter(otelScope)
	return &Engine{
		properties:   properties,
		inventory:    inv,
		reservations: reservations,
		rates:        rates,
		pollInterval: pollInterval,
		clock:        clk,
		log:          logger,
		lastRun:      make(map[string]time.Time),

		tracer:          otel.Tracer(otelScope),
		cntUpdates:      telemetry.Counter(meter, logger, metricUpdates, "Number of inventory updates pushed to channels"),
		cntConflicts:    telemetry.Counter(meter, logger, metricConflicts, "Number of inventory conflicts detected"),
		cntReservations: telemetry.Counter(meter, logger, metricReservations, "Number of reservations fetched from channels"),
		cntRateDates:    telemetry.Counter(meter, logger, metricRateDates, "Number of channel dates with pushed rates"),
		cntErrors:       telemetry.Counter(meter, logger, metricErrors, "Number of channel or property errors during sync"),
		cntSkipped:      telemetry.Counter(meter, logger, metricSkipped, "Number of properties skipped during sync"),
	}
}

// RunOnce runs one cycle for every active property and returns.
func (e *Engine) RunOnce(ctx context.Context) (Stats, error) {
	return e.cycle(ctx, true)
}

// Run starts the polling loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Run an immediate first pass.
	if _, err := e.cycle(ctx, true); err != nil {
		e.log.Error("initial sync cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := e.cycle(ctx, false); err != nil {
				e.log.Error("sync cycle failed", "error", err)
			}
		}
	}
}

// cycle syncs every property concurrently. Unless force is set, properties
// whose inventory_sync.frequency has not yet elapsed are left for a later
// tick.
func (e *Engine) cycle(ctx context.Context, force bool) (Stats, error) {
	ctx, span := e.tracer.Start(ctx, spanCycle)
	defer span.End()

	ids, err := e.properties.PropertyIDs(ctx)
	if err != nil {
		err = fmt.Errorf("listing properties: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		total Stats
		g     errgroup.Group
	)
	g.SetLimit(maxConcurrentProperties)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			st := e.syncProperty(ctx, id, force)
			mu.Lock()
			total.add(st)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.record(ctx, total)
	span.SetAttributes(
		attribute.Int("sync.properties", total.Properties),
		attribute.Int("sync.skipped", total.Skipped),
		attribute.Int("sync.inventory_updates", total.InventoryUpdates),
		attribute.Int("sync.conflicts", total.Conflicts),
		attribute.Int("sync.reservations", total.Reservations),
		attribute.Int("sync.rate_dates", total.RateDates),
		attribute.Int("sync.errors", total.Errors),
	)
	e.log.Info("sync cycle complete",
		"properties", total.Properties,
		"skipped", total.Skipped,
		"inventory_updates", total.InventoryUpdates,
		"conflicts", total.Conflicts,
		"reservations", total.Reservations,
		"rate_dates", total.RateDates,
		"errors", total.Errors,
	)
	return total, ctx.Err()
}

func (e *Engine) syncProperty(ctx context.Context, propertyID string, force bool) Stats {
	ctx, span := e.tracer.Start(ctx, spanProperty, trace.WithAttributes(attribute.String("property_id", propertyID)))
	defer span.End()

	log := e.log.With("property_id", propertyID)
	var st Stats

	cfg, err := e.properties.ChannelConfiguration(ctx, propertyID)
	if err != nil {
		log.Error("loading property configuration", "error", err)
		span.RecordError(err)
		st.Errors++
		return st
	}
	cfg.ApplyDefaults()
	if !cfg.IsActive() {
		log.Debug("property inactive, skipping")
		st.Skipped++
		return st
	}
	if !force && !e.due(propertyID, cfg.InventorySync.Frequency) {
		return st
	}

	results, err := e.inventory.Sync(ctx, propertyID, nil)
	switch {
	case errors.Is(err, inventory.ErrDisabled):
		log.Debug("inventory sync disabled")
	case errors.Is(err, proplock.ErrBusy):
		log.Info("property busy, skipping this cycle")
		st.Skipped++
		return st
	case err != nil:
		log.Error("inventory sync failed", "error", err)
		span.RecordError(err)
		st.Errors++
	}
	st.Properties++
	for _, r := range results {
		st.InventoryUpdates += r.Processed.Updates
		st.Conflicts += len(r.Conflicts)
		if !r.Success {
			st.Errors++
		}
	}

	channels, err := e.reservations.SyncAllChannels(ctx, propertyID)
	if err != nil {
		log.Error("reservation sync failed", "error", err)
		span.RecordError(err)
		st.Errors++
	}
	for _, r := range channels {
		st.Reservations += r.ReservationsFetched
		if !r.Success {
			st.Errors++
		}
	}

	if e.rates != nil && cfg.RateSync.Enabled && cfg.RateSync.BaseRateSource == model.BaseRateSourceLocal {
		e.syncRates(ctx, log, cfg, &st)
	}

	e.markRun(propertyID)
	return st
}

func (e *Engine) syncRates(ctx context.Context, log *slog.Logger, cfg model.ChannelConfiguration, st *Stats) {
	window := model.NewDateRange(e.clock.Now(), cfg.InventorySync.WindowDays)
	inputs, err := e.rates.LocalInputs(ctx, cfg.PropertyID, window)
	if err != nil {
		log.Error("loading base rates", "error", err)
		st.Errors++
		return
	}
	if len(inputs) == 0 {
		log.Debug("no local base rates in window", "window", window.String())
		return
	}
	results, err := e.rates.Sync(ctx, cfg.PropertyID, inputs)
	if err != nil {
		log.Error("rate sync failed", "error", err)
		st.Errors++
		return
	}
	for _, r := range results {
		st.RateDates += len(r.UpdatedDates)
		if !r.Success {
			st.Errors++
		}
	}
}

func (e *Engine) due(propertyID string, every time.Duration) bool {
	if every <= 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastRun[propertyID]
	return !ok || e.clock.Now().Sub(last) >= every
}

func (e *Engine) markRun(propertyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRun[propertyID] = e.clock.Now()
}

// record adds the cycle totals to the OTel counters.
func (e *Engine) record(ctx context.Context, st Stats) {
	add := func(c metric.Int64Counter, n int) {
		if n > 0 {
			c.Add(ctx, int64(n))
		}
	}
	add(e.cntUpdates, st.InventoryUpdates)
	add(e.cntConflicts, st.Conflicts)
	add(e.cntReservations, st.Reservations)
	add(e.cntRateDates, st.RateDates)
	add(e.cntErrors, st.Errors)
	add(e.cntSkipped, st.Skipped)
}
