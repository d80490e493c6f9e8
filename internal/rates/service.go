// Package rates computes channel rates from base rates through markup,
// dynamic pricing, seasonal, day-of-week and declarative pricing rules, and
// pushes them with availability bounded by the inventory derivation.
package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/demand"
	"github.com/njoerd114/channelsync/internal/fanout"
	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/proplock"
)

// ErrDisabled is returned by Sync when the property has rate sync turned off.
var ErrDisabled = errors.New("rate sync disabled")

const maxConcurrentChannels = 4

// Service runs rate cycles and previews, and manages pricing rules.
type Service struct {
	store        Store
	channels     Channels
	availability Availability
	demand       demand.Signal
	locks        *proplock.Locks
	clock        clockwork.Clock
	slots        *semaphore.Weighted
	log          *slog.Logger
}

// New creates a Service. signal may be nil, which disables demand pricing.
// locks should be the same set the inventory service uses so a property
// never runs both cycles at once.
func New(store Store, channels Channels, availability Availability, signal demand.Signal, locks *proplock.Locks, clk clockwork.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = proplock.New()
	}
	return &Service{
		store:        store,
		channels:     channels,
		availability: availability,
		demand:       signal,
		locks:        locks,
		clock:        clk,
		slots:        fanout.NewBulkhead(maxConcurrentChannels),
		log:          logger,
	}
}

// Sync prices every input for each active channel and pushes the result.
// One result per channel is returned in configuration order.
func (s *Service) Sync(ctx context.Context, propertyID string, inputs []model.RateInput) ([]model.RateSyncResult, error) {
	unlock, err := s.locks.TryLock(propertyID)
	if err != nil {
		return nil, fmt.Errorf("rate sync for %s: %w", propertyID, err)
	}
	defer unlock()

	cfg, err := s.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if !cfg.RateSync.Enabled {
		return nil, fmt.Errorf("property %s: %w", propertyID, ErrDisabled)
	}
	span, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}
	p, err := s.newPricer(ctx, cfg, span)
	if err != nil {
		return nil, fmt.Errorf("rate sync for %s: %w", propertyID, err)
	}

	started := s.clock.Now()
	results := fanout.Channels(ctx, s.log, s.slots, cfg.ActiveChannels(),
		func(ctx context.Context, ch model.ChannelSettings) model.RateSyncResult {
			return s.syncChannel(ctx, p, ch, inputs, span)
		},
		func(ch model.ChannelSettings, reason string) model.RateSyncResult {
			return model.RateSyncResult{PropertyID: propertyID, ChannelName: ch.Name, Errors: []string{reason}, LastSyncTime: s.clock.Now()}
		})

	var dates, failed int
	for i := range results {
		r := results[i]
		dates += len(r.UpdatedDates)
		if !r.Success {
			failed++
		}
		entry := model.HistoryEntry{PropertyID: propertyID, Kind: model.HistoryRate, Rate: &r, RecordedAt: s.clock.Now()}
		if err := s.store.AppendHistory(ctx, entry); err != nil {
			s.log.Warn("recording sync history", "property_id", propertyID, "channel", r.ChannelName, "error", err)
		}
	}
	s.log.Info("rate sync complete",
		"property_id", propertyID,
		"inputs", len(inputs),
		"channels", len(results),
		"dates_updated", dates,
		"failed", failed,
		"took", s.clock.Now().Sub(started).Round(time.Millisecond),
	)
	return results, nil
}

func (s *Service) syncChannel(ctx context.Context, p *pricer, ch model.ChannelSettings, inputs []model.RateInput, span model.DateRange) model.RateSyncResult {
	start := s.clock.Now()
	res := model.RateSyncResult{PropertyID: p.cfg.PropertyID, ChannelName: ch.Name}
	finish := func() model.RateSyncResult {
		res.Success = len(res.Errors) == 0
		res.LastSyncTime = s.clock.Now()
		res.ExecutionTime = res.LastSyncTime.Sub(start).Milliseconds()
		return res
	}

	var derived map[string]map[string]int
	if s.availability != nil {
		var err error
		derived, err = s.availability.ChannelAvailability(ctx, p.cfg.PropertyID, ch.Name, span)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("deriving availability: %v", err))
			res.NeedsReauth = channel.IsAuth(err)
			return finish()
		}
	}

	var updates []model.InventoryUpdate
	for _, in := range inputs {
		if _, ok := ch.ChannelRateID(in.RoomTypeID); !ok {
			continue
		}
		for _, day := range in.DateRange.Days() {
			rate, _ := p.price(ctx, ch, in.RoomTypeID, day, in.BaseRate)
			// A slot with no derived value is closed.
			avail := 0
			if v, ok := derived[in.RoomTypeID][model.DateKey(day)]; ok {
				avail = min(in.Availability, v)
			}
			updates = append(updates, model.InventoryUpdate{
				RoomTypeID:   in.RoomTypeID,
				Date:         day,
				Availability: max(avail, 0),
				Rate:         rate,
				Currency:     p.currency(in),
			})
		}
	}
	if len(updates) == 0 {
		return finish()
	}

	pr := s.channels.PushToChannel(ctx, p.cfg.PropertyID, ch.Name, updates)
	res.Errors = append(res.Errors, pr.Errors...)
	res.NeedsReauth = pr.NeedsReauth
	if pr.Pushed > 0 {
		res.UpdatedDates = acceptedDates(updates, pr.Rejected)
	}
	return finish()
}

// PreviewRateSync runs the pipeline for every active channel without
// pushing or recording anything. Room types a channel does not map are left
// out, as in [Service.Sync]. Previews are ordered by channel, then input,
// then date.
func (s *Service) PreviewRateSync(ctx context.Context, propertyID string, inputs []model.RateInput) ([]RatePreview, error) {
	cfg, err := s.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	span, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}
	p, err := s.newPricer(ctx, cfg, span)
	if err != nil {
		return nil, err
	}

	var out []RatePreview
	for _, ch := range cfg.ActiveChannels() {
		for _, in := range inputs {
			if _, ok := ch.ChannelRateID(in.RoomTypeID); !ok {
				continue
			}
			for _, day := range in.DateRange.Days() {
				final, steps := p.price(ctx, ch, in.RoomTypeID, day, in.BaseRate)
				out = append(out, RatePreview{
					ChannelName:  ch.Name,
					RoomTypeID:   in.RoomTypeID,
					Date:         day,
					Currency:     p.currency(in),
					OriginalRate: in.BaseRate,
					Steps:        steps,
					FinalRate:    final,
				})
			}
		}
	}
	return out, nil
}

// LocalInputs builds one rate input per room type and day from the base
// rates held in local inventory. Rows without a base rate are left out.
func (s *Service) LocalInputs(ctx context.Context, propertyID string, window model.DateRange) ([]model.RateInput, error) {
	rows, err := s.store.LocalInventory(ctx, propertyID, nil, window)
	if err != nil {
		return nil, fmt.Errorf("loading base rates for %s: %w", propertyID, err)
	}
	var out []model.RateInput
	for _, r := range rows {
		if !r.BaseRate.IsPositive() {
			continue
		}
		out = append(out, model.RateInput{
			RoomTypeID:   r.RoomTypeID,
			DateRange:    model.NewDateRange(r.Date, 1),
			BaseRate:     r.BaseRate,
			Currency:     r.Currency,
			Availability: r.Available,
		})
	}
	slices.SortFunc(out, func(a, b model.RateInput) int {
		if c := strings.Compare(a.RoomTypeID, b.RoomTypeID); c != 0 {
			return c
		}
		return a.DateRange.Start.Compare(b.DateRange.Start)
	})
	return out, nil
}

// GetSyncHistory returns the property's most recent rate results, newest
// first.
func (s *Service) GetSyncHistory(ctx context.Context, propertyID string, limit int) ([]model.RateSyncResult, error) {
	entries, err := s.store.History(ctx, propertyID, model.HistoryRate, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.RateSyncResult, 0, len(entries))
	for _, e := range entries {
		if e.Rate != nil {
			out = append(out, *e.Rate)
		}
	}
	return out, nil
}

func (s *Service) config(ctx context.Context, propertyID string) (model.ChannelConfiguration, error) {
	cfg, err := s.store.ChannelConfiguration(ctx, propertyID)
	if err != nil {
		return model.ChannelConfiguration{}, fmt.Errorf("loading configuration for %s: %w", propertyID, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (p *pricer) currency(in model.RateInput) string {
	if in.Currency != "" {
		return in.Currency
	}
	return p.cfg.RateSync.Currency
}

// validateInputs rejects malformed inputs and returns the span covering all
// of them.
func validateInputs(inputs []model.RateInput) (model.DateRange, error) {
	if len(inputs) == 0 {
		return model.DateRange{}, fmt.Errorf("no rate inputs")
	}
	var span model.DateRange
	for i, in := range inputs {
		if in.RoomTypeID == "" {
			return model.DateRange{}, fmt.Errorf("rate input %d: room_type_id is required", i)
		}
		if err := in.DateRange.Validate(); err != nil {
			return model.DateRange{}, fmt.Errorf("rate input %d: %w", i, err)
		}
		if in.BaseRate.IsNegative() {
			return model.DateRange{}, fmt.Errorf("rate input %d: base_rate must not be negative", i)
		}
		if i == 0 || in.DateRange.Start.Before(span.Start) {
			span.Start = model.Day(in.DateRange.Start)
		}
		if i == 0 || in.DateRange.End.After(span.End) {
			span.End = model.Day(in.DateRange.End)
		}
	}
	return span, nil
}

// acceptedDates lists the days of updates, ascending, leaving out any day
// the channel rejected an item for.
func acceptedDates(updates []model.InventoryUpdate, rejected []time.Time) []time.Time {
	seen := make(map[string]bool)
	for _, d := range rejected {
		seen[model.DateKey(d)] = true
	}
	var out []time.Time
	for _, u := range updates {
		if k := model.DateKey(u.Date); !seen[k] {
			seen[k] = true
			out = append(out, model.Day(u.Date))
		}
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}
