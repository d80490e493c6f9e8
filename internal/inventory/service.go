// Package inventory runs inventory sync cycles for a property: it derives
// per-channel availability from the master view, pushes or pulls it
// according to the configured strategy, and records conflicts where the
// master and a channel disagree.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/demand"
	"github.com/njoerd114/channelsync/internal/fanout"
	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/proplock"
)

var (
	// ErrDisabled is returned by Sync when the property has inventory sync
	// turned off.
	ErrDisabled = errors.New("inventory sync disabled")
	// ErrConflictClosed is returned when resolving a conflict that is no
	// longer pending.
	ErrConflictClosed = errors.New("conflict is no longer pending")
)

// maxConcurrentChannels bounds how many channels one cycle works on at once.
const maxConcurrentChannels = 4

// Service runs inventory cycles and manages allotment rules and conflicts.
type Service struct {
	store    Store
	channels Channels
	demand   demand.Signal
	locks    *proplock.Locks
	clock    clockwork.Clock
	slots    *semaphore.Weighted
	log      *slog.Logger
}

// New creates a Service. signal may be nil, in which case demand-based
// allotments see zero demand. locks is shared with any other service that
// must not run concurrently with inventory cycles for the same property.
func New(store Store, channels Channels, signal demand.Signal, locks *proplock.Locks, clk clockwork.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = proplock.New()
	}
	return &Service{
		store:    store,
		channels: channels,
		demand:   signal,
		locks:    locks,
		clock:    clk,
		slots:    fanout.NewBulkhead(maxConcurrentChannels),
		log:      logger,
	}
}

// Sync runs one inventory cycle for the property over window, or over the
// configured window starting today when window is nil. It returns one
// result per active channel in configuration order. Channel failures are
// reported in the results; the returned error covers only failures that
// prevent the cycle from starting.
func (s *Service) Sync(ctx context.Context, propertyID string, window *model.DateRange) ([]model.InventorySyncResult, error) {
	unlock, err := s.locks.TryLock(propertyID)
	if err != nil {
		return nil, fmt.Errorf("inventory sync for %s: %w", propertyID, err)
	}
	defer unlock()

	cfg, err := s.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if !cfg.InventorySync.Enabled {
		return nil, fmt.Errorf("property %s: %w", propertyID, ErrDisabled)
	}

	win := model.NewDateRange(model.Day(s.clock.Now()), cfg.InventorySync.WindowDays)
	if window != nil {
		win = *window
	}
	if err := win.Validate(); err != nil {
		return nil, err
	}

	cyc, err := s.newCycle(ctx, cfg, win)
	if err != nil {
		return nil, fmt.Errorf("inventory sync for %s: %w", propertyID, err)
	}

	started := s.clock.Now()
	results := fanout.Channels(ctx, s.log, s.slots, cyc.targets(), cyc.run,
		func(ch model.ChannelSettings, reason string) model.InventorySyncResult {
			return cyc.failed(ch, reason)
		})
	if cfg.InventorySync.Strategy == model.StrategyPullOnly {
		cyc.applyPulls(ctx, results)
	}

	var updates, conflicts, failed int
	for i := range results {
		r := results[i]
		updates += r.Processed.Updates
		conflicts += r.Processed.Conflicts
		if !r.Success {
			failed++
		}
		entry := model.HistoryEntry{
			PropertyID: propertyID,
			Kind:       model.HistoryInventory,
			Inventory:  &r,
			RecordedAt: s.clock.Now(),
		}
		if err := s.store.AppendHistory(ctx, entry); err != nil {
			s.log.Warn("recording sync history", "property_id", propertyID, "channel", r.ChannelName, "error", err)
		}
	}

	s.log.Info("inventory sync complete",
		"property_id", propertyID,
		"strategy", cfg.InventorySync.Strategy,
		"window", win.String(),
		"channels", len(results),
		"updates", updates,
		"conflicts", conflicts,
		"failed", failed,
		"took", s.clock.Now().Sub(started).Round(time.Millisecond),
	)
	return results, nil
}

// GetPendingConflicts lists the property's unresolved conflicts.
func (s *Service) GetPendingConflicts(ctx context.Context, propertyID string) ([]model.InventoryConflict, error) {
	return s.store.Conflicts(ctx, propertyID, model.ConflictPending)
}

// GetSyncHistory returns the property's most recent inventory results,
// newest first.
func (s *Service) GetSyncHistory(ctx context.Context, propertyID string, limit int) ([]model.InventorySyncResult, error) {
	entries, err := s.store.History(ctx, propertyID, model.HistoryInventory, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.InventorySyncResult, 0, len(entries))
	for _, e := range entries {
		if e.Inventory != nil {
			out = append(out, *e.Inventory)
		}
	}
	return out, nil
}

// ChannelAvailability returns the availability the channel may sell per
// room type and date key, derived from the master view the same way a sync
// cycle derives it. Slots without a master value are absent.
func (s *Service) ChannelAvailability(ctx context.Context, propertyID, channelName string, window model.DateRange) (map[string]map[string]int, error) {
	cfg, err := s.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	ch, ok := cfg.Channel(channelName)
	if !ok {
		return nil, fmt.Errorf("property %s has no channel %q", propertyID, channelName)
	}
	cyc, err := s.newCycle(ctx, cfg, window)
	if err != nil {
		return nil, err
	}
	if cyc.masterErr != nil {
		return nil, fmt.Errorf("reading master inventory from %s: %w", cyc.masterName, cyc.masterErr)
	}
	out := make(map[string]map[string]int, len(cyc.roomTypes))
	for _, room := range cyc.roomTypes {
		byDate := make(map[string]int)
		for _, day := range window.Days() {
			if m, ok := cyc.master.Get(room, day); ok {
				byDate[model.DateKey(day)], _ = cyc.derive(ctx, ch, room, day, m.Availability)
			}
		}
		out[room] = byDate
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

// targets returns the channels a cycle works on. A channel acting as the
// master source is read, never written.
func (c *cycle) targets() []model.ChannelSettings {
	var out []model.ChannelSettings
	for _, ch := range c.cfg.ActiveChannels() {
		if ch.Name != c.masterName {
			out = append(out, ch)
		}
	}
	return out
}

func (c *cycle) failed(ch model.ChannelSettings, reason string) model.InventorySyncResult {
	return model.InventorySyncResult{
		PropertyID:   c.cfg.PropertyID,
		ChannelName:  ch.Name,
		Strategy:     c.cfg.InventorySync.Strategy,
		Processed:    model.Processed{Errors: 1},
		Errors:       []string{reason},
		LastSyncTime: c.s.clock.Now(),
	}
}

func (c *cycle) run(ctx context.Context, ch model.ChannelSettings) model.InventorySyncResult {
	start := c.s.clock.Now()
	strategy := c.cfg.InventorySync.Strategy
	res := model.InventorySyncResult{
		PropertyID:  c.cfg.PropertyID,
		ChannelName: ch.Name,
		Strategy:    strategy,
	}

	switch {
	case strategy == model.StrategyPullOnly:
		c.pull(ctx, ch, &res)
	case c.masterErr != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("master inventory unavailable from %s: %v", c.masterName, c.masterErr))
		res.NeedsReauth = channel.IsAuth(c.masterErr)
	case strategy == model.StrategyPushOnly:
		c.push(ctx, ch, c.updates(ctx, ch), &res)
	default:
		c.reconcile(ctx, ch, &res)
	}

	res.Processed.Conflicts = len(res.Conflicts)
	res.Processed.Errors = len(res.Errors)
	res.Success = len(res.Errors) == 0
	res.LastSyncTime = c.s.clock.Now()
	res.ExecutionTime = res.LastSyncTime.Sub(start).Milliseconds()
	return res
}

func (c *cycle) push(ctx context.Context, ch model.ChannelSettings, updates []model.InventoryUpdate, res *model.InventorySyncResult) {
	if len(updates) == 0 {
		return
	}
	pr := c.s.channels.PushToChannel(ctx, c.cfg.PropertyID, ch.Name, updates)
	res.Processed.Updates += pr.Pushed
	res.Errors = append(res.Errors, pr.Errors...)
	res.NeedsReauth = res.NeedsReauth || pr.NeedsReauth
	if len(pr.Skipped) > 0 {
		c.s.log.Debug("room types without mapping", "property_id", c.cfg.PropertyID, "channel", ch.Name, "room_types", pr.Skipped)
	}
}

// fetch reads the channel's current availability for every room type it maps.
func (c *cycle) fetch(ctx context.Context, ch model.ChannelSettings, res *model.InventorySyncResult) ([]model.InventorySnapshot, bool) {
	rooms := mappedRoomTypes(ch)
	if len(rooms) == 0 {
		return nil, true
	}
	snaps, err := c.s.channels.FetchChannelInventory(ctx, c.cfg.PropertyID, ch.Name, rooms, c.window)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.NeedsReauth = channel.IsAuth(err)
		return nil, false
	}
	return snaps, true
}

// pull fetches the channel's availability for [cycle.applyPulls].
func (c *cycle) pull(ctx context.Context, ch model.ChannelSettings, res *model.InventorySyncResult) {
	snaps, ok := c.fetch(ctx, ch, res)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulled[ch.Name] = snaps
}

// applyPulls writes pulled availability into local inventory one channel at
// a time in result order. A slot reported by several channels keeps the
// first channel's value.
func (c *cycle) applyPulls(ctx context.Context, results []model.InventorySyncResult) {
	written := make(map[string]bool)
	now := c.s.clock.Now()
	for i := range results {
		res := &results[i]
		for _, snap := range c.pulled[res.ChannelName] {
			key := localKey(snap.RoomTypeID, snap.Date)
			if written[key] {
				continue
			}
			if err := c.s.store.SetLocalAvailability(ctx, c.cfg.PropertyID, snap.RoomTypeID, snap.Date, snap.Availability, now); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", snap.RoomTypeID, model.DateKey(snap.Date), err))
				continue
			}
			written[key] = true
			res.Processed.Updates++
		}
		res.Processed.Errors = len(res.Errors)
		res.Success = len(res.Errors) == 0
	}
}
