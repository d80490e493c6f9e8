package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/fanout"
	"github.com/njoerd114/channelsync/internal/model"
)

// ChannelPushResult is one channel's outcome of a push.
type ChannelPushResult struct {
	ChannelName string
	Success     bool
	// Pushed counts updates the channel accepted.
	Pushed int
	// Rejected lists the days of updates the channel refused.
	Rejected []time.Time
	// Skipped lists room types without a mapping for this channel.
	Skipped     []string
	Errors      []string
	NeedsReauth bool
	Elapsed     time.Duration
}

// UpdateResult aggregates a fan-out push. Success is true when no channel
// reported an error.
type UpdateResult struct {
	Success  bool
	Errors   map[string][]string
	Channels []ChannelPushResult
}

// mapUpdates translates local room-type ids into the channel's id space.
// Updates carrying a rate use the rate mapping. Room types without a mapping
// are skipped and reported once each.
func mapUpdates(ch model.ChannelSettings, updates []model.InventoryUpdate) ([]model.InventoryUpdate, []string) {
	out := make([]model.InventoryUpdate, 0, len(updates))
	var skipped []string
	seen := make(map[string]bool)
	for _, u := range updates {
		id, ok := ch.ChannelRoomID(u.RoomTypeID)
		if u.HasRate() {
			id, ok = ch.ChannelRateID(u.RoomTypeID)
		}
		if !ok {
			if !seen[u.RoomTypeID] {
				seen[u.RoomTypeID] = true
				skipped = append(skipped, u.RoomTypeID)
			}
			continue
		}
		mapped := u
		mapped.RoomTypeID = id
		if mapped.Availability < 0 {
			mapped.Availability = 0
		}
		out = append(out, mapped)
	}
	return out, skipped
}

// UpdateInventoryAcrossChannels pushes the same updates to every active
// channel of the property.
func (m *Manager) UpdateInventoryAcrossChannels(ctx context.Context, propertyID string, updates []model.InventoryUpdate) (UpdateResult, error) {
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return UpdateResult{}, err
	}
	results := fanout.Channels(ctx, m.log, m.slots, cfg.ActiveChannels(),
		func(ctx context.Context, ch model.ChannelSettings) ChannelPushResult {
			return m.push(ctx, propertyID, ch, updates)
		},
		func(ch model.ChannelSettings, reason string) ChannelPushResult {
			return ChannelPushResult{ChannelName: ch.Name, Errors: []string{reason}}
		},
	)

	agg := UpdateResult{Success: true, Errors: make(map[string][]string), Channels: results}
	for _, r := range results {
		if len(r.Errors) > 0 {
			agg.Success = false
			agg.Errors[r.ChannelName] = r.Errors
		}
	}
	return agg, nil
}

// PushToChannel pushes updates to one channel. The inventory service uses
// it because each channel gets its own derived availability.
func (m *Manager) PushToChannel(ctx context.Context, propertyID, channelName string, updates []model.InventoryUpdate) ChannelPushResult {
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return ChannelPushResult{ChannelName: channelName, Errors: []string{err.Error()}}
	}
	ch, ok := cfg.Channel(channelName)
	if !ok || !ch.Enabled {
		return ChannelPushResult{ChannelName: channelName, Errors: []string{describe(channel.ErrNotConfigured)}}
	}
	return m.push(ctx, propertyID, ch, updates)
}

func (m *Manager) push(ctx context.Context, propertyID string, ch model.ChannelSettings, updates []model.InventoryUpdate) (res ChannelPushResult) {
	start := m.clock.Now()
	res.ChannelName = ch.Name
	defer func() { res.Elapsed = m.clock.Now().Sub(start) }()

	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		res.Errors = []string{describe(err)}
		return res
	}
	mapped, skipped := mapUpdates(ch, updates)
	res.Skipped = skipped
	if len(mapped) == 0 {
		res.Success = true
		return res
	}

	var pr channel.PushResult
	err = m.call(ctx, propertyID, ch.Name, "push", func(ctx context.Context) error {
		var err error
		pr, err = adapter.PushInventoryAndRates(ctx, ch.Credentials, mapped)
		return err
	})
	if err != nil {
		res.Errors = []string{describe(err)}
		res.NeedsReauth = channel.IsAuth(err)
		return res
	}
	res.Pushed = pr.Accepted
	res.Errors = pr.Errors
	res.Rejected = pr.Rejected
	res.Success = len(pr.Errors) == 0
	return res
}

// FetchChannelInventory reads a channel's inventory for the given local
// room types and maps the result back to local ids. Snapshots for channel
// rooms without a local mapping are dropped.
func (m *Manager) FetchChannelInventory(ctx context.Context, propertyID, channelName string, roomTypeIDs []string, window model.DateRange) ([]model.InventorySnapshot, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	ch, ok := cfg.Channel(channelName)
	if !ok || !ch.Enabled {
		return nil, fmt.Errorf("channel %s: %w", channelName, channel.ErrNotConfigured)
	}
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return nil, err
	}

	remote := make([]string, 0, len(roomTypeIDs))
	for _, id := range roomTypeIDs {
		if rid, ok := ch.ChannelRoomID(id); ok {
			remote = append(remote, rid)
		}
	}
	if len(remote) == 0 {
		return nil, nil
	}

	var snaps []model.InventorySnapshot
	err = m.call(ctx, propertyID, ch.Name, "fetch_inventory", func(ctx context.Context) error {
		var err error
		snaps, err = adapter.FetchInventory(ctx, ch.Credentials, remote, window)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.InventorySnapshot, 0, len(snaps))
	for _, s := range snaps {
		local, ok := ch.LocalRoomType(s.RoomTypeID)
		if !ok {
			m.log.Warn("dropping snapshot for unmapped channel room", "channel", ch.Name, "channel_room_id", s.RoomTypeID)
			continue
		}
		s.RoomTypeID = local
		s.Date = model.Day(s.Date)
		out = append(out, s)
	}
	return out, nil
}
