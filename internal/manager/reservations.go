package manager

import (
	"context"
	"fmt"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/fanout"
	"github.com/njoerd114/channelsync/internal/model"
)

// ActionResult is the outcome of a single reservation action.
type ActionResult struct {
	Success     bool
	Error       string
	NeedsReauth bool
}

func actionResult(err error) ActionResult {
	if err != nil {
		return ActionResult{Error: describe(err), NeedsReauth: channel.IsAuth(err)}
	}
	return ActionResult{Success: true}
}

// ReservationBatch is the fan-in of reservations from every enabled channel,
// concatenated in channel order. Errors is keyed by channel name.
type ReservationBatch struct {
	Reservations []model.ChannelReservation
	Errors       map[string][]string
}

type channelFetch struct {
	reservations []model.ChannelReservation
	errors       []string
	needsReauth  bool
}

// fetchNormalized fetches one channel's reservations and normalizes them.
// Payloads that fail normalization are reported and skipped.
func (m *Manager) fetchNormalized(ctx context.Context, propertyID string, ch model.ChannelSettings, window *model.DateRange) channelFetch {
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return channelFetch{errors: []string{describe(err)}}
	}
	var raw []channel.RawReservation
	err = m.call(ctx, propertyID, ch.Name, "fetch_reservations", func(ctx context.Context) error {
		var err error
		raw, err = adapter.FetchReservations(ctx, ch.Credentials, window)
		return err
	})
	if err != nil {
		return channelFetch{errors: []string{describe(err)}, needsReauth: channel.IsAuth(err)}
	}

	var out channelFetch
	for _, r := range raw {
		res, err := r.Normalize(propertyID)
		if err != nil {
			out.errors = append(out.errors, fmt.Sprintf("normalizing reservation: %v", err))
			continue
		}
		res.ChannelName = ch.Name
		if local, ok := ch.LocalRoomType(res.RoomDetails.RoomTypeID); ok {
			res.RoomDetails.RoomTypeID = local
		} else {
			m.log.Warn("reservation for unmapped channel room", "channel", ch.Name, "channel_room_id", res.RoomDetails.RoomTypeID, "reservation", res.ChannelReservationID)
		}
		out.reservations = append(out.reservations, res)
	}
	return out
}

// FetchAllReservations fetches and normalizes reservations from every
// enabled channel of the property without persisting them.
func (m *Manager) FetchAllReservations(ctx context.Context, propertyID string, window *model.DateRange) (ReservationBatch, error) {
	if window != nil {
		if err := window.Validate(); err != nil {
			return ReservationBatch{}, err
		}
	}
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return ReservationBatch{}, err
	}
	channels := cfg.EnabledChannels()
	fetched := fanout.Channels(ctx, m.log, m.slots, channels,
		func(ctx context.Context, ch model.ChannelSettings) channelFetch {
			return m.fetchNormalized(ctx, propertyID, ch, window)
		},
		func(_ model.ChannelSettings, reason string) channelFetch {
			return channelFetch{errors: []string{reason}}
		},
	)

	batch := ReservationBatch{Errors: make(map[string][]string)}
	for i, f := range fetched {
		batch.Reservations = append(batch.Reservations, f.reservations...)
		if len(f.errors) > 0 {
			batch.Errors[channels[i].Name] = f.errors
		}
	}
	return batch, nil
}

// SyncAllChannels pulls reservations from every active channel over the
// reservation window, auto-confirms pending reservations on channels with
// auto_accept, and hands the normalized records to the reservation sink.
func (m *Manager) SyncAllChannels(ctx context.Context, propertyID string) ([]model.ChannelSyncResult, error) {
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	window := model.NewDateRange(m.clock.Now(), m.opts.ReservationWindowDays)

	return fanout.Channels(ctx, m.log, m.slots, cfg.ActiveChannels(),
		func(ctx context.Context, ch model.ChannelSettings) model.ChannelSyncResult {
			return m.syncChannel(ctx, propertyID, ch, window)
		},
		func(ch model.ChannelSettings, reason string) model.ChannelSyncResult {
			return model.ChannelSyncResult{ChannelName: ch.Name, Errors: []string{reason}, LastSyncTime: m.clock.Now()}
		},
	), nil
}

func (m *Manager) syncChannel(ctx context.Context, propertyID string, ch model.ChannelSettings, window model.DateRange) model.ChannelSyncResult {
	start := m.clock.Now()
	f := m.fetchNormalized(ctx, propertyID, ch, &window)
	res := model.ChannelSyncResult{
		ChannelName:         ch.Name,
		ReservationsFetched: len(f.reservations),
		Errors:              f.errors,
		NeedsReauth:         f.needsReauth,
	}

	for _, r := range f.reservations {
		if ch.AutoAccept && r.Status == model.ReservationPending {
			if err := m.confirm(ctx, propertyID, ch, r.ChannelReservationID); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("auto-accepting %s: %s", r.ChannelReservationID, describe(err)))
				res.NeedsReauth = res.NeedsReauth || channel.IsAuth(err)
			} else {
				r.Status = model.ReservationConfirmed
				res.ReservationsConfirmed++
			}
		}
		if m.sink == nil {
			continue
		}
		if _, err := m.sink.UpsertReservation(ctx, r); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("storing %s: %v", r.ChannelReservationID, err))
		}
	}

	res.Success = len(res.Errors) == 0
	res.LastSyncTime = m.clock.Now()
	res.ExecutionTime = elapsedMS(start, res.LastSyncTime)
	m.log.Info("channel reservations synced", "property_id", propertyID, "channel", ch.Name,
		"fetched", res.ReservationsFetched, "confirmed", res.ReservationsConfirmed, "errors", len(res.Errors))
	return res
}

// enabledChannel resolves a channel for a single action.
func (m *Manager) enabledChannel(ctx context.Context, propertyID, channelName string) (model.ChannelSettings, error) {
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return model.ChannelSettings{}, err
	}
	ch, ok := cfg.Channel(channelName)
	if !ok || !ch.Enabled {
		return model.ChannelSettings{}, channel.ErrNotConfigured
	}
	return ch, nil
}

func (m *Manager) confirm(ctx context.Context, propertyID string, ch model.ChannelSettings, reservationID string) error {
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return err
	}
	return m.call(ctx, propertyID, ch.Name, "confirm", func(ctx context.Context) error {
		return adapter.ConfirmReservation(ctx, ch.Credentials, reservationID)
	})
}

// ConfirmReservation confirms a reservation on its channel. An unknown or
// disabled channel yields "channel not configured".
func (m *Manager) ConfirmReservation(ctx context.Context, channelName, reservationID, propertyID string) ActionResult {
	ch, err := m.enabledChannel(ctx, propertyID, channelName)
	if err != nil {
		return actionResult(err)
	}
	return actionResult(m.confirm(ctx, propertyID, ch, reservationID))
}

// DeclineReservation declines a pending reservation or cancels a confirmed
// one, whichever the channel requires.
func (m *Manager) DeclineReservation(ctx context.Context, channelName, reservationID, propertyID, reason string) ActionResult {
	ch, err := m.enabledChannel(ctx, propertyID, channelName)
	if err != nil {
		return actionResult(err)
	}
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return actionResult(err)
	}
	return actionResult(m.call(ctx, propertyID, ch.Name, "decline", func(ctx context.Context) error {
		return adapter.DeclineOrCancel(ctx, ch.Credentials, reservationID, reason)
	}))
}

// SendGuestMessage posts a message to a reservation's guest thread.
func (m *Manager) SendGuestMessage(ctx context.Context, channelName, reservationID, propertyID, body string) ActionResult {
	ch, err := m.enabledChannel(ctx, propertyID, channelName)
	if err != nil {
		return actionResult(err)
	}
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return actionResult(err)
	}
	return actionResult(m.call(ctx, propertyID, ch.Name, "send_message", func(ctx context.Context) error {
		return adapter.SendMessage(ctx, ch.Credentials, reservationID, body)
	}))
}

// GuestMessages reads a reservation's guest thread.
func (m *Manager) GuestMessages(ctx context.Context, channelName, reservationID, propertyID string) ([]model.GuestMessage, error) {
	ch, err := m.enabledChannel(ctx, propertyID, channelName)
	if err != nil {
		return nil, err
	}
	adapter, err := m.adapterFor(ch.Name)
	if err != nil {
		return nil, err
	}
	var msgs []model.GuestMessage
	err = m.call(ctx, propertyID, ch.Name, "fetch_messages", func(ctx context.Context) error {
		var err error
		msgs, err = adapter.FetchMessages(ctx, ch.Credentials, reservationID)
		return err
	})
	return msgs, err
}

// TestAllConnections probes every enabled channel of the property. Probes
// bypass retries and the circuit breaker so they report the channel's
// current state.
func (m *Manager) TestAllConnections(ctx context.Context, propertyID string) (map[string]channel.ConnectionResult, error) {
	cfg, err := m.config(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	channels := cfg.EnabledChannels()
	results := fanout.Channels(ctx, m.log, m.slots, channels,
		func(ctx context.Context, ch model.ChannelSettings) channel.ConnectionResult {
			adapter, err := m.adapterFor(ch.Name)
			if err != nil {
				return channel.ConnectionResult{Message: describe(err)}
			}
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.AdapterTimeout)
			defer cancel()
			return adapter.TestConnection(callCtx, ch.Credentials)
		},
		func(_ model.ChannelSettings, reason string) channel.ConnectionResult {
			return channel.ConnectionResult{Message: reason}
		},
	)
	out := make(map[string]channel.ConnectionResult, len(channels))
	for i, ch := range channels {
		out[ch.Name] = results[i]
	}
	return out, nil
}
