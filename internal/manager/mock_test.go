package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/model"
)

// ---------------------------------------------------------------------------
// fakeAdapter: in-memory channel.Adapter
// ---------------------------------------------------------------------------

type fakeAdapter struct {
	name string

	mu sync.Mutex

	pushErr      error
	pushResult   *channel.PushResult
	pushFailN    int // first N pushes fail with a transport error
	pushPanic    bool
	pushDelay    time.Duration
	pushCalls    int
	pushed       []model.InventoryUpdate
	reservations []channel.RawReservation
	fetchErr     error
	inventory    []model.InventorySnapshot
	confirmErr   error
	confirmed    []string
	declined     []string
	connection   channel.ConnectionResult
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, connection: channel.ConnectionResult{Success: true, Message: "ok"}}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Authenticate(context.Context, model.Credentials) (channel.Profile, error) {
	return channel.Profile{AccountID: f.name}, nil
}

func (f *fakeAdapter) FetchReservations(context.Context, model.Credentials, *model.DateRange) ([]channel.RawReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.reservations, nil
}

func (f *fakeAdapter) FetchInventory(_ context.Context, _ model.Credentials, roomIDs []string, _ model.DateRange) ([]model.InventorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.inventory, nil
}

func (f *fakeAdapter) PushInventoryAndRates(ctx context.Context, _ model.Credentials, updates []model.InventoryUpdate) (channel.PushResult, error) {
	f.mu.Lock()
	f.pushCalls++
	calls := f.pushCalls
	delay := f.pushDelay
	f.mu.Unlock()

	if f.pushPanic {
		panic("adapter exploded")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return channel.PushResult{}, &channel.TransportError{Channel: f.name, Op: "push", Err: ctx.Err()}
		}
	}
	if calls <= f.pushFailN {
		return channel.PushResult{}, &channel.TransportError{Channel: f.name, Op: "push", Err: errors.New("connection reset")}
	}
	if f.pushErr != nil {
		return channel.PushResult{}, f.pushErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, updates...)
	if f.pushResult != nil {
		return *f.pushResult, nil
	}
	return channel.PushResult{Accepted: len(updates)}, nil
}

func (f *fakeAdapter) ConfirmReservation(_ context.Context, _ model.Credentials, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, id)
	return nil
}

func (f *fakeAdapter) DeclineOrCancel(_ context.Context, _ model.Credentials, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, id)
	return nil
}

func (f *fakeAdapter) SendMessage(context.Context, model.Credentials, string, string) error {
	return fmt.Errorf("%s: %w", f.name, channel.ErrUnsupported)
}

func (f *fakeAdapter) FetchMessages(context.Context, model.Credentials, string) ([]model.GuestMessage, error) {
	return nil, fmt.Errorf("%s: %w", f.name, channel.ErrUnsupported)
}

func (f *fakeAdapter) TestConnection(context.Context, model.Credentials) channel.ConnectionResult {
	return f.connection
}

func (f *fakeAdapter) pushedUpdates() []model.InventoryUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.InventoryUpdate(nil), f.pushed...)
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls
}

// fakeRaw is a RawReservation with a canned normalization outcome.
type fakeRaw struct {
	channelName string
	res         model.ChannelReservation
	err         error
}

func (r fakeRaw) ChannelName() string { return r.channelName }

func (r fakeRaw) Normalize(propertyID string) (model.ChannelReservation, error) {
	if r.err != nil {
		return model.ChannelReservation{}, r.err
	}
	out := r.res
	out.PropertyID = propertyID
	return out, nil
}

// ---------------------------------------------------------------------------
// fakeConfigs: in-memory ConfigStore
// ---------------------------------------------------------------------------

type fakeConfigs map[string]model.ChannelConfiguration

func (f fakeConfigs) ChannelConfiguration(_ context.Context, propertyID string) (model.ChannelConfiguration, error) {
	cfg, ok := f[propertyID]
	if !ok {
		return model.ChannelConfiguration{}, errors.New("not found")
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// fakeSink: records upserted reservations
// ---------------------------------------------------------------------------

type fakeSink struct {
	mu    sync.Mutex
	saved []model.ChannelReservation
	err   error
}

func (s *fakeSink) UpsertReservation(_ context.Context, r model.ChannelReservation) (model.ChannelReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.ChannelReservation{}, s.err
	}
	r.ReservationID = fmt.Sprintf("local-%d", len(s.saved)+1)
	s.saved = append(s.saved, r)
	return r, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
