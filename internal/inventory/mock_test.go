package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/njoerd114/channelsync/internal/manager"
	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/state"
)

// ---------------------------------------------------------------------------
// fakeStore: in-memory Store
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu sync.Mutex

	configs    map[string]model.ChannelConfiguration
	allotments []model.AllotmentRule
	local      map[string]model.LocalInventory
	conflicts  map[string]model.InventoryConflict
	history    []model.HistoryEntry
	nextID     int

	localErr  error
	setErr    error
	conflictN int // SaveConflict calls
}

func newFakeStore(configs ...model.ChannelConfiguration) *fakeStore {
	s := &fakeStore{
		configs:   make(map[string]model.ChannelConfiguration),
		local:     make(map[string]model.LocalInventory),
		conflicts: make(map[string]model.InventoryConflict),
	}
	for _, c := range configs {
		s.configs[c.PropertyID] = c
	}
	return s
}

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeStore) ChannelConfiguration(_ context.Context, propertyID string) (model.ChannelConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[propertyID]
	if !ok {
		return model.ChannelConfiguration{}, state.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) AllotmentRules(_ context.Context, propertyID string) ([]model.AllotmentRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AllotmentRule
	for _, r := range s.allotments {
		if r.PropertyID == propertyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertAllotmentRule(_ context.Context, r model.AllotmentRule) (model.AllotmentRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.id("rule")
	}
	s.allotments = append(s.allotments, r)
	return r, nil
}

func (s *fakeStore) UpdateAllotmentRule(_ context.Context, r model.AllotmentRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.allotments {
		if s.allotments[i].ID == r.ID && s.allotments[i].PropertyID == r.PropertyID {
			s.allotments[i] = r
			return nil
		}
	}
	return state.ErrNotFound
}

func (s *fakeStore) DeleteAllotmentRule(_ context.Context, propertyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.allotments {
		if r.ID == id && r.PropertyID == propertyID {
			s.allotments = slices.Delete(s.allotments, i, i+1)
			return nil
		}
	}
	return state.ErrNotFound
}

func (s *fakeStore) putLocal(rows ...model.LocalInventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.local[r.PropertyID+"|"+localKey(r.RoomTypeID, r.Date)] = r
	}
}

func (s *fakeStore) localRow(propertyID, roomTypeID string, date time.Time) (model.LocalInventory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.local[propertyID+"|"+localKey(roomTypeID, date)]
	return r, ok
}

func (s *fakeStore) LocalInventory(_ context.Context, propertyID string, roomTypeIDs []string, window model.DateRange) ([]model.LocalInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localErr != nil {
		return nil, s.localErr
	}
	var out []model.LocalInventory
	for _, r := range s.local {
		if r.PropertyID != propertyID || !window.Contains(r.Date) {
			continue
		}
		if len(roomTypeIDs) > 0 && !slices.Contains(roomTypeIDs, r.RoomTypeID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) SetLocalAvailability(_ context.Context, propertyID, roomTypeID string, date time.Time, available int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	key := propertyID + "|" + localKey(roomTypeID, date)
	r, ok := s.local[key]
	if !ok {
		r = model.LocalInventory{PropertyID: propertyID, RoomTypeID: roomTypeID, Date: model.Day(date), Total: available}
	}
	r.Available = available
	r.UpdatedAt = at
	s.local[key] = r
	return nil
}

func (s *fakeStore) SaveConflict(_ context.Context, c *model.InventoryConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictN++
	if c.ID == "" {
		c.ID = s.id("conflict")
	}
	s.conflicts[c.ID] = *c
	return nil
}

func (s *fakeStore) Conflict(_ context.Context, propertyID, id string) (model.InventoryConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok || c.PropertyID != propertyID {
		return model.InventoryConflict{}, state.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) Conflicts(_ context.Context, propertyID string, status model.ConflictStatus) ([]model.InventoryConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryConflict
	for _, c := range s.conflicts {
		if c.PropertyID == propertyID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.InventoryConflict) int {
		if a.RoomTypeID != b.RoomTypeID {
			return strings.Compare(a.RoomTypeID, b.RoomTypeID)
		}
		return a.Date.Compare(b.Date)
	})
	return out, nil
}

func (s *fakeStore) TransitionConflict(_ context.Context, propertyID, id string, to model.ConflictStatus, at time.Time) (model.InventoryConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok || c.PropertyID != propertyID {
		return model.InventoryConflict{}, state.ErrNotFound
	}
	if !c.Status.CanTransition(to) {
		return c, state.ErrNotPending
	}
	c.Status = to
	c.ResolvedAt = &at
	s.conflicts[id] = c
	return c, nil
}

func (s *fakeStore) AppendHistory(_ context.Context, e model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	return nil
}

func (s *fakeStore) History(_ context.Context, propertyID string, kind model.HistoryKind, limit int) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if e.PropertyID == propertyID && e.Kind == kind {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// fakeChannels: in-memory Channels
// ---------------------------------------------------------------------------

type fakeChannels struct {
	mu sync.Mutex

	// remote holds each channel's reported availability, keyed by channel.
	remote   map[string]model.InventoryGrid
	fetchErr map[string]error
	pushErr  map[string]string
	pushed   map[string][]model.InventoryUpdate
	fetches  map[string]int
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{
		remote:   make(map[string]model.InventoryGrid),
		fetchErr: make(map[string]error),
		pushErr:  make(map[string]string),
		pushed:   make(map[string][]model.InventoryUpdate),
		fetches:  make(map[string]int),
	}
}

func (f *fakeChannels) report(channelName string, snaps ...model.InventorySnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.remote[channelName]
	if !ok {
		g = make(model.InventoryGrid)
		f.remote[channelName] = g
	}
	for _, s := range snaps {
		g.Set(s)
	}
}

func (f *fakeChannels) pushedTo(channelName string) []model.InventoryUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pushed[channelName])
}

func (f *fakeChannels) PushToChannel(_ context.Context, _ string, channelName string, updates []model.InventoryUpdate) manager.ChannelPushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.pushErr[channelName]; ok {
		return manager.ChannelPushResult{ChannelName: channelName, Errors: []string{msg}}
	}
	f.pushed[channelName] = append(f.pushed[channelName], updates...)
	return manager.ChannelPushResult{ChannelName: channelName, Success: true, Pushed: len(updates)}
}

func (f *fakeChannels) FetchChannelInventory(_ context.Context, _ string, channelName string, roomTypeIDs []string, window model.DateRange) ([]model.InventorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[channelName]++
	if err := f.fetchErr[channelName]; err != nil {
		return nil, err
	}
	var out []model.InventorySnapshot
	for _, room := range roomTypeIDs {
		for _, day := range window.Days() {
			if s, ok := f.remote[channelName].Get(room, day); ok {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// fakeSignal: fixed demand with call counting
// ---------------------------------------------------------------------------

type fakeSignal struct {
	mu    sync.Mutex
	value float64
	err   error
	calls int
}

func (f *fakeSignal) Demand(context.Context, string, string, time.Time, int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.value, f.err
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
