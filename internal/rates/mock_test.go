package rates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
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

	configs map[string]model.ChannelConfiguration
	rules   []model.PricingRule
	local   []model.LocalInventory
	history []model.HistoryEntry
	seq     int64
}

func newFakeStore(configs ...model.ChannelConfiguration) *fakeStore {
	s := &fakeStore{configs: make(map[string]model.ChannelConfiguration)}
	for _, c := range configs {
		s.configs[c.PropertyID] = c
	}
	return s
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

func (s *fakeStore) PricingRules(_ context.Context, propertyID string) ([]model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PricingRule
	for _, r := range s.rules {
		if r.PropertyID == propertyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertPricingRule(_ context.Context, r model.PricingRule) (model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	r.Sequence = s.seq
	if r.ID == "" {
		r.ID = fmt.Sprintf("rule-%d", s.seq)
	}
	s.rules = append(s.rules, r)
	return r, nil
}

func (s *fakeStore) UpdatePricingRule(_ context.Context, r model.PricingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == r.ID && s.rules[i].PropertyID == r.PropertyID {
			r.Sequence = s.rules[i].Sequence
			s.rules[i] = r
			return nil
		}
	}
	return state.ErrNotFound
}

func (s *fakeStore) DeletePricingRule(_ context.Context, propertyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id && r.PropertyID == propertyID {
			s.rules = slices.Delete(s.rules, i, i+1)
			return nil
		}
	}
	return state.ErrNotFound
}

func (s *fakeStore) LocalInventory(_ context.Context, propertyID string, _ []string, window model.DateRange) ([]model.LocalInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LocalInventory
	for _, r := range s.local {
		if r.PropertyID == propertyID && window.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
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
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if e := s.history[i]; e.PropertyID == propertyID && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// fakeChannels / fakeAvailability / fakeSignal
// ---------------------------------------------------------------------------

type fakeChannels struct {
	mu      sync.Mutex
	pushed  map[string][]model.InventoryUpdate
	pushErr map[string]string
	reject  map[string][]time.Time
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{
		pushed:  make(map[string][]model.InventoryUpdate),
		pushErr: make(map[string]string),
		reject:  make(map[string][]time.Time),
	}
}

func (f *fakeChannels) pushedTo(name string) []model.InventoryUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pushed[name])
}

func (f *fakeChannels) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.pushed {
		n += len(u)
	}
	return n
}

func (f *fakeChannels) PushToChannel(_ context.Context, _ string, channelName string, updates []model.InventoryUpdate) manager.ChannelPushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.pushErr[channelName]; ok {
		return manager.ChannelPushResult{ChannelName: channelName, Errors: []string{msg}}
	}
	res := manager.ChannelPushResult{ChannelName: channelName}
	for _, u := range updates {
		if slices.ContainsFunc(f.reject[channelName], u.Date.Equal) {
			res.Rejected = append(res.Rejected, u.Date)
			res.Errors = append(res.Errors, channelName+" "+model.DateKey(u.Date)+": closed to arrival")
			continue
		}
		f.pushed[channelName] = append(f.pushed[channelName], u)
		res.Pushed++
	}
	res.Success = len(res.Errors) == 0
	return res
}

type fakeAvailability struct {
	byChannel map[string]map[string]map[string]int
	err       error
}

func (f *fakeAvailability) ChannelAvailability(_ context.Context, _ string, channelName string, _ model.DateRange) (map[string]map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byChannel[channelName], nil
}

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
