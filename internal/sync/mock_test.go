package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/state"
)

// --- Mock property store -----------------------------------------------------

type mockProperties struct {
	configs map[string]model.ChannelConfiguration
	listErr error
}

func newMockProperties(configs ...model.ChannelConfiguration) *mockProperties {
	m := &mockProperties{configs: make(map[string]model.ChannelConfiguration)}
	for _, c := range configs {
		m.configs[c.PropertyID] = c
	}
	return m
}

func (m *mockProperties) PropertyIDs(context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.configs))
	for id := range m.configs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *mockProperties) ChannelConfiguration(_ context.Context, propertyID string) (model.ChannelConfiguration, error) {
	c, ok := m.configs[propertyID]
	if !ok {
		return model.ChannelConfiguration{}, state.ErrNotFound
	}
	return c, nil
}

// --- Mock inventory service --------------------------------------------------

type mockInventory struct {
	mu      sync.Mutex
	results map[string][]model.InventorySyncResult
	errs    map[string]error
	calls   []string
}

func newMockInventory() *mockInventory {
	return &mockInventory{results: make(map[string][]model.InventorySyncResult), errs: make(map[string]error)}
}

func (m *mockInventory) Sync(_ context.Context, propertyID string, _ *model.DateRange) ([]model.InventorySyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, propertyID)
	if err := m.errs[propertyID]; err != nil {
		return nil, err
	}
	return m.results[propertyID], nil
}

func (m *mockInventory) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.calls)
	slices.Sort(out)
	return out
}

// --- Mock reservation fan-in -------------------------------------------------

type mockReservations struct {
	mu      sync.Mutex
	results map[string][]model.ChannelSyncResult
	calls   []string
}

func (m *mockReservations) SyncAllChannels(_ context.Context, propertyID string) ([]model.ChannelSyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, propertyID)
	r, ok := m.results[propertyID]
	if !ok {
		return nil, fmt.Errorf("loading configuration for property %s: %w", propertyID, state.ErrNotFound)
	}
	return r, nil
}

// --- Mock rate service -------------------------------------------------------

type mockRates struct {
	mu      sync.Mutex
	inputs  map[string][]model.RateInput
	results []model.RateSyncResult
	windows []model.DateRange
	synced  map[string][]model.RateInput
}

func newMockRates() *mockRates {
	return &mockRates{inputs: make(map[string][]model.RateInput), synced: make(map[string][]model.RateInput)}
}

func (m *mockRates) LocalInputs(_ context.Context, propertyID string, window model.DateRange) ([]model.RateInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, window)
	return m.inputs[propertyID], nil
}

func (m *mockRates) Sync(_ context.Context, propertyID string, inputs []model.RateInput) ([]model.RateSyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced[propertyID] = inputs
	return m.results, nil
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
