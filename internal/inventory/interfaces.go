package inventory

import (
	"context"
	"time"

	"github.com/njoerd114/channelsync/internal/manager"
	"github.com/njoerd114/channelsync/internal/model"
)

// Store is the subset of the property store the inventory service uses.
// *state.Store satisfies it.
type Store interface {
	ChannelConfiguration(ctx context.Context, propertyID string) (model.ChannelConfiguration, error)

	AllotmentRules(ctx context.Context, propertyID string) ([]model.AllotmentRule, error)
	InsertAllotmentRule(ctx context.Context, r model.AllotmentRule) (model.AllotmentRule, error)
	UpdateAllotmentRule(ctx context.Context, r model.AllotmentRule) error
	DeleteAllotmentRule(ctx context.Context, propertyID, id string) error

	LocalInventory(ctx context.Context, propertyID string, roomTypeIDs []string, window model.DateRange) ([]model.LocalInventory, error)
	SetLocalAvailability(ctx context.Context, propertyID, roomTypeID string, date time.Time, available int, at time.Time) error

	SaveConflict(ctx context.Context, c *model.InventoryConflict) error
	Conflict(ctx context.Context, propertyID, id string) (model.InventoryConflict, error)
	Conflicts(ctx context.Context, propertyID string, status model.ConflictStatus) ([]model.InventoryConflict, error)
	TransitionConflict(ctx context.Context, propertyID, id string, to model.ConflictStatus, at time.Time) (model.InventoryConflict, error)

	AppendHistory(ctx context.Context, e model.HistoryEntry) error
	History(ctx context.Context, propertyID string, kind model.HistoryKind, limit int) ([]model.HistoryEntry, error)
}

// Channels is the channel manager as seen by the inventory service.
// *manager.Manager satisfies it.
type Channels interface {
	PushToChannel(ctx context.Context, propertyID, channelName string, updates []model.InventoryUpdate) manager.ChannelPushResult
	FetchChannelInventory(ctx context.Context, propertyID, channelName string, roomTypeIDs []string, window model.DateRange) ([]model.InventorySnapshot, error)
}
