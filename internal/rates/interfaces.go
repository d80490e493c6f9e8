package rates

import (
	"context"

	"github.com/njoerd114/channelsync/internal/manager"
	"github.com/njoerd114/channelsync/internal/model"
)

// Store is the subset of the property store the rate service uses.
// *state.Store satisfies it.
type Store interface {
	ChannelConfiguration(ctx context.Context, propertyID string) (model.ChannelConfiguration, error)

	PricingRules(ctx context.Context, propertyID string) ([]model.PricingRule, error)
	InsertPricingRule(ctx context.Context, r model.PricingRule) (model.PricingRule, error)
	UpdatePricingRule(ctx context.Context, r model.PricingRule) error
	DeletePricingRule(ctx context.Context, propertyID, id string) error

	LocalInventory(ctx context.Context, propertyID string, roomTypeIDs []string, window model.DateRange) ([]model.LocalInventory, error)

	AppendHistory(ctx context.Context, e model.HistoryEntry) error
	History(ctx context.Context, propertyID string, kind model.HistoryKind, limit int) ([]model.HistoryEntry, error)
}

// Channels pushes rate-bearing updates. *manager.Manager satisfies it.
type Channels interface {
	PushToChannel(ctx context.Context, propertyID, channelName string, updates []model.InventoryUpdate) manager.ChannelPushResult
}

// Availability bounds the availability sent with a rate push.
// *inventory.Service satisfies it.
type Availability interface {
	ChannelAvailability(ctx context.Context, propertyID, channelName string, window model.DateRange) (map[string]map[string]int, error)
}
