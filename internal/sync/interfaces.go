// Package sync is the channelsync scheduler. It drives one distribution
// cycle per property: inventory sync, reservation fan-in and, for
// properties that price from local base rates, a rate sync.
//
// [Engine.RunOnce] runs a single cycle for every property;
// [Engine.Run] repeats it on the poll interval until cancelled.
package sync

import (
	"context"

	"github.com/njoerd114/channelsync/internal/model"
)

// Properties lists and loads property configurations.
// Implemented by [state.Store].
type Properties interface {
	PropertyIDs(ctx context.Context) ([]string, error)
	ChannelConfiguration(ctx context.Context, propertyID string) (model.ChannelConfiguration, error)
}

// InventorySyncer runs an inventory cycle for one property.
// Implemented by [inventory.Service].
type InventorySyncer interface {
	Sync(ctx context.Context, propertyID string, window *model.DateRange) ([]model.InventorySyncResult, error)
}

// ReservationSyncer pulls reservations from every channel of a property.
// Implemented by [manager.Manager].
type ReservationSyncer interface {
	SyncAllChannels(ctx context.Context, propertyID string) ([]model.ChannelSyncResult, error)
}

// RateSyncer builds rate inputs from stored base rates and pushes priced
// rates. Implemented by [rates.Service].
type RateSyncer interface {
	LocalInputs(ctx context.Context, propertyID string, window model.DateRange) ([]model.RateInput, error)
	Sync(ctx context.Context, propertyID string, inputs []model.RateInput) ([]model.RateSyncResult, error)
}
