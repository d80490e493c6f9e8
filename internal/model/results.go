package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryLimit is the number of history entries kept per property and kind.
const HistoryLimit = 100

// Processed counts the work done for one channel in an inventory cycle.
type Processed struct {
	Updates   int `json:"updates"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

// InventorySyncResult is one channel's outcome of an inventory cycle.
type InventorySyncResult struct {
	PropertyID    string              `json:"property_id"`
	ChannelName   string              `json:"channel_name"`
	Strategy      SyncStrategy        `json:"strategy"`
	Success       bool                `json:"success"`
	Processed     Processed           `json:"processed"`
	Conflicts     []InventoryConflict `json:"conflicts"`
	Errors        []string            `json:"errors"`
	NeedsReauth   bool                `json:"needs_reauth,omitempty"`
	ExecutionTime int64               `json:"execution_time_ms"`
	LastSyncTime  time.Time           `json:"last_sync_time"`
}

// RateSyncResult is one channel's outcome of a rate cycle.
type RateSyncResult struct {
	PropertyID    string      `json:"property_id"`
	ChannelName   string      `json:"channel_name"`
	Success       bool        `json:"success"`
	UpdatedDates  []time.Time `json:"updated_dates"`
	Errors        []string    `json:"errors"`
	NeedsReauth   bool        `json:"needs_reauth,omitempty"`
	ExecutionTime int64       `json:"execution_time_ms"`
	LastSyncTime  time.Time   `json:"last_sync_time"`
}

// ChannelSyncResult is one channel's outcome of a reservation fan-in.
type ChannelSyncResult struct {
	ChannelName           string    `json:"channel_name"`
	Success               bool      `json:"success"`
	ReservationsFetched   int       `json:"reservations_fetched"`
	ReservationsConfirmed int       `json:"reservations_confirmed"`
	Errors                []string  `json:"errors"`
	NeedsReauth           bool      `json:"needs_reauth,omitempty"`
	ExecutionTime         int64     `json:"execution_time_ms"`
	LastSyncTime          time.Time `json:"last_sync_time"`
}

// HistoryKind distinguishes entries in the sync history log.
type HistoryKind string

const (
	HistoryInventory HistoryKind = "inventory"
	HistoryRate      HistoryKind = "rate"
)

// HistoryEntry is one appended record in a property's sync history. Exactly
// one of Inventory or Rate is set, matching Kind.
type HistoryEntry struct {
	ID         int64                `json:"id"`
	PropertyID string               `json:"property_id"`
	Kind       HistoryKind          `json:"kind"`
	Inventory  *InventorySyncResult `json:"inventory,omitempty"`
	Rate       *RateSyncResult      `json:"rate,omitempty"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// RateInput is a base rate for a room type over a date range.
type RateInput struct {
	RoomTypeID   string          `json:"room_type_id"`
	DateRange    DateRange       `json:"date_range"`
	BaseRate     decimal.Decimal `json:"base_rate"`
	Currency     string          `json:"currency"`
	Availability int             `json:"availability"`
}
