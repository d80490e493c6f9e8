package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Restrictions are the per-date selling restrictions sent with an update.
type Restrictions struct {
	MinStay           *int `json:"min_stay,omitempty"`
	MaxStay           *int `json:"max_stay,omitempty"`
	ClosedToArrival   bool `json:"closed_to_arrival,omitempty"`
	ClosedToDeparture bool `json:"closed_to_departure,omitempty"`
	StopSell          bool `json:"stop_sell,omitempty"`
}

// InventoryUpdate is one room type on one date as pushed to a channel.
// RoomTypeID is the local id until the manager maps it into the channel's
// id space.
type InventoryUpdate struct {
	RoomTypeID   string          `json:"room_type_id"`
	Date         time.Time       `json:"date"`
	Availability int             `json:"availability"`
	Rate         decimal.Decimal `json:"rate"`
	Currency     string          `json:"currency"`
	Restrictions Restrictions    `json:"restrictions"`
}

// HasRate reports whether the update carries a rate to push.
func (u InventoryUpdate) HasRate() bool {
	return u.Rate.IsPositive()
}

// InventorySnapshot is one side's view of availability for a room type and
// date, with the time that side last changed it.
type InventorySnapshot struct {
	RoomTypeID   string          `json:"room_type_id"`
	Date         time.Time       `json:"date"`
	Availability int             `json:"availability"`
	Rate         decimal.Decimal `json:"rate"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// LocalInventory is the system-of-record row for a room type and date.
type LocalInventory struct {
	PropertyID string          `json:"property_id"`
	RoomTypeID string          `json:"room_type_id"`
	Date       time.Time       `json:"date"`
	Total      int             `json:"total"`
	Available  int             `json:"available"`
	BaseRate   decimal.Decimal `json:"base_rate"`
	Currency   string          `json:"currency"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Occupancy returns the booked share as a percentage in [0, 100].
func (l LocalInventory) Occupancy() float64 {
	if l.Total <= 0 {
		return 0
	}
	avail := l.Available
	if avail < 0 {
		avail = 0
	}
	if avail > l.Total {
		avail = l.Total
	}
	return float64(l.Total-avail) * 100 / float64(l.Total)
}

// InventoryGrid maps room type → date key → value.
type InventoryGrid map[string]map[string]InventorySnapshot

// Set records a snapshot in the grid.
func (g InventoryGrid) Set(s InventorySnapshot) {
	byDate, ok := g[s.RoomTypeID]
	if !ok {
		byDate = make(map[string]InventorySnapshot)
		g[s.RoomTypeID] = byDate
	}
	byDate[DateKey(s.Date)] = s
}

// Get returns the snapshot for a room type and date.
func (g InventoryGrid) Get(roomTypeID string, date time.Time) (InventorySnapshot, bool) {
	s, ok := g[roomTypeID][DateKey(date)]
	return s, ok
}
