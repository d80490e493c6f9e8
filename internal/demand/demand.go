// Package demand provides the forward demand signal used by demand-based
// allotments and demand pricing.
package demand

import (
	"context"
	"fmt"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
)

// Signal estimates demand for a room type around a date as a value in
// [0, 1], where 0 is no demand and 1 is sold out.
type Signal interface {
	Demand(ctx context.Context, propertyID, roomTypeID string, date time.Time, lookAheadDays int) (float64, error)
}

// InventoryReader reads the system-of-record inventory.
type InventoryReader interface {
	LocalInventory(ctx context.Context, propertyID string, roomTypeIDs []string, window model.DateRange) ([]model.LocalInventory, error)
}

// ForwardOccupancy averages the booked share of local inventory over
// [date, date+lookAheadDays). Days without a local record are left out of
// the average; a window with no records has zero demand.
type ForwardOccupancy struct {
	inventory InventoryReader
}

// NewForwardOccupancy creates a signal backed by local inventory.
func NewForwardOccupancy(inventory InventoryReader) *ForwardOccupancy {
	return &ForwardOccupancy{inventory: inventory}
}

// Demand implements [Signal].
func (f *ForwardOccupancy) Demand(ctx context.Context, propertyID, roomTypeID string, date time.Time, lookAheadDays int) (float64, error) {
	window := model.NewDateRange(date, max(lookAheadDays, 1))
	rows, err := f.inventory.LocalInventory(ctx, propertyID, []string{roomTypeID}, window)
	if err != nil {
		return 0, fmt.Errorf("reading inventory for demand: %w", err)
	}
	var sum float64
	n := 0
	for _, r := range rows {
		if r.RoomTypeID != roomTypeID || r.Total <= 0 || !window.Contains(r.Date) {
			continue
		}
		sum += r.Occupancy() / 100
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// Fixed is a constant signal.
type Fixed float64

// Demand implements [Signal].
func (f Fixed) Demand(context.Context, string, string, time.Time, int) (float64, error) {
	return float64(f), nil
}
