package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConflictType classifies a cross-system disagreement.
type ConflictType string

const (
	ConflictInventoryMismatch  ConflictType = "inventory_mismatch"
	ConflictOverbooking        ConflictType = "overbooking"
	ConflictChannelUnavailable ConflictType = "channel_unavailable"
	ConflictRate               ConflictType = "rate_conflict"
)

// ConflictStatus moves only from pending to resolved or ignored.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// CanTransition reports whether a conflict in status s may move to next.
func (s ConflictStatus) CanTransition(next ConflictStatus) bool {
	return s == ConflictPending && (next == ConflictResolved || next == ConflictIgnored)
}

// SideLocal names the property's system of record in a conflict.
const SideLocal = "local"

// ConflictSide is one system's reported value in a conflict.
type ConflictSide struct {
	Name        string           `json:"name"`
	Inventory   int              `json:"inventory"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
}

// SuggestedResolution is the value a policy proposes for a conflict.
type SuggestedResolution struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	Reason string `json:"reason"`
}

// Suggested resolution types.
const (
	ResolutionUseLowest    = "use_lowest"
	ResolutionUseLatest    = "use_latest"
	ResolutionUseMaster    = "use_master"
	ResolutionManualReview = "manual_review"
)

// InventoryConflict records a disagreement between the master view and a
// channel for one room type and date.
type InventoryConflict struct {
	ID                  string              `json:"id"`
	PropertyID          string              `json:"property_id"`
	RoomTypeID          string              `json:"room_type_id"`
	Date                time.Time           `json:"date"`
	ConflictType        ConflictType        `json:"conflict_type"`
	Channels            []ConflictSide      `json:"channels"`
	SuggestedResolution SuggestedResolution `json:"suggested_resolution"`
	Status              ConflictStatus      `json:"status"`
	CreatedAt           time.Time           `json:"created_at"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
}

// ChannelName returns the channel the conflict was detected against. Sides
// are ordered master first and the detected channel last, so this is the
// last non-local side.
func (c *InventoryConflict) ChannelName() string {
	for i := len(c.Channels) - 1; i >= 0; i-- {
		if c.Channels[i].Name != SideLocal {
			return c.Channels[i].Name
		}
	}
	return ""
}

// Key returns a stable digest of the fields that identify a conflict slot:
// property, room type, date, and the sides involved. Values and timestamps
// are excluded so a re-detection of the same slot maps to the same key.
func (c *InventoryConflict) Key() string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%s", c.PropertyID, c.RoomTypeID, DateKey(c.Date))
	for _, s := range c.Channels {
		h.Write([]byte("|"))
		h.Write([]byte(s.Name))
	}
	return hex.EncodeToString(h.Sum(nil))
}
