package model

import (
	"fmt"
	"time"
)

// AllotmentType selects how an allotment cap is computed.
type AllotmentType string

const (
	AllotmentFixed       AllotmentType = "fixed"
	AllotmentPercentage  AllotmentType = "percentage"
	AllotmentDemandBased AllotmentType = "demand_based"
	AllotmentSeasonal    AllotmentType = "seasonal"
)

// AllotmentConditions gate when an allotment rule applies.
type AllotmentConditions struct {
	DateRange          *DateRange `yaml:"date_range,omitempty" json:"date_range,omitempty"`
	DaysOfWeek         []string   `yaml:"days_of_week,omitempty" json:"days_of_week,omitempty"`
	SeasonType         string     `yaml:"season_type,omitempty" json:"season_type,omitempty"`
	OccupancyThreshold *float64   `yaml:"occupancy_threshold,omitempty" json:"occupancy_threshold,omitempty"`
}

// ReleaseRules lift an allotment close to the stay date.
type ReleaseRules struct {
	// ReleaseWindow is the number of days before the date at which the
	// allotment is released. Zero disables release.
	ReleaseWindow    int    `yaml:"release_window" json:"release_window"`
	ReleaseToChannel string `yaml:"release_to_channel,omitempty" json:"release_to_channel,omitempty"`
	ReleaseToGeneral bool   `yaml:"release_to_general" json:"release_to_general"`
}

// AllotmentRule caps the inventory a channel may sell for a room type.
type AllotmentRule struct {
	ID           string              `yaml:"id,omitempty" json:"id"`
	PropertyID   string              `yaml:"property_id,omitempty" json:"property_id"`
	RoomTypeID   string              `yaml:"room_type_id" json:"room_type_id"`
	ChannelName  string              `yaml:"channel_name" json:"channel_name"`
	RuleType     AllotmentType       `yaml:"rule_type" json:"rule_type"`
	Allocation   float64             `yaml:"allocation" json:"allocation"`
	Conditions   AllotmentConditions `yaml:"conditions" json:"conditions"`
	ReleaseRules ReleaseRules        `yaml:"release_rules" json:"release_rules"`
	Active       bool                `yaml:"active" json:"active"`
}

// Validate checks the rule's shape.
func (r *AllotmentRule) Validate() error {
	if r.RoomTypeID == "" || r.ChannelName == "" {
		return fmt.Errorf("allotment rule needs room_type_id and channel_name")
	}
	switch r.RuleType {
	case AllotmentFixed, AllotmentPercentage, AllotmentDemandBased, AllotmentSeasonal:
	default:
		return fmt.Errorf("unknown allotment rule_type %q", r.RuleType)
	}
	if r.Allocation < 0 {
		return fmt.Errorf("allotment allocation must not be negative")
	}
	if r.RuleType != AllotmentFixed && r.RuleType != AllotmentSeasonal && r.Allocation > 100 {
		return fmt.Errorf("%s allocation %.1f exceeds 100%%", r.RuleType, r.Allocation)
	}
	if r.RuleType == AllotmentSeasonal && r.Conditions.DateRange == nil {
		return fmt.Errorf("seasonal allotment rule needs conditions.date_range")
	}
	if dr := r.Conditions.DateRange; dr != nil {
		if err := dr.Validate(); err != nil {
			return err
		}
	}
	for _, d := range r.Conditions.DaysOfWeek {
		if _, ok := ParseWeekday(d); !ok {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	return nil
}

// AdjustmentType selects how a pricing rule changes the rate.
type AdjustmentType string

const (
	AdjustFixedAmount AdjustmentType = "fixed_amount"
	AdjustPercentage  AdjustmentType = "percentage"
	AdjustSetPrice    AdjustmentType = "set_price"
)

// PricingConditions are optional context predicates of a pricing rule.
type PricingConditions struct {
	OccupancyMin    *float64 `yaml:"occupancy_min,omitempty" json:"occupancy_min,omitempty"`
	OccupancyMax    *float64 `yaml:"occupancy_max,omitempty" json:"occupancy_max,omitempty"`
	LeadTimeMin     *int     `yaml:"lead_time_min,omitempty" json:"lead_time_min,omitempty"`
	LeadTimeMax     *int     `yaml:"lead_time_max,omitempty" json:"lead_time_max,omitempty"`
	LengthOfStayMin *int     `yaml:"length_of_stay_min,omitempty" json:"length_of_stay_min,omitempty"`
	LengthOfStayMax *int     `yaml:"length_of_stay_max,omitempty" json:"length_of_stay_max,omitempty"`
}

// Adjustment is the change a pricing rule applies.
type Adjustment struct {
	Type  AdjustmentType `yaml:"type" json:"type"`
	Value float64        `yaml:"value" json:"value"`
}

// PricingRule is a declarative, priority-ordered rate adjustment.
type PricingRule struct {
	ID         string            `yaml:"id,omitempty" json:"id"`
	PropertyID string            `yaml:"property_id,omitempty" json:"property_id"`
	Name       string            `yaml:"name" json:"name"`
	Priority   int               `yaml:"priority" json:"priority"`
	RoomTypeID string            `yaml:"room_type_id,omitempty" json:"room_type_id,omitempty"`
	DateRange  *DateRange        `yaml:"date_range,omitempty" json:"date_range,omitempty"`
	DaysOfWeek []string          `yaml:"days_of_week,omitempty" json:"days_of_week,omitempty"`
	Conditions PricingConditions `yaml:"conditions" json:"conditions"`
	Adjustment Adjustment        `yaml:"adjustment" json:"adjustment"`
	Active     bool              `yaml:"active" json:"active"`
	// Sequence is the insertion order assigned by the store; it breaks
	// priority ties.
	Sequence  int64     `yaml:"-" json:"sequence"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
}

// Validate checks the rule's shape.
func (r *PricingRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("pricing rule name is required")
	}
	switch r.Adjustment.Type {
	case AdjustFixedAmount, AdjustPercentage:
	case AdjustSetPrice:
		if r.Adjustment.Value < 0 {
			return fmt.Errorf("set_price value must not be negative")
		}
	default:
		return fmt.Errorf("unknown adjustment type %q", r.Adjustment.Type)
	}
	if dr := r.DateRange; dr != nil {
		if err := dr.Validate(); err != nil {
			return err
		}
	}
	for _, d := range r.DaysOfWeek {
		if _, ok := ParseWeekday(d); !ok {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	return nil
}
