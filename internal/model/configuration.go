package model

import (
	"fmt"
	"strings"
	"time"
)

// MasterSourceLocal selects the property's own system of record as the
// authoritative inventory.
const MasterSourceLocal = "local"

// Base rate sources. Rates from a local source are read from the property
// store by the scheduler; manual rates arrive with each rate sync call.
const (
	BaseRateSourceLocal  = "local"
	BaseRateSourceManual = "manual"
)

// SyncStrategy controls how an inventory cycle treats each channel.
type SyncStrategy string

const (
	StrategyPushOnly           SyncStrategy = "push_only"
	StrategyPullOnly           SyncStrategy = "pull_only"
	StrategyBidirectional      SyncStrategy = "bidirectional"
	StrategyConflictResolution SyncStrategy = "conflict_resolution"
)

// ResolutionPolicy decides which value wins when a conflict is resolved
// automatically.
type ResolutionPolicy string

const (
	PolicyFirstComeFirstServed ResolutionPolicy = "first_come_first_served"
	PolicyPriorityBased        ResolutionPolicy = "priority_based"
	PolicyMostRestrictive      ResolutionPolicy = "most_restrictive"
	PolicyManualReview         ResolutionPolicy = "manual_review"
)

// MarkupType selects how a channel markup is applied to the base rate.
type MarkupType string

const (
	MarkupPercentage MarkupType = "percentage"
	MarkupFixed      MarkupType = "fixed"
)

// Credentials holds the channel-specific authentication material. Which
// fields are used depends on the adapter.
type Credentials struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	HotelID  string `yaml:"hotel_id,omitempty" json:"hotel_id,omitempty"`
}

// ChannelRestrictions are per-channel stay and stop-sell limits.
type ChannelRestrictions struct {
	MinStay           int `yaml:"min_stay,omitempty" json:"min_stay,omitempty"`
	MaxStay           int `yaml:"max_stay,omitempty" json:"max_stay,omitempty"`
	StopSellThreshold int `yaml:"stop_sell_threshold,omitempty" json:"stop_sell_threshold,omitempty"`
}

// Markup is a percentage (10 means +10%) or fixed amount added to the base rate.
type Markup struct {
	Type  MarkupType `yaml:"type" json:"type"`
	Value float64    `yaml:"value" json:"value"`
}

// SeasonalRule multiplies rates for dates inside [Start, End].
type SeasonalRule struct {
	Name       string    `yaml:"name" json:"name"`
	Start      time.Time `yaml:"start" json:"start"`
	End        time.Time `yaml:"end" json:"end"`
	Multiplier float64   `yaml:"multiplier" json:"multiplier"`
}

// Window returns the rule's dates as a range.
func (s SeasonalRule) Window() DateRange {
	return DateRange{Start: s.Start, End: s.End}
}

// ChannelSettings is one channel's entry in a property configuration.
type ChannelSettings struct {
	// Name identifies the channel and selects the registered adapter.
	Name        string      `yaml:"name" json:"name"`
	Enabled     bool        `yaml:"enabled" json:"enabled"`
	SyncEnabled bool        `yaml:"sync_enabled" json:"sync_enabled"`
	AutoAccept  bool        `yaml:"auto_accept" json:"auto_accept"`
	Credentials Credentials `yaml:"credentials" json:"credentials"`

	// InventoryMapping maps local room-type ids to channel room ids.
	InventoryMapping map[string]string `yaml:"inventory_mapping" json:"inventory_mapping"`
	// RateMapping maps local room-type ids to channel rate-plan ids. Falls
	// back to InventoryMapping when a room type has no entry.
	RateMapping map[string]string `yaml:"rate_mapping,omitempty" json:"rate_mapping,omitempty"`

	Restrictions    ChannelRestrictions `yaml:"restrictions" json:"restrictions"`
	InventoryBuffer int                 `yaml:"inventory_buffer" json:"inventory_buffer"`
	Markup          Markup              `yaml:"markup" json:"markup"`
	MinimumRate     *float64            `yaml:"minimum_rate,omitempty" json:"minimum_rate,omitempty"`
	MaximumRate     *float64            `yaml:"maximum_rate,omitempty" json:"maximum_rate,omitempty"`

	SeasonalRules []SeasonalRule `yaml:"seasonal_rules,omitempty" json:"seasonal_rules,omitempty"`
	// DayOfWeekMultipliers is keyed by weekday name in any case ("monday").
	DayOfWeekMultipliers map[string]float64 `yaml:"day_of_week_multipliers,omitempty" json:"day_of_week_multipliers,omitempty"`
	WeekendMultiplier    float64            `yaml:"weekend_multiplier,omitempty" json:"weekend_multiplier,omitempty"`
}

// Active reports whether the channel participates in sync cycles.
func (c ChannelSettings) Active() bool {
	return c.Enabled && c.SyncEnabled
}

// ChannelRoomID maps a local room type to the channel's inventory id.
func (c ChannelSettings) ChannelRoomID(roomTypeID string) (string, bool) {
	id, ok := c.InventoryMapping[roomTypeID]
	return id, ok && id != ""
}

// ChannelRateID maps a local room type to the channel's rate id.
func (c ChannelSettings) ChannelRateID(roomTypeID string) (string, bool) {
	if id, ok := c.RateMapping[roomTypeID]; ok && id != "" {
		return id, true
	}
	return c.ChannelRoomID(roomTypeID)
}

// DayOfWeekMultiplier returns the multiplier configured for wd. Keys match
// weekday names in any case.
func (c ChannelSettings) DayOfWeekMultiplier(wd time.Weekday) (float64, bool) {
	for day, m := range c.DayOfWeekMultipliers {
		if d, ok := ParseWeekday(day); ok && d == wd {
			return m, true
		}
	}
	return 0, false
}

// LocalRoomType maps a channel inventory id back to the local room type.
func (c ChannelSettings) LocalRoomType(channelID string) (string, bool) {
	for local, remote := range c.InventoryMapping {
		if remote == channelID {
			return local, true
		}
	}
	for local, remote := range c.RateMapping {
		if remote == channelID {
			return local, true
		}
	}
	return "", false
}

// OverbookingProtection allows a bounded expansion of channel availability.
type OverbookingProtection struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Percentage float64 `yaml:"percentage" json:"percentage"`
	// RoomTypePercentages overrides Percentage per local room type.
	RoomTypePercentages map[string]float64 `yaml:"room_type_percentages,omitempty" json:"room_type_percentages,omitempty"`
}

// PercentageFor returns the overbooking allowance for a room type, or 0 when
// protection is disabled.
func (o OverbookingProtection) PercentageFor(roomTypeID string) float64 {
	if !o.Enabled {
		return 0
	}
	if p, ok := o.RoomTypePercentages[roomTypeID]; ok {
		return p
	}
	return o.Percentage
}

// InventorySyncSettings configures the inventory sync engine for a property.
type InventorySyncSettings struct {
	Enabled                 bool                  `yaml:"enabled" json:"enabled"`
	Strategy                SyncStrategy          `yaml:"strategy" json:"strategy"`
	Frequency               time.Duration         `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	ConflictResolution      ResolutionPolicy      `yaml:"conflict_resolution" json:"conflict_resolution"`
	MasterInventorySource   string                `yaml:"master_inventory_source" json:"master_inventory_source"`
	AutoCloseOnLowInventory bool                  `yaml:"auto_close_on_low_inventory" json:"auto_close_on_low_inventory"`
	OverbookingProtection   OverbookingProtection `yaml:"overbooking_protection" json:"overbooking_protection"`
	WindowDays              int                   `yaml:"window_days,omitempty" json:"window_days,omitempty"`
}

// OccupancyThreshold applies Multiplier when occupancy is at or above
// OccupancyPercentage.
type OccupancyThreshold struct {
	OccupancyPercentage float64 `yaml:"occupancy_percentage" json:"occupancy_percentage"`
	Multiplier          float64 `yaml:"multiplier" json:"multiplier"`
}

// DemandPricing applies a multiplier when the forward demand signal leaves
// the [LowThreshold, HighThreshold] band.
type DemandPricing struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	LookAheadDays  int     `yaml:"look_ahead_days" json:"look_ahead_days"`
	LowThreshold   float64 `yaml:"low_threshold" json:"low_threshold"`
	HighThreshold  float64 `yaml:"high_threshold" json:"high_threshold"`
	LowMultiplier  float64 `yaml:"low_multiplier" json:"low_multiplier"`
	HighMultiplier float64 `yaml:"high_multiplier" json:"high_multiplier"`
}

// DynamicPricing groups occupancy- and demand-based adjustments.
type DynamicPricing struct {
	Enabled             bool                 `yaml:"enabled" json:"enabled"`
	OccupancyThresholds []OccupancyThreshold `yaml:"occupancy_thresholds,omitempty" json:"occupancy_thresholds,omitempty"`
	Demand              DemandPricing        `yaml:"demand" json:"demand"`
}

// MarkupRule overrides a channel's own markup during rate sync.
type MarkupRule struct {
	Channel string     `yaml:"channel" json:"channel"`
	Type    MarkupType `yaml:"type" json:"type"`
	Value   float64    `yaml:"value" json:"value"`
}

// RateSyncSettings configures the rate pipeline for a property.
type RateSyncSettings struct {
	Enabled        bool           `yaml:"enabled" json:"enabled"`
	BaseRateSource string         `yaml:"base_rate_source" json:"base_rate_source"`
	Currency       string         `yaml:"currency,omitempty" json:"currency,omitempty"`
	MarkupRules    []MarkupRule   `yaml:"markup_rules,omitempty" json:"markup_rules,omitempty"`
	DynamicPricing DynamicPricing `yaml:"dynamic_pricing" json:"dynamic_pricing"`
}

// MarkupFor returns the markup for a channel, preferring a rate-sync
// markup rule over the channel's own setting.
func (r RateSyncSettings) MarkupFor(ch ChannelSettings) Markup {
	for _, m := range r.MarkupRules {
		if m.Channel == ch.Name {
			return Markup{Type: m.Type, Value: m.Value}
		}
	}
	return ch.Markup
}

// ChannelConfiguration is a property's distribution configuration. Channels
// keep their declared order, which is also the reporting order of results.
type ChannelConfiguration struct {
	PropertyID    string                `yaml:"id" json:"property_id"`
	Active        *bool                 `yaml:"active,omitempty" json:"active,omitempty"`
	Channels      []ChannelSettings     `yaml:"channels" json:"channels"`
	InventorySync InventorySyncSettings `yaml:"inventory_sync" json:"inventory_sync"`
	RateSync      RateSyncSettings      `yaml:"rate_sync" json:"rate_sync"`
	UpdatedAt     time.Time             `yaml:"-" json:"updated_at"`
}

// IsActive reports whether the property is enabled for scheduling. Unset
// means active.
func (c *ChannelConfiguration) IsActive() bool {
	return c.Active == nil || *c.Active
}

// Channel looks up a channel by name.
func (c *ChannelConfiguration) Channel(name string) (ChannelSettings, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelSettings{}, false
}

// ActiveChannels returns the enabled, sync-enabled channels in declared order.
func (c *ChannelConfiguration) ActiveChannels() []ChannelSettings {
	out := make([]ChannelSettings, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Active() {
			out = append(out, ch)
		}
	}
	return out
}

// EnabledChannels returns channels with Enabled set, ignoring SyncEnabled.
func (c *ChannelConfiguration) EnabledChannels() []ChannelSettings {
	out := make([]ChannelSettings, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// Validate checks the configuration for values the sync engine cannot act on.
func (c *ChannelConfiguration) Validate() error {
	if c.PropertyID == "" {
		return fmt.Errorf("property id is required")
	}
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d] has an empty name", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %q is configured twice", ch.Name)
		}
		seen[ch.Name] = true
		if ch.InventoryBuffer < 0 {
			return fmt.Errorf("channel %q: inventory_buffer must not be negative", ch.Name)
		}
		switch ch.Markup.Type {
		case "", MarkupPercentage, MarkupFixed:
		default:
			return fmt.Errorf("channel %q: unknown markup type %q", ch.Name, ch.Markup.Type)
		}
		if ch.MinimumRate != nil && ch.MaximumRate != nil && *ch.MinimumRate > *ch.MaximumRate {
			return fmt.Errorf("channel %q: minimum_rate %.2f exceeds maximum_rate %.2f", ch.Name, *ch.MinimumRate, *ch.MaximumRate)
		}
		days := make(map[time.Weekday]bool, len(ch.DayOfWeekMultipliers))
		for day := range ch.DayOfWeekMultipliers {
			wd, ok := ParseWeekday(day)
			if !ok {
				return fmt.Errorf("channel %q: unknown weekday %q", ch.Name, day)
			}
			if days[wd] {
				return fmt.Errorf("channel %q: weekday %s is configured twice", ch.Name, wd)
			}
			days[wd] = true
		}
	}

	inv := c.InventorySync
	switch inv.Strategy {
	case "", StrategyPushOnly, StrategyPullOnly, StrategyBidirectional, StrategyConflictResolution:
	default:
		return fmt.Errorf("unknown inventory_sync.strategy %q", inv.Strategy)
	}
	switch inv.ConflictResolution {
	case "", PolicyFirstComeFirstServed, PolicyPriorityBased, PolicyMostRestrictive, PolicyManualReview:
	default:
		return fmt.Errorf("unknown inventory_sync.conflict_resolution %q", inv.ConflictResolution)
	}
	if src := inv.MasterInventorySource; src != "" && src != MasterSourceLocal {
		if _, ok := c.Channel(src); !ok {
			return fmt.Errorf("master_inventory_source %q is neither %q nor a configured channel", src, MasterSourceLocal)
		}
	}
	if p := inv.OverbookingProtection.Percentage; p < 0 || p > 100 {
		return fmt.Errorf("overbooking_protection.percentage %.1f must be within 0-100", p)
	}
	switch c.RateSync.BaseRateSource {
	case "", BaseRateSourceLocal, BaseRateSourceManual:
	default:
		return fmt.Errorf("unknown rate_sync.base_rate_source %q", c.RateSync.BaseRateSource)
	}
	return nil
}

// ApplyDefaults fills unset inventory settings.
func (c *ChannelConfiguration) ApplyDefaults() {
	if c.InventorySync.Strategy == "" {
		c.InventorySync.Strategy = StrategyPushOnly
	}
	if c.InventorySync.ConflictResolution == "" {
		c.InventorySync.ConflictResolution = PolicyManualReview
	}
	if c.InventorySync.MasterInventorySource == "" {
		c.InventorySync.MasterInventorySource = MasterSourceLocal
	}
	if c.InventorySync.WindowDays <= 0 {
		c.InventorySync.WindowDays = 30
	}
	if c.RateSync.BaseRateSource == "" {
		c.RateSync.BaseRateSource = BaseRateSourceManual
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full weekday names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(s)]
	return d, ok
}
