package model

import (
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDateRange_Days(t *testing.T) {
	r := DateRange{Start: date("2024-06-29"), End: date("2024-07-02")}
	days := r.Days()
	if len(days) != 4 {
		t.Fatalf("Days() len = %d, want 4", len(days))
	}
	if DateKey(days[0]) != "2024-06-29" || DateKey(days[3]) != "2024-07-02" {
		t.Errorf("Days() = %v..%v", DateKey(days[0]), DateKey(days[3]))
	}
}

func TestDateRange_SingleDay(t *testing.T) {
	r := DateRange{Start: date("2024-06-15"), End: date("2024-06-15")}
	if got := len(r.Days()); got != 1 {
		t.Errorf("Days() len = %d, want 1", got)
	}
	if !r.Contains(time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)) {
		t.Error("Contains should ignore time of day")
	}
}

func TestDateRange_Validate(t *testing.T) {
	cases := []struct {
		name string
		r    DateRange
		ok   bool
	}{
		{"valid", DateRange{Start: date("2024-01-01"), End: date("2024-01-31")}, true},
		{"reversed", DateRange{Start: date("2024-02-01"), End: date("2024-01-31")}, false},
		{"zero end", DateRange{Start: date("2024-02-01")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidDateRange) {
				t.Fatalf("error = %v, want ErrInvalidDateRange", err)
			}
		})
	}
}

func TestNewDateRange(t *testing.T) {
	r := NewDateRange(time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC), 3)
	if r.String() != "2024-07-01..2024-07-03" {
		t.Errorf("range = %s", r)
	}
}

func TestConflictStatus_CanTransition(t *testing.T) {
	if !ConflictPending.CanTransition(ConflictResolved) {
		t.Error("pending → resolved must be allowed")
	}
	if !ConflictPending.CanTransition(ConflictIgnored) {
		t.Error("pending → ignored must be allowed")
	}
	for _, from := range []ConflictStatus{ConflictResolved, ConflictIgnored} {
		for _, to := range []ConflictStatus{ConflictPending, ConflictResolved, ConflictIgnored} {
			if from.CanTransition(to) {
				t.Errorf("%s → %s must be rejected", from, to)
			}
		}
	}
}

func TestInventoryConflict_KeyIgnoresValues(t *testing.T) {
	a := InventoryConflict{
		PropertyID: "p1", RoomTypeID: "deluxe", Date: date("2024-07-01"),
		Channels: []ConflictSide{{Name: SideLocal, Inventory: 5}, {Name: "A", Inventory: 3}},
	}
	b := a
	b.Channels = []ConflictSide{{Name: SideLocal, Inventory: 9}, {Name: "A", Inventory: 1}}
	if a.Key() != b.Key() {
		t.Error("Key should not depend on inventory values")
	}
	c := a
	c.Channels = []ConflictSide{{Name: SideLocal}, {Name: "B"}}
	if a.Key() == c.Key() {
		t.Error("Key should depend on the sides involved")
	}
	if a.ChannelName() != "A" {
		t.Errorf("ChannelName = %q, want A", a.ChannelName())
	}
	three := InventoryConflict{Channels: []ConflictSide{{Name: "M"}, {Name: SideLocal}, {Name: "B"}}}
	if three.ChannelName() != "B" {
		t.Errorf("ChannelName with a channel master = %q, want B", three.ChannelName())
	}
}

func TestChannelConfiguration_Validate(t *testing.T) {
	lo, hi := 300.0, 100.0
	cases := []struct {
		name string
		cfg  ChannelConfiguration
	}{
		{"missing property", ChannelConfiguration{}},
		{"duplicate channel", ChannelConfiguration{PropertyID: "p", Channels: []ChannelSettings{{Name: "A"}, {Name: "A"}}}},
		{"bad clamp", ChannelConfiguration{PropertyID: "p", Channels: []ChannelSettings{{Name: "A", MinimumRate: &lo, MaximumRate: &hi}}}},
		{"bad strategy", ChannelConfiguration{PropertyID: "p", InventorySync: InventorySyncSettings{Strategy: "sideways"}}},
		{"unknown master", ChannelConfiguration{PropertyID: "p", InventorySync: InventorySyncSettings{MasterInventorySource: "ghost"}}},
		{"bad weekday", ChannelConfiguration{PropertyID: "p", Channels: []ChannelSettings{{Name: "A", DayOfWeekMultipliers: map[string]float64{"funday": 2}}}}},
		{"weekday twice", ChannelConfiguration{PropertyID: "p", Channels: []ChannelSettings{{Name: "A", DayOfWeekMultipliers: map[string]float64{"Monday": 2, "monday": 1.5}}}}},
		{"bad rate source", ChannelConfiguration{PropertyID: "p", RateSync: RateSyncSettings{BaseRateSource: "spreadsheet"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}

	ok := ChannelConfiguration{
		PropertyID: "p",
		Channels:   []ChannelSettings{{Name: "A", Enabled: true, SyncEnabled: true}, {Name: "B", Enabled: true}},
		InventorySync: InventorySyncSettings{
			Strategy:              StrategyConflictResolution,
			MasterInventorySource: "A",
		},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(ok.ActiveChannels()); got != 1 {
		t.Errorf("ActiveChannels len = %d, want 1", got)
	}
	if got := len(ok.EnabledChannels()); got != 2 {
		t.Errorf("EnabledChannels len = %d, want 2", got)
	}
}

func TestChannelSettings_Mapping(t *testing.T) {
	ch := ChannelSettings{
		InventoryMapping: map[string]string{"deluxe": "DLX"},
		RateMapping:      map[string]string{"suite": "STE-BAR"},
	}
	if id, ok := ch.ChannelRateID("deluxe"); !ok || id != "DLX" {
		t.Errorf("ChannelRateID(deluxe) = %q, %v; want fallback to inventory mapping", id, ok)
	}
	if _, ok := ch.ChannelRoomID("suite"); ok {
		t.Error("suite has no inventory mapping")
	}
	if local, ok := ch.LocalRoomType("STE-BAR"); !ok || local != "suite" {
		t.Errorf("LocalRoomType(STE-BAR) = %q, %v", local, ok)
	}
}

func TestLocalInventory_Occupancy(t *testing.T) {
	l := LocalInventory{Total: 10, Available: 3}
	if got := l.Occupancy(); got != 70 {
		t.Errorf("Occupancy = %v, want 70", got)
	}
	if got := (LocalInventory{}).Occupancy(); got != 0 {
		t.Errorf("Occupancy with no rooms = %v, want 0", got)
	}
}

func TestChannelSettings_DayOfWeekMultiplier(t *testing.T) {
	ch := ChannelSettings{DayOfWeekMultipliers: map[string]float64{"Monday": 2, "FRIDAY": 1.3}}
	if m, ok := ch.DayOfWeekMultiplier(time.Monday); !ok || m != 2 {
		t.Errorf("Monday = %v, %v; want 2", m, ok)
	}
	if m, ok := ch.DayOfWeekMultiplier(time.Friday); !ok || m != 1.3 {
		t.Errorf("Friday = %v, %v; want 1.3", m, ok)
	}
	if _, ok := ch.DayOfWeekMultiplier(time.Tuesday); ok {
		t.Error("Tuesday has no multiplier")
	}
}
