package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

var (
	today  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	monday = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

func fixedRule(channelName string, allocation float64) model.AllotmentRule {
	return model.AllotmentRule{
		RoomTypeID:  "deluxe",
		ChannelName: channelName,
		RuleType:    model.AllotmentFixed,
		Allocation:  allocation,
		Active:      true,
	}
}

func allotmentCtx(master int) AllotmentContext {
	return AllotmentContext{RoomTypeID: "deluxe", Date: monday, Today: today, Master: master}
}

// ---------------------------------------------------------------------------
// Allotment rules
// ---------------------------------------------------------------------------

func TestAllotmentCap_Types(t *testing.T) {
	tests := []struct {
		name   string
		rule   model.AllotmentRule
		master int
		demand float64
		want   int
	}{
		{"fixed", fixedRule("A", 3), 5, 0, 3},
		{"percentage floors", model.AllotmentRule{RuleType: model.AllotmentPercentage, Allocation: 25}, 10, 0, 2},
		{"demand neutral", model.AllotmentRule{RuleType: model.AllotmentDemandBased, Allocation: 40}, 10, 0.5, 4},
		{"demand low", model.AllotmentRule{RuleType: model.AllotmentDemandBased, Allocation: 40}, 10, 0, 2},
		{"demand capped at 100%", model.AllotmentRule{RuleType: model.AllotmentDemandBased, Allocation: 80}, 10, 1, 10},
		{"seasonal", model.AllotmentRule{RuleType: model.AllotmentSeasonal, Allocation: 6}, 10, 0, 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := allotmentCtx(tc.master)
			c.Demand = tc.demand
			if got := AllotmentCap(tc.rule, c); got != tc.want {
				t.Errorf("AllotmentCap = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAllotmentMatches_Conditions(t *testing.T) {
	base := fixedRule("A", 3)

	t.Run("inactive", func(t *testing.T) {
		r := base
		r.Active = false
		if AllotmentMatches(r, allotmentCtx(5)) {
			t.Error("inactive rule matched")
		}
	})

	t.Run("other room type", func(t *testing.T) {
		c := allotmentCtx(5)
		c.RoomTypeID = "standard"
		if AllotmentMatches(base, c) {
			t.Error("rule matched another room type")
		}
	})

	t.Run("days of week", func(t *testing.T) {
		r := base
		r.Conditions.DaysOfWeek = []string{"saturday", "Sunday"}
		if AllotmentMatches(r, allotmentCtx(5)) {
			t.Error("weekend rule matched a Monday")
		}
		r.Conditions.DaysOfWeek = []string{"MONDAY"}
		if !AllotmentMatches(r, allotmentCtx(5)) {
			t.Error("monday rule did not match")
		}
	})

	t.Run("occupancy threshold", func(t *testing.T) {
		r := base
		r.Conditions.OccupancyThreshold = ptr(70.0)
		c := allotmentCtx(5)
		c.Occupancy = 69.9
		if AllotmentMatches(r, c) {
			t.Error("matched below threshold")
		}
		c.Occupancy = 70
		if !AllotmentMatches(r, c) {
			t.Error("did not match at threshold")
		}
	})

	t.Run("seasonal window", func(t *testing.T) {
		r := model.AllotmentRule{
			RoomTypeID: "deluxe", ChannelName: "A", RuleType: model.AllotmentSeasonal, Allocation: 2, Active: true,
			Conditions: model.AllotmentConditions{
				DateRange:  &model.DateRange{Start: monday.AddDate(0, 0, -10), End: monday.AddDate(0, 0, 10)},
				SeasonType: "summer",
			},
		}
		c := allotmentCtx(5)
		if AllotmentMatches(r, c) {
			t.Error("matched without the named season")
		}
		c.Seasons = []model.SeasonalRule{{Name: "summer", Start: monday, End: monday.AddDate(0, 1, 0), Multiplier: 1.2}}
		if !AllotmentMatches(r, c) {
			t.Error("did not match inside the season")
		}
		c.Date = monday.AddDate(0, 0, 11)
		if AllotmentMatches(r, c) {
			t.Error("matched outside the rule's date range")
		}
	})
}

func TestChannelCap_MostRestrictiveWins(t *testing.T) {
	all := []model.AllotmentRule{fixedRule("A", 6), fixedRule("A", 3), fixedRule("B", 1)}
	got, ok := ChannelCap(all, "A", allotmentCtx(5))
	if !ok || got != 3 {
		t.Errorf("ChannelCap = %d, %v; want 3, true", got, ok)
	}
	if _, ok := ChannelCap(all, "C", allotmentCtx(5)); ok {
		t.Error("channel without rules reported a cap")
	}
}

func TestChannelCap_Release(t *testing.T) {
	toGeneral := fixedRule("A", 2)
	toGeneral.ReleaseRules = model.ReleaseRules{ReleaseWindow: 7, ReleaseToGeneral: true}

	toB := fixedRule("A", 2)
	toB.ReleaseRules = model.ReleaseRules{ReleaseWindow: 7, ReleaseToChannel: "B"}

	far := allotmentCtx(10)
	near := allotmentCtx(10)
	near.Today = monday.AddDate(0, 0, -3)

	if got, ok := ChannelCap([]model.AllotmentRule{toGeneral}, "A", far); !ok || got != 2 {
		t.Errorf("before release = %d, %v; want 2, true", got, ok)
	}
	if _, ok := ChannelCap([]model.AllotmentRule{toGeneral}, "A", near); ok {
		t.Error("released rule still caps its channel")
	}

	rules := []model.AllotmentRule{toB, fixedRule("B", 4)}
	if got, _ := ChannelCap(rules, "B", far); got != 4 {
		t.Errorf("B before release = %d, want 4", got)
	}
	if got, _ := ChannelCap(rules, "B", near); got != 6 {
		t.Errorf("B after release = %d, want 4+2", got)
	}

	noDestination := fixedRule("A", 2)
	noDestination.ReleaseRules = model.ReleaseRules{ReleaseWindow: 7}
	if got, ok := ChannelCap([]model.AllotmentRule{noDestination}, "A", near); !ok || got != 2 {
		t.Errorf("rule without destination = %d, %v; want 2, true", got, ok)
	}
}

// ---------------------------------------------------------------------------
// Pricing rules
// ---------------------------------------------------------------------------

func TestOrderPricingRules(t *testing.T) {
	all := []model.PricingRule{
		{Name: "low", Priority: 5, Sequence: 1, Active: true},
		{Name: "off", Priority: 99, Sequence: 2, Active: false},
		{Name: "high-second", Priority: 10, Sequence: 4, Active: true},
		{Name: "high-first", Priority: 10, Sequence: 3, Active: true},
	}
	got := OrderPricingRules(all)
	want := []string{"high-first", "high-second", "low"}
	if len(got) != len(want) {
		t.Fatalf("ordered %d rules, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d = %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestPricingMatches(t *testing.T) {
	c := PricingContext{RoomTypeID: "deluxe", Date: monday, Today: today, Occupancy: 55}

	tests := []struct {
		name string
		rule model.PricingRule
		want bool
	}{
		{"unconditional", model.PricingRule{Active: true}, true},
		{"inactive", model.PricingRule{}, false},
		{"room type", model.PricingRule{Active: true, RoomTypeID: "standard"}, false},
		{"date range", model.PricingRule{Active: true, DateRange: &model.DateRange{Start: monday, End: monday}}, true},
		{"weekday", model.PricingRule{Active: true, DaysOfWeek: []string{"friday"}}, false},
		{"occupancy band", model.PricingRule{Active: true, Conditions: model.PricingConditions{OccupancyMin: ptr(50.0), OccupancyMax: ptr(60.0)}}, true},
		{"occupancy too low", model.PricingRule{Active: true, Conditions: model.PricingConditions{OccupancyMin: ptr(60.0)}}, false},
		{"lead time", model.PricingRule{Active: true, Conditions: model.PricingConditions{LeadTimeMin: ptr(14), LeadTimeMax: ptr(45)}}, true},
		{"last minute only", model.PricingRule{Active: true, Conditions: model.PricingConditions{LeadTimeMax: ptr(7)}}, false},
		{"length of stay unknown", model.PricingRule{Active: true, Conditions: model.PricingConditions{LengthOfStayMin: ptr(1)}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PricingMatches(tc.rule, c); got != tc.want {
				t.Errorf("PricingMatches = %v, want %v", got, tc.want)
			}
		})
	}

	withStay := c
	withStay.LengthOfStay = 3
	r := model.PricingRule{Active: true, Conditions: model.PricingConditions{LengthOfStayMin: ptr(2), LengthOfStayMax: ptr(5)}}
	if !PricingMatches(r, withStay) {
		t.Error("length-of-stay rule did not match a known 3-night stay")
	}
}

func TestApply(t *testing.T) {
	rate := decimal.NewFromInt(200)
	tests := []struct {
		adj  model.Adjustment
		want string
	}{
		{model.Adjustment{Type: model.AdjustFixedAmount, Value: -25}, "175"},
		{model.Adjustment{Type: model.AdjustPercentage, Value: 15}, "230"},
		{model.Adjustment{Type: model.AdjustSetPrice, Value: 99.5}, "99.5"},
		{model.Adjustment{Type: model.AdjustFixedAmount, Value: -500}, "0"},
		{model.Adjustment{Type: "bogus", Value: 1}, "200"},
	}
	for _, tc := range tests {
		if got := Apply(rate, tc.adj); !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("Apply(%s %v) = %s, want %s", tc.adj.Type, tc.adj.Value, got, tc.want)
		}
	}
}
