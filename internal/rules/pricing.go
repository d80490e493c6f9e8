package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

// PricingContext is one (room type, date) as seen by pricing rules.
type PricingContext struct {
	RoomTypeID string
	Date       time.Time
	Today      time.Time
	// Occupancy is the current booked share in percent.
	Occupancy float64
	// LengthOfStay is zero when unknown, as for nightly rate pushes.
	LengthOfStay int
}

// LeadDays is the number of days from today to the stay date.
func (c PricingContext) LeadDays() int {
	return model.DaysBetween(c.Today, c.Date)
}

// OrderPricingRules returns the active rules in application order:
// descending priority, ties in insertion order.
func OrderPricingRules(all []model.PricingRule) []model.PricingRule {
	out := make([]model.PricingRule, 0, len(all))
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// PricingMatches reports whether a rule applies to the context. A
// length-of-stay condition never matches an unknown stay length.
func PricingMatches(r model.PricingRule, c PricingContext) bool {
	if !r.Active {
		return false
	}
	if r.RoomTypeID != "" && r.RoomTypeID != c.RoomTypeID {
		return false
	}
	if r.DateRange != nil && !r.DateRange.Contains(c.Date) {
		return false
	}
	if !weekdayMatches(r.DaysOfWeek, c.Date) {
		return false
	}

	cond := r.Conditions
	if cond.OccupancyMin != nil && c.Occupancy < *cond.OccupancyMin {
		return false
	}
	if cond.OccupancyMax != nil && c.Occupancy > *cond.OccupancyMax {
		return false
	}
	lead := c.LeadDays()
	if cond.LeadTimeMin != nil && lead < *cond.LeadTimeMin {
		return false
	}
	if cond.LeadTimeMax != nil && lead > *cond.LeadTimeMax {
		return false
	}
	if cond.LengthOfStayMin != nil || cond.LengthOfStayMax != nil {
		if c.LengthOfStay <= 0 {
			return false
		}
		if cond.LengthOfStayMin != nil && c.LengthOfStay < *cond.LengthOfStayMin {
			return false
		}
		if cond.LengthOfStayMax != nil && c.LengthOfStay > *cond.LengthOfStayMax {
			return false
		}
	}
	return true
}

// Apply returns the rate after the adjustment. Negative results are
// floored at zero.
func Apply(rate decimal.Decimal, adj model.Adjustment) decimal.Decimal {
	v := decimal.NewFromFloat(adj.Value)
	var out decimal.Decimal
	switch adj.Type {
	case model.AdjustFixedAmount:
		out = rate.Add(v)
	case model.AdjustPercentage:
		out = rate.Mul(decimal.NewFromInt(1).Add(v.Div(decimal.NewFromInt(100))))
	case model.AdjustSetPrice:
		out = v
	default:
		return rate
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Describe renders an adjustment for previews.
func Describe(r model.PricingRule) string {
	switch r.Adjustment.Type {
	case model.AdjustFixedAmount:
		return fmt.Sprintf("rule %q (priority %d): %+.2f", r.Name, r.Priority, r.Adjustment.Value)
	case model.AdjustPercentage:
		return fmt.Sprintf("rule %q (priority %d): %+.1f%%", r.Name, r.Priority, r.Adjustment.Value)
	case model.AdjustSetPrice:
		return fmt.Sprintf("rule %q (priority %d): set to %.2f", r.Name, r.Priority, r.Adjustment.Value)
	}
	return fmt.Sprintf("rule %q", r.Name)
}
