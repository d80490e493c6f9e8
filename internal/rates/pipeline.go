package rates

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/rules"
)

// defaultLookAheadDays is used when demand pricing has no look-ahead set.
const defaultLookAheadDays = 14

// Stage names a step of the rate pipeline.
type Stage string

const (
	StageMarkup      Stage = "markup"
	StageOccupancy   Stage = "occupancy"
	StageDemand      Stage = "demand"
	StageSeasonal    Stage = "seasonal"
	StageDayOfWeek   Stage = "day_of_week"
	StagePricingRule Stage = "pricing_rule"
	StageRounding    Stage = "rounding"
	StageClamp       Stage = "clamp"
)

// Step is one adjustment made to a rate.
type Step struct {
	Stage  Stage           `json:"stage"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	Rate   decimal.Decimal `json:"rate"`
}

// RatePreview is the computed rate for one channel, room type and date,
// with every step that produced it.
type RatePreview struct {
	ChannelName  string          `json:"channel_name"`
	RoomTypeID   string          `json:"room_type_id"`
	Date         time.Time       `json:"date"`
	Currency     string          `json:"currency"`
	OriginalRate decimal.Decimal `json:"original_rate"`
	Steps        []Step          `json:"steps"`
	FinalRate    decimal.Decimal `json:"final_rate"`
}

var hundred = decimal.NewFromInt(100)

// pricer holds what a rate cycle reads once: configuration, the ordered
// pricing rules, and local occupancy.
type pricer struct {
	s          *Service
	cfg        model.ChannelConfiguration
	today      time.Time
	rules      []model.PricingRule
	thresholds []model.OccupancyThreshold
	local      map[string]model.LocalInventory

	mu     sync.Mutex
	demand map[string]*float64
}

func localKey(roomTypeID string, date time.Time) string {
	return roomTypeID + "|" + model.DateKey(date)
}

func (s *Service) newPricer(ctx context.Context, cfg model.ChannelConfiguration, window model.DateRange) (*pricer, error) {
	all, err := s.store.PricingRules(ctx, cfg.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("loading pricing rules: %w", err)
	}
	rows, err := s.store.LocalInventory(ctx, cfg.PropertyID, nil, window)
	if err != nil {
		return nil, fmt.Errorf("loading local inventory: %w", err)
	}
	p := &pricer{
		s:      s,
		cfg:    cfg,
		today:  model.Day(s.clock.Now()),
		rules:  rules.OrderPricingRules(all),
		local:  make(map[string]model.LocalInventory, len(rows)),
		demand: make(map[string]*float64),
	}
	for _, r := range rows {
		p.local[localKey(r.RoomTypeID, r.Date)] = r
	}
	p.thresholds = slices.Clone(cfg.RateSync.DynamicPricing.OccupancyThresholds)
	slices.SortStableFunc(p.thresholds, func(a, b model.OccupancyThreshold) int {
		switch {
		case a.OccupancyPercentage > b.OccupancyPercentage:
			return -1
		case a.OccupancyPercentage < b.OccupancyPercentage:
			return 1
		}
		return 0
	})
	return p, nil
}

func (p *pricer) occupancy(roomTypeID string, date time.Time) float64 {
	return p.local[localKey(roomTypeID, date)].Occupancy()
}

// demandFor returns the demand signal for a slot, or false when it could
// not be read. Results, including failures, are cached for the cycle.
func (p *pricer) demandFor(ctx context.Context, roomTypeID string, date time.Time) (float64, bool) {
	if p.s.demand == nil {
		return 0, false
	}
	key := localKey(roomTypeID, date)
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.demand[key]; ok {
		if v == nil {
			return 0, false
		}
		return *v, true
	}
	look := p.cfg.RateSync.DynamicPricing.Demand.LookAheadDays
	if look <= 0 {
		look = defaultLookAheadDays
	}
	v, err := p.s.demand.Demand(ctx, p.cfg.PropertyID, roomTypeID, date, look)
	if err != nil {
		p.s.log.Warn("demand signal unavailable", "property_id", p.cfg.PropertyID, "room_type_id", roomTypeID, "error", err)
		p.demand[key] = nil
		return 0, false
	}
	p.demand[key] = &v
	return v, true
}

// price runs the pipeline for one channel, room type and date.
func (p *pricer) price(ctx context.Context, ch model.ChannelSettings, roomTypeID string, date time.Time, base decimal.Decimal) (decimal.Decimal, []Step) {
	rate := base
	var steps []Step
	step := func(stage Stage, next decimal.Decimal, reason string) {
		steps = append(steps, Step{Stage: stage, Amount: next.Sub(rate), Reason: reason, Rate: next})
		rate = next
	}
	multiply := func(stage Stage, m float64, reason string) {
		if m <= 0 || m == 1 {
			return
		}
		step(stage, rate.Mul(decimal.NewFromFloat(m)), fmt.Sprintf("%s ×%g", reason, m))
	}

	switch mk := p.cfg.RateSync.MarkupFor(ch); {
	case mk.Value == 0:
	case mk.Type == model.MarkupFixed:
		step(StageMarkup, rate.Add(decimal.NewFromFloat(mk.Value)), fmt.Sprintf("%s markup %+.2f", ch.Name, mk.Value))
	default:
		pct := decimal.NewFromFloat(mk.Value)
		step(StageMarkup, rate.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred))), fmt.Sprintf("%s markup %+g%%", ch.Name, mk.Value))
	}

	if dp := p.cfg.RateSync.DynamicPricing; dp.Enabled {
		occ := p.occupancy(roomTypeID, date)
		for _, t := range p.thresholds {
			if t.OccupancyPercentage <= occ {
				multiply(StageOccupancy, t.Multiplier, fmt.Sprintf("occupancy %.0f%% at or above %.0f%%", occ, t.OccupancyPercentage))
				break
			}
		}
		if dp.Demand.Enabled {
			if d, ok := p.demandFor(ctx, roomTypeID, date); ok {
				switch {
				case d < dp.Demand.LowThreshold:
					multiply(StageDemand, dp.Demand.LowMultiplier, fmt.Sprintf("low demand %.2f", d))
				case d > dp.Demand.HighThreshold:
					multiply(StageDemand, dp.Demand.HighMultiplier, fmt.Sprintf("high demand %.2f", d))
				}
			}
		}
	}

	for _, season := range ch.SeasonalRules {
		if season.Window().Contains(date) {
			multiply(StageSeasonal, season.Multiplier, fmt.Sprintf("season %q", season.Name))
			break
		}
	}

	if m, ok := ch.DayOfWeekMultiplier(date.Weekday()); ok {
		multiply(StageDayOfWeek, m, strings.ToLower(date.Weekday().String()))
	} else if wd := date.Weekday(); (wd == time.Saturday || wd == time.Sunday) && ch.WeekendMultiplier > 0 {
		multiply(StageDayOfWeek, ch.WeekendMultiplier, "weekend")
	}

	pctx := rules.PricingContext{RoomTypeID: roomTypeID, Date: date, Today: p.today, Occupancy: p.occupancy(roomTypeID, date)}
	// Rules run highest priority first; an absolute price ends the stage so
	// a lower-priority rule never replaces it.
	for _, r := range p.rules {
		if !rules.PricingMatches(r, pctx) {
			continue
		}
		step(StagePricingRule, rules.Apply(rate, r.Adjustment), rules.Describe(r))
		if r.Adjustment.Type == model.AdjustSetPrice {
			break
		}
	}

	if rounded := rate.Round(2); !rounded.Equal(rate) {
		step(StageRounding, rounded, "rounded to 2 decimals")
	}

	if ch.MinimumRate != nil {
		if lo := decimal.NewFromFloat(*ch.MinimumRate); rate.LessThan(lo) {
			step(StageClamp, lo, fmt.Sprintf("raised to minimum %.2f", *ch.MinimumRate))
		}
	}
	if ch.MaximumRate != nil {
		if hi := decimal.NewFromFloat(*ch.MaximumRate); rate.GreaterThan(hi) {
			step(StageClamp, hi, fmt.Sprintf("capped at maximum %.2f", *ch.MaximumRate))
		}
	}
	return rate, steps
}
