// Package rules evaluates allotment and pricing rules against a sync
// context. Evaluators are pure: they read the rule and the context and
// never touch storage or the network.
package rules

import (
	"math"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
)

// Unlimited is the cap reported when no allotment rule restricts a channel.
const Unlimited = math.MaxInt

// AllotmentContext is one (room type, date) as seen by allotment rules.
type AllotmentContext struct {
	RoomTypeID string
	Date       time.Time
	// Today anchors release windows.
	Today time.Time
	// Master is the authoritative availability before channel adjustments.
	Master int
	// Occupancy is the booked share in percent.
	Occupancy float64
	// Demand is the forward demand signal in [0, 1].
	Demand float64
	// Seasons are the target channel's named seasonal windows.
	Seasons []model.SeasonalRule
}

// LeadDays is the number of days from today to the stay date.
func (c AllotmentContext) LeadDays() int {
	return model.DaysBetween(c.Today, c.Date)
}

// AllotmentMatches reports whether a rule's conditions hold for the context.
// Inactive rules and rules for other room types never match.
func AllotmentMatches(r model.AllotmentRule, c AllotmentContext) bool {
	if !r.Active || r.RoomTypeID != c.RoomTypeID {
		return false
	}
	cond := r.Conditions
	if cond.DateRange != nil && !cond.DateRange.Contains(c.Date) {
		return false
	}
	if !weekdayMatches(cond.DaysOfWeek, c.Date) {
		return false
	}
	if cond.OccupancyThreshold != nil && c.Occupancy < *cond.OccupancyThreshold {
		return false
	}
	if r.RuleType == model.AllotmentSeasonal && cond.SeasonType != "" {
		return inSeason(c.Seasons, cond.SeasonType, c.Date)
	}
	return true
}

// AllotmentCap computes the number of rooms a matching rule leaves the
// channel.
func AllotmentCap(r model.AllotmentRule, c AllotmentContext) int {
	master := max(c.Master, 0)
	switch r.RuleType {
	case model.AllotmentFixed, model.AllotmentSeasonal:
		return int(math.Floor(r.Allocation))
	case model.AllotmentPercentage:
		return int(math.Floor(float64(master) * r.Allocation / 100))
	case model.AllotmentDemandBased:
		share := math.Min(100, r.Allocation*(0.5+clamp01(c.Demand)))
		return int(math.Floor(float64(master) * share / 100))
	}
	return Unlimited
}

// Released reports whether a rule's release window has been reached. A rule
// with no release destination keeps capping its channel.
func Released(r model.AllotmentRule, c AllotmentContext) bool {
	rel := r.ReleaseRules
	if rel.ReleaseWindow <= 0 || (!rel.ReleaseToGeneral && rel.ReleaseToChannel == "") {
		return false
	}
	lead := c.LeadDays()
	return lead >= 0 && lead <= rel.ReleaseWindow
}

// ChannelCap folds every rule of a property into the cap for one channel:
// the most restrictive matching, unreleased rule of that channel, raised by
// the allocation of any released rule redirected to it. ok is false when no
// rule caps the channel.
func ChannelCap(all []model.AllotmentRule, channelName string, c AllotmentContext) (limit int, ok bool) {
	limit = Unlimited
	bonus := 0
	for _, r := range all {
		if !AllotmentMatches(r, c) {
			continue
		}
		released := Released(r, c)
		if released && r.ReleaseRules.ReleaseToChannel == channelName && r.ChannelName != channelName {
			bonus += AllotmentCap(r, c)
			continue
		}
		if r.ChannelName != channelName || released {
			continue
		}
		if v := AllotmentCap(r, c); v < limit {
			limit = v
		}
		ok = true
	}
	if !ok {
		return Unlimited, false
	}
	return max(limit+bonus, 0), true
}

func weekdayMatches(days []string, date time.Time) bool {
	if len(days) == 0 {
		return true
	}
	wd := date.Weekday()
	for _, d := range days {
		if w, ok := model.ParseWeekday(d); ok && w == wd {
			return true
		}
	}
	return false
}

func inSeason(seasons []model.SeasonalRule, name string, date time.Time) bool {
	for _, s := range seasons {
		if s.Name == name && s.Window().Contains(date) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
