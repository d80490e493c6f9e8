package inventory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/rules"
)

// demandLookAheadDays is the window demand-based allotments average over.
const demandLookAheadDays = 14

// cycle is the read-only snapshot one sync cycle works from: the
// configuration, the allotment rule set, and the master and local views.
type cycle struct {
	s      *Service
	cfg    model.ChannelConfiguration
	window model.DateRange
	today  time.Time
	rules  []model.AllotmentRule

	masterName string
	master     model.InventoryGrid
	masterErr  error
	local      map[string]model.LocalInventory
	roomTypes  []string

	// demandRooms lists room types with an active demand-based rule; the
	// signal is only consulted for those.
	demandRooms map[string]bool

	mu     sync.Mutex
	demand map[string]float64
	pulled map[string][]model.InventorySnapshot
}

func localKey(roomTypeID string, date time.Time) string {
	return roomTypeID + "|" + model.DateKey(date)
}

// newCycle loads the rule set and the master and local inventory for the
// window. A master channel that cannot be read is recorded in masterErr
// rather than failing the cycle.
func (s *Service) newCycle(ctx context.Context, cfg model.ChannelConfiguration, window model.DateRange) (*cycle, error) {
	allotments, err := s.store.AllotmentRules(ctx, cfg.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("loading allotment rules: %w", err)
	}
	rows, err := s.store.LocalInventory(ctx, cfg.PropertyID, nil, window)
	if err != nil {
		return nil, fmt.Errorf("loading local inventory: %w", err)
	}

	c := &cycle{
		s:           s,
		cfg:         cfg,
		window:      window,
		today:       model.Day(s.clock.Now()),
		rules:       allotments,
		masterName:  cfg.InventorySync.MasterInventorySource,
		master:      make(model.InventoryGrid),
		local:       make(map[string]model.LocalInventory, len(rows)),
		demandRooms: make(map[string]bool),
		demand:      make(map[string]float64),
		pulled:      make(map[string][]model.InventorySnapshot),
	}
	for _, r := range allotments {
		if r.Active && r.RuleType == model.AllotmentDemandBased {
			c.demandRooms[r.RoomTypeID] = true
		}
	}
	for _, r := range rows {
		c.local[localKey(r.RoomTypeID, r.Date)] = r
	}

	if c.masterName == model.MasterSourceLocal {
		for _, r := range rows {
			c.master.Set(model.InventorySnapshot{
				RoomTypeID:   r.RoomTypeID,
				Date:         r.Date,
				Availability: r.Available,
				Rate:         r.BaseRate,
				LastUpdated:  r.UpdatedAt,
			})
		}
	} else {
		src, _ := cfg.Channel(c.masterName)
		snaps, err := s.channels.FetchChannelInventory(ctx, cfg.PropertyID, c.masterName, mappedRoomTypes(src), window)
		if err != nil {
			c.masterErr = err
		}
		for _, snap := range snaps {
			c.master.Set(snap)
		}
	}

	for room := range c.master {
		c.roomTypes = append(c.roomTypes, room)
	}
	slices.Sort(c.roomTypes)
	return c, nil
}

// localAvailable returns the system-of-record availability for a slot, or
// zero when there is no local record.
func (c *cycle) localAvailable(roomTypeID string, date time.Time) int {
	return c.local[localKey(roomTypeID, date)].Available
}

func (c *cycle) occupancy(roomTypeID string, date time.Time) float64 {
	return c.local[localKey(roomTypeID, date)].Occupancy()
}

func (c *cycle) demandFor(ctx context.Context, roomTypeID string, date time.Time) float64 {
	if !c.demandRooms[roomTypeID] || c.s.demand == nil {
		return 0
	}
	key := localKey(roomTypeID, date)
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.demand[key]; ok {
		return v
	}
	v, err := c.s.demand.Demand(ctx, c.cfg.PropertyID, roomTypeID, date, demandLookAheadDays)
	if err != nil {
		c.s.log.Warn("demand signal unavailable", "property_id", c.cfg.PropertyID, "room_type_id", roomTypeID, "error", err)
		v = 0
	}
	c.demand[key] = v
	return v
}

// derive computes the availability a channel may sell for a slot from the
// master value: buffer, allotment cap, overbooking expansion, then stop-sell.
func (c *cycle) derive(ctx context.Context, ch model.ChannelSettings, roomTypeID string, date time.Time, master int) (int, bool) {
	master = max(master, 0)
	value := max(0, master-ch.InventoryBuffer)

	actx := rules.AllotmentContext{
		RoomTypeID: roomTypeID,
		Date:       date,
		Today:      c.today,
		Master:     master,
		Occupancy:  c.occupancy(roomTypeID, date),
		Demand:     c.demandFor(ctx, roomTypeID, date),
		Seasons:    ch.SeasonalRules,
	}
	if limit, ok := rules.ChannelCap(c.rules, ch.Name, actx); ok && limit < value {
		value = max(limit, 0)
	}

	if pct := c.cfg.InventorySync.OverbookingProtection.PercentageFor(roomTypeID); pct > 0 {
		value += int(math.Floor(float64(master) * pct / 100))
	}

	if c.cfg.InventorySync.AutoCloseOnLowInventory && value <= ch.Restrictions.StopSellThreshold {
		return 0, true
	}
	return value, false
}

// updates builds the push for a channel from the master view, limited to
// room types the channel maps.
func (c *cycle) updates(ctx context.Context, ch model.ChannelSettings) []model.InventoryUpdate {
	var out []model.InventoryUpdate
	for _, room := range c.roomTypes {
		if _, ok := ch.ChannelRoomID(room); !ok {
			continue
		}
		for _, day := range c.window.Days() {
			m, ok := c.master.Get(room, day)
			if !ok {
				continue
			}
			v, stop := c.derive(ctx, ch, room, day, m.Availability)
			out = append(out, model.InventoryUpdate{
				RoomTypeID:   room,
				Date:         day,
				Availability: v,
				Restrictions: restrictionsFor(ch, stop),
			})
		}
	}
	return out
}

func restrictionsFor(ch model.ChannelSettings, stopSell bool) model.Restrictions {
	r := model.Restrictions{StopSell: stopSell}
	if v := ch.Restrictions.MinStay; v > 0 {
		r.MinStay = &v
	}
	if v := ch.Restrictions.MaxStay; v > 0 {
		r.MaxStay = &v
	}
	return r
}

func mappedRoomTypes(ch model.ChannelSettings) []string {
	out := make([]string, 0, len(ch.InventoryMapping))
	for local, remote := range ch.InventoryMapping {
		if remote != "" {
			out = append(out, local)
		}
	}
	slices.Sort(out)
	return out
}
