package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/njoerd114/channelsync/internal/model"
	"github.com/njoerd114/channelsync/internal/state"
)

// Action is what an operator does with a pending conflict.
type Action string

const (
	ActionResolve Action = "resolve"
	ActionIgnore  Action = "ignore"
)

// Resolution is an operator decision on a conflict. Value is the
// availability the channel should end up with; nil accepts the suggested
// value.
type Resolution struct {
	Action Action
	Value  *int
}

// reconcile compares the channel's reported availability with what the
// master view says it should be and records a conflict for each mismatch.
// Under conflict_resolution with an automatic policy the conflict is
// resolved and pushed in the same cycle.
func (c *cycle) reconcile(ctx context.Context, ch model.ChannelSettings, res *model.InventorySyncResult) {
	snaps, ok := c.fetch(ctx, ch, res)
	if !ok {
		return
	}
	policy := c.cfg.InventorySync.ConflictResolution
	auto := c.cfg.InventorySync.Strategy == model.StrategyConflictResolution && policy != model.PolicyManualReview

	var resolved []*model.InventoryConflict
	for _, snap := range snaps {
		m, ok := c.master.Get(snap.RoomTypeID, snap.Date)
		if !ok {
			continue
		}
		expected, _ := c.derive(ctx, ch, snap.RoomTypeID, snap.Date, m.Availability)
		if snap.Availability == expected {
			continue
		}

		conflict := c.newConflict(ctx, ch, m, expected, snap)
		switch {
		case auto:
			conflict.SuggestedResolution = suggest(policy, conflict.Channels)
		case c.cfg.InventorySync.Strategy == model.StrategyConflictResolution:
			conflict.SuggestedResolution = model.SuggestedResolution{
				Type:   model.ResolutionManualReview,
				Value:  lowest(conflict.Channels),
				Reason: "awaiting operator review",
			}
		default:
			conflict.SuggestedResolution = model.SuggestedResolution{
				Type:   model.ResolutionUseLowest,
				Value:  lowest(conflict.Channels),
				Reason: "conservative",
			}
		}

		if auto {
			if err := c.writeBack(ctx, ch, conflict); err != nil {
				res.Errors = append(res.Errors, err.Error())
			} else {
				now := c.s.clock.Now()
				conflict.Status = model.ConflictResolved
				conflict.ResolvedAt = &now
				resolved = append(resolved, conflict)
			}
		}
		if err := c.s.store.SaveConflict(ctx, conflict); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("recording conflict: %v", err))
			continue
		}
		res.Conflicts = append(res.Conflicts, *conflict)
	}

	if len(resolved) > 0 {
		updates := make([]model.InventoryUpdate, 0, len(resolved))
		for _, rc := range resolved {
			updates = append(updates, c.resolvedUpdate(ctx, ch, rc))
		}
		c.push(ctx, ch, updates, res)
	}
}

func (c *cycle) newConflict(ctx context.Context, ch model.ChannelSettings, master model.InventorySnapshot, expected int, snap model.InventorySnapshot) *model.InventoryConflict {
	conflictType := model.ConflictInventoryMismatch
	if snap.Availability > expected {
		conflictType = model.ConflictOverbooking
	}

	sides := []model.ConflictSide{{
		Name:        c.masterName,
		Inventory:   expected,
		LastUpdated: master.LastUpdated,
	}}
	if c.masterName != model.SideLocal {
		row := c.local[localKey(snap.RoomTypeID, snap.Date)]
		derived, _ := c.derive(ctx, ch, snap.RoomTypeID, snap.Date, row.Available)
		sides = append(sides, model.ConflictSide{
			Name:        model.SideLocal,
			Inventory:   derived,
			LastUpdated: row.UpdatedAt,
		})
	}
	channelSide := model.ConflictSide{
		Name:        ch.Name,
		Inventory:   snap.Availability,
		LastUpdated: snap.LastUpdated,
	}
	if snap.Rate.IsPositive() {
		rate := snap.Rate
		channelSide.Rate = &rate
	}
	sides = append(sides, channelSide)

	return &model.InventoryConflict{
		PropertyID:   c.cfg.PropertyID,
		RoomTypeID:   snap.RoomTypeID,
		Date:         model.Day(snap.Date),
		ConflictType: conflictType,
		Channels:     sides,
		Status:       model.ConflictPending,
		CreatedAt:    c.s.clock.Now(),
	}
}

// suggest applies an automatic resolution policy to the sides of a conflict.
func suggest(policy model.ResolutionPolicy, sides []model.ConflictSide) model.SuggestedResolution {
	switch policy {
	case model.PolicyFirstComeFirstServed:
		latest := sides[0]
		for _, s := range sides[1:] {
			if s.LastUpdated.After(latest.LastUpdated) {
				latest = s
			}
		}
		return model.SuggestedResolution{
			Type:   model.ResolutionUseLatest,
			Value:  latest.Inventory,
			Reason: fmt.Sprintf("most recent update from %s", latest.Name),
		}
	case model.PolicyPriorityBased:
		return model.SuggestedResolution{
			Type:   model.ResolutionUseMaster,
			Value:  sides[0].Inventory,
			Reason: fmt.Sprintf("%s is the master source", sides[0].Name),
		}
	default:
		return model.SuggestedResolution{
			Type:   model.ResolutionUseLowest,
			Value:  lowest(sides),
			Reason: "most restrictive value",
		}
	}
}

func lowest(sides []model.ConflictSide) int {
	v := sides[0].Inventory
	for _, s := range sides[1:] {
		v = min(v, s.Inventory)
	}
	return v
}

// writeBack moves local inventory so the channel's derived value becomes
// the resolution value. The value is in channel terms; the buffer, expansion
// and caps between local and channel are preserved by shifting local by the
// difference rather than overwriting it.
func (c *cycle) writeBack(ctx context.Context, ch model.ChannelSettings, conflict *model.InventoryConflict) error {
	target := max(conflict.SuggestedResolution.Value, 0)
	key := localKey(conflict.RoomTypeID, conflict.Date)
	row := c.local[key]
	current, _ := c.derive(ctx, ch, conflict.RoomTypeID, conflict.Date, row.Available)
	next := max(0, row.Available+target-current)

	now := c.s.clock.Now()
	if err := c.s.store.SetLocalAvailability(ctx, c.cfg.PropertyID, conflict.RoomTypeID, conflict.Date, next, now); err != nil {
		return fmt.Errorf("writing resolved inventory for %s %s: %w", conflict.RoomTypeID, model.DateKey(conflict.Date), err)
	}
	if row.Total == 0 {
		row = model.LocalInventory{PropertyID: c.cfg.PropertyID, RoomTypeID: conflict.RoomTypeID, Date: conflict.Date, Total: next}
	}
	row.Available = next
	row.UpdatedAt = now
	c.local[key] = row
	return nil
}

// resolvedUpdate is the push that follows a write-back: the resolution
// value, bounded by what the new local value allows the channel.
func (c *cycle) resolvedUpdate(ctx context.Context, ch model.ChannelSettings, conflict *model.InventoryConflict) model.InventoryUpdate {
	allowed, stop := c.derive(ctx, ch, conflict.RoomTypeID, conflict.Date, c.localAvailable(conflict.RoomTypeID, conflict.Date))
	v := min(max(conflict.SuggestedResolution.Value, 0), allowed)
	return model.InventoryUpdate{
		RoomTypeID:   conflict.RoomTypeID,
		Date:         conflict.Date,
		Availability: v,
		Restrictions: restrictionsFor(ch, stop),
	}
}

// ResolveConflictManually applies an operator decision to a pending
// conflict. Resolving writes the value back to local inventory and pushes
// it to the conflict's channel; ignoring only closes the conflict. A push
// failure after a successful write-back still closes the conflict and is
// returned alongside it.
func (s *Service) ResolveConflictManually(ctx context.Context, propertyID, conflictID string, r Resolution) (model.InventoryConflict, error) {
	unlock, err := s.locks.TryLock(propertyID)
	if err != nil {
		return model.InventoryConflict{}, fmt.Errorf("resolving conflict on %s: %w", propertyID, err)
	}
	defer unlock()

	conflict, err := s.store.Conflict(ctx, propertyID, conflictID)
	if err != nil {
		return model.InventoryConflict{}, err
	}
	if conflict.Status != model.ConflictPending {
		return conflict, fmt.Errorf("conflict %s is %s: %w", conflictID, conflict.Status, ErrConflictClosed)
	}

	var pushed model.InventorySyncResult
	switch r.Action {
	case ActionIgnore:
		return s.transition(ctx, propertyID, conflictID, model.ConflictIgnored)
	case ActionResolve:
		if r.Value != nil {
			if *r.Value < 0 {
				return conflict, fmt.Errorf("resolution value %d must not be negative", *r.Value)
			}
			conflict.SuggestedResolution.Value = *r.Value
		}
		pushed, err = s.applyResolution(ctx, &conflict)
		if err != nil {
			return conflict, err
		}
	default:
		return conflict, fmt.Errorf("unknown resolution action %q", r.Action)
	}

	closed, err := s.transition(ctx, propertyID, conflictID, model.ConflictResolved)
	if err != nil {
		return closed, err
	}
	s.log.Info("conflict resolved", "property_id", propertyID, "conflict_id", conflictID, "value", conflict.SuggestedResolution.Value)
	if len(pushed.Errors) > 0 {
		return closed, fmt.Errorf("resolved locally; pushing to %s failed: %s", pushed.ChannelName, pushed.Errors[0])
	}
	return closed, nil
}

// applyResolution writes a resolution back and pushes it. An error means
// local inventory was not changed; push failures are in the result.
func (s *Service) applyResolution(ctx context.Context, conflict *model.InventoryConflict) (model.InventorySyncResult, error) {
	res := model.InventorySyncResult{PropertyID: conflict.PropertyID, ChannelName: conflict.ChannelName()}
	cfg, err := s.config(ctx, conflict.PropertyID)
	if err != nil {
		return res, err
	}
	ch, ok := cfg.Channel(res.ChannelName)
	if !ok {
		return res, fmt.Errorf("conflict channel %q is no longer configured", res.ChannelName)
	}
	cyc, err := s.newCycle(ctx, cfg, model.NewDateRange(conflict.Date, 1))
	if err != nil {
		return res, err
	}
	if err := cyc.writeBack(ctx, ch, conflict); err != nil {
		return res, err
	}
	cyc.push(ctx, ch, []model.InventoryUpdate{cyc.resolvedUpdate(ctx, ch, conflict)}, &res)
	return res, nil
}

func (s *Service) transition(ctx context.Context, propertyID, id string, to model.ConflictStatus) (model.InventoryConflict, error) {
	c, err := s.store.TransitionConflict(ctx, propertyID, id, to, s.clock.Now())
	if errors.Is(err, state.ErrNotPending) {
		return c, fmt.Errorf("conflict %s: %w", id, ErrConflictClosed)
	}
	return c, err
}
