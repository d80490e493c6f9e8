package inventory

import (
	"context"
	"fmt"

	"github.com/njoerd114/channelsync/internal/model"
)

// GetAllotmentRules lists the property's allotment rules.
func (s *Service) GetAllotmentRules(ctx context.Context, propertyID string) ([]model.AllotmentRule, error) {
	return s.store.AllotmentRules(ctx, propertyID)
}

// AddAllotmentRule validates and stores a new rule for the property. The
// rule's channel and release destination must be configured channels.
func (s *Service) AddAllotmentRule(ctx context.Context, propertyID string, r model.AllotmentRule) (model.AllotmentRule, error) {
	r.PropertyID = propertyID
	if err := s.checkRule(ctx, &r); err != nil {
		return model.AllotmentRule{}, err
	}
	created, err := s.store.InsertAllotmentRule(ctx, r)
	if err != nil {
		return model.AllotmentRule{}, fmt.Errorf("adding allotment rule: %w", err)
	}
	s.log.Info("allotment rule added", "property_id", propertyID, "rule_id", created.ID, "channel", created.ChannelName, "type", created.RuleType)
	return created, nil
}

// UpdateAllotmentRule replaces a stored rule. Cycles already running keep
// the rule set they started with.
func (s *Service) UpdateAllotmentRule(ctx context.Context, propertyID string, r model.AllotmentRule) error {
	r.PropertyID = propertyID
	if r.ID == "" {
		return fmt.Errorf("allotment rule id is required")
	}
	if err := s.checkRule(ctx, &r); err != nil {
		return err
	}
	if err := s.store.UpdateAllotmentRule(ctx, r); err != nil {
		return fmt.Errorf("updating allotment rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteAllotmentRule removes a rule.
func (s *Service) DeleteAllotmentRule(ctx context.Context, propertyID, id string) error {
	if err := s.store.DeleteAllotmentRule(ctx, propertyID, id); err != nil {
		return fmt.Errorf("deleting allotment rule %s: %w", id, err)
	}
	return nil
}

func (s *Service) checkRule(ctx context.Context, r *model.AllotmentRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	cfg, err := s.config(ctx, r.PropertyID)
	if err != nil {
		return err
	}
	if _, ok := cfg.Channel(r.ChannelName); !ok {
		return fmt.Errorf("allotment rule channel %q is not configured for %s", r.ChannelName, r.PropertyID)
	}
	if dest := r.ReleaseRules.ReleaseToChannel; dest != "" {
		if _, ok := cfg.Channel(dest); !ok {
			return fmt.Errorf("release_to_channel %q is not configured for %s", dest, r.PropertyID)
		}
	}
	return nil
}
