package rates

import (
	"context"
	"fmt"

	"github.com/njoerd114/channelsync/internal/model"
)

// GetPricingRules lists the property's pricing rules in application order.
func (s *Service) GetPricingRules(ctx context.Context, propertyID string) ([]model.PricingRule, error) {
	return s.store.PricingRules(ctx, propertyID)
}

// AddPricingRule validates and stores a new rule.
func (s *Service) AddPricingRule(ctx context.Context, propertyID string, r model.PricingRule) (model.PricingRule, error) {
	r.PropertyID = propertyID
	if err := r.Validate(); err != nil {
		return model.PricingRule{}, err
	}
	created, err := s.store.InsertPricingRule(ctx, r)
	if err != nil {
		return model.PricingRule{}, fmt.Errorf("adding pricing rule: %w", err)
	}
	s.log.Info("pricing rule added", "property_id", propertyID, "rule_id", created.ID, "priority", created.Priority)
	return created, nil
}

// UpdatePricingRule replaces a stored rule, keeping its insertion order.
func (s *Service) UpdatePricingRule(ctx context.Context, propertyID string, r model.PricingRule) error {
	r.PropertyID = propertyID
	if r.ID == "" {
		return fmt.Errorf("pricing rule id is required")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdatePricingRule(ctx, r); err != nil {
		return fmt.Errorf("updating pricing rule %s: %w", r.ID, err)
	}
	return nil
}

// DeletePricingRule removes a rule.
func (s *Service) DeletePricingRule(ctx context.Context, propertyID, id string) error {
	if err := s.store.DeletePricingRule(ctx, propertyID, id); err != nil {
		return fmt.Errorf("deleting pricing rule %s: %w", id, err)
	}
	return nil
}
