package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/njoerd114/channelsync/internal/model"
)

// --- allotment rules ---------------------------------------------------------

// AllotmentRules returns a property's allotment rules in insertion order.
func (s *Store) AllotmentRules(ctx context.Context, propertyID string) ([]model.AllotmentRule, error) {
	var out []model.AllotmentRule
	err := queryDocs(ctx, s.db, "allotment rules", func(doc []byte) error {
		var r model.AllotmentRule
		if err := json.Unmarshal(doc, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}, `SELECT doc FROM allotment_rules WHERE property_id = ? ORDER BY rowid`, propertyID)
	return out, err
}

// InsertAllotmentRule stores a new rule, assigning its id.
func (s *Store) InsertAllotmentRule(ctx context.Context, r model.AllotmentRule) (model.AllotmentRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return model.AllotmentRule{}, fmt.Errorf("encoding allotment rule: %w", err)
	}
	const q = `INSERT INTO allotment_rules (id, property_id, doc) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.PropertyID, string(doc)); err != nil {
		return model.AllotmentRule{}, fmt.Errorf("inserting allotment rule %s: %w", r.ID, err)
	}
	return r, nil
}

// UpdateAllotmentRule replaces an existing rule. A missing rule wraps
// [ErrNotFound].
func (s *Store) UpdateAllotmentRule(ctx context.Context, r model.AllotmentRule) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding allotment rule: %w", err)
	}
	const q = `UPDATE allotment_rules SET doc = ? WHERE id = ? AND property_id = ?`
	if err := execAffecting(ctx, s.db, q, string(doc), r.ID, r.PropertyID); err != nil {
		return fmt.Errorf("updating allotment rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteAllotmentRule removes a rule. A missing rule wraps [ErrNotFound].
func (s *Store) DeleteAllotmentRule(ctx context.Context, propertyID, id string) error {
	const q = `DELETE FROM allotment_rules WHERE id = ? AND property_id = ?`
	if err := execAffecting(ctx, s.db, q, id, propertyID); err != nil {
		return fmt.Errorf("deleting allotment rule %s: %w", id, err)
	}
	return nil
}

// --- pricing rules -----------------------------------------------------------

// PricingRules returns a property's pricing rules in insertion order with
// Sequence populated.
func (s *Store) PricingRules(ctx context.Context, propertyID string) ([]model.PricingRule, error) {
	const q = `SELECT seq, doc, created_at FROM pricing_rules WHERE property_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying pricing rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PricingRule
	for rows.Next() {
		var (
			seq       int64
			doc       string
			createdAt string
		)
		if err := rows.Scan(&seq, &doc, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning pricing rule row: %w", err)
		}
		var r model.PricingRule
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decoding pricing rule: %w", err)
		}
		r.Sequence = seq
		r.CreatedAt, _ = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertPricingRule stores a new rule, assigning its id and insertion
// sequence.
func (s *Store) InsertPricingRule(ctx context.Context, r model.PricingRule) (model.PricingRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return model.PricingRule{}, fmt.Errorf("encoding pricing rule: %w", err)
	}
	const q = `INSERT INTO pricing_rules (id, property_id, doc, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, r.ID, r.PropertyID, string(doc), formatTime(r.CreatedAt))
	if err != nil {
		return model.PricingRule{}, fmt.Errorf("inserting pricing rule %s: %w", r.ID, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		r.Sequence = seq
	}
	return r, nil
}

// UpdatePricingRule replaces an existing rule, keeping its insertion
// sequence. A missing rule wraps [ErrNotFound].
func (s *Store) UpdatePricingRule(ctx context.Context, r model.PricingRule) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding pricing rule: %w", err)
	}
	const q = `UPDATE pricing_rules SET doc = ? WHERE id = ? AND property_id = ?`
	if err := execAffecting(ctx, s.db, q, string(doc), r.ID, r.PropertyID); err != nil {
		return fmt.Errorf("updating pricing rule %s: %w", r.ID, err)
	}
	return nil
}

// DeletePricingRule removes a rule. A missing rule wraps [ErrNotFound].
func (s *Store) DeletePricingRule(ctx context.Context, propertyID, id string) error {
	const q = `DELETE FROM pricing_rules WHERE id = ? AND property_id = ?`
	if err := execAffecting(ctx, s.db, q, id, propertyID); err != nil {
		return fmt.Errorf("deleting pricing rule %s: %w", id, err)
	}
	return nil
}
