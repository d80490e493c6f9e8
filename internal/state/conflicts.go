package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/channelsync/internal/model"
)

// ErrNotPending is returned when a conflict transition is requested for a
// conflict that has already left the pending state.
var ErrNotPending = errors.New("conflict is not pending")

// SaveConflict stores a detected conflict. A pending conflict for a slot
// that already has a pending record refreshes that record in place,
// keeping its id and creation time; c is updated to match.
func (s *Store) SaveConflict(ctx context.Context, c *model.InventoryConflict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning conflict transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := c.Key()
	if c.Status == model.ConflictPending {
		var id, createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM inventory_conflicts WHERE property_id = ? AND conflict_key = ? AND status = 'pending'`,
			c.PropertyID, key).Scan(&id, &createdAt)
		switch {
		case err == nil:
			c.ID = id
			if t, perr := parseTime(createdAt); perr == nil && !t.IsZero() {
				c.CreatedAt = t
			}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("looking up pending conflict: %w", err)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding conflict: %w", err)
	}
	const q = `
		INSERT INTO inventory_conflicts (id, property_id, conflict_key, status, doc, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    status = excluded.status,
		    doc    = excluded.doc`
	if _, err := tx.ExecContext(ctx, q, c.ID, c.PropertyID, key, string(c.Status), string(doc), formatTime(c.CreatedAt)); err != nil {
		return fmt.Errorf("saving conflict %s: %w", c.ID, err)
	}
	return tx.Commit()
}

// Conflict returns one conflict. A missing conflict wraps [ErrNotFound].
func (s *Store) Conflict(ctx context.Context, propertyID, id string) (model.InventoryConflict, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM inventory_conflicts WHERE id = ? AND property_id = ?`, id, propertyID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InventoryConflict{}, fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.InventoryConflict{}, fmt.Errorf("querying conflict %s: %w", id, err)
	}
	var c model.InventoryConflict
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return model.InventoryConflict{}, fmt.Errorf("decoding conflict %s: %w", id, err)
	}
	return c, nil
}

// Conflicts returns a property's conflicts with the given status, oldest
// first.
func (s *Store) Conflicts(ctx context.Context, propertyID string, status model.ConflictStatus) ([]model.InventoryConflict, error) {
	var out []model.InventoryConflict
	err := queryDocs(ctx, s.db, "conflicts", func(doc []byte) error {
		var c model.InventoryConflict
		if err := json.Unmarshal(doc, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}, `SELECT doc FROM inventory_conflicts WHERE property_id = ? AND status = ? ORDER BY created_at, rowid`, propertyID, string(status))
	return out, err
}

// TransitionConflict moves a pending conflict to resolved or ignored and
// stamps the resolution time. The update only applies while the stored
// record is still pending; otherwise it wraps [ErrNotPending] and nothing
// changes.
func (s *Store) TransitionConflict(ctx context.Context, propertyID, id string, to model.ConflictStatus, at time.Time) (model.InventoryConflict, error) {
	c, err := s.Conflict(ctx, propertyID, id)
	if err != nil {
		return model.InventoryConflict{}, err
	}
	if !c.Status.CanTransition(to) {
		return c, fmt.Errorf("conflict %s is %s: %w", id, c.Status, ErrNotPending)
	}
	c.Status = to
	resolved := at.UTC()
	c.ResolvedAt = &resolved

	doc, err := json.Marshal(c)
	if err != nil {
		return model.InventoryConflict{}, fmt.Errorf("encoding conflict: %w", err)
	}
	const q = `UPDATE inventory_conflicts SET status = ?, doc = ? WHERE id = ? AND property_id = ? AND status = 'pending'`
	err = execAffecting(ctx, s.db, q, string(to), string(doc), id, propertyID)
	if errors.Is(err, ErrNotFound) {
		return c, fmt.Errorf("conflict %s: %w", id, ErrNotPending)
	}
	if err != nil {
		return model.InventoryConflict{}, fmt.Errorf("updating conflict %s: %w", id, err)
	}
	return c, nil
}

// --- sync history ------------------------------------------------------------

// AppendHistory records a sync result and trims the property's history of
// that kind to [model.HistoryLimit] entries.
func (s *Store) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_history (property_id, kind, doc, recorded_at) VALUES (?, ?, ?, ?)`,
		e.PropertyID, string(e.Kind), string(doc), formatTime(e.RecordedAt)); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	const trim = `
		DELETE FROM sync_history
		WHERE property_id = ? AND kind = ? AND id NOT IN (
		    SELECT id FROM sync_history WHERE property_id = ? AND kind = ?
		    ORDER BY id DESC LIMIT ?)`
	if _, err := tx.ExecContext(ctx, trim, e.PropertyID, string(e.Kind), e.PropertyID, string(e.Kind), model.HistoryLimit); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit entries of a kind, newest first. limit <= 0
// returns everything retained.
func (s *Store) History(ctx context.Context, propertyID string, kind model.HistoryKind, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = model.HistoryLimit
	}
	const q = `SELECT id, doc FROM sync_history WHERE property_id = ? AND kind = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, propertyID, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			id  int64
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		e.ID = id
		out = append(out, e)
	}
	return out, rows.Err()
}
