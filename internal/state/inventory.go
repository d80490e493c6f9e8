package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

// --- local inventory ---------------------------------------------------------

// LocalInventory returns the system-of-record rows for the window, ordered
// by room type and date. An empty roomTypeIDs returns every room type.
func (s *Store) LocalInventory(ctx context.Context, propertyID string, roomTypeIDs []string, window model.DateRange) ([]model.LocalInventory, error) {
	const q = `
		SELECT property_id, room_type_id, date, total, available, base_rate, currency, updated_at
		FROM local_inventory
		WHERE property_id = ? AND date >= ? AND date <= ?
		ORDER BY room_type_id, date`
	rows, err := s.db.QueryContext(ctx, q, propertyID, model.DateKey(window.Start), model.DateKey(window.End))
	if err != nil {
		return nil, fmt.Errorf("querying local inventory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LocalInventory
	for rows.Next() {
		li, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		if len(roomTypeIDs) > 0 && !slices.Contains(roomTypeIDs, li.RoomTypeID) {
			continue
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// UpsertLocalInventory writes full inventory rows.
func (s *Store) UpsertLocalInventory(ctx context.Context, rows []model.LocalInventory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning inventory transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO local_inventory (property_id, room_type_id, date, total, available, base_rate, currency, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(property_id, room_type_id, date) DO UPDATE SET
		    total      = excluded.total,
		    available  = excluded.available,
		    base_rate  = excluded.base_rate,
		    currency   = excluded.currency,
		    updated_at = excluded.updated_at`
	for _, r := range rows {
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = s.now()
		}
		if _, err := tx.ExecContext(ctx, q, r.PropertyID, r.RoomTypeID, model.DateKey(r.Date),
			r.Total, r.Available, r.BaseRate.String(), r.Currency, formatTime(updated)); err != nil {
			return fmt.Errorf("writing inventory %s/%s: %w", r.RoomTypeID, model.DateKey(r.Date), err)
		}
	}
	return tx.Commit()
}

// SetLocalAvailability overwrites the available count of one room type and
// date. A missing row is created with total equal to available.
func (s *Store) SetLocalAvailability(ctx context.Context, propertyID, roomTypeID string, date time.Time, available int, at time.Time) error {
	available = max(available, 0)
	const q = `
		INSERT INTO local_inventory (property_id, room_type_id, date, total, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(property_id, room_type_id, date) DO UPDATE SET
		    available  = excluded.available,
		    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, propertyID, roomTypeID, model.DateKey(date), available, available, formatTime(at)); err != nil {
		return fmt.Errorf("setting availability %s/%s: %w", roomTypeID, model.DateKey(date), err)
	}
	return nil
}

func scanInventory(s scanner) (model.LocalInventory, error) {
	var (
		li                    model.LocalInventory
		date, rate, updatedAt string
	)
	if err := s.Scan(&li.PropertyID, &li.RoomTypeID, &date, &li.Total, &li.Available, &rate, &li.Currency, &updatedAt); err != nil {
		return model.LocalInventory{}, fmt.Errorf("scanning inventory row: %w", err)
	}
	var err error
	if li.Date, err = model.ParseDate(date); err != nil {
		return model.LocalInventory{}, err
	}
	if li.BaseRate, err = decimal.NewFromString(rate); err != nil {
		return model.LocalInventory{}, fmt.Errorf("parsing base rate %q: %w", rate, err)
	}
	li.UpdatedAt, _ = parseTime(updatedAt)
	return li, nil
}

// --- reservations ------------------------------------------------------------

// UpsertReservation stores a normalized reservation keyed by channel and
// channel reservation id. The first stored record's local id is kept on
// later updates.
func (s *Store) UpsertReservation(ctx context.Context, r model.ChannelReservation) (model.ChannelReservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("beginning reservation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT reservation_id FROM reservations WHERE channel_name = ? AND channel_reservation_id = ?`,
		r.ChannelName, r.ChannelReservationID).Scan(&existing)
	switch {
	case err == nil:
		r.ReservationID = existing
	case errors.Is(err, sql.ErrNoRows):
		if r.ReservationID == "" {
			r.ReservationID = uuid.NewString()
		}
	default:
		return model.ChannelReservation{}, fmt.Errorf("looking up reservation %s/%s: %w", r.ChannelName, r.ChannelReservationID, err)
	}
	r.SyncedToLocal = true

	doc, err := json.Marshal(r)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("encoding reservation: %w", err)
	}
	const q = `
		INSERT INTO reservations (reservation_id, property_id, channel_name, channel_reservation_id, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(reservation_id) DO UPDATE SET
		    doc        = excluded.doc,
		    updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, q, r.ReservationID, r.PropertyID, r.ChannelName, r.ChannelReservationID,
		string(doc), formatTime(s.now())); err != nil {
		return model.ChannelReservation{}, fmt.Errorf("storing reservation %s: %w", r.ChannelReservationID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.ChannelReservation{}, fmt.Errorf("committing reservation: %w", err)
	}
	return r, nil
}

// Reservations lists a property's stored reservations.
func (s *Store) Reservations(ctx context.Context, propertyID string) ([]model.ChannelReservation, error) {
	var out []model.ChannelReservation
	err := queryDocs(ctx, s.db, "reservations", func(doc []byte) error {
		var r model.ChannelReservation
		if err := json.Unmarshal(doc, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}, `SELECT doc FROM reservations WHERE property_id = ? ORDER BY rowid`, propertyID)
	return out, err
}
