// Package state manages the SQLite database holding each property's
// distribution configuration, its allotment and pricing rules, detected
// inventory conflicts, sync history, the local inventory, and reservations
// pulled from the channels.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/channelsync/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS channel_configurations (
    property_id TEXT PRIMARY KEY,
    doc         TEXT NOT NULL,
    updated_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS allotment_rules (
    id          TEXT PRIMARY KEY,
    property_id TEXT NOT NULL,
    doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allotment_property ON allotment_rules (property_id);

CREATE TABLE IF NOT EXISTS pricing_rules (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    property_id TEXT    NOT NULL,
    doc         TEXT    NOT NULL,
    created_at  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pricing_property ON pricing_rules (property_id);

CREATE TABLE IF NOT EXISTS inventory_conflicts (
    id           TEXT PRIMARY KEY,
    property_id  TEXT NOT NULL,
    conflict_key TEXT NOT NULL,
    status       TEXT NOT NULL,
    doc          TEXT NOT NULL,
    created_at   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_conflict_pending ON inventory_conflicts (property_id, conflict_key) WHERE status = 'pending';
CREATE INDEX        IF NOT EXISTS idx_conflict_status  ON inventory_conflicts (property_id, status);

CREATE TABLE IF NOT EXISTS sync_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    property_id TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    doc         TEXT    NOT NULL,
    recorded_at TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_property ON sync_history (property_id, kind, id);

CREATE TABLE IF NOT EXISTS local_inventory (
    property_id  TEXT    NOT NULL,
    room_type_id TEXT    NOT NULL,
    date         TEXT    NOT NULL,
    total        INTEGER NOT NULL DEFAULT 0,
    available    INTEGER NOT NULL DEFAULT 0,
    base_rate    TEXT    NOT NULL DEFAULT '0',
    currency     TEXT    NOT NULL DEFAULT '',
    updated_at   TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (property_id, room_type_id, date)
);

CREATE TABLE IF NOT EXISTS reservations (
    reservation_id         TEXT PRIMARY KEY,
    property_id            TEXT NOT NULL,
    channel_name           TEXT NOT NULL,
    channel_reservation_id TEXT NOT NULL,
    doc                    TEXT NOT NULL,
    updated_at             TEXT NOT NULL DEFAULT '',
    UNIQUE (channel_name, channel_reservation_id)
);
CREATE INDEX IF NOT EXISTS idx_reservations_property ON reservations (property_id);
`

// Store is the SQLite-backed property store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default path for the state database:
// ~/.local/share/channelsync/state.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "channelsync", "state.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- channel configurations --------------------------------------------------

// SaveChannelConfiguration stores or replaces a property's configuration.
func (s *Store) SaveChannelConfiguration(ctx context.Context, cfg model.ChannelConfiguration) error {
	if cfg.PropertyID == "" {
		return errors.New("saving configuration: property id is required")
	}
	cfg.UpdatedAt = s.now()
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration for %s: %w", cfg.PropertyID, err)
	}
	const q = `
		INSERT INTO channel_configurations (property_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(property_id) DO UPDATE SET
		    doc        = excluded.doc,
		    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, cfg.PropertyID, string(doc), formatTime(cfg.UpdatedAt)); err != nil {
		return fmt.Errorf("saving configuration for %s: %w", cfg.PropertyID, err)
	}
	return nil
}

// ChannelConfiguration returns a property's configuration. A missing
// property wraps [ErrNotFound].
func (s *Store) ChannelConfiguration(ctx context.Context, propertyID string) (model.ChannelConfiguration, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM channel_configurations WHERE property_id = ?`, propertyID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChannelConfiguration{}, fmt.Errorf("configuration for property %s: %w", propertyID, ErrNotFound)
	}
	if err != nil {
		return model.ChannelConfiguration{}, fmt.Errorf("querying configuration for %s: %w", propertyID, err)
	}
	var cfg model.ChannelConfiguration
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return model.ChannelConfiguration{}, fmt.Errorf("decoding configuration for %s: %w", propertyID, err)
	}
	return cfg, nil
}

// PropertyIDs lists every property with a stored configuration.
func (s *Store) PropertyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT property_id FROM channel_configurations ORDER BY property_id`)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning property row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan helpers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// queryDocs runs a query selecting a single JSON column and decodes every
// row with decode.
func queryDocs(ctx context.Context, db *sql.DB, what string, decode func(doc []byte) error, q string, args ...any) error {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("querying %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("scanning %s row: %w", what, err)
		}
		if err := decode([]byte(doc)); err != nil {
			return fmt.Errorf("decoding %s: %w", what, err)
		}
	}
	return rows.Err()
}

func execAffecting(ctx context.Context, db *sql.DB, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
