package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entity_states (
    entity_id   TEXT PRIMARY KEY,
    device_id   TEXT NOT NULL,
    platform    TEXT NOT NULL,
    name        TEXT NOT NULL,
    state       TEXT NOT NULL,
    known       INTEGER NOT NULL,
    attributes  TEXT NOT NULL DEFAULT '{}',
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bridge_status (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    available   INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);`

// SQLite stores entity states in an embedded database file. It implements
// sensor.Sink.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

// Name implements sensor.Sink.
func (s *SQLite) Name() string {
	return "sqlite"
}

// Ping checks the database file is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// PublishStates upserts every state and prunes entities no longer present,
// in one transaction.
func (s *SQLite) PublishStates(ctx context.Context, states []sensor.State) error {
	rows, err := rowsFrom(states)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entity_states (entity_id, device_id, platform, name, state, known, attributes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (entity_id) DO UPDATE SET
    device_id = excluded.device_id,
    platform = excluded.platform,
    name = excluded.name,
    state = excluded.state,
    known = excluded.known,
    attributes = excluded.attributes,
    updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.EntityID, r.DeviceID, r.Platform, r.Name, r.State,
			boolToInt(r.Known), r.Attributes, r.UpdatedAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("upsert entity state: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM entity_states WHERE updated_at < ?`, cutoff(rows).UnixMicro())
	if err != nil {
		return fmt.Errorf("prune entity states: %w", err)
	}
	pruned, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("stored states", "count", len(rows), "pruned", pruned)
	return nil
}

// PublishAvailability records whether the latest refresh succeeded.
func (s *SQLite) PublishAvailability(ctx context.Context, available bool) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bridge_status (id, available, updated_at) VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET available = excluded.available, updated_at = excluded.updated_at`,
		boolToInt(available), s.now().UTC().UnixMicro())
	if err != nil {
		return fmt.Errorf("store availability: %w", err)
	}
	return nil
}

// Available returns the stored availability, and false when none was stored.
func (s *SQLite) Available(ctx context.Context) (available bool, ok bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx, `SELECT available FROM bridge_status WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("query availability: %w", err)
	}
	return v == 1, true, nil
}

// States returns every stored row ordered by entity id.
func (s *SQLite) States(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entity_id, device_id, platform, name, state, known, attributes, updated_at
FROM entity_states ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("query entity states: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r       Row
			known   int
			updated int64
		)
		if err := rows.Scan(&r.EntityID, &r.DeviceID, &r.Platform, &r.Name, &r.State, &known, &r.Attributes, &updated); err != nil {
			return nil, fmt.Errorf("scan entity state: %w", err)
		}
		r.Known = known == 1
		r.UpdatedAt = time.UnixMicro(updated).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
