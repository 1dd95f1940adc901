package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS entity_states (
    entity_id   TEXT PRIMARY KEY,
    device_id   TEXT NOT NULL,
    platform    TEXT NOT NULL,
    name        TEXT NOT NULL,
    state       TEXT NOT NULL,
    known       BOOLEAN NOT NULL,
    attributes  JSONB NOT NULL DEFAULT '{}',
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bridge_status (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    available   BOOLEAN NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);`

// Postgres stores entity states in PostgreSQL. It implements sensor.Sink.
type Postgres struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres ensures the schema exists and returns the store.
func NewPostgres(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{db: db, logger: logger, now: time.Now}, nil
}

// Name implements sensor.Sink.
func (p *Postgres) Name() string {
	return "postgres"
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// PublishStates upserts every state and prunes entities no longer present.
func (p *Postgres) PublishStates(ctx context.Context, states []sensor.State) error {
	rows, err := rowsFrom(states)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO entity_states (entity_id, device_id, platform, name, state, known, attributes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (entity_id) DO UPDATE SET
				device_id = EXCLUDED.device_id,
				platform = EXCLUDED.platform,
				name = EXCLUDED.name,
				state = EXCLUDED.state,
				known = EXCLUDED.known,
				attributes = EXCLUDED.attributes,
				updated_at = EXCLUDED.updated_at
		`, r.EntityID, r.DeviceID, r.Platform, r.Name, r.State, r.Known, r.Attributes, r.UpdatedAt)
	}
	batch.Queue(`DELETE FROM entity_states WHERE updated_at < $1`, cutoff(rows))

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert entity state: %w", err)
		}
	}
	ct, err := results.Exec()
	if err != nil {
		return fmt.Errorf("prune entity states: %w", err)
	}

	p.logger.Debug("stored states",
		"count", len(rows),
		"pruned", ct.RowsAffected(),
		"duration", time.Since(start),
	)
	return nil
}

// PublishAvailability records whether the latest refresh succeeded.
func (p *Postgres) PublishAvailability(ctx context.Context, available bool) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO bridge_status (id, available, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET available = EXCLUDED.available, updated_at = EXCLUDED.updated_at
	`, available, p.now().UTC())
	if err != nil {
		return fmt.Errorf("store availability: %w", err)
	}
	return nil
}

// States returns every stored row ordered by entity id.
func (p *Postgres) States(ctx context.Context) ([]Row, error) {
	rows, err := p.db.Query(ctx, `
		SELECT entity_id, device_id, platform, name, state, known, attributes::text, updated_at
		FROM entity_states ORDER BY entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query entity states: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.EntityID, &r.DeviceID, &r.Platform, &r.Name, &r.State, &r.Known, &r.Attributes, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan entity states: %w", err)
	}
	return out, nil
}
