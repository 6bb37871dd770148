package db

import (
	"context"
	"database/sql"
	"fmt"

	libdb "evcsedge/backend/libs/db"
)

// NewPostgres opens the service database. The controller issues few
// concurrent queries, so the pool stays small.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, dsn, libdb.WithMaxOpenConns(4))
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS charging_stations (
		id TEXT PRIMARY KEY,
		vendor TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		serial_number TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ocpp_messages (
		id BIGSERIAL PRIMARY KEY,
		station_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		message_type TEXT NOT NULL,
		payload BYTEA,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ocpp_messages_station_idx ON ocpp_messages (station_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS timedata (
		component TEXT NOT NULL,
		channel TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS timedata_address_idx ON timedata (component, channel, recorded_at DESC)`,
}

// Migrate creates the tables the service writes to.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db: migration %d: %w", i, err)
		}
	}
	return nil
}
