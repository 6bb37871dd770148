package timedata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

// PostgresStore keeps channel values in the timedata table.
type PostgresStore struct {
	db     *sql.DB
	policy RetryPolicy
}

// NewPostgresStore returns store.
func NewPostgresStore(db *sql.DB, policy RetryPolicy) *PostgresStore {
	return &PostgresStore{db: db, policy: policy}
}

// LatestValue returns the most recent value of addr.
func (s *PostgresStore) LatestValue(ctx context.Context, addr evcs.ChannelAddress) (any, bool, error) {
	const query = `
		SELECT value
		FROM timedata
		WHERE component = $1 AND channel = $2
		ORDER BY recorded_at DESC
		LIMIT 1
	`
	value, ok, err := retryLookup(ctx, s.policy, func() (any, bool, error) {
		var v float64
		err := s.db.QueryRowContext(ctx, query, addr.Component, string(addr.Channel)).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("timedata: postgres latest %s: %w", addr, err)
	}
	return value, ok, nil
}

// Record appends a value.
func (s *PostgresStore) Record(ctx context.Context, addr evcs.ChannelAddress, value float64, at time.Time) error {
	const query = `
		INSERT INTO timedata (component, channel, value, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	err := retryWrite(ctx, s.policy, func() error {
		_, err := s.db.ExecContext(ctx, query, addr.Component, string(addr.Channel), value, at.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("timedata: postgres record %s: %w", addr, err)
	}
	return nil
}
