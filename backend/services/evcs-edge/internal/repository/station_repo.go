package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"evcsedge/backend/services/evcs-edge/internal/models"
)

// StationRepository manages charging station persistence.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// Upsert stores or updates station metadata.
func (r *StationRepository) Upsert(ctx context.Context, station *models.Station) error {
	const query = `
		INSERT INTO charging_stations (id, vendor, model, serial_number, firmware_version, last_heartbeat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = NOW()
	`
	if station.LastHeartbeat.IsZero() {
		station.LastHeartbeat = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.Vendor,
		station.Model,
		station.SerialNumber,
		station.FirmwareVersion,
		station.LastHeartbeat,
	)
	return err
}

// Touch updates the heartbeat of a known station.
func (r *StationRepository) Touch(ctx context.Context, stationID string, at time.Time) error {
	const query = `
		UPDATE charging_stations
		SET last_heartbeat = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, stationID, at)
	return err
}

// Get loads one station; ok is false when unknown.
func (r *StationRepository) Get(ctx context.Context, stationID string) (*models.Station, bool, error) {
	const query = `
		SELECT id, vendor, model, serial_number, firmware_version, last_heartbeat, created_at, updated_at
		FROM charging_stations
		WHERE id = $1
	`
	var s models.Station
	err := r.db.QueryRowContext(ctx, query, stationID).Scan(
		&s.ID, &s.Vendor, &s.Model, &s.SerialNumber, &s.FirmwareVersion, &s.LastHeartbeat, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &s, true, nil
}
