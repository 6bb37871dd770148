package repository

import (
	"context"
	"database/sql"
	"time"
)

// FrameLog is one stored OCPP frame.
type FrameLog struct {
	StationID   string    `json:"stationId"`
	Direction   string    `json:"direction"`
	MessageType string    `json:"messageType"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OCPPLogRepository stores raw OCPP frames for troubleshooting.
type OCPPLogRepository struct {
	db *sql.DB
}

// NewOCPPLogRepository ctor.
func NewOCPPLogRepository(db *sql.DB) *OCPPLogRepository {
	return &OCPPLogRepository{db: db}
}

// Save stores one frame.
func (r *OCPPLogRepository) Save(ctx context.Context, stationID, direction, messageType string, payload []byte) error {
	const query = `
		INSERT INTO ocpp_messages (station_id, direction, message_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, stationID, direction, messageType, payload)
	return err
}

// Recent returns the newest frames of a station, newest first.
func (r *OCPPLogRepository) Recent(ctx context.Context, stationID string, limit int) ([]FrameLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT station_id, direction, message_type, payload, created_at
		FROM ocpp_messages
		WHERE station_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameLog
	for rows.Next() {
		var f FrameLog
		var payload []byte
		if err := rows.Scan(&f.StationID, &f.Direction, &f.MessageType, &payload, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Payload = string(payload)
		out = append(out, f)
	}
	return out, rows.Err()
}
