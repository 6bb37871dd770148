package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/models"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

const defaultHeartbeatInterval = 30 * time.Second

// NewBootNotificationHandler accepts every station and records its identity.
func NewBootNotificationHandler(repo StationStore, state *service.StationState, interval time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return func(ctx context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		at := now()
		state.UpdateBoot(stationID, req, at)

		if repo != nil {
			station := &models.Station{
				ID:              stationID,
				Vendor:          req.ChargePointVendor,
				Model:           req.ChargePointModel,
				SerialNumber:    req.ChargePointSerialNumber,
				FirmwareVersion: req.FirmwareVersion,
				LastHeartbeat:   at,
			}
			if err := repo.Upsert(ctx, station); err != nil {
				logger.Warn("failed to upsert station", zap.String("station_id", stationID), zap.Error(err))
			}
		}

		logger.Info("boot notification",
			zap.String("station_id", stationID),
			zap.String("vendor", req.ChargePointVendor),
			zap.String("model", req.ChargePointModel),
		)

		return protocol.BootNotificationResponse{
			CurrentTime: at,
			Interval:    int(interval.Seconds()),
			Status:      protocol.RegistrationAccepted,
		}, nil
	}
}
