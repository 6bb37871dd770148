package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

// NewHeartbeatHandler returns ack with current time.
func NewHeartbeatHandler(repo StationStore, state *service.StationState, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, _ json.RawMessage) (any, error) {
		at := now()
		state.Touch(stationID, at)
		if repo != nil {
			if err := repo.Touch(ctx, stationID, at); err != nil {
				logger.Debug("failed to touch station", zap.String("station_id", stationID), zap.Error(err))
			}
		}
		return protocol.HeartbeatResponse{CurrentTime: at}, nil
	}
}
