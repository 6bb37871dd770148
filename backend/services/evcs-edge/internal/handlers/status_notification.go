package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/metrics"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

// NewStatusNotificationHandler updates connector state and the status of the
// matching component. Connector 0 describes the whole station.
func NewStatusNotificationHandler(components Components, state *service.StationState, logger *zap.Logger) ocpp.HandlerFunc {
	return func(_ context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		at := now()
		if req.Timestamp != nil {
			at = req.Timestamp.UTC()
		}
		state.UpdateConnector(stationID, req.ConnectorID, req.Status, req.ErrorCode, at)
		if req.ConnectorID == 0 {
			return protocol.StatusNotificationResponse{}, nil
		}

		c, ok := components.Connector(stationID, req.ConnectorID)
		if !ok {
			logger.Debug("status for unconfigured connector", zap.String("station_id", stationID), zap.Int("connector_id", req.ConnectorID))
			return protocol.StatusNotificationResponse{}, nil
		}

		status, known := componentStatus(req.Status)
		if !known {
			logger.Warn("unknown connector status", zap.String("component_id", c.ID()), zap.String("status", string(req.Status)))
			return protocol.StatusNotificationResponse{}, nil
		}
		c.Channels().SetStatus(status)
		metrics.SetStatus(c.ID(), int(status))
		logger.Debug("connector status",
			zap.String("component_id", c.ID()),
			zap.String("ocpp_status", string(req.Status)),
			zap.String("status", status.Name()),
		)
		return protocol.StatusNotificationResponse{}, nil
	}
}

func componentStatus(s protocol.ChargePointStatus) (evcs.Status, bool) {
	switch s {
	case protocol.ConnectorAvailable, protocol.ConnectorReserved:
		return evcs.StatusNotReadyForCharging, true
	case protocol.ConnectorPreparing:
		return evcs.StatusReadyForCharging, true
	case protocol.ConnectorCharging:
		return evcs.StatusCharging, true
	case protocol.ConnectorFinishing, protocol.ConnectorSuspendedEV:
		return evcs.StatusChargingFinished, true
	case protocol.ConnectorSuspendedEVSE:
		return evcs.StatusChargingRejected, true
	case protocol.ConnectorFaulted, protocol.ConnectorUnavailable:
		return evcs.StatusError, true
	default:
		return evcs.StatusUndefined, false
	}
}
