package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

// NewStopTransactionHandler closes a transaction and stamps the session end.
func NewStopTransactionHandler(components Components, txStore *service.TransactionStore, logger *zap.Logger) ocpp.HandlerFunc {
	return func(_ context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		at := req.Timestamp.UTC()
		if req.Timestamp.IsZero() {
			at = now()
		}

		tx, ok := txStore.Get(req.TransactionID)
		if !ok {
			logger.Warn("stop for unknown transaction", zap.String("station_id", stationID), zap.Int("transaction_id", req.TransactionID))
			return protocol.StopTransactionResponse{}, nil
		}
		txStore.Delete(tx.ID)

		energy := req.MeterStop - tx.MeterStart
		if energy < 0 {
			energy = 0
		}
		if c, ok := components.Connector(stationID, tx.ConnectorID); ok {
			c.SessionEnd().Set(at, req.MeterStop)
			c.Channels().Set(evcs.EnergySession, float64(energy))
			if !c.Profile().ReturnsSessionEnergy() {
				c.Channels().Set(evcs.ActiveConsumptionEnergy, float64(req.MeterStop))
			}
		}

		logger.Info("transaction stopped",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", tx.ID),
			zap.Int64("energy_wh", energy),
			zap.String("reason", req.Reason),
		)

		return protocol.StopTransactionResponse{
			IdTagInfo: &protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
