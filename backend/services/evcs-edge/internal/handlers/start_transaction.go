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

// NewStartTransactionHandler opens a transaction and stamps the session start
// on the connector's component.
func NewStartTransactionHandler(components Components, txStore *service.TransactionStore, state *service.StationState, logger *zap.Logger) ocpp.HandlerFunc {
	return func(_ context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		at := req.Timestamp.UTC()
		if req.Timestamp.IsZero() {
			at = now()
		}

		if previous, ok := txStore.Active(stationID, req.ConnectorID); ok {
			logger.Warn("replacing unfinished transaction",
				zap.String("station_id", stationID),
				zap.Int("transaction_id", previous.ID),
			)
			txStore.Delete(previous.ID)
		}

		tx := service.TransactionContext{
			StationID:   stationID,
			ConnectorID: req.ConnectorID,
			IdTag:       req.IdTag,
			MeterStart:  req.MeterStart,
			StartedAt:   at,
		}
		if c, ok := components.Connector(stationID, req.ConnectorID); ok {
			tx.ComponentID = c.ID()
			c.SessionStart().Set(at, req.MeterStart)
			ch := c.Channels()
			ch.Set(evcs.EnergySession, 0)
			if !c.Profile().ReturnsSessionEnergy() {
				ch.Set(evcs.ActiveConsumptionEnergy, float64(req.MeterStart))
			}
		}
		tx = txStore.Start(tx)
		state.UpdateConnector(stationID, req.ConnectorID, protocol.ConnectorCharging, "", at)

		logger.Info("transaction started",
			zap.String("station_id", stationID),
			zap.Int("connector_id", req.ConnectorID),
			zap.Int("transaction_id", tx.ID),
			zap.Int64("meter_start", req.MeterStart),
		)

		return protocol.StartTransactionResponse{
			TransactionID: tx.ID,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
