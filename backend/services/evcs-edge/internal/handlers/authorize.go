package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// NewAuthorizeHandler accepts every id tag. Authorization is left to the
// station's local list.
func NewAuthorizeHandler(logger *zap.Logger) ocpp.HandlerFunc {
	return func(_ context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}
		logger.Debug("authorize", zap.String("station_id", stationID), zap.String("id_tag", req.IdTag))
		return protocol.AuthorizeResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
