package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/models"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

// Components resolves the EVCS components of a station.
type Components interface {
	Connector(stationID string, connectorID int) (*evcs.Component, bool)
	Station(stationID string) []*evcs.Component
}

// StationStore persists station identity. Optional.
type StationStore interface {
	Upsert(ctx context.Context, station *models.Station) error
	Touch(ctx context.Context, stationID string, at time.Time) error
}

// EnergyRecorder appends channel values to the historical store. Optional.
type EnergyRecorder interface {
	Record(ctx context.Context, addr evcs.ChannelAddress, value float64, at time.Time) error
}

// Deps bundles what the handlers need.
type Deps struct {
	Components        Components
	Stations          StationStore
	State             *service.StationState
	Transactions      *service.TransactionStore
	Recorder          EnergyRecorder
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// Register wires every supported CALL action into router.
func Register(router *ocpp.Router, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.State == nil {
		deps.State = service.NewStationState()
	}
	if deps.Transactions == nil {
		deps.Transactions = service.NewTransactionStore()
	}

	router.Register(protocol.ActionBootNotification, NewBootNotificationHandler(deps.Stations, deps.State, deps.HeartbeatInterval, deps.Logger))
	router.Register(protocol.ActionHeartbeat, NewHeartbeatHandler(deps.Stations, deps.State, deps.Logger))
	router.Register(protocol.ActionAuthorize, NewAuthorizeHandler(deps.Logger))
	router.Register(protocol.ActionStatusNotification, NewStatusNotificationHandler(deps.Components, deps.State, deps.Logger))
	router.Register(protocol.ActionMeterValues, NewMeterValuesHandler(deps.Components, deps.Recorder, deps.Logger))
	router.Register(protocol.ActionStartTransaction, NewStartTransactionHandler(deps.Components, deps.Transactions, deps.State, deps.Logger))
	router.Register(protocol.ActionStopTransaction, NewStopTransactionHandler(deps.Components, deps.Transactions, deps.Logger))
}

func now() time.Time {
	return time.Now().UTC()
}
