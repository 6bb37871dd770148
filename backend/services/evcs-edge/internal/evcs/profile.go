package evcs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// Request is an outgoing OCPP call.
type Request interface {
	Action() string
}

// Response is the outcome of a Request sent through a Server.
type Response struct {
	Accepted bool
	Payload  map[string]any
	Err      error
}

// Server is the handle of the protocol session a component is attached to.
// Send must not block; cb is invoked once with the outcome.
type Server interface {
	Send(sessionID uuid.UUID, req Request, cb func(Response)) error
}

// ChannelAddress identifies a channel of a component in the historical store.
type ChannelAddress struct {
	Component string
	Channel   ChannelID
}

func (a ChannelAddress) String() string {
	return fmt.Sprintf("%s/%s", a.Component, a.Channel)
}

// Timedata returns the latest recorded value of a channel. ok is false when
// nothing was recorded.
type Timedata interface {
	LatestValue(ctx context.Context, addr ChannelAddress) (value any, ok bool, err error)
}

// StandardRequests builds the requests every OCPP EVCS supports.
type StandardRequests interface {
	SetChargePowerLimit(p ChargingProperty) Request
}

// Profile describes the model specific behaviour of a charging station.
type Profile interface {
	SupportedMeasurements() []protocol.Measurand
	// ReturnsSessionEnergy is true when Energy.Active.Import.Register counts
	// from the start of the transaction instead of the meter lifetime.
	ReturnsSessionEnergy() bool
	RequiredRequestsAfterConnection() []Request
	RequiredRequestsDuringConnection() []Request
	StandardRequests() StandardRequests
}

// DefaultMeasurements are requested from stations that do not configure any.
var DefaultMeasurements = []protocol.Measurand{
	protocol.MeasurandEnergyActiveImportRegister,
	protocol.MeasurandPowerActiveImport,
	protocol.MeasurandCurrentImport,
	protocol.MeasurandVoltage,
}

// GenericProfile is a config driven OCPP 1.6J profile.
type GenericProfile struct {
	ConnectorID    int
	Measurements   []protocol.Measurand
	SessionEnergy  bool
	SampleInterval time.Duration
}

// SupportedMeasurements implements Profile.
func (p GenericProfile) SupportedMeasurements() []protocol.Measurand {
	if len(p.Measurements) == 0 {
		return DefaultMeasurements
	}
	return p.Measurements
}

// ReturnsSessionEnergy implements Profile.
func (p GenericProfile) ReturnsSessionEnergy() bool {
	return p.SessionEnergy
}

// RequiredRequestsAfterConnection configures sampled data and interval.
func (p GenericProfile) RequiredRequestsAfterConnection() []Request {
	requests := []Request{protocol.NewSampledDataRequest(p.SupportedMeasurements())}
	if p.SampleInterval > 0 {
		requests = append(requests, protocol.NewSampleIntervalRequest(p.SampleInterval))
	}
	return requests
}

// RequiredRequestsDuringConnection polls meter values and status.
func (p GenericProfile) RequiredRequestsDuringConnection() []Request {
	return []Request{
		protocol.NewTriggerMessageRequest(protocol.TriggerMessageMeterValues, p.ConnectorID),
		protocol.NewTriggerMessageRequest(protocol.TriggerMessageStatusNotification, p.ConnectorID),
	}
}

// StandardRequests implements Profile.
func (p GenericProfile) StandardRequests() StandardRequests {
	return genericRequests{connectorID: p.ConnectorID}
}

type genericRequests struct {
	connectorID int
}

func (r genericRequests) SetChargePowerLimit(p ChargingProperty) Request {
	if p.Mode == LimitModeCurrent {
		return protocol.NewTxDefaultProfileRequest(r.connectorID, p.Current, protocol.ChargingRateUnitA, p.Phases)
	}
	return protocol.NewTxDefaultProfileRequest(r.connectorID, float64(p.Power), protocol.ChargingRateUnitW, p.Phases)
}
