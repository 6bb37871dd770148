package protocol

import (
	"fmt"
	"strings"
	"time"
)

// IdTagInfo is the authorization part of several responses.
type IdTagInfo struct {
	Status string `json:"status"`
}

// BootNotificationRequest payload.
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

// BootNotificationResponse payload.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// AuthorizeRequest payload.
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// AuthorizeResponse payload.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID     int               `json:"connectorId"`
	ErrorCode       string            `json:"errorCode"`
	Info            string            `json:"info,omitempty"`
	Status          ChargePointStatus `json:"status"`
	Timestamp       *time.Time        `json:"timestamp,omitempty"`
	VendorID        string            `json:"vendorId,omitempty"`
	VendorErrorCode string            `json:"vendorErrorCode,omitempty"`
}

// StatusNotificationResponse is empty (ack).
type StatusNotificationResponse struct{}

// SampledValue is one measurement inside a MeterValue.
type SampledValue struct {
	Value     string    `json:"value"`
	Context   string    `json:"context,omitempty"`
	Format    string    `json:"format,omitempty"`
	Measurand Measurand `json:"measurand,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Location  string    `json:"location,omitempty"`
	Unit      string    `json:"unit,omitempty"`
}

// EffectiveMeasurand applies the OCPP default when the measurand is omitted.
func (s SampledValue) EffectiveMeasurand() Measurand {
	if s.Measurand == "" {
		return MeasurandEnergyActiveImportRegister
	}
	return s.Measurand
}

// MeterValue groups sampled values taken at one instant.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest payload.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// MeterValuesResponse is empty (ack).
type MeterValuesResponse struct{}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	MeterStart    int64     `json:"meterStart"`
	ReservationID *int      `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartTransactionResponse payload.
type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID int       `json:"transactionId"`
	IdTag         string    `json:"idTag,omitempty"`
	MeterStop     int64     `json:"meterStop"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason,omitempty"`
}

// StopTransactionResponse ack.
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// ChargingSchedulePeriod is one step of a charging schedule.
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

// ChargingSchedule of a charging profile.
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          *time.Time               `json:"startSchedule,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
}

// ChargingProfile as sent with SetChargingProfile.
type ChargingProfile struct {
	ChargingProfileID      int              `json:"chargingProfileId"`
	StackLevel             int              `json:"stackLevel"`
	ChargingProfilePurpose string           `json:"chargingProfilePurpose"`
	ChargingProfileKind    string           `json:"chargingProfileKind"`
	ChargingSchedule       ChargingSchedule `json:"chargingSchedule"`
}

// SetChargingProfileRequest is sent to limit charging.
type SetChargingProfileRequest struct {
	ConnectorID int             `json:"connectorId"`
	Profile     ChargingProfile `json:"csChargingProfiles"`
}

// Action implements the outgoing request contract.
func (SetChargingProfileRequest) Action() string {
	return ActionSetChargingProfile
}

// NewTxDefaultProfileRequest builds a SetChargingProfile with a single
// period limiting connectorID to limit in unit.
func NewTxDefaultProfileRequest(connectorID int, limit float64, unit string, phases int) SetChargingProfileRequest {
	period := ChargingSchedulePeriod{StartPeriod: 0, Limit: limit}
	if phases > 0 {
		n := phases
		period.NumberPhases = &n
	}
	return SetChargingProfileRequest{
		ConnectorID: connectorID,
		Profile: ChargingProfile{
			ChargingProfileID:      1,
			StackLevel:             0,
			ChargingProfilePurpose: ChargingProfilePurposeTxDefault,
			ChargingProfileKind:    ChargingProfileKindRelative,
			ChargingSchedule: ChargingSchedule{
				ChargingRateUnit:       unit,
				ChargingSchedulePeriod: []ChargingSchedulePeriod{period},
			},
		},
	}
}

// ChangeConfigurationRequest sets a configuration key on the station.
type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Action implements the outgoing request contract.
func (ChangeConfigurationRequest) Action() string {
	return ActionChangeConfiguration
}

// NewSampledDataRequest configures the measurands the station reports.
func NewSampledDataRequest(measurands []Measurand) ChangeConfigurationRequest {
	names := make([]string, 0, len(measurands))
	for _, m := range measurands {
		names = append(names, string(m))
	}
	return ChangeConfigurationRequest{Key: ConfigMeterValuesSampledData, Value: strings.Join(names, ",")}
}

// NewSampleIntervalRequest configures the meter value interval.
func NewSampleIntervalRequest(interval time.Duration) ChangeConfigurationRequest {
	return ChangeConfigurationRequest{Key: ConfigMeterValueSampleInterval, Value: fmt.Sprintf("%d", int(interval.Seconds()))}
}

// TriggerMessageRequest asks the station to send a message now.
type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

// Action implements the outgoing request contract.
func (TriggerMessageRequest) Action() string {
	return ActionTriggerMessage
}

// NewTriggerMessageRequest triggers message for connectorID; zero means the whole station.
func NewTriggerMessageRequest(message string, connectorID int) TriggerMessageRequest {
	req := TriggerMessageRequest{RequestedMessage: message}
	if connectorID > 0 {
		id := connectorID
		req.ConnectorID = &id
	}
	return req
}
