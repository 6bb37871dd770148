package protocol

// MessageType values as per OCPP-J.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Actions sent by the charging station.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionAuthorize          = "Authorize"
	ActionStatusNotification = "StatusNotification"
	ActionMeterValues        = "MeterValues"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
)

// Actions sent to the charging station.
const (
	ActionSetChargingProfile  = "SetChargingProfile"
	ActionChangeConfiguration = "ChangeConfiguration"
	ActionTriggerMessage      = "TriggerMessage"
)

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationRejected = "Rejected"
)

// Authorization status values.
const (
	AuthorizationAccepted = "Accepted"
	AuthorizationInvalid  = "Invalid"
)

// ChargePointStatus as reported in StatusNotification.
type ChargePointStatus string

const (
	ConnectorAvailable     ChargePointStatus = "Available"
	ConnectorPreparing     ChargePointStatus = "Preparing"
	ConnectorCharging      ChargePointStatus = "Charging"
	ConnectorSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ConnectorSuspendedEV   ChargePointStatus = "SuspendedEV"
	ConnectorFinishing     ChargePointStatus = "Finishing"
	ConnectorReserved      ChargePointStatus = "Reserved"
	ConnectorUnavailable   ChargePointStatus = "Unavailable"
	ConnectorFaulted       ChargePointStatus = "Faulted"
)

// Measurand of a sampled value.
type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandPowerOffered               Measurand = "Power.Offered"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandCurrentOffered             Measurand = "Current.Offered"
	MeasurandVoltage                    Measurand = "Voltage"
	MeasurandFrequency                  Measurand = "Frequency"
	MeasurandTemperature                Measurand = "Temperature"
	MeasurandSoC                        Measurand = "SoC"
)

// Phase of a sampled value.
const (
	PhaseL1   = "L1"
	PhaseL2   = "L2"
	PhaseL3   = "L3"
	PhaseL1N  = "L1-N"
	PhaseL2N  = "L2-N"
	PhaseL3N  = "L3-N"
	UnitWh    = "Wh"
	UnitKWh   = "kWh"
	UnitW     = "W"
	UnitKW    = "kW"
	UnitA     = "A"
	UnitV     = "V"
	UnitCelsi = "Celsius"
)

// Charging profile values.
const (
	ChargingRateUnitW = "W"
	ChargingRateUnitA = "A"

	ChargingProfilePurposeTxDefault = "TxDefaultProfile"
	ChargingProfileKindAbsolute     = "Absolute"
	ChargingProfileKindRelative     = "Relative"
)

// Configuration keys used after connection.
const (
	ConfigMeterValuesSampledData     = "MeterValuesSampledData"
	ConfigMeterValueSampleInterval   = "MeterValueSampleInterval"
	TriggerMessageMeterValues        = "MeterValues"
	TriggerMessageStatusNotification = "StatusNotification"
)
