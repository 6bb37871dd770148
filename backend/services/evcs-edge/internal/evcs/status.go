package evcs

// Status is the charging state of an EVCS.
type Status int

const (
	StatusUndefined           Status = -1
	StatusStarting            Status = 0
	StatusNotReadyForCharging Status = 1
	StatusReadyForCharging    Status = 2
	StatusCharging            Status = 3
	StatusError               Status = 4
	StatusChargingRejected    Status = 5
	StatusEnergyLimitReached  Status = 6
	StatusChargingFinished    Status = 7
)

// Statuses lists every status value.
var Statuses = []Status{
	StatusUndefined,
	StatusStarting,
	StatusNotReadyForCharging,
	StatusReadyForCharging,
	StatusCharging,
	StatusError,
	StatusChargingRejected,
	StatusEnergyLimitReached,
	StatusChargingFinished,
}

// Name returns the human readable status name.
func (s Status) Name() string {
	switch s {
	case StatusStarting:
		return "Starting"
	case StatusNotReadyForCharging:
		return "Not ready for Charging"
	case StatusReadyForCharging:
		return "Ready for Charging"
	case StatusCharging:
		return "Charging"
	case StatusError:
		return "Error"
	case StatusChargingRejected:
		return "Charging rejected"
	case StatusEnergyLimitReached:
		return "Energy limit reached"
	case StatusChargingFinished:
		return "Charging finished"
	default:
		return "Undefined"
	}
}

// String returns the constant-style name, e.g. NOT_READY_FOR_CHARGING.
func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "STARTING"
	case StatusNotReadyForCharging:
		return "NOT_READY_FOR_CHARGING"
	case StatusReadyForCharging:
		return "READY_FOR_CHARGING"
	case StatusCharging:
		return "CHARGING"
	case StatusError:
		return "ERROR"
	case StatusChargingRejected:
		return "CHARGING_REJECTED"
	case StatusEnergyLimitReached:
		return "ENERGY_LIMIT_REACHED"
	case StatusChargingFinished:
		return "CHARGING_FINISHED"
	default:
		return "UNDEFINED"
	}
}
