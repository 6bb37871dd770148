package evcs

import (
	"math"
	"sync"
)

// ChannelID names a numeric channel of an EVCS component.
type ChannelID string

// Evcs channels.
const (
	ChargePower             ChannelID = "ChargePower"
	ActiveConsumptionEnergy ChannelID = "ActiveConsumptionEnergy"
	EnergySession           ChannelID = "EnergySession"
	MaximumHardwarePower    ChannelID = "MaximumHardwarePower"
	MinimumHardwarePower    ChannelID = "MinimumHardwarePower"
	Phases                  ChannelID = "Phases"
	SetChargePowerLimit     ChannelID = "SetChargePowerLimit"
	SetEnergyLimit          ChannelID = "SetEnergyLimit"
)

// Measuring channels, updated from station telemetry.
const (
	CurrentToEV    ChannelID = "CurrentToEV"
	VoltageToEV    ChannelID = "VoltageToEV"
	PowerToEV      ChannelID = "PowerToEV"
	CurrentOffered ChannelID = "CurrentOffered"
	PowerOffered   ChannelID = "PowerOffered"
	Temperature    ChannelID = "Temperature"
	SoC            ChannelID = "SoC"
	Frequency      ChannelID = "Frequency"
	CurrentL1      ChannelID = "CurrentL1"
	CurrentL2      ChannelID = "CurrentL2"
	CurrentL3      ChannelID = "CurrentL3"
	VoltageL1      ChannelID = "VoltageL1"
	VoltageL2      ChannelID = "VoltageL2"
	VoltageL3      ChannelID = "VoltageL3"
)

// MeasuredChannels is the fixed measuring channel set cleared by a reset.
var MeasuredChannels = []ChannelID{
	CurrentToEV,
	VoltageToEV,
	PowerToEV,
	CurrentOffered,
	PowerOffered,
	Temperature,
	SoC,
	Frequency,
	CurrentL1,
	CurrentL2,
	CurrentL3,
	VoltageL1,
	VoltageL2,
	VoltageL3,
}

// Value is an optional channel value.
type Value struct {
	v       float64
	defined bool
}

// Defined reports whether the value is set.
func (v Value) Defined() bool {
	return v.defined
}

// Float returns the value and whether it is set.
func (v Value) Float() (float64, bool) {
	return v.v, v.defined
}

// Int returns the rounded value and whether it is set. Values beyond the
// int64 range saturate; NaN reads as unset.
func (v Value) Int() (int64, bool) {
	if !v.defined || math.IsNaN(v.v) {
		return 0, false
	}
	r := math.Round(v.v)
	switch {
	case r >= math.MaxInt64:
		return math.MaxInt64, true
	case r <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(r), true
}

// OrElse returns the value, or fallback when unset.
func (v Value) OrElse(fallback float64) float64 {
	if !v.defined {
		return fallback
	}
	return v.v
}

// Channels holds the channel values of one component. Writes are last-writer-wins.
type Channels struct {
	mu                  sync.RWMutex
	values              map[ChannelID]Value
	status              Status
	communicationFailed bool
}

// NewChannels returns an empty channel set with status UNDEFINED.
func NewChannels() *Channels {
	return &Channels{
		values: make(map[ChannelID]Value),
		status: StatusUndefined,
	}
}

// Get returns the current value of id.
func (c *Channels) Get(id ChannelID) Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[id]
}

// Set stores v as the value of id.
func (c *Channels) Set(id ChannelID, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[id] = Value{v: v, defined: true}
}

// Clear unsets the value of id.
func (c *Channels) Clear(id ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, id)
}

// Status returns the current status.
func (c *Channels) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus sets the current status.
func (c *Channels) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// CommunicationFailed reports whether the station is unreachable.
func (c *Channels) CommunicationFailed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.communicationFailed
}

// SetCommunicationFailed sets the communication failed flag.
func (c *Channels) SetCommunicationFailed(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.communicationFailed = failed
}

// Snapshot returns a copy of all defined values.
func (c *Channels) Snapshot() map[ChannelID]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[ChannelID]float64, len(c.values))
	for id, v := range c.values {
		out[id] = v.v
	}
	return out
}
