package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// NewMeterValuesHandler maps sampled values onto the connector's channels and
// records the energy register to the historical store.
func NewMeterValuesHandler(components Components, recorder EnergyRecorder, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, stationID string, payload json.RawMessage) (any, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, err
		}

		c, ok := components.Connector(stationID, req.ConnectorID)
		if !ok {
			logger.Debug("meter values for unconfigured connector", zap.String("station_id", stationID), zap.Int("connector_id", req.ConnectorID))
			return protocol.MeterValuesResponse{}, nil
		}

		for _, mv := range req.MeterValue {
			at := mv.Timestamp.UTC()
			if mv.Timestamp.IsZero() {
				at = now()
			}
			power := phaseSum{}
			for _, sv := range mv.SampledValue {
				value, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
				if err != nil {
					logger.Debug("sampled value not numeric",
						zap.String("component_id", c.ID()),
						zap.String("measurand", string(sv.EffectiveMeasurand())),
						zap.String("value", sv.Value),
					)
					continue
				}
				value = normalize(value, sv.Unit)

				if sv.EffectiveMeasurand() == protocol.MeasurandEnergyActiveImportRegister {
					if sv.Phase != "" {
						continue
					}
					if energy, ok := applyEnergy(c, value); ok && recorder != nil {
						addr := evcs.ChannelAddress{Component: c.ID(), Channel: evcs.ActiveConsumptionEnergy}
						recordEnergy(ctx, recorder, addr, energy, at, logger)
					}
					continue
				}
				applySample(c.Channels(), sv, value, &power)
			}
			if total, ok := power.total(); ok {
				c.Channels().Set(evcs.ChargePower, total)
				c.Channels().Set(evcs.PowerToEV, total)
			}
		}
		return protocol.MeterValuesResponse{}, nil
	}
}

// recordTimeout bounds one background energy write including its retries.
const recordTimeout = 10 * time.Second

// recordEnergy writes the register reading in the background so a slow store
// never delays the reply to the station.
func recordEnergy(ctx context.Context, recorder EnergyRecorder, addr evcs.ChannelAddress, energy float64, at time.Time, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	go func() {
		defer cancel()
		if err := recorder.Record(ctx, addr, energy, at); err != nil {
			logger.Warn("failed to record energy", zap.String("address", addr.String()), zap.Error(err))
		}
	}()
}

// normalize converts kilo units to their base unit.
func normalize(value float64, unit string) float64 {
	switch unit {
	case protocol.UnitKWh, protocol.UnitKW:
		return value * 1000
	default:
		return value
	}
}

// applyEnergy updates both energy channels from a register reading and
// returns the lifetime meter value when it is known.
func applyEnergy(c *evcs.Component, value float64) (float64, bool) {
	ch := c.Channels()
	start := c.SessionStart()
	if c.Profile().ReturnsSessionEnergy() {
		ch.Set(evcs.EnergySession, value)
		if !start.IsSet() {
			return 0, false
		}
		total := float64(start.Energy()) + value
		ch.Set(evcs.ActiveConsumptionEnergy, total)
		return total, true
	}

	ch.Set(evcs.ActiveConsumptionEnergy, value)
	if start.IsSet() {
		session := value - float64(start.Energy())
		if session < 0 {
			session = 0
		}
		ch.Set(evcs.EnergySession, session)
	}
	return value, true
}

// phaseSum collects active power so a station reporting only per-phase
// values still yields a total.
type phaseSum struct {
	sum       float64
	hasSum    bool
	phases    float64
	hasPhases bool
}

func (p *phaseSum) add(phase string, value float64) {
	if phase == "" {
		p.sum = value
		p.hasSum = true
		return
	}
	p.phases += value
	p.hasPhases = true
}

func (p phaseSum) total() (float64, bool) {
	switch {
	case p.hasSum:
		return p.sum, true
	case p.hasPhases:
		return p.phases, true
	default:
		return 0, false
	}
}

func applySample(ch *evcs.Channels, sv protocol.SampledValue, value float64, power *phaseSum) {
	switch sv.EffectiveMeasurand() {
	case protocol.MeasurandPowerActiveImport:
		power.add(sv.Phase, value)
	case protocol.MeasurandPowerOffered:
		ch.Set(evcs.PowerOffered, value)
	case protocol.MeasurandCurrentImport:
		ch.Set(perPhase(sv.Phase, evcs.CurrentToEV, evcs.CurrentL1, evcs.CurrentL2, evcs.CurrentL3), value)
	case protocol.MeasurandCurrentOffered:
		ch.Set(evcs.CurrentOffered, value)
	case protocol.MeasurandVoltage:
		ch.Set(perPhase(sv.Phase, evcs.VoltageToEV, evcs.VoltageL1, evcs.VoltageL2, evcs.VoltageL3), value)
	case protocol.MeasurandFrequency:
		ch.Set(evcs.Frequency, value)
	case protocol.MeasurandTemperature:
		ch.Set(evcs.Temperature, value)
	case protocol.MeasurandSoC:
		ch.Set(evcs.SoC, value)
	}
}

func perPhase(phase string, total, l1, l2, l3 evcs.ChannelID) evcs.ChannelID {
	switch phase {
	case protocol.PhaseL1, protocol.PhaseL1N:
		return l1
	case protocol.PhaseL2, protocol.PhaseL2N:
		return l2
	case protocol.PhaseL3, protocol.PhaseL3N:
		return l3
	default:
		return total
	}
}
