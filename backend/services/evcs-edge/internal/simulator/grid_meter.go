package simulator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/metrics"
)

// GridMeterConfig holds the parameters of a simulated grid meter. The Modbus
// fields are carried for completeness; the meter is not served over Modbus.
type GridMeterConfig struct {
	ID           string
	Alias        string
	Enabled      bool
	DatasourceID string
	ModbusID     string
	ModbusUnitID int
}

// GridMeter is a grid meter whose active power follows a datasource, one
// sample per cycle.
type GridMeter struct {
	cfg    GridMeterConfig
	source *Datasource
	logger *zap.Logger

	mu          sync.RWMutex
	activePower float64
	defined     bool
}

// NewGridMeter returns meter.
func NewGridMeter(cfg GridMeterConfig, source *Datasource, logger *zap.Logger) (*GridMeter, error) {
	if cfg.ID == "" {
		return nil, errors.New("simulator: grid meter id is required")
	}
	if source == nil {
		return nil, errors.New("simulator: grid meter " + cfg.ID + " has no datasource")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridMeter{cfg: cfg, source: source, logger: logger.With(zap.String("meter_id", cfg.ID))}, nil
}

// ID returns the meter id.
func (m *GridMeter) ID() string {
	return m.cfg.ID
}

// ActivePower returns the current active power in W; ok is false before the
// first cycle or while disabled.
func (m *GridMeter) ActivePower() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activePower, m.defined
}

// OnAfterProcessImage advances the datasource.
func (m *GridMeter) OnAfterProcessImage(context.Context) {
	if !m.cfg.Enabled {
		return
	}
	v := m.source.Next()
	m.mu.Lock()
	m.activePower = v
	m.defined = true
	m.mu.Unlock()
	metrics.SetGridPower(m.cfg.ID, v)
	m.logger.Debug("grid meter sample", zap.Float64("active_power", v))
}

// OnExecuteWrite implements cycle.Handler; a meter has nothing to write.
func (m *GridMeter) OnExecuteWrite(context.Context) {}
