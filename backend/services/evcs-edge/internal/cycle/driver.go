package cycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/metrics"
)

// Handler receives the two ordered phases of every control cycle.
type Handler interface {
	// OnAfterProcessImage runs once all inputs of the cycle were read.
	OnAfterProcessImage(ctx context.Context)
	// OnExecuteWrite runs after every handler finished the read phase.
	OnExecuteWrite(ctx context.Context)
}

// Driver fires the read phase and then the write phase on every registered
// handler once per period.
type Driver struct {
	period time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// NewDriver builds a driver ticking every period.
func NewDriver(period time.Duration, logger *zap.Logger) *Driver {
	if period <= 0 {
		period = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{period: period, logger: logger}
}

// Register adds h to the cycle. Handlers run in registration order.
func (d *Driver) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Run ticks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	d.logger.Info("cycle driver started", zap.Duration("period", d.period))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("cycle driver stopped")
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full cycle.
func (d *Driver) RunOnce(ctx context.Context) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	start := time.Now()
	for _, h := range handlers {
		d.safely(metrics.PhaseRead, func() { h.OnAfterProcessImage(ctx) })
	}
	metrics.ObserveCyclePhase(metrics.PhaseRead, time.Since(start))

	start = time.Now()
	for _, h := range handlers {
		d.safely(metrics.PhaseWrite, func() { h.OnExecuteWrite(ctx) })
	}
	metrics.ObserveCyclePhase(metrics.PhaseWrite, time.Since(start))
}

func (d *Driver) safely(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("cycle handler panicked", zap.String("phase", phase), zap.Any("panic", r))
		}
	}()
	fn()
}
