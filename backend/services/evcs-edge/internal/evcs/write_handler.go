package evcs

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultResendInterval  = 60 * time.Second
	defaultRequestInterval = 30 * time.Second
	nominalPhaseVoltage    = 230.0
)

// WriteRequest carries the state the writer decides on.
type WriteRequest struct {
	Status               Status
	LastChargingProperty *ChargingProperty
	Server               Server
	SessionID            uuid.UUID
}

// Writer computes and sends the next control command of a component.
type Writer interface {
	Write(ctx context.Context, req WriteRequest)
}

// WriteHandler is the default Writer. It polls the station on the request
// interval and, for managed components, sends charging profiles when the
// target changes or the last one is older than the resend interval.
type WriteHandler struct {
	component *Component
	logger    *zap.Logger
	now       func() time.Time

	mu               sync.Mutex
	pending          bool
	pendingSession   uuid.UUID
	lastRequestsSent time.Time
}

// NewWriteHandler returns a WriteHandler for c.
func NewWriteHandler(c *Component, logger *zap.Logger) *WriteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteHandler{
		component: c,
		logger:    logger,
		now:       time.Now,
	}
}

// Write implements Writer.
func (h *WriteHandler) Write(_ context.Context, req WriteRequest) {
	if req.Server == nil {
		return
	}
	now := h.now()

	h.sendDuringConnectionRequests(req, now)

	if !h.component.cfg.Managed {
		return
	}

	target, ok := h.targetPower(req.Status)
	if !ok {
		return
	}
	property := h.component.newChargingProperty(target, now)

	if last := req.LastChargingProperty; last != nil && last.Equal(&property) &&
		now.Sub(last.Timestamp) < h.resendInterval() {
		return
	}

	h.mu.Lock()
	if h.pending && h.pendingSession == req.SessionID {
		h.mu.Unlock()
		return
	}
	h.pending = true
	h.pendingSession = req.SessionID
	h.mu.Unlock()

	request := h.component.profile.StandardRequests().SetChargePowerLimit(property)
	sessionID := req.SessionID
	err := req.Server.Send(sessionID, request, func(resp Response) {
		h.release(sessionID)
		if resp.Err != nil {
			h.logger.Warn("charge power limit failed", zap.Int("power", property.Power), zap.Error(resp.Err))
			return
		}
		if !resp.Accepted {
			h.logger.Warn("charge power limit rejected", zap.Int("power", property.Power))
			return
		}
		p := property
		h.component.setLastChargingProperty(&p)
		h.logger.Debug("charge power limit accepted",
			zap.Int("power", property.Power),
			zap.Float64("current", property.Current),
			zap.String("mode", property.Mode.String()),
		)
	})
	if err != nil {
		h.release(sessionID)
		h.logger.Warn("send charge power limit", zap.Error(err))
	}
}

func (h *WriteHandler) release(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pendingSession == sessionID {
		h.pending = false
	}
}

func (h *WriteHandler) sendDuringConnectionRequests(req WriteRequest, now time.Time) {
	h.mu.Lock()
	due := h.lastRequestsSent.IsZero() || now.Sub(h.lastRequestsSent) >= h.requestInterval()
	if due {
		h.lastRequestsSent = now
	}
	h.mu.Unlock()
	if !due {
		return
	}

	for _, request := range h.component.profile.RequiredRequestsDuringConnection() {
		action := request.Action()
		err := req.Server.Send(req.SessionID, request, func(resp Response) {
			if resp.Err != nil {
				h.logger.Debug("request failed", zap.String("action", action), zap.Error(resp.Err))
			}
		})
		if err != nil {
			h.logger.Warn("send request", zap.String("action", action), zap.Error(err))
			return
		}
	}
}

// targetPower returns the power the station should be limited to, false when
// no limit was requested.
func (h *WriteHandler) targetPower(status Status) (int, bool) {
	ch := h.component.channels

	energyLimit, limitSet := ch.Get(SetEnergyLimit).Int()
	energySession, sessionSet := ch.Get(EnergySession).Int()
	if limitSet && sessionSet && energyLimit > 0 && energySession >= energyLimit {
		if status != StatusEnergyLimitReached {
			ch.SetStatus(StatusEnergyLimitReached)
			h.logger.Info("energy limit reached",
				zap.Int64("energy_session", energySession),
				zap.Int64("energy_limit", energyLimit),
			)
		}
		ch.Set(ChargePower, 0)
		return 0, true
	}

	limit, ok := ch.Get(SetChargePowerLimit).Int()
	if !ok {
		return 0, false
	}
	return h.clamp(int(limit)), true
}

func (h *WriteHandler) clamp(power int) int {
	if power <= 0 {
		return 0
	}
	ch := h.component.channels
	if maxPower, ok := ch.Get(MaximumHardwarePower).Int(); ok && maxPower > 0 && power > int(maxPower) {
		power = int(maxPower)
	}
	if minPower, ok := ch.Get(MinimumHardwarePower).Int(); ok && power < int(minPower) {
		power = int(minPower)
	}
	return power
}

func (h *WriteHandler) resendInterval() time.Duration {
	if d := h.component.cfg.ResendInterval; d > 0 {
		return d
	}
	return defaultResendInterval
}

func (h *WriteHandler) requestInterval() time.Duration {
	if d := h.component.cfg.RequestInterval; d > 0 {
		return d
	}
	return defaultRequestInterval
}

// newChargingProperty derives the directive for power watts.
func (c *Component) newChargingProperty(power int, now time.Time) ChargingProperty {
	phases := c.cfg.Phases
	if v, ok := c.channels.Get(Phases).Int(); ok && v > 0 {
		phases = int(v)
	}
	current := float64(power) / (nominalPhaseVoltage * float64(phases))
	return ChargingProperty{
		Mode:      c.cfg.LimitMode,
		Power:     power,
		Current:   math.Round(current*10) / 10,
		Phases:    phases,
		Timestamp: now,
	}
}
