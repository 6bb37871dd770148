package evcs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/metrics"
)

// Config holds the construction parameters of a Component.
type Config struct {
	ID                   string
	Alias                string
	OcppID               string
	ConnectorID          int
	MaximumHardwarePower int
	MinimumHardwarePower int
	Phases               int
	LimitMode            LimitMode
	// Managed components accept external charge power limits.
	Managed         bool
	ResendInterval  time.Duration
	RequestInterval time.Duration
}

// defaultLookupTimeout bounds one energy lookup including its retries.
const defaultLookupTimeout = 30 * time.Second

// Option customises a Component.
type Option func(*Component)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Component) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimedata sets the historical store used to seed the energy counter.
func WithTimedata(td Timedata) Option {
	return func(c *Component) {
		c.timedata = td
	}
}

// WithWriter replaces the default WriteHandler.
func WithWriter(w Writer) Option {
	return func(c *Component) {
		c.writer = w
	}
}

// sessionState is the protocol session a component is attached to together
// with the last directive the station acknowledged. server and id are set and
// cleared together; lastChargingProperty outlives session loss.
type sessionState struct {
	server               Server
	id                   uuid.UUID
	lastChargingProperty *ChargingProperty
}

// Component is an OCPP controlled charging station connector. The cycle
// driver calls OnAfterProcessImage and OnExecuteWrite; protocol handlers use
// NewSession, LostSession and Channels.
type Component struct {
	cfg      Config
	profile  Profile
	channels *Channels
	timedata Timedata
	writer   Writer
	logger   *zap.Logger
	debug    debugKind

	mu      sync.RWMutex
	session sessionState

	lookupTimeout  time.Duration
	lookupInFlight atomic.Bool

	sessionStart ChargeSessionStamp
	sessionEnd   ChargeSessionStamp
}

// New builds a component and publishes its hardware bounds.
func New(cfg Config, profile Profile, opts ...Option) (*Component, error) {
	if cfg.ID == "" {
		return nil, errors.New("evcs: component id is required")
	}
	if profile == nil {
		return nil, errors.New("evcs: profile is required")
	}
	if cfg.Phases <= 0 {
		cfg.Phases = 3
	}

	c := &Component{
		cfg:      cfg,
		profile:  profile,
		channels: NewChannels(),
		logger:   zap.NewNop(),
		debug:    debugPower,

		lookupTimeout: defaultLookupTimeout,
	}
	if cfg.Managed {
		c.debug = debugLimit
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component_id", cfg.ID))
	if c.writer == nil {
		c.writer = NewWriteHandler(c, c.logger)
	}

	c.channels.Set(MaximumHardwarePower, float64(cfg.MaximumHardwarePower))
	c.channels.Set(MinimumHardwarePower, float64(cfg.MinimumHardwarePower))
	c.channels.Set(Phases, float64(cfg.Phases))

	return c, nil
}

// ID returns the component id.
func (c *Component) ID() string {
	return c.cfg.ID
}

// Config returns the construction parameters.
func (c *Component) Config() Config {
	return c.cfg
}

// Profile returns the station profile.
func (c *Component) Profile() Profile {
	return c.profile
}

// Channels returns the channel set.
func (c *Component) Channels() *Channels {
	return c.channels
}

// NewSession attaches the component to a protocol session. A nil server or
// nil id detaches it instead.
func (c *Component) NewSession(server Server, sessionID uuid.UUID) {
	if server == nil || sessionID == uuid.Nil {
		c.LostSession()
		return
	}

	c.mu.Lock()
	c.session.server = server
	c.session.id = sessionID
	c.channels.SetStatus(StatusNotReadyForCharging)
	c.channels.SetCommunicationFailed(false)
	metrics.SetStatus(c.cfg.ID, int(StatusNotReadyForCharging))
	c.mu.Unlock()

	c.logger.Info("ocpp session started", zap.String("session_id", sessionID.String()))
}

// LostSession detaches the component from its protocol session.
func (c *Component) LostSession() {
	c.mu.Lock()
	had := c.lostSessionLocked()
	c.mu.Unlock()

	if had {
		c.logger.Warn("ocpp session lost")
	}
}

// lostSessionLocked clears the session and flags the failure. c.mu must be
// held so the channels never disagree with the session state.
func (c *Component) lostSessionLocked() bool {
	had := c.session.server != nil
	c.session.server = nil
	c.session.id = uuid.Nil
	c.channels.SetStatus(StatusUndefined)
	c.channels.SetCommunicationFailed(true)
	metrics.SetStatus(c.cfg.ID, int(StatusUndefined))
	return had
}

// SessionID returns the current session id and whether a session is attached.
func (c *Component) SessionID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.id, c.session.server != nil
}

// currentSession returns the attached session. Without one the component is
// marked lost in the same critical section, so a concurrent NewSession either
// happens before the check or after the reset, never in between.
func (c *Component) currentSession() (Server, uuid.UUID, bool) {
	c.mu.Lock()
	if c.session.server != nil {
		server, id := c.session.server, c.session.id
		c.mu.Unlock()
		return server, id, true
	}
	c.lostSessionLocked()
	c.mu.Unlock()
	return nil, uuid.Nil, false
}

// LastChargingProperty returns the last acknowledged directive, nil if none.
func (c *Component) LastChargingProperty() *ChargingProperty {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session.lastChargingProperty == nil {
		return nil
	}
	p := *c.session.lastChargingProperty
	return &p
}

func (c *Component) setLastChargingProperty(p *ChargingProperty) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.lastChargingProperty = p
}

// SessionStart returns the stamp of the current charge session start.
func (c *Component) SessionStart() *ChargeSessionStamp {
	return &c.sessionStart
}

// SessionEnd returns the stamp of the last charge session end.
func (c *Component) SessionEnd() *ChargeSessionStamp {
	return &c.sessionEnd
}

// OnAfterProcessImage seeds the energy counter from the historical store.
func (c *Component) OnAfterProcessImage(ctx context.Context) {
	c.seedActiveConsumptionEnergy(ctx)
}

// OnExecuteWrite evaluates the status and hands over to the writer.
func (c *Component) OnExecuteWrite(ctx context.Context) {
	server, sessionID, ok := c.currentSession()
	if !ok {
		return
	}

	c.checkCurrentState()

	c.writer.Write(ctx, WriteRequest{
		Status:               c.channels.Status(),
		LastChargingProperty: c.LastChargingProperty(),
		Server:               server,
		SessionID:            sessionID,
	})
}

// seedActiveConsumptionEnergy fires one lookup of the latest recorded energy
// when the channel is unset and no lookup is pending. The result is applied
// whenever it arrives.
func (c *Component) seedActiveConsumptionEnergy(ctx context.Context) {
	if c.channels.Get(ActiveConsumptionEnergy).Defined() {
		return
	}
	if c.timedata == nil {
		return
	}
	if !c.lookupInFlight.CompareAndSwap(false, true) {
		return
	}

	addr := ChannelAddress{Component: c.cfg.ID, Channel: ActiveConsumptionEnergy}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
	go func() {
		defer c.lookupInFlight.Store(false)
		defer cancel()

		value, ok, err := c.timedata.LatestValue(lookupCtx, addr)
		if err != nil {
			metrics.IncTimedataLookup(metrics.ResultError)
			c.logger.Warn("timedata lookup failed", zap.String("address", addr.String()), zap.Error(err))
			return
		}
		if !ok {
			metrics.IncTimedataLookup(metrics.ResultEmpty)
			c.channels.Set(ActiveConsumptionEnergy, 0)
			return
		}
		energy, err := asInt64(value)
		if err != nil {
			metrics.IncTimedataLookup(metrics.ResultError)
			c.logger.Warn("timedata value not numeric", zap.String("address", addr.String()), zap.Any("value", value), zap.Error(err))
			energy = 0
		} else {
			metrics.IncTimedataLookup(metrics.ResultSuccess)
		}
		c.channels.Set(ActiveConsumptionEnergy, float64(energy))
	}()
}

// checkCurrentState resets stale measurements for the current status.
func (c *Component) checkCurrentState() {
	switch c.channels.Status() {
	case StatusCharging:
	case StatusChargingFinished:
		c.resetMeasuredChannelValues()
	default:
		c.channels.Set(ChargePower, 0)
	}
}

func (c *Component) resetMeasuredChannelValues() {
	for _, id := range MeasuredChannels {
		c.channels.Clear(id)
	}
	c.channels.Set(ChargePower, 0)
}
