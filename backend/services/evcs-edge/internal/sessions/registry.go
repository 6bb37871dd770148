package sessions

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/metrics"
)

// ErrDuplicateComponent is returned when a component id or connector is
// registered twice.
var ErrDuplicateComponent = errors.New("sessions: duplicate component")

// Server is the protocol side of a session.
type Server interface {
	evcs.Server
	Open(stationID string) uuid.UUID
	Close(sessionID uuid.UUID)
}

// Registry binds configured components to station connections. All
// connectors of one station share the station's session.
type Registry struct {
	server Server
	logger *zap.Logger

	mu        sync.RWMutex
	byID      map[string]*evcs.Component
	byStation map[string][]*evcs.Component
	active    map[string]uuid.UUID
}

// NewRegistry builds an empty registry.
func NewRegistry(server Server, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		server:    server,
		logger:    logger,
		byID:      make(map[string]*evcs.Component),
		byStation: make(map[string][]*evcs.Component),
		active:    make(map[string]uuid.UUID),
	}
}

// Register adds a component.
func (r *Registry) Register(c *evcs.Component) error {
	cfg := c.Config()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[cfg.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicateComponent, cfg.ID)
	}
	for _, other := range r.byStation[cfg.OcppID] {
		if other.Config().ConnectorID == cfg.ConnectorID {
			return fmt.Errorf("%w: %s connector %d", ErrDuplicateComponent, cfg.OcppID, cfg.ConnectorID)
		}
	}
	r.byID[cfg.ID] = c
	r.byStation[cfg.OcppID] = append(r.byStation[cfg.OcppID], c)
	return nil
}

// Attach opens a session for a connected station, hands it to the station's
// components and sends their after-connection requests.
func (r *Registry) Attach(stationID string) (uuid.UUID, bool) {
	r.mu.Lock()
	components := append([]*evcs.Component(nil), r.byStation[stationID]...)
	if len(components) == 0 {
		r.mu.Unlock()
		r.logger.Warn("unknown station connected", zap.String("station_id", stationID))
		return uuid.Nil, false
	}
	if previous, ok := r.active[stationID]; ok {
		r.server.Close(previous)
	}
	sessionID := r.server.Open(stationID)
	r.active[stationID] = sessionID
	activeCount := len(r.active)
	r.mu.Unlock()

	metrics.SetActiveSessions(activeCount)
	for _, c := range components {
		c.NewSession(r.server, sessionID)
		r.sendAfterConnection(c, sessionID)
	}
	r.logger.Info("station session opened",
		zap.String("station_id", stationID),
		zap.String("session_id", sessionID.String()),
		zap.Int("components", len(components)),
	)
	return sessionID, true
}

// Detach closes the session of a disconnected station.
func (r *Registry) Detach(stationID string) {
	r.mu.Lock()
	sessionID, ok := r.active[stationID]
	if ok {
		delete(r.active, stationID)
	}
	components := append([]*evcs.Component(nil), r.byStation[stationID]...)
	activeCount := len(r.active)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.server.Close(sessionID)
	metrics.SetActiveSessions(activeCount)
	for _, c := range components {
		c.LostSession()
	}
	r.logger.Info("station session closed", zap.String("station_id", stationID), zap.String("session_id", sessionID.String()))
}

func (r *Registry) sendAfterConnection(c *evcs.Component, sessionID uuid.UUID) {
	for _, req := range c.Profile().RequiredRequestsAfterConnection() {
		action := req.Action()
		err := r.server.Send(sessionID, req, func(resp evcs.Response) {
			if resp.Err != nil || !resp.Accepted {
				r.logger.Warn("after connection request not accepted",
					zap.String("component_id", c.ID()),
					zap.String("action", action),
					zap.Error(resp.Err),
				)
			}
		})
		if err != nil {
			r.logger.Warn("send after connection request", zap.String("component_id", c.ID()), zap.Error(err))
			return
		}
	}
}

// Session returns the active session of a station.
func (r *Registry) Session(stationID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[stationID]
	return id, ok
}

// Component returns a component by id.
func (r *Registry) Component(id string) (*evcs.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Connector returns the component of a station connector.
func (r *Registry) Connector(stationID string, connectorID int) (*evcs.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byStation[stationID] {
		if c.Config().ConnectorID == connectorID {
			return c, true
		}
	}
	return nil, false
}

// Station returns the components of a station.
func (r *Registry) Station(stationID string) []*evcs.Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*evcs.Component(nil), r.byStation[stationID]...)
}

// Components returns all components sorted by id.
func (r *Registry) Components() []*evcs.Component {
	r.mu.RLock()
	out := make([]*evcs.Component, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
