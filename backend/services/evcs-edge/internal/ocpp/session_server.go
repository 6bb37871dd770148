package ocpp

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

// ErrUnknownSession is returned when sending on a closed or unknown session.
var ErrUnknownSession = errors.New("ocpp: unknown session")

// SessionServer is the evcs.Server handed to components. It maps session ids
// to the station connection they belong to and delivers through the
// CommandManager.
type SessionServer struct {
	commands *CommandManager

	mu       sync.RWMutex
	stations map[uuid.UUID]string
}

// NewSessionServer builds a SessionServer.
func NewSessionServer(commands *CommandManager) *SessionServer {
	return &SessionServer{
		commands: commands,
		stations: make(map[uuid.UUID]string),
	}
}

// Open starts a session for stationID.
func (s *SessionServer) Open(stationID string) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.stations[id] = stationID
	s.mu.Unlock()
	return id
}

// Close ends a session. Commands already queued are still delivered.
func (s *SessionServer) Close(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.stations, sessionID)
	s.mu.Unlock()
}

// StationID returns the station of a session.
func (s *SessionServer) StationID(sessionID uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stationID, ok := s.stations[sessionID]
	return stationID, ok
}

// Send implements evcs.Server.
func (s *SessionServer) Send(sessionID uuid.UUID, req evcs.Request, cb func(evcs.Response)) error {
	stationID, ok := s.StationID(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	var callback CommandCallback
	if cb != nil {
		callback = func(result CommandResult) {
			cb(evcs.Response{
				Accepted: result.Status == CommandStatusAccepted,
				Payload:  result.Payload,
				Err:      result.Err,
			})
		}
	}

	_, err := s.commands.EnqueueCommand(stationID, req.Action(), req, callback)
	return err
}
