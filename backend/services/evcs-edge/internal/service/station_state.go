package service

import (
	"sync"
	"time"

	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// ConnectorState holds the last reported connector status.
type ConnectorState struct {
	Status    protocol.ChargePointStatus `json:"status"`
	ErrorCode string                     `json:"errorCode,omitempty"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

// StationRuntimeState keeps runtime info per station.
type StationRuntimeState struct {
	Vendor          string                 `json:"vendor,omitempty"`
	Model           string                 `json:"model,omitempty"`
	SerialNumber    string                 `json:"serialNumber,omitempty"`
	FirmwareVersion string                 `json:"firmwareVersion,omitempty"`
	LastHeartbeat   time.Time              `json:"lastHeartbeat"`
	Connectors      map[int]ConnectorState `json:"connectors"`
}

// StationState keeps track of in-memory station data for quick lookups.
type StationState struct {
	mu       sync.RWMutex
	stations map[string]*StationRuntimeState
}

// NewStationState returns state store.
func NewStationState() *StationState {
	return &StationState{
		stations: make(map[string]*StationRuntimeState),
	}
}

func (s *StationState) getLocked(stationID string) *StationRuntimeState {
	state, ok := s.stations[stationID]
	if !ok {
		state = &StationRuntimeState{Connectors: make(map[int]ConnectorState)}
		s.stations[stationID] = state
	}
	return state
}

// UpdateBoot stores the identity a station reported at boot.
func (s *StationState) UpdateBoot(stationID string, req protocol.BootNotificationRequest, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getLocked(stationID)
	state.Vendor = req.ChargePointVendor
	state.Model = req.ChargePointModel
	state.SerialNumber = req.ChargePointSerialNumber
	state.FirmwareVersion = req.FirmwareVersion
	state.LastHeartbeat = at
}

// Touch records a sign of life.
func (s *StationState) Touch(stationID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(stationID).LastHeartbeat = at
}

// UpdateConnector updates connector-level status.
func (s *StationState) UpdateConnector(stationID string, connectorID int, status protocol.ChargePointStatus, errorCode string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getLocked(stationID)
	state.Connectors[connectorID] = ConnectorState{Status: status, ErrorCode: errorCode, UpdatedAt: at}
	state.LastHeartbeat = at
}

// Get returns a copy of one station's state.
func (s *StationState) Get(stationID string) (StationRuntimeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[stationID]
	if !ok {
		return StationRuntimeState{}, false
	}
	return copyState(st), true
}

// Snapshot returns a copy of current state map.
func (s *StationState) Snapshot() map[string]StationRuntimeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]StationRuntimeState, len(s.stations))
	for id, st := range s.stations {
		result[id] = copyState(st)
	}
	return result
}

func copyState(st *StationRuntimeState) StationRuntimeState {
	out := *st
	out.Connectors = make(map[int]ConnectorState, len(st.Connectors))
	for cid, conn := range st.Connectors {
		out.Connectors[cid] = conn
	}
	return out
}
