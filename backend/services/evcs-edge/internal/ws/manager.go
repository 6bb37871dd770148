package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager tracks station connections.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers conn and returns the connection it replaced, if any.
func (m *Manager) Add(conn *Connection) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.connections[conn.StationID()]
	m.connections[conn.StationID()] = conn
	return previous
}

// Remove unregisters conn unless it was already replaced.
func (m *Manager) Remove(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[conn.StationID()] != conn {
		return false
	}
	delete(m.connections, conn.StationID())
	return true
}

// Get returns the connection of a station.
func (m *Manager) Get(stationID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[stationID]
	return conn, ok
}

// Count returns the number of connected stations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// StationIDs returns the connected station ids, sorted.
func (m *Manager) StationIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Start pings every connection until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return nil
		case <-ticker.C:
			m.mu.RLock()
			conns := make([]*Connection, 0, len(m.connections))
			for _, conn := range m.connections {
				conns = append(conns, conn)
			}
			m.mu.RUnlock()
			for _, conn := range conns {
				if err := conn.Ping(); err != nil {
					m.logger.Debug("ping failed", zap.String("station_id", conn.StationID()), zap.Error(err))
				}
			}
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		_ = conn.Close()
	}
}
