package sessions

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

type fakeServer struct {
	mu     sync.Mutex
	open   map[uuid.UUID]string
	closed []uuid.UUID
	sent   []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{open: make(map[uuid.UUID]string)}
}

func (s *fakeServer) Open(stationID string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.open[id] = stationID
	return id
}

func (s *fakeServer) Close(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, sessionID)
	s.closed = append(s.closed, sessionID)
}

func (s *fakeServer) Send(_ uuid.UUID, req evcs.Request, cb func(evcs.Response)) error {
	s.mu.Lock()
	s.sent = append(s.sent, req.Action())
	s.mu.Unlock()
	if cb != nil {
		cb(evcs.Response{Accepted: true})
	}
	return nil
}

func newComponent(t *testing.T, id, station string, connector int) *evcs.Component {
	t.Helper()
	c, err := evcs.New(evcs.Config{ID: id, OcppID: station, ConnectorID: connector}, evcs.GenericProfile{ConnectorID: connector})
	require.NoError(t, err)
	return c
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(newFakeServer(), nil)
	require.NoError(t, r.Register(newComponent(t, "evcs0", "CP-1", 1)))

	assert.ErrorIs(t, r.Register(newComponent(t, "evcs0", "CP-2", 1)), ErrDuplicateComponent)
	assert.ErrorIs(t, r.Register(newComponent(t, "evcs1", "CP-1", 1)), ErrDuplicateComponent)
	assert.NoError(t, r.Register(newComponent(t, "evcs1", "CP-1", 2)))
}

func TestRegistryAttachAndDetach(t *testing.T) {
	server := newFakeServer()
	r := NewRegistry(server, nil)
	left := newComponent(t, "evcs0", "CP-1", 1)
	right := newComponent(t, "evcs1", "CP-1", 2)
	require.NoError(t, r.Register(left))
	require.NoError(t, r.Register(right))

	sessionID, ok := r.Attach("CP-1")
	require.True(t, ok)

	for _, c := range []*evcs.Component{left, right} {
		id, attached := c.SessionID()
		assert.True(t, attached)
		assert.Equal(t, sessionID, id)
		assert.Equal(t, evcs.StatusNotReadyForCharging, c.Channels().Status())
	}
	assert.Contains(t, server.sent, protocol.ActionChangeConfiguration)

	r.Detach("CP-1")
	for _, c := range []*evcs.Component{left, right} {
		_, attached := c.SessionID()
		assert.False(t, attached)
		assert.True(t, c.Channels().CommunicationFailed())
		assert.Equal(t, evcs.StatusUndefined, c.Channels().Status())
	}
	assert.Equal(t, []uuid.UUID{sessionID}, server.closed)

	_, ok = r.Session("CP-1")
	assert.False(t, ok)
}

func TestRegistryReattachReplacesSession(t *testing.T) {
	server := newFakeServer()
	r := NewRegistry(server, nil)
	c := newComponent(t, "evcs0", "CP-1", 1)
	require.NoError(t, r.Register(c))

	first, _ := r.Attach("CP-1")
	second, _ := r.Attach("CP-1")

	assert.NotEqual(t, first, second)
	assert.Equal(t, []uuid.UUID{first}, server.closed)
	id, _ := c.SessionID()
	assert.Equal(t, second, id)
}

func TestRegistryUnknownStation(t *testing.T) {
	r := NewRegistry(newFakeServer(), nil)

	_, ok := r.Attach("CP-unknown")
	assert.False(t, ok)
	assert.NotPanics(t, func() { r.Detach("CP-unknown") })
}

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry(newFakeServer(), nil)
	require.NoError(t, r.Register(newComponent(t, "b", "CP-1", 2)))
	require.NoError(t, r.Register(newComponent(t, "a", "CP-1", 1)))

	c, ok := r.Connector("CP-1", 2)
	require.True(t, ok)
	assert.Equal(t, "b", c.ID())

	_, ok = r.Connector("CP-1", 3)
	assert.False(t, ok)

	all := r.Components()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID())
	assert.Len(t, r.Station("CP-1"), 2)
}
