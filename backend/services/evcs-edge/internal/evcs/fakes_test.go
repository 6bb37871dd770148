package evcs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

type sentRequest struct {
	sessionID uuid.UUID
	req       Request
	cb        func(Response)
}

type fakeServer struct {
	mu      sync.Mutex
	sent    []sentRequest
	reply   *Response
	sendErr error
}

func (s *fakeServer) Send(sessionID uuid.UUID, req Request, cb func(Response)) error {
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, sentRequest{sessionID: sessionID, req: req, cb: cb})
	reply := s.reply
	s.mu.Unlock()

	if reply != nil && cb != nil {
		cb(*reply)
	}
	return nil
}

func (s *fakeServer) autoReply(r Response) {
	s.mu.Lock()
	s.reply = &r
	s.mu.Unlock()
}

func (s *fakeServer) byAction(action string) []sentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentRequest
	for _, r := range s.sent {
		if r.req.Action() == action {
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeServer) limits() []protocol.SetChargingProfileRequest {
	var out []protocol.SetChargingProfileRequest
	for _, r := range s.byAction(protocol.ActionSetChargingProfile) {
		out = append(out, r.req.(protocol.SetChargingProfileRequest))
	}
	return out
}

type lookupResult struct {
	value any
	ok    bool
	err   error
}

type fakeTimedata struct {
	mu      sync.Mutex
	calls   []ChannelAddress
	result  lookupResult
	release chan struct{}
}

func (f *fakeTimedata) LatestValue(ctx context.Context, addr ChannelAddress) (any, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, addr)
	result := f.result
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return result.value, result.ok, result.err
}

func (f *fakeTimedata) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingWriter struct {
	mu    sync.Mutex
	calls []WriteRequest
}

func (w *recordingWriter) Write(_ context.Context, req WriteRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, req)
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		ID:                   "evcs0",
		Alias:                "Garage",
		OcppID:               "CP-1",
		ConnectorID:          1,
		MaximumHardwarePower: 22000,
		MinimumHardwarePower: 4200,
		Phases:               3,
		Managed:              true,
	}
}

func newTestComponent(t *testing.T, cfg Config, opts ...Option) *Component {
	t.Helper()
	c, err := New(cfg, GenericProfile{ConnectorID: cfg.ConnectorID}, opts...)
	if err != nil {
		t.Fatalf("new component: %v", err)
	}
	return c
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
