package ocpp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/metrics"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// CommandStatus is the delivery state of a command.
type CommandStatus string

var idGenerator = uuid.NewString

const (
	CommandStatusQueued   CommandStatus = "queued"
	CommandStatusPending  CommandStatus = "pending"
	CommandStatusAccepted CommandStatus = "accepted"
	CommandStatusRejected CommandStatus = "rejected"
	CommandStatusFailed   CommandStatus = "failed"
	CommandStatusTimeout  CommandStatus = "timeout"
)

func (s CommandStatus) done() bool {
	switch s {
	case CommandStatusQueued, CommandStatusPending:
		return false
	default:
		return true
	}
}

// CommandResult is passed to the callback of a finished command.
type CommandResult struct {
	CommandID  string
	MessageID  string
	Status     CommandStatus
	Attempts   int
	Payload    map[string]any
	Err        error
	OccurredAt time.Time
	StationID  string
	Action     string
}

// CommandSnapshot is a read-only view of a command.
type CommandSnapshot struct {
	ID             string        `json:"id"`
	StationID      string        `json:"stationId"`
	Action         string        `json:"action"`
	Status         CommandStatus `json:"status"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"maxAttempts"`
	LastMessageID  string        `json:"lastMessageId"`
	LastError      string        `json:"lastError,omitempty"`
	ResponseStatus string        `json:"responseStatus,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Payload        any           `json:"payload"`
}

// CommandCallback is invoked once when a command finishes.
type CommandCallback func(CommandResult)

// CommandManagerConfig configures delivery.
type CommandManagerConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	// Retention is how long finished commands stay queryable.
	Retention time.Duration
	Logger    *zap.Logger
}

// Command is one outgoing call with its delivery state. All fields but the
// immutable identity are guarded by mu.
type Command struct {
	id          string
	stationID   string
	action      string
	payload     any
	maxAttempts int
	timeout     time.Duration
	createdAt   time.Time

	mu             sync.Mutex
	status         CommandStatus
	attempts       int
	updatedAt      time.Time
	lastError      string
	lastMessageID  string
	responseStatus string
	timer          *time.Timer
	callback       CommandCallback
}

func newCommand(stationID, action string, payload any, timeout time.Duration, maxAttempts int) *Command {
	now := time.Now().UTC()
	return &Command{
		id:          idGenerator(),
		stationID:   stationID,
		action:      action,
		payload:     payload,
		status:      CommandStatusQueued,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (c *Command) snapshot() CommandSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CommandSnapshot{
		ID:             c.id,
		StationID:      c.stationID,
		Action:         c.action,
		Status:         c.status,
		Attempts:       c.attempts,
		MaxAttempts:    c.maxAttempts,
		LastMessageID:  c.lastMessageID,
		LastError:      c.lastError,
		ResponseStatus: c.responseStatus,
		CreatedAt:      c.createdAt,
		UpdatedAt:      c.updatedAt,
		Payload:        c.payload,
	}
}

func (c *Command) markSent(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = CommandStatusPending
	c.lastMessageID = messageID
	c.attempts++
	c.updatedAt = time.Now().UTC()
}

// requeue puts the command back into the queued state. refund gives back the
// attempt of a call that never reached the station.
func (c *Command) requeue(reason string, refund bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	if refund && c.attempts > 0 {
		c.attempts--
	}
	c.status = CommandStatusQueued
	c.lastMessageID = ""
	c.responseStatus = ""
	c.lastError = reason
	c.updatedAt = time.Now().UTC()
}

func (c *Command) setTimer(timer *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.timer = timer
}

func (c *Command) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Command) frame(messageID string) []any {
	return []any{protocol.MessageTypeCall, messageID, c.action, c.payload}
}

// finish records the final status and runs the callback once.
func (c *Command) finish(status CommandStatus, messageID string, payload map[string]any, err error) {
	now := time.Now().UTC()

	c.mu.Lock()
	c.stopTimerLocked()
	c.status = status
	if messageID != "" {
		c.lastMessageID = messageID
	}
	c.responseStatus = responseStatus(payload)
	c.lastError = ""
	if err != nil {
		c.lastError = err.Error()
	}
	c.updatedAt = now
	result := CommandResult{
		CommandID:  c.id,
		MessageID:  c.lastMessageID,
		Status:     status,
		Attempts:   c.attempts,
		Payload:    payload,
		Err:        err,
		OccurredAt: now,
		StationID:  c.stationID,
		Action:     c.action,
	}
	cb := c.callback
	c.callback = nil
	c.mu.Unlock()

	metrics.IncCommandResult(string(status))
	if cb != nil {
		go cb(result)
	}
}

type wsConn interface {
	WriteJSON(v any) error
	Close() error
}

type stationSession struct {
	stationID string
	manager   *CommandManager

	mu      sync.Mutex
	conn    wsConn
	queue   []*Command
	pending map[string]*Command
}

// CommandManager delivers calls to stations: one call in flight per station,
// the rest queued until the station answers, fails or times out.
type CommandManager struct {
	mu        sync.Mutex
	sessions  map[string]*stationSession
	commands  map[string]*Command
	timeout   time.Duration
	attempts  int
	retention time.Duration
	logger    *zap.Logger
}

// NewCommandManager builds a manager.
func NewCommandManager(cfg CommandManagerConfig) *CommandManager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandManager{
		sessions:  make(map[string]*stationSession),
		commands:  make(map[string]*Command),
		timeout:   timeout,
		attempts:  attempts,
		retention: retention,
		logger:    logger,
	}
}

func (m *CommandManager) getOrCreateSessionLocked(stationID string) *stationSession {
	sess, ok := m.sessions[stationID]
	if !ok {
		sess = &stationSession{
			stationID: stationID,
			manager:   m,
			queue:     make([]*Command, 0),
			pending:   make(map[string]*Command),
		}
		m.sessions[stationID] = sess
	}
	return sess
}

// AttachConnection sets the connection of a station and flushes its queue.
func (m *CommandManager) AttachConnection(stationID string, conn wsConn) {
	m.mu.Lock()
	sess := m.getOrCreateSessionLocked(stationID)
	sess.mu.Lock()
	oldConn := sess.conn
	sess.conn = conn
	sess.mu.Unlock()
	m.mu.Unlock()

	if oldConn != nil && oldConn != conn {
		_ = oldConn.Close()
	}

	sess.flushQueue()
}

// DetachConnection removes conn and requeues its pending commands.
func (m *CommandManager) DetachConnection(stationID string, conn wsConn) {
	sess := m.getSession(stationID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	if sess.conn != conn {
		sess.mu.Unlock()
		return
	}
	sess.conn = nil
	pending := sess.drainPendingLocked()
	sess.mu.Unlock()

	for _, cmd := range pending {
		cmd.requeue("connection lost", false)
		sess.requeueFront(cmd)
	}
}

// FailQueued finishes every queued and pending command of a station with
// CommandStatusFailed.
func (m *CommandManager) FailQueued(stationID, reason string) int {
	sess := m.getSession(stationID)
	if sess == nil {
		return 0
	}

	sess.mu.Lock()
	cmds := append(sess.drainPendingLocked(), sess.queue...)
	sess.queue = nil
	sess.mu.Unlock()

	for _, cmd := range cmds {
		cmd.finish(CommandStatusFailed, "", nil, errors.New(reason))
	}
	return len(cmds)
}

// EnqueueCommand queues a call for a station.
func (m *CommandManager) EnqueueCommand(stationID, action string, payload any, cb CommandCallback) (CommandSnapshot, error) {
	stationID = strings.TrimSpace(stationID)
	action = strings.TrimSpace(action)
	if stationID == "" {
		return CommandSnapshot{}, errors.New("ocpp: station id is required")
	}
	if action == "" {
		return CommandSnapshot{}, errors.New("ocpp: action is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	cmd := newCommand(stationID, action, payload, m.timeout, m.attempts)
	cmd.callback = cb

	m.mu.Lock()
	m.pruneLocked(time.Now().UTC())
	m.commands[cmd.id] = cmd
	sess := m.getOrCreateSessionLocked(stationID)
	m.mu.Unlock()

	snapshot := cmd.snapshot()
	metrics.IncCommandIssued(action)
	m.logger.Debug("command queued",
		zap.String("station_id", stationID),
		zap.String("action", action),
		zap.String("command_id", cmd.id),
	)
	sess.enqueueCommand(cmd)

	return snapshot, nil
}

func (m *CommandManager) pruneLocked(now time.Time) {
	for id, cmd := range m.commands {
		snap := cmd.snapshot()
		if snap.Status.done() && now.Sub(snap.UpdatedAt) > m.retention {
			delete(m.commands, id)
		}
	}
}

// GetCommandSnapshot returns a command by id.
func (m *CommandManager) GetCommandSnapshot(commandID string) (CommandSnapshot, bool) {
	m.mu.Lock()
	cmd, ok := m.commands[commandID]
	m.mu.Unlock()
	if !ok {
		return CommandSnapshot{}, false
	}
	return cmd.snapshot(), true
}

// ListCommands returns the known commands of a station, newest first.
func (m *CommandManager) ListCommands(stationID string) []CommandSnapshot {
	m.mu.Lock()
	cmds := make([]*Command, 0)
	for _, cmd := range m.commands {
		if cmd.stationID == stationID {
			cmds = append(cmds, cmd)
		}
	}
	m.mu.Unlock()

	out := make([]CommandSnapshot, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// HandleCallResult completes the pending command answered by messageID.
func (m *CommandManager) HandleCallResult(stationID, messageID string, payload map[string]any) {
	sess, cmd := m.resolve(stationID, messageID, "call result")
	if cmd == nil {
		return
	}

	status, err := classifyResponse(payload)
	cmd.finish(status, messageID, payload, err)
	m.logger.Debug("command completed",
		zap.String("station_id", stationID),
		zap.String("action", cmd.action),
		zap.String("command_id", cmd.id),
		zap.String("status", string(status)),
	)

	sess.flushQueue()
}

// HandleCallError fails the pending command answered by messageID.
func (m *CommandManager) HandleCallError(stationID, messageID, errorCode, description string, details map[string]any) {
	sess, cmd := m.resolve(stationID, messageID, "call error")
	if cmd == nil {
		return
	}

	err := fmt.Errorf("%s: %s", errorCode, description)
	cmd.finish(CommandStatusFailed, messageID, details, err)
	m.logger.Warn("command failed",
		zap.String("station_id", stationID),
		zap.String("action", cmd.action),
		zap.String("command_id", cmd.id),
		zap.Error(err),
	)

	sess.flushQueue()
}

func (m *CommandManager) handleTimeout(stationID, messageID string) {
	sess, cmd := m.resolve(stationID, messageID, "timeout")
	if cmd == nil {
		return
	}

	snap := cmd.snapshot()
	if snap.Attempts >= snap.MaxAttempts {
		cmd.finish(CommandStatusTimeout, messageID, nil, fmt.Errorf("ocpp: command timeout after %d attempts", snap.Attempts))
		m.logger.Warn("command timed out",
			zap.String("station_id", stationID),
			zap.String("action", snap.Action),
			zap.Int("attempts", snap.Attempts),
		)
		sess.flushQueue()
		return
	}

	cmd.requeue("timeout waiting for response", false)
	m.logger.Debug("command retry",
		zap.String("station_id", stationID),
		zap.String("command_id", snap.ID),
		zap.Int("attempt", snap.Attempts+1),
		zap.Int("max_attempts", snap.MaxAttempts),
	)
	sess.requeueFront(cmd)
}

// resolve takes the pending command answered by messageID off its station.
func (m *CommandManager) resolve(stationID, messageID, kind string) (*stationSession, *Command) {
	sess := m.getSession(stationID)
	var cmd *Command
	if sess != nil {
		cmd = sess.takePending(messageID)
	}
	if cmd == nil {
		m.logger.Debug("no pending command for "+kind, zap.String("station_id", stationID), zap.String("message_id", messageID))
	}
	return sess, cmd
}

func (m *CommandManager) getSession(stationID string) *stationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[stationID]
}

func (s *stationSession) enqueueCommand(cmd *Command) {
	s.mu.Lock()
	s.queue = append(s.queue, cmd)
	s.mu.Unlock()
	s.flushQueue()
}

func (s *stationSession) flushQueue() {
	for {
		cmd, conn, messageID := s.nextCommand()
		if cmd == nil {
			return
		}
		if err := s.sendCommand(conn, cmd, messageID); err != nil {
			s.handleSendError(conn, cmd, err)
			return
		}
	}
}

// nextCommand dequeues the head command and marks it pending under the
// session lock so that at most one call is in flight.
func (s *stationSession) nextCommand() (*Command, wsConn, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || len(s.pending) > 0 || len(s.queue) == 0 {
		return nil, nil, ""
	}
	cmd := s.queue[0]
	s.queue = s.queue[1:]

	messageID := idGenerator()
	s.pending[messageID] = cmd
	cmd.markSent(messageID)
	return cmd, s.conn, messageID
}

func (s *stationSession) sendCommand(conn wsConn, cmd *Command, messageID string) error {
	timer := time.AfterFunc(cmd.timeout, func() {
		s.manager.handleTimeout(s.stationID, messageID)
	})
	cmd.setTimer(timer)

	if err := conn.WriteJSON(cmd.frame(messageID)); err != nil {
		s.takePending(messageID)
		return err
	}
	return nil
}

func (s *stationSession) takePending(messageID string) *Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.pending[messageID]
	if ok {
		delete(s.pending, messageID)
	}
	return cmd
}

func (s *stationSession) drainPendingLocked() []*Command {
	out := make([]*Command, 0, len(s.pending))
	for _, cmd := range s.pending {
		out = append(out, cmd)
	}
	clear(s.pending)
	return out
}

func (s *stationSession) requeueFront(cmd *Command) {
	s.mu.Lock()
	s.queue = append([]*Command{cmd}, s.queue...)
	s.mu.Unlock()
	s.flushQueue()
}

func (s *stationSession) handleSendError(conn wsConn, cmd *Command, err error) {
	errMsg := fmt.Sprintf("send command failed: %v", err)
	s.manager.logger.Warn("send command failed", zap.String("station_id", s.stationID), zap.Error(err))
	cmd.requeue(errMsg, true)

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.queue = append([]*Command{cmd}, s.queue...)
	s.mu.Unlock()

	_ = conn.Close()
}

// classifyResponse maps the status field of a CALLRESULT. Responses without
// status (e.g. Heartbeat style acks) count as accepted.
func classifyResponse(payload map[string]any) (CommandStatus, error) {
	status := responseStatus(payload)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "accepted", "rebootrequired":
		return CommandStatusAccepted, nil
	case "rejected", "notsupported", "notimplemented":
		return CommandStatusRejected, nil
	default:
		return CommandStatusFailed, fmt.Errorf("ocpp: unexpected status %q", status)
	}
}

func responseStatus(payload map[string]any) string {
	status, _ := payload["status"].(string)
	return status
}
