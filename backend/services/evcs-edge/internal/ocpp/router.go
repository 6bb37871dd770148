package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/metrics"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// OCPP-J CALLERROR codes.
const (
	ErrorCodeNotImplemented     = "NotImplemented"
	ErrorCodeFormationViolation = "FormationViolation"
	ErrorCodeInternalError      = "InternalError"
)

var (
	// ErrNotImplemented is returned for actions without a handler.
	ErrNotImplemented = errors.New("ocpp: action not implemented")
	// ErrFormation wraps payload decoding failures.
	ErrFormation = errors.New("ocpp: malformed payload")
)

// HandlerFunc processes message payload and returns response body.
type HandlerFunc func(ctx context.Context, stationID string, payload json.RawMessage) (any, error)

// Router dispatches OCPP actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Route executes handler for message.
func (r *Router) Route(ctx context.Context, stationID string, msg *Message) (any, error) {
	handler, ok := r.handlers[msg.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, msg.Action)
	}
	return handler(ctx, stationID, msg.Payload)
}

// CallResultHandler receives the station's answers to our calls.
type CallResultHandler interface {
	HandleCallResult(stationID, messageID string, payload map[string]any)
	HandleCallError(stationID, messageID, errorCode, description string, details map[string]any)
}

// OCPPLogRepository stores raw frames.
type OCPPLogRepository interface {
	Save(ctx context.Context, stationID, direction, messageType string, payload []byte) error
}

// Processor ties together parsing, routing, and response encoding.
type Processor struct {
	parser  *Parser
	router  *Router
	results CallResultHandler
	logger  *zap.Logger
	logRepo OCPPLogRepository
}

// NewProcessor builds Processor. results and logRepo may be nil.
func NewProcessor(parser *Parser, router *Router, results CallResultHandler, logRepo OCPPLogRepository, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		parser:  parser,
		router:  router,
		results: results,
		logRepo: logRepo,
		logger:  logger,
	}
}

// Process handles raw message and returns response frame bytes.
func (p *Processor) Process(ctx context.Context, stationID string, raw []byte) ([]byte, error) {
	msg, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	switch msg.MessageType {
	case protocol.MessageTypeCallResult:
		p.save(ctx, stationID, "incoming", "CallResult", raw)
		if p.results != nil {
			p.results.HandleCallResult(stationID, msg.UniqueID, decodeObject(msg.Payload))
		}
		return nil, nil
	case protocol.MessageTypeCallError:
		p.save(ctx, stationID, "incoming", "CallError", raw)
		if p.results != nil {
			p.results.HandleCallError(stationID, msg.UniqueID, msg.ErrorCode, msg.ErrorDescription, decodeObject(msg.Payload))
		}
		return nil, nil
	}

	metrics.IncOCPPMessage(msg.Action)
	p.save(ctx, stationID, "incoming", msg.Action, raw)

	responsePayload, err := p.router.Route(ctx, stationID, msg)
	if err != nil {
		p.logger.Warn("ocpp handler failed",
			zap.String("station_id", stationID),
			zap.String("action", msg.Action),
			zap.Error(err),
		)
		return BuildCallError(msg.UniqueID, errorCode(err), err.Error())
	}

	if responsePayload == nil {
		return nil, nil
	}

	respBytes, err := BuildCallResult(msg.UniqueID, responsePayload)
	if err != nil {
		p.logger.Error("encode ocpp response failed", zap.Error(err))
		return nil, err
	}

	p.save(ctx, stationID, "outgoing", msg.Action, respBytes)
	return respBytes, nil
}

func (p *Processor) save(ctx context.Context, stationID, direction, messageType string, payload []byte) {
	if p.logRepo == nil {
		return
	}
	if err := p.logRepo.Save(ctx, stationID, direction, messageType, payload); err != nil {
		p.logger.Debug("store ocpp frame failed", zap.String("station_id", stationID), zap.Error(err))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotImplemented):
		return ErrorCodeNotImplemented
	case errors.Is(err, ErrFormation):
		return ErrorCodeFormationViolation
	default:
		return ErrorCodeInternalError
	}
}

func decodeObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Decode convenience helper for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrFormation, err)
	}
	return target, nil
}
