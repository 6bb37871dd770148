package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Subprotocol is the OCPP-J version negotiated with stations.
const Subprotocol = "ocpp1.6"

// Hooks are notified when a station connects or disconnects.
type Hooks interface {
	Connected(stationID string, conn *Connection)
	Disconnected(stationID string, conn *Connection)
}

// BasicAuth checks OCPP security profile 1 credentials: HTTP Basic auth with
// the station id as user name and a bcrypt hashed password. Stations without
// a configured hash are accepted without credentials.
type BasicAuth struct {
	hashes map[string][]byte
}

// NewBasicAuth builds BasicAuth from station id to bcrypt hash.
func NewBasicAuth(hashes map[string]string) *BasicAuth {
	a := &BasicAuth{hashes: make(map[string][]byte, len(hashes))}
	for id, hash := range hashes {
		if hash = strings.TrimSpace(hash); hash != "" {
			a.hashes[id] = []byte(hash)
		}
	}
	return a
}

// Allow reports whether r may connect as stationID.
func (a *BasicAuth) Allow(stationID string, r *http.Request) bool {
	if a == nil {
		return true
	}
	hash, ok := a.hashes[stationID]
	if !ok {
		return true
	}
	user, password, ok := r.BasicAuth()
	if !ok || user != stationID {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Server upgrades HTTP connections to WebSockets for OCPP.
type Server struct {
	ctx          context.Context
	manager      *Manager
	processor    MessageProcessor
	hooks        Hooks
	auth         *BasicAuth
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections live until ctx is cancelled or the
// station disconnects.
func NewServer(ctx context.Context, manager *Manager, processor MessageProcessor, hooks Hooks, auth *BasicAuth, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ctx:          ctx,
		manager:      manager,
		processor:    processor,
		hooks:        hooks,
		auth:         auth,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS serves /ocpp/:stationID; the station_id query parameter is
// accepted as well.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	stationID := httprouter.ParamsFromContext(r.Context()).ByName("stationID")
	if stationID == "" {
		stationID = r.URL.Query().Get("station_id")
	}
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		http.Error(w, "station_id is required", http.StatusBadRequest)
		return
	}

	if !s.auth.Allow(stationID, r) {
		s.logger.Warn("station authentication failed", zap.String("station_id", stationID), zap.String("remote", r.RemoteAddr))
		w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	connection := NewConnection(stationID, conn, s.processor, s.writeTimeout, s.logger, func(c *Connection) {
		cancel()
		if s.manager.Remove(c) && s.hooks != nil {
			s.hooks.Disconnected(stationID, c)
		}
		s.logger.Info("station disconnected", zap.String("station_id", stationID))
	})
	if previous := s.manager.Add(connection); previous != nil {
		_ = previous.Close()
	}
	if s.hooks != nil {
		s.hooks.Connected(stationID, connection)
	}

	go connection.Start(ctx)
	s.logger.Info("station connected", zap.String("station_id", stationID), zap.String("subprotocol", conn.Subprotocol()))
}
