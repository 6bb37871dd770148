package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Chargers  *ChargerHandlers
	Stations  *StationHandlers
	WebSocket http.HandlerFunc
	Metrics   http.Handler
	JWTSecret string
}

// NewRouter wires HTTP routes. /health, /metrics and the OCPP endpoint are
// public; /api requires a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	router := httprouter.New()
	auth := AuthMiddleware(deps.JWTSecret)
	protected := func(h httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h(w, r, ps)
			})).ServeHTTP(w, r)
		}
	}

	router.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.WebSocket != nil {
		router.HandlerFunc(http.MethodGet, "/ocpp/:stationID", deps.WebSocket)
	}

	if deps.Chargers != nil {
		router.GET("/api/chargers", protected(deps.Chargers.List))
		router.GET("/api/chargers/:id", protected(deps.Chargers.Get))
		router.PUT("/api/chargers/:id/limits", protected(deps.Chargers.SetLimits))
		router.DELETE("/api/chargers/:id/limits", protected(deps.Chargers.ClearLimits))
	}
	if deps.Stations != nil {
		router.GET("/api/stations", protected(deps.Stations.List))
		router.GET("/api/stations/:id/commands", protected(deps.Stations.Commands))
		router.GET("/api/stations/:id/messages", protected(deps.Stations.Messages))
	}
	return router
}

func sortStations(views []StationView) {
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
}

// Server wraps http.Server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds HTTP server with provided handler.
func NewServer(addr string, handler http.Handler, logger *zap.Logger, middlewares ...func(http.Handler) http.Handler) *Server {
	h := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
