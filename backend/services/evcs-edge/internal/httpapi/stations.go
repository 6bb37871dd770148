package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/repository"
	"evcsedge/backend/services/evcs-edge/internal/service"
)

// Connections lists connected stations.
type Connections interface {
	StationIDs() []string
}

// CommandLister exposes outgoing call history.
type CommandLister interface {
	ListCommands(stationID string) []ocpp.CommandSnapshot
}

// FrameLister exposes stored OCPP frames.
type FrameLister interface {
	Recent(ctx context.Context, stationID string, limit int) ([]repository.FrameLog, error)
}

// StationView is the JSON form of a station.
type StationView struct {
	ID        string                      `json:"id"`
	Connected bool                        `json:"connected"`
	State     service.StationRuntimeState `json:"state"`
}

// StationHandlers serves /api/stations.
type StationHandlers struct {
	state       *service.StationState
	connections Connections
	commands    CommandLister
	frames      FrameLister
	logger      *zap.Logger
}

// NewStationHandlers returns handlers; frames may be nil.
func NewStationHandlers(state *service.StationState, connections Connections, commands CommandLister, frames FrameLister, logger *zap.Logger) *StationHandlers {
	return &StationHandlers{state: state, connections: connections, commands: commands, frames: frames, logger: logger}
}

func (h *StationHandlers) connected() map[string]bool {
	out := make(map[string]bool)
	for _, id := range h.connections.StationIDs() {
		out[id] = true
	}
	return out
}

// List handles GET /api/stations.
func (h *StationHandlers) List(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	connected := h.connected()
	snapshot := h.state.Snapshot()
	out := make([]StationView, 0, len(snapshot))
	for id, st := range snapshot {
		out = append(out, StationView{ID: id, Connected: connected[id], State: st})
		delete(connected, id)
	}
	for id := range connected {
		out = append(out, StationView{ID: id, Connected: true})
	}
	sortStations(out)
	writeJSON(w, http.StatusOK, out)
}

// Commands handles GET /api/stations/:id/commands.
func (h *StationHandlers) Commands(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	writeJSON(w, http.StatusOK, h.commands.ListCommands(ps.ByName("id")))
}

// Messages handles GET /api/stations/:id/messages?limit=n.
func (h *StationHandlers) Messages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if h.frames == nil {
		writeError(w, http.StatusNotFound, "frame logging disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	frames, err := h.frames.Recent(r.Context(), ps.ByName("id"), limit)
	if err != nil {
		h.logger.Error("frame query failed", zap.String("station_id", ps.ByName("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "frame query failed")
		return
	}
	if frames == nil {
		frames = []repository.FrameLog{}
	}
	writeJSON(w, http.StatusOK, frames)
}
