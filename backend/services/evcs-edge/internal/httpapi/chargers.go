package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

// Chargers resolves configured components.
type Chargers interface {
	Components() []*evcs.Component
	Component(id string) (*evcs.Component, bool)
}

// ChargingPropertyView is the JSON form of the last acknowledged limit.
type ChargingPropertyView struct {
	Mode      string    `json:"mode"`
	Power     int       `json:"power"`
	Current   float64   `json:"current"`
	Phases    int       `json:"phases"`
	Timestamp time.Time `json:"timestamp"`
}

// ChargerView is the JSON form of a component.
type ChargerView struct {
	ID                   string                `json:"id"`
	Alias                string                `json:"alias,omitempty"`
	OcppID               string                `json:"ocppId"`
	ConnectorID          int                   `json:"connectorId"`
	Managed              bool                  `json:"managed"`
	Status               int                   `json:"status"`
	StatusName           string                `json:"statusName"`
	CommunicationFailed  bool                  `json:"communicationFailed"`
	SessionID            string                `json:"sessionId,omitempty"`
	Channels             map[string]float64    `json:"channels"`
	LastChargingProperty *ChargingPropertyView `json:"lastChargingProperty,omitempty"`
	SessionStart         *time.Time            `json:"sessionStart,omitempty"`
	SessionEnd           *time.Time            `json:"sessionEnd,omitempty"`
	Debug                string                `json:"debug"`
}

// NewChargerView snapshots c.
func NewChargerView(c *evcs.Component) ChargerView {
	cfg := c.Config()
	ch := c.Channels()
	status := ch.Status()
	view := ChargerView{
		ID:                  cfg.ID,
		Alias:               cfg.Alias,
		OcppID:              cfg.OcppID,
		ConnectorID:         cfg.ConnectorID,
		Managed:             cfg.Managed,
		Status:              int(status),
		StatusName:          status.Name(),
		CommunicationFailed: ch.CommunicationFailed(),
		Channels:            make(map[string]float64),
		Debug:               c.DebugLog(),
	}
	if id, ok := c.SessionID(); ok {
		view.SessionID = id.String()
	}
	for id, v := range ch.Snapshot() {
		view.Channels[string(id)] = v
	}
	if p := c.LastChargingProperty(); p != nil {
		view.LastChargingProperty = &ChargingPropertyView{
			Mode:      p.Mode.String(),
			Power:     p.Power,
			Current:   p.Current,
			Phases:    p.Phases,
			Timestamp: p.Timestamp,
		}
	}
	if s := c.SessionStart(); s.IsSet() {
		t := s.Time()
		view.SessionStart = &t
	}
	if s := c.SessionEnd(); s.IsSet() {
		t := s.Time()
		view.SessionEnd = &t
	}
	return view
}

// ChargerHandlers serves /api/chargers.
type ChargerHandlers struct {
	chargers Chargers
	logger   *zap.Logger
}

// NewChargerHandlers returns handlers.
func NewChargerHandlers(chargers Chargers, logger *zap.Logger) *ChargerHandlers {
	return &ChargerHandlers{chargers: chargers, logger: logger}
}

// List handles GET /api/chargers.
func (h *ChargerHandlers) List(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	components := h.chargers.Components()
	out := make([]ChargerView, 0, len(components))
	for _, c := range components {
		out = append(out, NewChargerView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/chargers/:id.
func (h *ChargerHandlers) Get(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	c, ok := h.chargers.Component(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "charger not found")
		return
	}
	writeJSON(w, http.StatusOK, NewChargerView(c))
}

// LimitsRequest sets external limits. Omitted fields are left unchanged.
type LimitsRequest struct {
	ChargePowerLimit *float64 `json:"chargePowerLimit"`
	EnergyLimit      *float64 `json:"energyLimit"`
}

// SetLimits handles PUT /api/chargers/:id/limits.
func (h *ChargerHandlers) SetLimits(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c, ok := h.managed(w, ps.ByName("id"))
	if !ok {
		return
	}

	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ChargePowerLimit == nil && req.EnergyLimit == nil {
		writeError(w, http.StatusBadRequest, "no limit given")
		return
	}
	if !validLimit(req.ChargePowerLimit) || !validLimit(req.EnergyLimit) {
		writeError(w, http.StatusBadRequest, "limits must be finite and not negative")
		return
	}

	ch := c.Channels()
	if req.ChargePowerLimit != nil {
		ch.Set(evcs.SetChargePowerLimit, *req.ChargePowerLimit)
	}
	if req.EnergyLimit != nil {
		ch.Set(evcs.SetEnergyLimit, *req.EnergyLimit)
	}
	subject, _ := SubjectFromContext(r.Context())
	h.logger.Info("charger limits set",
		zap.String("component_id", c.ID()),
		zap.String("subject", subject),
		zap.Any("charge_power_limit", req.ChargePowerLimit),
		zap.Any("energy_limit", req.EnergyLimit),
	)
	writeJSON(w, http.StatusOK, NewChargerView(c))
}

func validLimit(v *float64) bool {
	return v == nil || (!math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0)
}

// ClearLimits handles DELETE /api/chargers/:id/limits.
func (h *ChargerHandlers) ClearLimits(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	c, ok := h.managed(w, ps.ByName("id"))
	if !ok {
		return
	}
	c.Channels().Clear(evcs.SetChargePowerLimit)
	c.Channels().Clear(evcs.SetEnergyLimit)
	h.logger.Info("charger limits cleared", zap.String("component_id", c.ID()))
	writeJSON(w, http.StatusOK, NewChargerView(c))
}

func (h *ChargerHandlers) managed(w http.ResponseWriter, id string) (*evcs.Component, bool) {
	c, ok := h.chargers.Component(id)
	if !ok {
		writeError(w, http.StatusNotFound, "charger not found")
		return nil, false
	}
	if !c.Config().Managed {
		writeError(w, http.StatusConflict, "charger is not managed")
		return nil, false
	}
	return c, true
}
