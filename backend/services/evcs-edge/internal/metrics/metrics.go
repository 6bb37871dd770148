package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "evcs_edge_"

// Lookup results.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultError   = "error"
)

// Command results.
const (
	CommandResultAccepted = "accepted"
	CommandResultRejected = "rejected"
	CommandResultError    = "error"
	CommandResultTimeout  = "timeout"
)

// Cycle phases.
const (
	PhaseRead  = "read"
	PhaseWrite = "write"
)

var (
	registerOnce sync.Once

	cycleDuration *prometheus.HistogramVec
	cycleTotal    *prometheus.CounterVec

	activeSessions prometheus.Gauge
	chargerStatus  *prometheus.GaugeVec

	ocppMessages   *prometheus.CounterVec
	commandsIssued *prometheus.CounterVec
	commandResults *prometheus.CounterVec

	timedataLookups *prometheus.CounterVec
	timedataWrites  *prometheus.CounterVec

	gridPower *prometheus.GaugeVec
)

// Init registers the service metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		cycleDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_phase_duration_seconds",
				Help:    "Cycle phase duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		)
		cycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycle_phases_total",
				Help: "Total executed cycle phases",
			},
			[]string{"phase"},
		)
		activeSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_sessions",
				Help: "Connected charging stations",
			},
		)
		chargerStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "charger_status",
				Help: "Current status code per charger",
			},
			[]string{"component_id"},
		)
		ocppMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ocpp_messages_total",
				Help: "Total received OCPP calls by action",
			},
			[]string{"action"},
		)
		commandsIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total OCPP commands sent to stations",
			},
			[]string{"action"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total OCPP command results by status",
			},
			[]string{"status"},
		)
		timedataLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timedata_lookups_total",
				Help: "Total historical value lookups by result",
			},
			[]string{"result"},
		)
		timedataWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timedata_writes_total",
				Help: "Total historical value writes by result",
			},
			[]string{"result"},
		)

		gridPower = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "grid_active_power_watts",
				Help: "Active power of simulated grid meters",
			},
			[]string{"meter_id"},
		)

		prometheus.MustRegister(
			cycleDuration,
			cycleTotal,
			activeSessions,
			chargerStatus,
			ocppMessages,
			commandsIssued,
			commandResults,
			timedataLookups,
			timedataWrites,
			gridPower,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCyclePhase records one executed cycle phase.
func ObserveCyclePhase(phase string, duration time.Duration) {
	if cycleTotal != nil {
		cycleTotal.WithLabelValues(phase).Inc()
	}
	if cycleDuration != nil {
		cycleDuration.WithLabelValues(phase).Observe(duration.Seconds())
	}
}

// SetActiveSessions sets the connected station count.
func SetActiveSessions(n int) {
	if activeSessions != nil {
		activeSessions.Set(float64(n))
	}
}

// SetStatus sets the status code of a charger.
func SetStatus(componentID string, status int) {
	if chargerStatus != nil {
		chargerStatus.WithLabelValues(componentID).Set(float64(status))
	}
}

// IncOCPPMessage increments the received call counter.
func IncOCPPMessage(action string) {
	if action == "" {
		action = "unknown"
	}
	if ocppMessages != nil {
		ocppMessages.WithLabelValues(action).Inc()
	}
}

// IncCommandIssued increments the issued command counter.
func IncCommandIssued(action string) {
	if commandsIssued != nil {
		commandsIssued.WithLabelValues(action).Inc()
	}
}

// IncCommandResult increments the command result counter.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// IncTimedataLookup increments the lookup counter.
func IncTimedataLookup(result string) {
	if timedataLookups != nil {
		timedataLookups.WithLabelValues(result).Inc()
	}
}

// IncTimedataWrite increments the write counter.
func IncTimedataWrite(result string) {
	if timedataWrites != nil {
		timedataWrites.WithLabelValues(result).Inc()
	}
}

// SetGridPower sets the active power of a grid meter.
func SetGridPower(meterID string, watts float64) {
	if gridPower != nil {
		gridPower.WithLabelValues(meterID).Set(watts)
	}
}
