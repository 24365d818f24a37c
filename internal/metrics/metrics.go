package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	connectorStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "starts_total",
			Help:      "Number of successful connector spawns.",
		}, []string{"connector_id"},
	)
	connectorStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "stops_total",
			Help:      "Number of connector stops (graceful or kill).",
		}, []string{"connector_id"},
	)
	connectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "errors_total",
			Help:      "Number of transitions into the error state, by code.",
		}, []string{"connector_id", "code"},
	)
	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "heartbeats_total",
			Help:      "Number of heartbeats received from connectors.",
		}, []string{"connector_id"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between connector states.",
		}, []string{"connector_id", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "current_state",
			Help:      "Current connector state (1 = active state, 0 = inactive).",
		}, []string{"connector_id", "state"},
	)
	duplicatesReaped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linchmind",
			Subsystem: "connector",
			Name:      "duplicates_reaped_total",
			Help:      "Duplicate connector processes terminated by reconciliation.",
		}, []string{"connector_id"},
	)
)

// Register registers all collectors with r. Safe to call multiple times.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		connectorStarts, connectorStops, connectorErrors,
		heartbeats, stateTransitions, currentState, duplicatesReaped,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(id string) {
	if regOK.Load() {
		connectorStarts.WithLabelValues(id).Inc()
	}
}

func IncStop(id string) {
	if regOK.Load() {
		connectorStops.WithLabelValues(id).Inc()
	}
}

func IncError(id, code string) {
	if regOK.Load() {
		connectorErrors.WithLabelValues(id, code).Inc()
	}
}

func IncHeartbeat(id string) {
	if regOK.Load() {
		heartbeats.WithLabelValues(id).Inc()
	}
}

func RecordStateTransition(id, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(id, from, to).Inc()
	}
}

func SetCurrentState(id, state string, active bool) {
	if regOK.Load() {
		v := float64(0)
		if active {
			v = 1
		}
		currentState.WithLabelValues(id, state).Set(v)
	}
}

func AddDuplicatesReaped(id string, n int) {
	if regOK.Load() && n > 0 {
		duplicatesReaped.WithLabelValues(id).Add(float64(n))
	}
}
