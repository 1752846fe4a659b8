// Package metrics exposes Prometheus counters for the intervention engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ContextsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "diner",
		Name:      "contexts_connected",
		Help:      "Number of browsing contexts currently registered.",
	})
	SamplesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "samples_recorded_total",
		Help:      "Behavior samples folded into the aggregate.",
	})
	SamplesCoerced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "samples_coerced_total",
		Help:      "Behavior samples that carried malformed fields.",
	})
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "alerts_triggered_total",
		Help:      "Interventions delivered to a context.",
	}, []string{"reason", "cause"})
	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "alerts_dropped_total",
		Help:      "Granted alerts with no reachable context.",
	})
	AlertsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "alerts_released_total",
		Help:      "Interventions cleared, by cause.",
	}, []string{"cause"})
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "tasks_completed_total",
		Help:      "Interventions completed, by task kind.",
	}, []string{"kind"})
	ChallengesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "challenges_completed_total",
		Help:      "Daily challenges completed.",
	})
	SummaryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diner",
		Name:      "summary_requests_total",
		Help:      "Daily analysis requests, by result.",
	}, []string{"result"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
