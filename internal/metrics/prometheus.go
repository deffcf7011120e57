package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus series exported by the server.
type Registry struct {
	reg *prometheus.Registry

	SessionsCreated    prometheus.Counter
	SessionsActive     prometheus.Gauge
	ChoicesRecorded    *prometheus.CounterVec
	TournamentsStarted prometheus.Counter
	TournamentsSkipped prometheus.Counter
	TournamentsDone    prometheus.Counter
	Results            *prometheus.CounterVec
	ResultsRejected    *prometheus.CounterVec
	PersistFailures    prometheus.Counter
	SourceRequests     *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewRegistry creates the registry with all chartbracket series plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartbracket_sessions_created_total",
			Help: "Total number of rating sessions created",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartbracket_sessions_active",
			Help: "Number of sessions currently held in memory",
		}),
		ChoicesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartbracket_choices_recorded_total",
			Help: "Total number of chart verdicts recorded by verdict",
		}, []string{"verdict"}),
		TournamentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartbracket_tournaments_started_total",
			Help: "Total number of tournaments seeded",
		}),
		TournamentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartbracket_tournaments_skipped_total",
			Help: "Sessions that ended with fewer than two green charts",
		}),
		TournamentsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartbracket_tournaments_completed_total",
			Help: "Total number of tournaments that produced a ranking",
		}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartbracket_results_total",
			Help: "Applied matchup results by the phase they were played in",
		}, []string{"phase"}),
		ResultsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartbracket_results_rejected_total",
			Help: "Rejected matchup results by reason",
		}, []string{"reason"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartbracket_persist_failures_total",
			Help: "Verdicts that could not be written to the store",
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartbracket_source_requests_total",
			Help: "Requests to chart and ticker sources by outcome",
		}, []string{"source", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartbracket_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"route", "status"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SessionsCreated,
		r.SessionsActive,
		r.ChoicesRecorded,
		r.TournamentsStarted,
		r.TournamentsSkipped,
		r.TournamentsDone,
		r.Results,
		r.ResultsRejected,
		r.PersistFailures,
		r.SourceRequests,
		r.HTTPDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
