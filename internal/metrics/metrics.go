// Package metrics provides Prometheus metrics collection for SimpleML.
// It defines the screening, model and HTTP metrics exposed via the
// Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Screening metrics
	UploadsTotal      prometheus.Counter     // Total number of rosters uploaded
	ScreeningsTotal   prometheus.Counter     // Total number of rosters screened
	ScreeningRows     prometheus.Histogram   // Number of students per screened roster
	AtRiskTotal       prometheus.Counter     // Total number of students labelled at risk
	ScreeningFailures *prometheus.CounterVec // Screening failures by pipeline stage
	ExportsTotal      prometheus.Counter     // Total number of result downloads

	// ML and prediction metrics
	MLPredictions      prometheus.Counter   // Total number of students scored
	MLFailures         prometheus.Counter   // Total number of ML prediction failures
	MLModelAge         prometheus.Gauge     // Age of the current ML model in seconds
	MLLatency          prometheus.Histogram // ML prediction latency in seconds
	MLExplainLatency   prometheus.Histogram // SHAP explanation latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of at-risk probabilities

	// Session metrics
	ActiveSessions prometheus.Gauge   // Sessions currently stored
	SessionsPurged prometheus.Counter // Sessions removed after expiry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route, method and status
	HTTPDuration *prometheus.HistogramVec // Request duration by route
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simpleml_uploads_total",
			Help: "Total number of rosters uploaded",
		}),
		ScreeningsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simpleml_screenings_total",
			Help: "Total number of rosters screened",
		}),
		ScreeningRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simpleml_screening_rows",
			Help:    "Number of students per screened roster",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		AtRiskTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simpleml_at_risk_total",
			Help: "Total number of students labelled at risk",
		}),
		ScreeningFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleml_screening_failures_total",
			Help: "Total number of screening failures by stage",
		}, []string{"stage"}),
		ExportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simpleml_exports_total",
			Help: "Total number of result downloads",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of students scored by the model",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current ML model in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds (per batch)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLExplainLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_explain_latency_seconds",
			Help:    "SHAP explanation latency in seconds (per batch)",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of at-risk probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simpleml_active_sessions",
			Help: "Number of upload sessions currently stored",
		}),
		SessionsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "simpleml_sessions_purged_total",
			Help: "Total number of expired sessions removed",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleml_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simpleml_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
