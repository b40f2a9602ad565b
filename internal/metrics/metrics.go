package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds the Prometheus collectors for netsentry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Counters
	Observations *prometheus.CounterVec
	Verdicts     *prometheus.CounterVec
	RuleHits     *prometheus.CounterVec
	Alerts       *prometheus.CounterVec
	OutputErrors *prometheus.CounterVec

	// Gauges
	TrackedPairs prometheus.Gauge

	// Histograms
	InferenceDuration *prometheus.HistogramVec
}

// Config holds configuration for the metrics server.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Observations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentry_observations_total",
				Help: "Connection observations received, by result (ingested, ignored)",
			},
			[]string{"result"},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentry_verdicts_total",
				Help: "Classification verdicts by category, method and outcome",
			},
			[]string{"category", "method", "outcome"},
		),
		RuleHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentry_rule_hits_total",
				Help: "Times each rule fired",
			},
			[]string{"rule"},
		),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentry_alerts_total",
				Help: "Alerts raised by category and severity",
			},
			[]string{"category", "severity"},
		),
		OutputErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentry_output_errors_total",
				Help: "Errors writing alerts to an output",
			},
			[]string{"output"},
		),
		TrackedPairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netsentry_tracked_pairs",
				Help: "Source/destination pairs currently aggregated",
			},
		),
		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netsentry_inference_duration_seconds",
				Help:    "Classifier inference latency",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"backend"},
		),
	}

	reg.MustRegister(
		m.Observations,
		m.Verdicts,
		m.RuleHits,
		m.Alerts,
		m.OutputErrors,
		m.TrackedPairs,
		m.InferenceDuration,
	)
	return m
}

// ObserveIngest counts an observation as ingested or ignored.
func (m *Metrics) ObserveIngest(ingested bool, pairs int) {
	if m == nil {
		return
	}
	result := "ignored"
	if ingested {
		result = "ingested"
	}
	m.Observations.WithLabelValues(result).Inc()
	m.TrackedPairs.Set(float64(pairs))
}

// SetTrackedPairs updates the tracked pair gauge.
func (m *Metrics) SetTrackedPairs(n int) {
	if m == nil {
		return
	}
	m.TrackedPairs.Set(float64(n))
}

// ObserveVerdict counts a verdict and the rule that produced it, if any.
func (m *Metrics) ObserveVerdict(category, method, outcome, rule string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(category, method, outcome).Inc()
	if rule != "" {
		m.RuleHits.WithLabelValues(rule).Inc()
	}
}

// ObserveInference records one classifier call.
func (m *Metrics) ObserveInference(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveAlert counts a raised alert.
func (m *Metrics) ObserveAlert(category, severity string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(category, severity).Inc()
}

// ObserveOutputError counts a failed output write.
func (m *Metrics) ObserveOutputError(output string) {
	if m == nil {
		return
	}
	m.OutputErrors.WithLabelValues(output).Inc()
}

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server serving the collectors gathered by g.
func NewServer(cfg Config, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
