package lib

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements telemetry for a harness run in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents the telemetry of a single harness, registered on its own registry so that
// several networks may live in one test binary
type Metrics struct {
	server   *http.Server         // the http prometheus server
	config   MetricsConfig        // the configuration
	registry *prometheus.Registry // private registry
	log      LoggerI              // the logger

	NodeMetrics     // node lifecycle telemetry
	FragmentMetrics // fragment submission and propagation telemetry
	ScenarioMetrics // scenario step telemetry
}

// NodeMetrics represents node lifecycle telemetry
type NodeMetrics struct {
	NodeStarts   prometheus.Counter   // how many node starts succeeded?
	NodeFailures prometheus.Counter   // how many node starts failed?
	NodeStops    prometheus.Counter   // how many nodes were stopped?
	RunningNodes prometheus.Gauge     // how many nodes are running now?
	StartupTime  prometheus.Histogram // how long does a node take to become healthy?
}

// FragmentMetrics represents the fragment telemetry
type FragmentMetrics struct {
	FragmentsSubmitted *prometheus.CounterVec // submissions labeled by outcome
	PropagationTime    prometheus.Histogram   // time from submission until every target observed a fragment
	PropagationMisses  prometheus.Counter     // how many waits timed out?
}

// ScenarioMetrics represents scenario telemetry
type ScenarioMetrics struct {
	StepsRun *prometheus.CounterVec // steps labeled by kind and status
}

// NewMetrics() creates the telemetry of one harness
func NewMetrics(config MetricsConfig, logger LoggerI) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := &Metrics{
		config:   config,
		registry: registry,
		log:      logger,
		NodeMetrics: NodeMetrics{
			NodeStarts: factory.NewCounter(prometheus.CounterOpts{
				Name: "mocknet_node_starts_total",
				Help: "Nodes that reached the running state",
			}),
			NodeFailures: factory.NewCounter(prometheus.CounterOpts{
				Name: "mocknet_node_start_failures_total",
				Help: "Node starts that failed",
			}),
			NodeStops: factory.NewCounter(prometheus.CounterOpts{
				Name: "mocknet_node_stops_total",
				Help: "Nodes that were stopped",
			}),
			RunningNodes: factory.NewGauge(prometheus.GaugeOpts{
				Name: "mocknet_running_nodes",
				Help: "Nodes currently running",
			}),
			StartupTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "mocknet_node_startup_seconds",
				Help:    "Time for a node to become healthy",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
		},
		FragmentMetrics: FragmentMetrics{
			FragmentsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "mocknet_fragments_submitted_total",
				Help: "Fragments submitted to nodes by outcome",
			}, []string{"outcome"}),
			PropagationTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "mocknet_fragment_propagation_seconds",
				Help:    "Time for a fragment to reach every target node",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			}),
			PropagationMisses: factory.NewCounter(prometheus.CounterOpts{
				Name: "mocknet_fragment_propagation_timeouts_total",
				Help: "Fragment waits that timed out",
			}),
		},
		ScenarioMetrics: ScenarioMetrics{
			StepsRun: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "mocknet_scenario_steps_total",
				Help: "Scenario steps by kind and status",
			}, []string{"kind", "status"}),
		},
	}
	if config.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle(metricsPattern, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		m.server = &http.Server{Addr: config.PrometheusAddress, Handler: mux}
	}
	return m
}

// Start() starts the telemetry server if enabled
func (m *Metrics) Start() {
	if m == nil || m.server == nil {
		return
	}
	go func() {
		m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Errorf("Metrics server failed with err: %s", err.Error())
		}
	}()
}

// Stop() gracefully stops the telemetry server
func (m *Metrics) Stop() {
	if m == nil || m.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Error(err.Error())
	}
}

// Registry() exposes the private registry for gathering in tests and reports
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStart() records a node start attempt
func (m *Metrics) ObserveStart(took time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NodeFailures.Inc()
		return
	}
	m.NodeStarts.Inc()
	m.RunningNodes.Inc()
	m.StartupTime.Observe(took.Seconds())
}

// ObserveStop() records a node stop
func (m *Metrics) ObserveStop() {
	if m == nil {
		return
	}
	m.NodeStops.Inc()
	m.RunningNodes.Dec()
}

// ObserveSubmission() records a fragment submission outcome
func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.FragmentsSubmitted.WithLabelValues(outcome).Inc()
}

// ObservePropagation() records the result of a propagation wait
func (m *Metrics) ObservePropagation(took time.Duration, propagated bool) {
	if m == nil {
		return
	}
	if !propagated {
		m.PropagationMisses.Inc()
		return
	}
	m.PropagationTime.Observe(took.Seconds())
}

// ObserveStep() records the status of a scenario step
func (m *Metrics) ObserveStep(kind, status string) {
	if m == nil {
		return
	}
	m.StepsRun.WithLabelValues(kind, status).Inc()
}
