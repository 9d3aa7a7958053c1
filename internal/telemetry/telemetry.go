package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the engine's prometheus collectors. Exposed through the
// server's /metrics endpoint.
type Telemetry struct {
	IdentifyRequests   *prometheus.CounterVec
	AgentOutcomes      *prometheus.CounterVec
	AgentDuration      *prometheus.HistogramVec
	SynthesisFallbacks prometheus.Counter
	DownloadAttempts   *prometheus.CounterVec
	DiscoveryResults   *prometheus.HistogramVec
}

func New() *Telemetry {
	return &Telemetry{
		IdentifyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_identify_requests_total",
			Help: "Identification requests by terminal status.",
		}, []string{"status"}),
		AgentOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_agent_outcomes_total",
			Help: "Per-agent call outcomes.",
		}, []string{"agent", "status"}),
		AgentDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_agent_duration_seconds",
			Help:    "Per-agent call latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"agent"}),
		SynthesisFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hearth_synthesis_fallbacks_total",
			Help: "Synthesis failures that degraded to the deterministic merge.",
		}),
		DownloadAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_manual_download_attempts_total",
			Help: "Manual download attempts by discovery source and result.",
		}, []string{"source", "status"}),
		DiscoveryResults: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_manual_discovery_candidates",
			Help:    "Candidate URLs returned per discovery phase.",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}, []string{"phase"}),
	}
}

func (t *Telemetry) RecordAgentOutcome(agent string, success bool, d time.Duration) {
	if t == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	t.AgentOutcomes.WithLabelValues(agent, status).Inc()
	t.AgentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

func (t *Telemetry) RecordIdentify(status string) {
	if t == nil {
		return
	}
	t.IdentifyRequests.WithLabelValues(status).Inc()
}

func (t *Telemetry) RecordSynthesisFallback() {
	if t == nil {
		return
	}
	t.SynthesisFallbacks.Inc()
}

func (t *Telemetry) RecordDownload(source string, success bool) {
	if t == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	t.DownloadAttempts.WithLabelValues(source, status).Inc()
}

func (t *Telemetry) RecordDiscovery(phase string, count int) {
	if t == nil {
		return
	}
	t.DiscoveryResults.WithLabelValues(phase).Observe(float64(count))
}
