// Package metrics holds the Prometheus collectors shared by authgate's components.
//
// A nil *Metrics is valid and records nothing, so packages can be used in
// tests without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authgate"

// Metrics is the collector set registered once per process.
type Metrics struct {
	AuthAttempts   *prometheus.CounterVec
	SessionOps     *prometheus.CounterVec
	UpstreamCalls  *prometheus.CounterVec
	BuildReloads   *prometheus.CounterVec
	BuildVersion   prometheus.Gauge
	DevReloadConns prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Credential verification attempts by strategy and result.",
		}, []string{"strategy", "result"}),
		SessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ops_total",
			Help:      "Session store operations by op and result.",
		}, []string{"op", "result"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Outbound upstream calls by token branch and outcome.",
		}, []string{"branch", "outcome"}),
		BuildReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_reloads_total",
			Help:      "Build reload attempts by result.",
		}, []string{"result"}),
		BuildVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_version_unix_seconds",
			Help:      "Modification time of the currently active build.",
		}),
		DevReloadConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devreload_connections",
			Help:      "Open dev reload websocket connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AuthAttempts,
			m.SessionOps,
			m.UpstreamCalls,
			m.BuildReloads,
			m.BuildVersion,
			m.DevReloadConns,
		)
	}
	return m
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) AuthAttempt(strategy, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) SessionOp(op string, err error) {
	if m == nil {
		return
	}
	m.SessionOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) UpstreamCall(branch string, err error) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(branch, resultLabel(err)).Inc()
}

// BuildReload counts a reload attempt and, on success, publishes the new version.
func (m *Metrics) BuildReload(versionUnix float64, err error) {
	if m == nil {
		return
	}
	m.BuildReloads.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.BuildVersion.Set(versionUnix)
	}
}

func (m *Metrics) DevReloadConn(delta float64) {
	if m == nil {
		return
	}
	m.DevReloadConns.Add(delta)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
