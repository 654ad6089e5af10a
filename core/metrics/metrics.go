// Package metrics exposes the bot's Prometheus counters on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the bot's collectors. A nil *Registry is valid and records
// nothing, so callers never need to guard metric calls.
type Registry struct {
	registry     *prometheus.Registry
	connectFlows *prometheus.CounterVec
	transactions *prometheus.CounterVec
	flowEvents   *prometheus.CounterVec
	tgCalls      *prometheus.CounterVec
	sessions     prometheus.Gauge
}

// New builds a registry with all collectors registered.
func New() *Registry {
	connect := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tonbot_connect_flows_total",
		Help: "Wallet connect flows by result",
	}, []string{"result"})

	txs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tonbot_transactions_total",
		Help: "Transaction submissions by result",
	}, []string{"result"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tonbot_flow_events_total",
		Help: "Send-transaction flow events by step and outcome",
	}, []string{"step", "outcome"})

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tonbot_telegram_calls_total",
		Help: "Queued Telegram API calls by action and result",
	}, []string{"action", "result"})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tonbot_sessions",
		Help: "Chats with a live session",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(connect, txs, events, calls, sessions)

	return &Registry{
		registry:     r,
		connectFlows: connect,
		transactions: txs,
		flowEvents:   events,
		tgCalls:      calls,
		sessions:     sessions,
	}
}

// Handler serves the exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (m *Registry) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Registry) IncConnect(result string) {
	if m == nil {
		return
	}
	m.connectFlows.WithLabelValues(result).Inc()
}

func (m *Registry) IncTransaction(result string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result).Inc()
}

func (m *Registry) IncFlowEvent(step, outcome string) {
	if m == nil {
		return
	}
	m.flowEvents.WithLabelValues(step, outcome).Inc()
}

// IncTelegramCall counts one finished job of the async Telegram sender.
func (m *Registry) IncTelegramCall(action, result string) {
	if m == nil {
		return
	}
	m.tgCalls.WithLabelValues(action, result).Inc()
}

func (m *Registry) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
