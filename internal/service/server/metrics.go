package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/protocol/lastseen"
)

type Metrics struct {
	Validations       *prometheus.CounterVec
	LastSeenAnomalies *prometheus.CounterVec
	RejectedMessages  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	DroppedSends      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securechat",
			Name:      "chain_validations_total",
			Help:      "Chat message validations by resulting state.",
		}, []string{"state"}),
		LastSeenAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securechat",
			Name:      "last_seen_anomalies_total",
			Help:      "Acknowledgment anomalies by condition.",
		}, []string{"condition"}),
		RejectedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securechat",
			Name:      "rejected_messages_total",
			Help:      "Inbound chat messages dropped before broadcast.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "securechat",
			Name:      "active_sessions",
			Help:      "Connected websocket sessions.",
		}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securechat",
			Name:      "dropped_sends_total",
			Help:      "Outbound packets dropped because a session queue was full or closed.",
		}),
	}
	reg.MustRegister(m.Validations, m.LastSeenAnomalies, m.RejectedMessages, m.ActiveSessions, m.DroppedSends)
	return m
}

func (m *Metrics) observeValidation(s chain.ValidationState) {
	m.Validations.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) observeAnomalies(errs lastseen.ErrorSet) {
	for _, c := range errs.Conditions() {
		m.LastSeenAnomalies.WithLabelValues(c.String()).Inc()
	}
}
