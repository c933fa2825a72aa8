package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "match3"

// Metrics holds the server's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PlayersConnected  prometheus.Gauge
	QueueLength       prometheus.Gauge
	SessionsActive    prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	MalformedMessages prometheus.Counter
	MatchesTotal      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PlayersConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_connected",
			Help:      "Players with an open connection.",
		}),
		QueueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Players waiting in the matchmaking queue.",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Game sessions that have not closed.",
		}),
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Decoded client messages by type.",
		}, []string{"type"}),
		MalformedMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound frames that failed to decode.",
		}),
		MatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Finished matches by end reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) SetPlayers(n int) {
	if m == nil {
		return
	}
	m.PlayersConnected.Set(float64(n))
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.MalformedMessages.Inc()
}

func (m *Metrics) MatchEnded(reason string) {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues(reason).Inc()
}
