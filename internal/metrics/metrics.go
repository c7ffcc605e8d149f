// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relaygate"

// Login results
const (
	LoginOK             = "ok"
	LoginMaintenance    = "maintenance"
	LoginFragmentation  = "fragmentation_limit"
	LoginInvalidID      = "invalid_id"
	LoginInvalidToken   = "invalid_token"
	LoginBanned         = "banned"
	LoginNotWhitelisted = "not_whitelisted"
	LoginFetchError     = "fetch_error"
	LoginAborted        = "aborted"
)

// Handshake results
const (
	HandshakeOK        = "ok"
	HandshakeProbe     = "probe"
	HandshakeMismatch  = "version_mismatch"
	HandshakeDuplicate = "duplicate"
	HandshakeFailed    = "failed"
)

// Metrics holds the relay's Prometheus collectors
type Metrics struct {
	registry prometheus.Registerer

	handshakes     *prometheus.CounterVec
	logins         *prometheus.CounterVec
	loginDuration  prometheus.Histogram
	packets        *prometheus.CounterVec
	evictions      prometheus.Counter
	activeSessions prometheus.Gauge
	rateLimited    prometheus.Counter
}

// New registers the relay collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Crypto handshakes by result",
		}, []string{"result"}),

		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),

		loginDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "login_duration_seconds",
			Help:      "Time spent authenticating a login",
			Buckets:   prometheus.DefBuckets,
		}),

		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Inbound packets by packet id",
		}, []string{"packet"}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Sessions evicted by a newer login on the same account",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open connection sessions, authenticated or not",
		}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Connections closed for exceeding the inbound rate limit",
		}),
	}
}

// RegisterPlayerCount exposes fn as the players_online gauge
func (m *Metrics) RegisterPlayerCount(fn func() uint32) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "players_online",
		Help:      "Logged-in players",
	}, func() float64 { return float64(fn()) })
}

func (m *Metrics) Handshake(result string) {
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) Login(result string, took time.Duration) {
	m.logins.WithLabelValues(result).Inc()
	m.loginDuration.Observe(took.Seconds())
}

func (m *Metrics) Packet(name string) {
	m.packets.WithLabelValues(name).Inc()
}

func (m *Metrics) Eviction() {
	m.evictions.Inc()
}

func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}
