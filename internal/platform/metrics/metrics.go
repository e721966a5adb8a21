package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the identity service.
type Metrics struct {
	UsersCreated          prometheus.Counter
	LoginAttempts         *prometheus.CounterVec
	AuthorizationsIssued  prometheus.Counter
	TokenRequests         *prometheus.CounterVec
	TokenExchangeDuration prometheus.Histogram
	MagicLinksSent        prometheus.Counter
	ClientsRegistered     prometheus.Counter
	HTTPRequests          *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry so
// repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "idhub_users_created_total",
			Help: "Total number of users created",
		}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idhub_login_attempts_total",
			Help: "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		AuthorizationsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "idhub_authorization_codes_issued_total",
			Help: "Authorization codes issued",
		}),
		TokenRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idhub_token_requests_total",
			Help: "Token endpoint requests by outcome code",
		}, []string{"outcome"}),
		TokenExchangeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "idhub_token_exchange_duration_seconds",
			Help:    "Latency of authorization code exchange",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		MagicLinksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "idhub_magic_links_sent_total",
			Help: "Magic link emails sent",
		}),
		ClientsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "idhub_clients_registered_total",
			Help: "Client applications registered",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idhub_http_requests_total",
			Help: "HTTP requests by route pattern and status class",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncrementUsersCreated() {
	if m == nil {
		return
	}
	m.UsersCreated.Inc()
}

func (m *Metrics) IncrementLogin(method, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncrementAuthorizationIssued() {
	if m == nil {
		return
	}
	m.AuthorizationsIssued.Inc()
}

func (m *Metrics) ObserveTokenRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TokenRequests.WithLabelValues(outcome).Inc()
	m.TokenExchangeDuration.Observe(seconds)
}

func (m *Metrics) IncrementMagicLinksSent() {
	if m == nil {
		return
	}
	m.MagicLinksSent.Inc()
}

func (m *Metrics) IncrementClientsRegistered() {
	if m == nil {
		return
	}
	m.ClientsRegistered.Inc()
}
