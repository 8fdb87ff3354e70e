package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the authorization server.
type Metrics struct {
	TokensIssued          *prometheus.CounterVec
	TokensReused          prometheus.Counter
	CodesIssued           prometheus.Counter
	CodesExchanged        prometheus.Counter
	ClientAuthFailures    prometheus.Counter
	OwnerAuthFailures     prometheus.Counter
	ConsentsGranted       prometheus.Counter
	ConfirmationCodesSent prometheus.Counter
	ConfirmationFailures  prometheus.Counter
}

// New creates and registers all metrics on the given registerer. Tests pass a
// fresh prometheus.NewRegistry so fixtures do not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_tokens_issued_total",
			Help: "Total number of access tokens minted, by grant type.",
		}, []string{"grant_type"}),
		TokensReused: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_tokens_reused_total",
			Help: "Total number of token requests served from an existing granted token.",
		}),
		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_authorization_codes_issued_total",
			Help: "Total number of authorization codes minted.",
		}),
		CodesExchanged: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_authorization_codes_exchanged_total",
			Help: "Total number of authorization codes successfully exchanged.",
		}),
		ClientAuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_client_auth_failures_total",
			Help: "Total number of failed client authentications at the token endpoint.",
		}),
		OwnerAuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_owner_auth_failures_total",
			Help: "Total number of failed resource owner credential checks.",
		}),
		ConsentsGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_consents_granted_total",
			Help: "Total number of consent screen approvals recorded.",
		}),
		ConfirmationCodesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_confirmation_codes_sent_total",
			Help: "Total number of two-factor confirmation codes dispatched.",
		}),
		ConfirmationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "idserver_confirmation_code_failures_total",
			Help: "Total number of invalid or expired confirmation code submissions.",
		}),
	}
}
