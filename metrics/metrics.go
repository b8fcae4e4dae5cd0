// Package metrics exposes Prometheus counters for the SDK. A nil *Collector is
// valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeIgnored = "ignored"
)

// Collector groups SDK counters.
type Collector struct {
	discovery *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	rpc       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		discovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scspa",
			Name:      "discovery_total",
			Help:      "OIDC discovery attempts by outcome.",
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scspa",
			Name:      "token_requests_total",
			Help:      "Token endpoint requests by grant type and outcome.",
		}, []string{"grant", "outcome"}),
		rpc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scspa",
			Name:      "rpc_requests_total",
			Help:      "Iframe RPC requests by panel, method and outcome.",
		}, []string{"panel", "method", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(c.discovery, c.tokens, c.rpc)
	}
	return c
}

func (c *Collector) Discovery(outcome string) {
	if c == nil {
		return
	}
	c.discovery.WithLabelValues(outcome).Inc()
}

func (c *Collector) TokenRequest(grant, outcome string) {
	if c == nil {
		return
	}
	c.tokens.WithLabelValues(grant, outcome).Inc()
}

func (c *Collector) RPC(panel, method, outcome string) {
	if c == nil {
		return
	}
	c.rpc.WithLabelValues(panel, method, outcome).Inc()
}
