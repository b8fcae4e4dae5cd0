package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Discovery(OutcomeSuccess)
	c.TokenRequest("refresh_token", OutcomeError)
	c.TokenRequest("refresh_token", OutcomeError)
	c.RPC("account", "getUser", OutcomeSuccess)

	if got := testutil.ToFloat64(c.discovery.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Fatalf("discovery count = %v", got)
	}
	if got := testutil.ToFloat64(c.tokens.WithLabelValues("refresh_token", OutcomeError)); got != 2 {
		t.Fatalf("token count = %v", got)
	}
	if got := testutil.ToFloat64(c.rpc.WithLabelValues("account", "getUser", OutcomeSuccess)); got != 1 {
		t.Fatalf("rpc count = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 3 {
		t.Fatalf("GatherAndCount = %d, %v", n, err)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Discovery(OutcomeSuccess)
	c.TokenRequest("authorization_code", OutcomeSuccess)
	c.RPC("shop", "closeModal", OutcomeIgnored)
}
