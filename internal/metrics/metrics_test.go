package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ObserveRequest(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveRequest("success", 10*time.Millisecond)
	c.ObserveRequest("success", 20*time.Millisecond)
	c.ObserveRequest("not_found", time.Millisecond)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("not_found count = %v, want 1", got)
	}
}

func TestCollector_ObserveReinit(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveReinit(nil, time.Second)
	c.ObserveReinit(errors.New("boom"), time.Second)
	c.ObserveReinit(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(c.reinitTotal.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.reinitTotal.WithLabelValues(ResultFailure)); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.SetUsableKeys("a@example.com", 10)
	c.SetUsableKeys("a@example.com", 7)
	c.SetReady(true)
	c.IncRetry()

	if got := testutil.ToFloat64(c.keysUsable.WithLabelValues("a@example.com")); got != 7 {
		t.Errorf("keys usable = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.poolReady); got != 1 {
		t.Errorf("pool ready = %v, want 1", got)
	}
	c.SetReady(false)
	if got := testutil.ToFloat64(c.poolReady); got != 0 {
		t.Errorf("pool ready = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.retriesTotal); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRequest("success", time.Second)
	c.ObserveReinit(nil, time.Second)
	c.SetUsableKeys("x", 1)
	c.SetReady(true)
	c.IncRetry()
}

func TestCollector_RegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ObserveRequest("success", time.Millisecond)
	c.SetReady(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"cocapi_requests_total", "cocapi_request_duration_seconds", "cocapi_pool_ready"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
