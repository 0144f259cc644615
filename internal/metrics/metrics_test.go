package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with a fresh registry so
// tests don't conflict with each other or with the default registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestZAPRequest(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ZAPRequest("allow", "auth_table", 5*time.Millisecond)
	c.ZAPRequest("allow", "auth_table", 3*time.Millisecond)

	val := getCounterValue(c.zapRequestsTotal.WithLabelValues("allow"))
	if val != 2 {
		t.Errorf("expected zapRequestsTotal=2, got %v", val)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "datafed_core_zap_request_duration_seconds" {
			found = true
			m := f.GetMetric()
			if len(m) == 0 || m[0].GetHistogram().GetSampleCount() != 2 {
				t.Errorf("expected 2 duration samples")
			}
		}
	}
	if !found {
		t.Error("zap request duration metric not found")
	}
}

func TestGrantLifecycle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.GrantIssued()
	c.GrantIssued()
	c.SetActiveGrants(2)
	c.GrantExpired()
	c.SetActiveGrants(1)

	if v := getCounterValue(c.transientGrantsIssued); v != 2 {
		t.Errorf("expected issued=2, got %v", v)
	}
	if v := getCounterValue(c.transientGrantsExpired); v != 1 {
		t.Errorf("expected expired=1, got %v", v)
	}
	if v := getGaugeValue(c.transientGrantsActive); v != 1 {
		t.Errorf("expected active=1, got %v", v)
	}
}

func TestQueueMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetQueueDepth("data_delete", 5)
	c.QueueDrained("data_delete", 3)
	c.QueueDrained("data_delete", 2)
	c.QueueTimeout("data_delete")

	if v := getGaugeValue(c.queueDepth.WithLabelValues("data_delete")); v != 5 {
		t.Errorf("expected depth=5, got %v", v)
	}
	if v := getCounterValue(c.queueDrained.WithLabelValues("data_delete")); v != 5 {
		t.Errorf("expected drained=5, got %v", v)
	}
	if v := getCounterValue(c.queueTimeouts.WithLabelValues("data_delete")); v != 1 {
		t.Errorf("expected timeouts=1, got %v", v)
	}
}

func TestRepoMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RepoRoundTrip("repo1", 10*time.Millisecond)
	c.RepoError("repo1", "timeout")
	c.SetRepoConnected("repo1", true)

	if v := getCounterValue(c.repoErrors.WithLabelValues("repo1", "timeout")); v != 1 {
		t.Errorf("expected repo errors=1, got %v", v)
	}
	if v := getGaugeValue(c.repoConnected.WithLabelValues("repo1")); v != 1 {
		t.Errorf("expected connected=1, got %v", v)
	}

	families, _ := reg.Gather()
	var found bool
	for _, f := range families {
		if f.GetName() == "datafed_core_repo_round_trip_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("repo round trip metric not found")
	}

	c.SetRepoConnected("repo1", false)
	if v := getGaugeValue(c.repoConnected.WithLabelValues("repo1")); v != 0 {
		t.Errorf("expected connected=0 after disconnect, got %v", v)
	}
}

func TestWorkerMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetWorkerBusy("w1", true)
	c.SetWorkerBusy("w1", false)
	c.SetWorkerBusy("w1", true)

	if v := getGaugeValue(c.workerBusy.WithLabelValues("w1")); v != 1 {
		t.Errorf("expected busy=1, got %v", v)
	}
	if v := getCounterValue(c.workerRequests.WithLabelValues("w1")); v != 2 {
		t.Errorf("expected requests=2, got %v", v)
	}
}

func TestTransferSubmitted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.TransferSubmitted()
	c.TransferSubmitted()
	c.TransferSubmitted()

	if v := getCounterValue(c.transfersSubmitted); v != 3 {
		t.Errorf("expected transfers submitted=3, got %v", v)
	}
}

func TestRemoveRepo(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RepoRoundTrip("repo1", time.Millisecond)
	c.RepoError("repo1", "timeout")
	c.SetRepoConnected("repo1", true)

	c.RemoveRepo("repo1")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "repo_id" && l.GetValue() == "repo1" {
					t.Errorf("metric %s still has repo1 label after removal", f.GetName())
				}
			}
		}
	}
}

func TestRemoveWorker(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetWorkerBusy("w1", true)
	c.RemoveWorker("w1")

	if v := getGaugeValue(c.workerBusy.WithLabelValues("w1")); v != 0 {
		t.Errorf("expected busy gauge reset after removal, got %v", v)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.SetActiveGrants(1)
	c2.SetActiveGrants(2)

	if v := getGaugeValue(c1.transientGrantsActive); v != 1 {
		t.Errorf("c1 expected active=1, got %v", v)
	}
	if v := getGaugeValue(c2.transientGrantsActive); v != 2 {
		t.Errorf("c2 expected active=2, got %v", v)
	}
}
