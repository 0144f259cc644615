// Package metrics exposes Prometheus metrics for the Core server: a
// custom registry with GaugeVec/HistogramVec/CounterVec collectors and
// per-entity removal, keyed to ZAP/repo-control/worker-pool activity
// rather than per-connection-pool stats.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the Core.
type Collector struct {
	Registry *prometheus.Registry

	zapRequestsTotal   *prometheus.CounterVec
	zapRequestDuration *prometheus.HistogramVec
	zapIdentityResult  *prometheus.CounterVec

	transientGrantsActive  prometheus.Gauge
	transientGrantsIssued  prometheus.Counter
	transientGrantsExpired prometheus.Counter

	queueDepth    *prometheus.GaugeVec
	queueDrained  *prometheus.CounterVec
	queueTimeouts *prometheus.CounterVec

	repoRoundTrip  *prometheus.HistogramVec
	repoErrors     *prometheus.CounterVec
	repoConnected  *prometheus.GaugeVec

	workerBusy     *prometheus.GaugeVec
	workerRequests *prometheus.CounterVec

	transfersSubmitted prometheus.Counter
}

// New creates and registers all Prometheus metrics using a custom registry.
// Safe to call multiple times (e.g. in tests): each call gets an
// independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	zapRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_zap_requests_total",
			Help: "Total ZAP authentication requests handled",
		},
		[]string{"result"},
	)
	zapRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafed_core_zap_request_duration_seconds",
			Help:    "Duration of ZAP identity resolution",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"tier"},
	)
	zapIdentityResult := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_zap_identity_result_total",
			Help: "ZAP identity resolution outcomes by tier",
		},
		[]string{"tier"},
	)

	transientGrantsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datafed_core_transient_grants_active",
		Help: "Number of currently active transient credential grants",
	})
	transientGrantsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datafed_core_transient_grants_issued_total",
		Help: "Total transient credential grants issued",
	})
	transientGrantsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datafed_core_transient_grants_expired_total",
		Help: "Total transient credential grants reaped by expiry",
	})

	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafed_core_queue_depth",
			Help: "Number of pending entries in a maintenance queue",
		},
		[]string{"queue"},
	)
	queueDrained := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_queue_drained_total",
			Help: "Entries successfully drained from a maintenance queue",
		},
		[]string{"queue"},
	)
	queueTimeouts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_queue_timeouts_total",
			Help: "Maintenance passes that hit their drain timeout with entries remaining",
		},
		[]string{"queue"},
	)

	repoRoundTrip := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafed_core_repo_round_trip_seconds",
			Help:    "Round trip time of repo-control requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"repo_id"},
	)
	repoErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_repo_errors_total",
			Help: "Repo-control request failures",
		},
		[]string{"repo_id", "error_type"},
	)
	repoConnected := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafed_core_repo_connected",
			Help: "Whether a repo-control dealer socket is connected (1) or not (0)",
		},
		[]string{"repo_id"},
	)

	workerBusy := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafed_core_worker_busy",
			Help: "Whether a client worker is currently processing a request",
		},
		[]string{"worker_id"},
	)
	workerRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafed_core_worker_requests_total",
			Help: "Total requests dispatched to client workers",
		},
		[]string{"worker_id"},
	)

	transfersSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datafed_core_transfers_submitted_total",
		Help: "Total asynchronous transfer jobs submitted",
	})

	c := &Collector{
		Registry:               reg,
		zapRequestsTotal:       zapRequestsTotal,
		zapRequestDuration:     zapRequestDuration,
		zapIdentityResult:      zapIdentityResult,
		transientGrantsActive:  transientGrantsActive,
		transientGrantsIssued:  transientGrantsIssued,
		transientGrantsExpired: transientGrantsExpired,
		queueDepth:             queueDepth,
		queueDrained:           queueDrained,
		queueTimeouts:          queueTimeouts,
		repoRoundTrip:          repoRoundTrip,
		repoErrors:             repoErrors,
		repoConnected:          repoConnected,
		workerBusy:             workerBusy,
		workerRequests:         workerRequests,
		transfersSubmitted:     transfersSubmitted,
	}

	reg.MustRegister(
		zapRequestsTotal,
		zapRequestDuration,
		zapIdentityResult,
		transientGrantsActive,
		transientGrantsIssued,
		transientGrantsExpired,
		queueDepth,
		queueDrained,
		queueTimeouts,
		repoRoundTrip,
		repoErrors,
		repoConnected,
		workerBusy,
		workerRequests,
		transfersSubmitted,
	)

	return c
}

// ZAPRequest records a completed ZAP authentication request.
func (c *Collector) ZAPRequest(result string, tier string, d time.Duration) {
	c.zapRequestsTotal.WithLabelValues(result).Inc()
	c.zapRequestDuration.WithLabelValues(tier).Observe(d.Seconds())
	c.zapIdentityResult.WithLabelValues(tier).Inc()
}

// GrantIssued records a newly issued transient credential grant.
func (c *Collector) GrantIssued() {
	c.transientGrantsIssued.Inc()
}

// GrantExpired records a transient credential grant reaped by the
// maintenance loop.
func (c *Collector) GrantExpired() {
	c.transientGrantsExpired.Inc()
}

// SetActiveGrants sets the current transient grant table size.
func (c *Collector) SetActiveGrants(n int) {
	c.transientGrantsActive.Set(float64(n))
}

// SetQueueDepth sets the current depth of a maintenance queue.
func (c *Collector) SetQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// QueueDrained records entries drained from a maintenance queue in a pass.
func (c *Collector) QueueDrained(queue string, n int) {
	c.queueDrained.WithLabelValues(queue).Add(float64(n))
}

// QueueTimeout records a maintenance pass hitting its drain timeout.
func (c *Collector) QueueTimeout(queue string) {
	c.queueTimeouts.WithLabelValues(queue).Inc()
}

// RepoRoundTrip observes a repo-control request's round trip time.
func (c *Collector) RepoRoundTrip(repoID string, d time.Duration) {
	c.repoRoundTrip.WithLabelValues(repoID).Observe(d.Seconds())
}

// RepoError records a repo-control request failure by type.
func (c *Collector) RepoError(repoID, errorType string) {
	c.repoErrors.WithLabelValues(repoID, errorType).Inc()
}

// SetRepoConnected sets whether a repo's control dealer socket is connected.
func (c *Collector) SetRepoConnected(repoID string, connected bool) {
	val := 0.0
	if connected {
		val = 1.0
	}
	c.repoConnected.WithLabelValues(repoID).Set(val)
}

// SetWorkerBusy sets whether a client worker is currently processing.
func (c *Collector) SetWorkerBusy(workerID string, busy bool) {
	val := 0.0
	if busy {
		val = 1.0
	}
	c.workerBusy.WithLabelValues(workerID).Set(val)
	if busy {
		c.workerRequests.WithLabelValues(workerID).Inc()
	}
}

// TransferSubmitted records a submitted asynchronous transfer job.
func (c *Collector) TransferSubmitted() {
	c.transfersSubmitted.Inc()
}

// RemoveRepo removes all metrics for a repository that has been retired.
func (c *Collector) RemoveRepo(repoID string) {
	c.repoRoundTrip.DeletePartialMatch(prometheus.Labels{"repo_id": repoID})
	c.repoErrors.DeletePartialMatch(prometheus.Labels{"repo_id": repoID})
	c.repoConnected.DeleteLabelValues(repoID)
}

// RemoveWorker removes all metrics for a retired client worker.
func (c *Collector) RemoveWorker(workerID string) {
	c.workerBusy.DeleteLabelValues(workerID)
	c.workerRequests.DeleteLabelValues(workerID)
}
