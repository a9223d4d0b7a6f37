package prometheusmetrics

import (
	"time"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/metrics"
	"github.com/bidscreen/bidscreen-server/validation"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
// The Registry is exported so the admin server can expose it through promhttp.
type Metrics struct {
	Registry *prometheus.Registry

	connCounter     prometheus.Gauge
	connError       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	reqTimer        *prometheus.HistogramVec
	candidateAds    *prometheus.CounterVec
	candidateBids   *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	policyCache     *prometheus.CounterVec
	metadataRefresh *prometheus.CounterVec
}

// NewMetrics constructs the appropriate options for the Prometheus metrics. Needs to be fed the prometheus config
// Its own function to keep the metric creation function cleaner.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	// define the buckets for timers
	timerBuckets := prometheus.LinearBuckets(0.05, 0.05, 20)
	timerBuckets = append(timerBuckets, []float64{1.5, 2.0, 3.0, 5.0, 10.0, 50.0}...)

	standardLabelNames := []string{"type", "pubid", "browser", "status"}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()
	metrics.connCounter = newConnCounter(cfg)
	metrics.Registry.MustRegister(metrics.connCounter)
	metrics.connError = newCounter(cfg, "connection_errors_total",
		"Errors reported on the connections coming in.",
		[]string{"ErrorType"},
	)
	metrics.Registry.MustRegister(metrics.connError)
	metrics.requests = newCounter(cfg, "requests_total",
		"Total number of screening requests received.",
		standardLabelNames,
	)
	metrics.Registry.MustRegister(metrics.requests)
	metrics.reqTimer = newHistogram(cfg, "request_time_seconds",
		"Seconds to screen each request.",
		standardLabelNames, timerBuckets,
	)
	metrics.Registry.MustRegister(metrics.reqTimer)
	metrics.candidateAds = newCounter(cfg, "candidate_ads_total",
		"Number of candidate ads offered to the rule set.",
		standardLabelNames,
	)
	metrics.Registry.MustRegister(metrics.candidateAds)
	metrics.candidateBids = newCounter(cfg, "candidate_bids_total",
		"Number of candidate bids inside the offered ads.",
		standardLabelNames,
	)
	metrics.Registry.MustRegister(metrics.candidateBids)
	metrics.rejections = newCounter(cfg, "rejections_total",
		"Number of bids pruned from responses, by rejection reason.",
		[]string{"reason"},
	)
	metrics.Registry.MustRegister(metrics.rejections)
	metrics.policyCache = newCounter(cfg, "policy_cache_total",
		"Account policy cache lookups, by hit or miss.",
		[]string{"result"},
	)
	metrics.Registry.MustRegister(metrics.policyCache)
	metrics.metadataRefresh = newCounter(cfg, "metadata_refresh_total",
		"Dictionary refresh attempts, by outcome.",
		[]string{"status"},
	)
	metrics.Registry.MustRegister(metrics.metadataRefresh)

	// Preload the per-reason counters so reporters see every reason from startup.
	for _, reason := range validation.Reasons() {
		metrics.rejections.WithLabelValues(string(reason))
	}

	return &metrics
}

func newConnCounter(cfg config.PrometheusMetrics) prometheus.Gauge {
	opts := prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "active_connections",
		Help:      "Current number of active (open) connections.",
	}
	return prometheus.NewGauge(opts)
}

func newCounter(cfg config.PrometheusMetrics, name string, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	return prometheus.NewCounterVec(opts, labels)
}

func newHistogram(cfg config.PrometheusMetrics, name string, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	return prometheus.NewHistogramVec(opts, labels)
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.connCounter.Inc()
	} else {
		me.connError.WithLabelValues("accept_error").Inc()
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.connCounter.Dec()
	} else {
		me.connError.WithLabelValues("close_error").Inc()
	}
}

func (me *Metrics) RecordRequest(labels metrics.Labels) {
	me.requests.With(resolveLabels(labels)).Inc()
}

func (me *Metrics) RecordCandidateAds(labels metrics.Labels, numAds int) {
	me.candidateAds.With(resolveLabels(labels)).Add(float64(numAds))
}

func (me *Metrics) RecordCandidateBids(labels metrics.Labels, numBids int) {
	me.candidateBids.With(resolveLabels(labels)).Add(float64(numBids))
}

func (me *Metrics) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	time := float64(length) / float64(time.Second)
	me.reqTimer.With(resolveLabels(labels)).Observe(time)
}

func (me *Metrics) RecordRejection(reason validation.Reason) {
	me.rejections.WithLabelValues(string(reason)).Inc()
}

func (me *Metrics) RecordPolicyCacheResult(result metrics.CacheResult, count int) {
	if count > 0 {
		me.policyCache.WithLabelValues(string(result)).Add(float64(count))
	}
}

func (me *Metrics) RecordMetadataRefresh(success bool) {
	if success {
		me.metadataRefresh.WithLabelValues("ok").Inc()
	} else {
		me.metadataRefresh.WithLabelValues("err").Inc()
	}
}

func resolveLabels(labels metrics.Labels) prometheus.Labels {
	return prometheus.Labels{
		"type":    string(labels.RType),
		"pubid":   labels.PubID,
		"browser": string(labels.Browser),
		"status":  string(labels.RequestStatus),
	}
}
