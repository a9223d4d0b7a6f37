package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/metrics"
	"github.com/bidscreen/bidscreen-server/validation"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func createMetricsForTesting() *Metrics {
	return NewMetrics(config.PrometheusMetrics{
		Port:      8016,
		Namespace: "bidscreen",
		Subsystem: "server",
	})
}

func TestConnectionMetrics(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordConnectionAccept(true)
	m.RecordConnectionAccept(true)
	m.RecordConnectionClose(true)
	m.RecordConnectionAccept(false)
	m.RecordConnectionClose(false)

	assertGaugeValue(t, "active connections", m.connCounter, 1)
	assertCounterVecValue(t, "accept errors", m.connError, 1, prometheus.Labels{"ErrorType": "accept_error"})
	assertCounterVecValue(t, "close errors", m.connError, 1, prometheus.Labels{"ErrorType": "close_error"})
}

func TestRequestMetrics(t *testing.T) {
	m := createMetricsForTesting()

	labels := metrics.Labels{
		RType:         metrics.ReqTypeNative,
		PubID:         "acct-1",
		Browser:       metrics.BrowserOther,
		RequestStatus: metrics.RequestStatusOK,
	}
	m.RecordRequest(labels)
	m.RecordCandidateAds(labels, 3)
	m.RecordCandidateBids(labels, 5)
	m.RecordRequestTime(labels, 250*time.Millisecond)

	promLabels := prometheus.Labels{
		"type":    "native",
		"pubid":   "acct-1",
		"browser": "other",
		"status":  "ok",
	}
	assertCounterVecValue(t, "requests", m.requests, 1, promLabels)
	assertCounterVecValue(t, "candidate ads", m.candidateAds, 3, promLabels)
	assertCounterVecValue(t, "candidate bids", m.candidateBids, 5, promLabels)

	h := dto.Metric{}
	histogram, _ := m.reqTimer.GetMetricWith(promLabels)
	histogram.(prometheus.Histogram).Write(&h)
	assert.Equal(t, uint64(1), h.GetHistogram().GetSampleCount(), "request timer samples")
	assert.Equal(t, 0.25, h.GetHistogram().GetSampleSum(), "request timer sum")
}

func TestRejectionMetrics(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRejection(validation.ReasonExcludedAttribute)
	m.RecordRejection(validation.ReasonExcludedAttribute)
	m.RecordRejection(validation.ReasonVendorNotAllowed)

	assertCounterVecValue(t, "excluded_attribute", m.rejections, 2, prometheus.Labels{"reason": "excluded_attribute"})
	assertCounterVecValue(t, "vendor_not_allowed", m.rejections, 1, prometheus.Labels{"reason": "vendor_not_allowed"})
	// Preloaded but never incremented.
	assertCounterVecValue(t, "needs_ssl", m.rejections, 0, prometheus.Labels{"reason": "needs_ssl"})
}

func TestPolicyCacheMetrics(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordPolicyCacheResult(metrics.CacheHit, 4)
	m.RecordPolicyCacheResult(metrics.CacheMiss, 1)
	m.RecordPolicyCacheResult(metrics.CacheMiss, 0)

	assertCounterVecValue(t, "cache hits", m.policyCache, 4, prometheus.Labels{"result": "hit"})
	assertCounterVecValue(t, "cache misses", m.policyCache, 1, prometheus.Labels{"result": "miss"})
}

func TestMetadataRefreshMetrics(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordMetadataRefresh(true)
	m.RecordMetadataRefresh(true)
	m.RecordMetadataRefresh(false)

	assertCounterVecValue(t, "refresh ok", m.metadataRefresh, 2, prometheus.Labels{"status": "ok"})
	assertCounterVecValue(t, "refresh err", m.metadataRefresh, 1, prometheus.Labels{"status": "err"})
}

func assertCounterVecValue(t *testing.T, description string, counterVec *prometheus.CounterVec, expected float64, labels prometheus.Labels) {
	t.Helper()
	counter := counterVec.With(labels)
	assertCounterValue(t, description, counter, expected)
}

func assertCounterValue(t *testing.T, description string, counter prometheus.Counter, expected float64) {
	t.Helper()
	m := dto.Metric{}
	counter.Write(&m)
	actual := *m.GetCounter().Value
	assert.Equal(t, expected, actual, description)
}

func assertGaugeValue(t *testing.T, description string, gauge prometheus.Gauge, expected float64) {
	t.Helper()
	m := dto.Metric{}
	gauge.Write(&m)
	actual := *m.GetGauge().Value
	assert.Equal(t, expected, actual, description)
}
