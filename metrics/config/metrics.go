package config

import (
	"time"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/metrics"
	prometheusmetrics "github.com/bidscreen/bidscreen-server/metrics/prometheus"
	"github.com/bidscreen/bidscreen-server/validation"
	gometrics "github.com/rcrowley/go-metrics"
	influxdb "github.com/vrischmann/go-metrics-influxdb"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *config.Configuration) *DetailedMetricsEngine {
	// Create a list of metrics engines to use.
	// Capacity of 2, as unlikely to have more than 2 metrics backends, and in the case
	// of 1 engine, this value doesn't matter.
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	if cfg.Metrics.Influxdb.Host != "" {
		// Set up the go-metrics part of the DetailedMetricsEngine
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("bidscreen."))
		engineList = append(engineList, returnEngine.GoMetrics)

		// Set up the Influx reporter
		go influxdb.InfluxDB(
			returnEngine.GoMetrics.MetricsRegistry, // metrics registry
			time.Second*10,                         // interval
			cfg.Metrics.Influxdb.Host,              // the InfluxDB url
			cfg.Metrics.Influxdb.Database,          // your InfluxDB database
			cfg.Metrics.Influxdb.Username,          // your InfluxDB user
			cfg.Metrics.Influxdb.Password,          // your InfluxDB password
		)
	}
	if cfg.Metrics.Prometheus.Port != 0 {
		// Set up the Prometheus metrics.
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
	}

	// Now return the proper metrics engine
	if len(engineList) > 1 {
		returnEngine.MetricsEngine = &engineList
	} else if len(engineList) == 1 {
		returnEngine.MetricsEngine = engineList[0]
	} else {
		returnEngine.MetricsEngine = &DummyMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MultiMetricsEngine that preserves links to the underlying metrics engines,
// for the cases where a caller needs a specific backend (the Prometheus admin server, the Influx registry).
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases
type MultiMetricsEngine []metrics.MetricsEngine

// RecordConnectionAccept across all engines
func (me *MultiMetricsEngine) RecordConnectionAccept(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionAccept(success)
	}
}

// RecordConnectionClose across all engines
func (me *MultiMetricsEngine) RecordConnectionClose(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionClose(success)
	}
}

// RecordRequest across all engines
func (me *MultiMetricsEngine) RecordRequest(labels metrics.Labels) {
	for _, thisME := range *me {
		thisME.RecordRequest(labels)
	}
}

// RecordCandidateAds across all engines
func (me *MultiMetricsEngine) RecordCandidateAds(labels metrics.Labels, numAds int) {
	for _, thisME := range *me {
		thisME.RecordCandidateAds(labels, numAds)
	}
}

// RecordCandidateBids across all engines
func (me *MultiMetricsEngine) RecordCandidateBids(labels metrics.Labels, numBids int) {
	for _, thisME := range *me {
		thisME.RecordCandidateBids(labels, numBids)
	}
}

// RecordRequestTime across all engines
func (me *MultiMetricsEngine) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordRequestTime(labels, length)
	}
}

// RecordRejection across all engines
func (me *MultiMetricsEngine) RecordRejection(reason validation.Reason) {
	for _, thisME := range *me {
		thisME.RecordRejection(reason)
	}
}

// RecordPolicyCacheResult across all engines
func (me *MultiMetricsEngine) RecordPolicyCacheResult(result metrics.CacheResult, count int) {
	for _, thisME := range *me {
		thisME.RecordPolicyCacheResult(result, count)
	}
}

// RecordMetadataRefresh across all engines
func (me *MultiMetricsEngine) RecordMetadataRefresh(success bool) {
	for _, thisME := range *me {
		thisME.RecordMetadataRefresh(success)
	}
}

// DummyMetricsEngine is a Noop metrics engine in case no metrics are configured. (may also be useful for tests)
type DummyMetricsEngine struct{}

// RecordConnectionAccept as a noop
func (me *DummyMetricsEngine) RecordConnectionAccept(success bool) {
}

// RecordConnectionClose as a noop
func (me *DummyMetricsEngine) RecordConnectionClose(success bool) {
}

// RecordRequest as a noop
func (me *DummyMetricsEngine) RecordRequest(labels metrics.Labels) {
}

// RecordCandidateAds as a noop
func (me *DummyMetricsEngine) RecordCandidateAds(labels metrics.Labels, numAds int) {
}

// RecordCandidateBids as a noop
func (me *DummyMetricsEngine) RecordCandidateBids(labels metrics.Labels, numBids int) {
}

// RecordRequestTime as a noop
func (me *DummyMetricsEngine) RecordRequestTime(labels metrics.Labels, length time.Duration) {
}

// RecordRejection as a noop
func (me *DummyMetricsEngine) RecordRejection(reason validation.Reason) {
}

// RecordPolicyCacheResult as a noop
func (me *DummyMetricsEngine) RecordPolicyCacheResult(result metrics.CacheResult, count int) {
}

// RecordMetadataRefresh as a noop
func (me *DummyMetricsEngine) RecordMetadataRefresh(success bool) {
}
