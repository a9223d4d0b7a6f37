package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/bidscreen/bidscreen-server/validation"
	"github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics backend, expanded to satisfy the MetricsEngine interface
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	CandidateAdMeter           metrics.Meter
	CandidateBidMeter          metrics.Meter
	SafariRequestMeter         metrics.Meter
	RequestTimer               metrics.Timer
	// Metrics for requests by endpoint and outcome, so we can track the native/openrtb2 mix
	// and know when one surface has been abandoned.
	RequestStatuses   map[RequestType]map[RequestStatus]metrics.Meter
	RejectionMeters   map[validation.Reason]metrics.Meter
	PolicyCacheMeters map[CacheResult]metrics.Meter
	MetadataUpdates   metrics.Meter
	MetadataErrors    metrics.Meter

	// Don't export accountMetrics because we need helper functions here to insure it's properly populated dynamically
	accountMetrics        map[string]*accountMetrics
	accountMetricsRWMutex sync.RWMutex
}

type accountMetrics struct {
	requestMeter      metrics.Meter
	candidateBidMeter metrics.Meter
}

// NewBlankMetrics creates a new Metrics object with all blank metrics objects. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
//
// This will also eventually let us configure metrics, such as setting a limited set of metrics
// for a production instance, and then expanding again when we need more debugging.
func NewBlankMetrics(registry metrics.Registry) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		CandidateAdMeter:           blankMeter,
		CandidateBidMeter:          blankMeter,
		SafariRequestMeter:         blankMeter,
		RequestTimer:               &metrics.NilTimer{},
		RequestStatuses:            make(map[RequestType]map[RequestStatus]metrics.Meter),
		RejectionMeters:            make(map[validation.Reason]metrics.Meter),
		PolicyCacheMeters:          make(map[CacheResult]metrics.Meter),
		MetadataUpdates:            blankMeter,
		MetadataErrors:             blankMeter,

		accountMetrics: make(map[string]*accountMetrics),
	}

	for _, t := range RequestTypes() {
		newMetrics.RequestStatuses[t] = make(map[RequestStatus]metrics.Meter)
		for _, s := range RequestStatuses() {
			newMetrics.RequestStatuses[t][s] = blankMeter
		}
	}
	for _, r := range validation.Reasons() {
		newMetrics.RejectionMeters[r] = blankMeter
	}
	for _, c := range CacheResults() {
		newMetrics.PolicyCacheMeters[c] = blankMeter
	}

	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined. In time we may develop to the point
// where Metrics contains all the metrics we might want to record, and then we build the actual
// metrics object to contain only the metrics we are interested in. This would allow for debug
// mode metrics. The code would always try to record the metrics, but effectively noop if we are
// using a blank meter/timer.
func NewMetrics(registry metrics.Registry) *Metrics {
	newMetrics := NewBlankMetrics(registry)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	newMetrics.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	newMetrics.CandidateAdMeter = metrics.GetOrRegisterMeter("candidate_ads", registry)
	newMetrics.CandidateBidMeter = metrics.GetOrRegisterMeter("candidate_bids", registry)
	newMetrics.SafariRequestMeter = metrics.GetOrRegisterMeter("safari_requests", registry)
	newMetrics.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)
	newMetrics.MetadataUpdates = metrics.GetOrRegisterMeter("metadata.updates", registry)
	newMetrics.MetadataErrors = metrics.GetOrRegisterMeter("metadata.update_errors", registry)
	for typ, statusMap := range newMetrics.RequestStatuses {
		for stat := range statusMap {
			statusMap[stat] = metrics.GetOrRegisterMeter("requests."+string(stat)+"."+string(typ), registry)
		}
	}
	for _, r := range validation.Reasons() {
		newMetrics.RejectionMeters[r] = metrics.GetOrRegisterMeter("rejections."+string(r), registry)
	}
	for _, c := range CacheResults() {
		newMetrics.PolicyCacheMeters[c] = metrics.GetOrRegisterMeter("policy_cache."+string(c), registry)
	}
	return newMetrics
}

// getAccountMetrics gets or registers the account metrics for account "id".
// There is no getBlankAccountMetrics() as all metrics are generated dynamically.
func (me *Metrics) getAccountMetrics(id string) *accountMetrics {
	var am *accountMetrics
	var ok bool

	me.accountMetricsRWMutex.RLock()
	am, ok = me.accountMetrics[id]
	me.accountMetricsRWMutex.RUnlock()

	if ok {
		return am
	}

	me.accountMetricsRWMutex.Lock()
	defer me.accountMetricsRWMutex.Unlock()

	// Check again in case another goroutine got the write lock first.
	am, ok = me.accountMetrics[id]
	if ok {
		return am
	}
	am = &accountMetrics{}
	am.requestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.requests", id), me.MetricsRegistry)
	am.candidateBidMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.candidate_bids", id), me.MetricsRegistry)

	me.accountMetrics[id] = am

	return am
}

// Implement the MetricsEngine interface

// RecordConnectionAccept implements a part of the MetricsEngine interface
func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

// RecordConnectionClose implements a part of the MetricsEngine interface
func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

// RecordRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordRequest(labels Labels) {
	me.RequestStatuses[labels.RType][labels.RequestStatus].Mark(1)
	if labels.Browser == BrowserSafari {
		me.SafariRequestMeter.Mark(1)
	}

	// Handle the account metrics now.
	if labels.PubID != "" {
		me.getAccountMetrics(labels.PubID).requestMeter.Mark(1)
	}
}

// RecordCandidateAds implements a part of the MetricsEngine interface
func (me *Metrics) RecordCandidateAds(labels Labels, numAds int) {
	me.CandidateAdMeter.Mark(int64(numAds))
}

// RecordCandidateBids implements a part of the MetricsEngine interface
func (me *Metrics) RecordCandidateBids(labels Labels, numBids int) {
	me.CandidateBidMeter.Mark(int64(numBids))
	if labels.PubID != "" {
		me.getAccountMetrics(labels.PubID).candidateBidMeter.Mark(int64(numBids))
	}
}

// RecordRequestTime implements a part of the MetricsEngine interface. The calling code is responsible
// for determining the call duration.
func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to screen out bad requests.
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

// RecordRejection implements a part of the MetricsEngine interface. Reasons outside
// validation.Reasons() are dropped rather than registered on the fly, keeping the
// counter set stable for reporters.
func (me *Metrics) RecordRejection(reason validation.Reason) {
	if meter, ok := me.RejectionMeters[reason]; ok {
		meter.Mark(1)
	}
}

// RecordPolicyCacheResult implements a part of the MetricsEngine interface
func (me *Metrics) RecordPolicyCacheResult(result CacheResult, count int) {
	if meter, ok := me.PolicyCacheMeters[result]; ok {
		meter.Mark(int64(count))
	}
}

// RecordMetadataRefresh implements a part of the MetricsEngine interface
func (me *Metrics) RecordMetadataRefresh(success bool) {
	if success {
		me.MetadataUpdates.Mark(1)
	} else {
		me.MetadataErrors.Mark(1)
	}
}
