package metrics

import (
	"time"

	"github.com/bidscreen/bidscreen-server/validation"
	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordConnectionAccept mock
func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
}

// RecordConnectionClose mock
func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
}

// RecordRequest mock
func (me *MetricsEngineMock) RecordRequest(labels Labels) {
	me.Called(labels)
}

// RecordCandidateAds mock
func (me *MetricsEngineMock) RecordCandidateAds(labels Labels, numAds int) {
	me.Called(labels, numAds)
}

// RecordCandidateBids mock
func (me *MetricsEngineMock) RecordCandidateBids(labels Labels, numBids int) {
	me.Called(labels, numBids)
}

// RecordRequestTime mock
func (me *MetricsEngineMock) RecordRequestTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
}

// RecordRejection mock
func (me *MetricsEngineMock) RecordRejection(reason validation.Reason) {
	me.Called(reason)
}

// RecordPolicyCacheResult mock
func (me *MetricsEngineMock) RecordPolicyCacheResult(result CacheResult, count int) {
	me.Called(result, count)
}

// RecordMetadataRefresh mock
func (me *MetricsEngineMock) RecordMetadataRefresh(success bool) {
	me.Called(success)
}
