package metrics

import (
	"time"

	"github.com/bidscreen/bidscreen-server/validation"
)

// Labels defines the labels that can be attached to the metrics.
type Labels struct {
	RType         RequestType
	PubID         string // exchange specific ID, so we cannot compile in values
	Browser       Browser
	RequestStatus RequestStatus
}

// Label typecasting. See below the type definitions for possible values

// RequestType : Request type enumeration
type RequestType string

// Browser type enumeration
type Browser string

// RequestStatus : The request return status
type RequestStatus string

// CacheResult : Cache hit/miss
type CacheResult string

// The request types (endpoints)
const (
	ReqTypeNative RequestType = "native"
	ReqTypeORTB2  RequestType = "openrtb2"
)

func RequestTypes() []RequestType {
	return []RequestType{
		ReqTypeNative,
		ReqTypeORTB2,
	}
}

// Browser flag; at this point we only care about identifying Safari
const (
	BrowserSafari Browser = "safari"
	BrowserOther  Browser = "other"
)

func BrowserTypes() []Browser {
	return []Browser{
		BrowserSafari,
		BrowserOther,
	}
}

// Request/return status
const (
	RequestStatusOK              RequestStatus = "ok"
	RequestStatusBadInput        RequestStatus = "badinput"
	RequestStatusAccountRequired RequestStatus = "account_required"
	RequestStatusRateLimited     RequestStatus = "ratelimited"
	RequestStatusErr             RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusAccountRequired,
		RequestStatusRateLimited,
		RequestStatusErr,
	}
}

// Cache hit/miss
const (
	CacheHit  CacheResult = "hit"
	CacheMiss CacheResult = "miss"
)

func CacheResults() []CacheResult {
	return []CacheResult{
		CacheHit,
		CacheMiss,
	}
}

// MetricsEngine is a generic interface to record screening metrics into the desired backend.
// The request metrics fire once per incoming request, so their totals equal the number of
// incoming requests. RecordRejection fires once per pruned bid, so a single request may
// record many rejections; comparing numbers between the two groups is generally not useful.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordRequest(labels Labels)                           // only statusOk and statusErr from status
	RecordCandidateAds(labels Labels, numAds int)          // candidate ads offered to the rule set
	RecordCandidateBids(labels Labels, numBids int)        // candidate bids inside those ads
	RecordRequestTime(labels Labels, length time.Duration) // ignores status other than statusOk
	RecordRejection(reason validation.Reason)              // one count per pruned bid
	RecordPolicyCacheResult(result CacheResult, count int)
	RecordMetadataRefresh(success bool)
}
