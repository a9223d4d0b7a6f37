// Package exchange runs screening transactions end to end: it resolves the
// account's default placement constraints, hands the request/response pair to
// the validator, and accounts for everything that was pruned so the metrics
// and analytics layers can report it.
package exchange

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/metrics"
	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/bidscreen/bidscreen-server/validation"
)

// Exchange runs screening transactions. Implementations must be threadsafe,
// and will be shared across many goroutines.
type Exchange interface {
	// ScreenNative prunes resp in place, removing every bid that violates a
	// constraint of the placement it references and every ad left without
	// bids. Policy violations never produce an error; the returned error
	// reports input too malformed to screen.
	ScreenNative(ctx context.Context, req *adx.BidRequest, resp *adx.BidResponse, account string) (*ScreenResult, error)

	// ScreenOpenRTB screens an OpenRTB 2.5 request/response pair the same
	// way, pruning resp.SeatBid down to the surviving bids.
	ScreenOpenRTB(ctx context.Context, req *openrtb.BidRequest, resp *openrtb.BidResponse, account string) (*ScreenResult, error)
}

// ScreenResult summarizes one screening transaction for the endpoint's
// metrics and the analytics log.
type ScreenResult struct {
	// TransactionID tags the transaction in the audit log.
	TransactionID string

	AdsIn   int
	AdsOut  int
	BidsIn  int
	BidsOut int

	// Rejections tallies the bids pruned in this transaction by reason.
	Rejections map[validation.Reason]int

	// Errors collects non-fatal problems, such as an account policy that
	// could not be fetched. The screening outcome stands regardless.
	Errors []error
}

type exchange struct {
	policies policy.Fetcher
	meta     validation.Metadata
	me       metrics.MetricsEngine
}

// NewExchange builds the production Exchange around an account policy
// fetcher, the exchange metadata and a metrics engine.
func NewExchange(policies policy.Fetcher, meta validation.Metadata, metricsEngine metrics.MetricsEngine) Exchange {
	return &exchange{
		policies: policies,
		meta:     meta,
		me:       metricsEngine,
	}
}

func (e *exchange) ScreenNative(ctx context.Context, req *adx.BidRequest, resp *adx.BidResponse, account string) (*ScreenResult, error) {
	result := newScreenResult()
	if resp != nil {
		result.AdsIn = len(resp.Ad)
		result.BidsIn = countBids(resp)
	}

	if err := e.screen(ctx, req, resp, account, result); err != nil {
		return result, err
	}

	result.AdsOut = len(resp.Ad)
	result.BidsOut = countBids(resp)
	return result, nil
}

// screen lays the account's default constraints under req's slots and
// validates resp against the merged request, tallying rejections into result.
func (e *exchange) screen(ctx context.Context, req *adx.BidRequest, resp *adx.BidResponse, account string, result *ScreenResult) error {
	if account != "" && req != nil {
		result.Errors = append(result.Errors, e.applyAccountPolicy(ctx, req, account)...)
	}

	validator := validation.New(e.meta, &rejectionTally{
		engine: e.me,
		counts: result.Rejections,
	})
	return validator.Validate(req, resp)
}

func newScreenResult() *ScreenResult {
	return &ScreenResult{
		TransactionID: newTransactionID(),
		Rejections:    make(map[validation.Reason]int),
	}
}

// newTransactionID mints the uuid stamped on the analytics record. A failed
// read of the entropy source leaves the id empty rather than failing the
// transaction.
func newTransactionID() string {
	id, err := uuid.NewV4()
	if err != nil {
		glog.Warningf("Failed to generate a transaction id: %v", err)
		return ""
	}
	return id.String()
}

func countBids(resp *adx.BidResponse) int {
	bids := 0
	for i := range resp.Ad {
		bids += len(resp.Ad[i].AdSlot)
	}
	return bids
}

// rejectionTally forwards each rejection to the metrics engine and keeps the
// per-transaction count the analytics record reports.
type rejectionTally struct {
	engine metrics.MetricsEngine
	counts map[validation.Reason]int
}

func (t *rejectionTally) RecordRejection(reason validation.Reason) {
	t.engine.RecordRejection(reason)
	t.counts[reason]++
}
