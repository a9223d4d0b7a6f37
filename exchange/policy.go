package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/errortypes"
	"github.com/bidscreen/bidscreen-server/policy"
)

// applyAccountPolicy merges the account's default placement constraints under
// every slot of req. The returned errors are informational: screening
// proceeds with whatever constraints resolved.
func (e *exchange) applyAccountPolicy(ctx context.Context, req *adx.BidRequest, account string) []error {
	data, errs := e.policies.FetchPolicies(ctx, []string{account})
	errs = dropNotFound(errs)
	for _, err := range errs {
		glog.Warningf("Failed to fetch the policy for account %s: %v", account, err)
	}

	defaults, ok := data[account]
	if !ok {
		return errs
	}

	for i := range req.AdSlot {
		if err := mergeSlotDefaults(&req.AdSlot[i], defaults); err != nil {
			errs = append(errs, &errortypes.MalformedPolicy{
				Message: fmt.Sprintf("Policy for account %s could not be applied to slot %d: %v", account, req.AdSlot[i].ID, err),
			})
		}
	}
	return errs
}

// mergeSlotDefaults lays slot over the account's defaults, so every field the
// request sets wins and the defaults fill the rest.
func mergeSlotDefaults(slot *adx.AdSlot, defaults json.RawMessage) error {
	slotJSON, err := json.Marshal(slot)
	if err != nil {
		return err
	}

	merged, err := jsonpatch.MergePatch(defaults, slotJSON)
	if err != nil {
		return err
	}

	id := slot.ID
	if err := json.Unmarshal(merged, slot); err != nil {
		return err
	}
	// The placement id is identity, not policy.
	slot.ID = id
	return nil
}

// dropNotFound removes the errors which only say an account has no registered
// policy. That is the common case, not worth reporting.
func dropNotFound(errs []error) []error {
	kept := errs[:0]
	for _, err := range errs {
		if _, ok := err.(policy.NotFoundError); ok {
			continue
		}
		kept = append(kept, err)
	}
	return kept
}
