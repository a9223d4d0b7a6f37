package policy

import (
	"context"
	"encoding/json"
)

// MultiFetcher is a Fetcher composed of multiple sub-Fetchers that are all polled for results.
type MultiFetcher []Fetcher

// FetchPolicies implements the Fetcher interface for MultiFetcher
func (mf *MultiFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	var errs []error
	result := make(map[string]json.RawMessage, len(accountIDs))
	missingIDs := 0 // The number of missing ids that each fetcher reported.
	// If the number of errors == number of missing ids, then it is likely that the errors
	// are simply due to the ids missing from the return result.
	numIDs := len(accountIDs)
	// suspect fetchers ... fetchers that returned errors that don't match the number of missing ids.
	suspect := 0

	// Loop over the fetchers
	for _, f := range *mf {
		remainingIDs := make([]string, 0, len(accountIDs))
		for _, id := range accountIDs {
			if _, ok := result[id]; !ok {
				remainingIDs = append(remainingIDs, id)
			}
		}
		missingIDs = missingIDs + len(remainingIDs)
		if len(errs) > 0 && len(errs) != len(remainingIDs) {
			// This doesn't look like a simple error per missing id.
			suspect++
		}
		accountIDs = remainingIDs
		thisResult, rerrs := f.FetchPolicies(ctx, accountIDs)
		if len(rerrs) > 0 {
			errs = append(errs, rerrs...)
		}
		// Loop over the results
		for k, v := range thisResult {
			result[k] = v
		}
	}
	// If we have all the results and a number of errors == the number of missing ids, then assume all is good.
	if len(result) == numIDs && len(errs) <= missingIDs && suspect == 0 {
		errs = []error{}
	}
	return result, errs
}
