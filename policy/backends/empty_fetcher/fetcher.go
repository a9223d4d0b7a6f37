package empty_fetcher

import (
	"context"
	"encoding/json"

	"github.com/bidscreen/bidscreen-server/policy"
)

// EmptyFetcher is a nil-object which has no policies.
// If the server is configured to use this, then every account falls back to the
// builtin screening defaults.
type EmptyFetcher struct{}

func (fetcher EmptyFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (data map[string]json.RawMessage, errs []error) {
	errs = make([]error, 0, len(accountIDs))
	for _, id := range accountIDs {
		errs = append(errs, policy.NotFoundError{
			ID: id,
		})
	}
	return
}
