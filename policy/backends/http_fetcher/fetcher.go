package http_fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/bidscreen/bidscreen-server/policy"

	"github.com/golang/glog"
	"golang.org/x/net/context/ctxhttp"
)

// NewFetcher returns a Fetcher which uses the Client to pull data from the endpoint.
//
// This file expects the endpoint to satisfy the following API:
//
// GET {endpoint}?account-ids=["acc1","acc2"]
//
// The endpoint should return a payload like:
//
// {
//   "policies": {
//     "acc1": { ... policy data for acc1 ... },
//     "acc2": null // If acc2 is not found
//   }
// }
//
func NewFetcher(client *http.Client, endpoint string) *HttpFetcher {
	// Do some work up-front to figure out if the (configurable) endpoint has a query string or not.
	// When we build requests, we'll either want to add `?account-ids=...` _or_ `&account-ids=...`.
	if _, err := url.Parse(endpoint); err != nil {
		glog.Fatalf(`Invalid endpoint "%s": %v`, endpoint, err)
	}
	glog.Infof("Making http_fetcher for endpoint %v", endpoint)

	urlPrefix := endpoint
	if strings.Contains(endpoint, "?") {
		urlPrefix = urlPrefix + "&"
	} else {
		urlPrefix = urlPrefix + "?"
	}

	return &HttpFetcher{
		client:   client,
		endpoint: urlPrefix,
	}
}

type HttpFetcher struct {
	client   *http.Client
	endpoint string
}

func (fetcher *HttpFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (data map[string]json.RawMessage, errs []error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	httpReq, err := buildRequest(fetcher.endpoint, accountIDs)
	if err != nil {
		return nil, []error{err}
	}

	httpResp, err := ctxhttp.Do(ctx, fetcher.client, httpReq)
	if err != nil {
		return nil, []error{err}
	}
	defer httpResp.Body.Close()
	data, errs = unpackResponse(httpResp)
	return
}

func buildRequest(endpoint string, accountIDs []string) (*http.Request, error) {
	return http.NewRequest("GET", endpoint+"account-ids=[\""+strings.Join(accountIDs, "\",\"")+"\"]", nil)
}

func unpackResponse(resp *http.Response) (data map[string]json.RawMessage, errs []error) {
	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		errs = append(errs, err)
		return
	}

	if resp.StatusCode == http.StatusOK {
		var responseObj responseContract
		if err := json.Unmarshal(respBytes, &responseObj); err != nil {
			errs = append(errs, err)
			return
		}

		data = responseObj.Policies
		errs = convertNullsToErrs(data, errs)
		return
	}

	errs = append(errs, fmt.Errorf("Error fetching policies via HTTP. Response code was %d", resp.StatusCode))
	return
}

func convertNullsToErrs(m map[string]json.RawMessage, errs []error) []error {
	for id, val := range m {
		if bytes.Equal(val, []byte("null")) {
			delete(m, id)
			errs = append(errs, policy.NotFoundError{
				ID: id,
			})
		}
	}
	return errs
}

// responseContract is used to unmarshal the endpoint payload.
type responseContract struct {
	Policies map[string]json.RawMessage `json:"policies"`
}
