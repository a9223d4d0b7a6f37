package http

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/context/ctxhttp"

	"github.com/bidscreen/bidscreen-server/policy/events"
)

// NewHTTPEvents makes an EventProducer which creates events by pinging an external HTTP API
// for policy updates periodically.
//
// It expects the following endpoint to exist remotely:
//
// GET {endpoint}
//   -- Returns all the known policies.
// GET {endpoint}?last-modified={timestamp}
//   -- Returns the policies which have been updated since the last timestamp.
//      This timestamp will be sent in the rfc3339 format, using UTC and no timezone shift.
//      For more info, see: https://tools.ietf.org/html/rfc3339
//
// The responses should be JSON like this:
//
// {
//   "policies": {
//     "acct1": { ... policy data ... },
//     "acct2": { ... policy data ... },
//   }
// }
//
// To signal deletions, the endpoint may return { "deleted": true }
// in place of the policy data if the "last-modified" param existed.
//
// If refreshRate is non-positive, the endpoint will be hit once on startup and never again.
func NewHTTPEvents(client *http.Client, endpoint string, ctxProducer func() (ctx context.Context, canceller func()), refreshRate time.Duration) *HTTPEvents {
	// If we're not given a way to produce contexts, assume no timeouts are wanted.
	if ctxProducer == nil {
		ctxProducer = func() (ctx context.Context, canceller func()) {
			return context.Background(), func() {}
		}
	}

	e := &HTTPEvents{
		client:        client,
		ctxProducer:   ctxProducer,
		Endpoint:      endpoint,
		updates:       make(chan events.Update, 1),
		invalidations: make(chan events.Invalidation, 1),
		lastUpdate:    time.Now().UTC(),
	}
	e.fetchAll()

	go e.refresh(time.Tick(refreshRate))
	return e
}

type HTTPEvents struct {
	client        *http.Client
	ctxProducer   func() (ctx context.Context, canceller func())
	Endpoint      string
	updates       chan events.Update
	invalidations chan events.Invalidation
	lastUpdate    time.Time
}

func (e *HTTPEvents) fetchAll() {
	ctx, cancel := e.ctxProducer()
	defer cancel()

	resp, err := ctxhttp.Get(ctx, e.client, e.Endpoint)
	if respObj, ok := e.parse(e.Endpoint, resp, err); ok && len(respObj.Policies) > 0 {
		e.updates <- events.Update{
			Policies: respObj.Policies,
		}
	}
}

func (e *HTTPEvents) refresh(ticker <-chan time.Time) {
	for thisTime := range ticker {
		thisTimeInUTC := thisTime.UTC()

		// Parse the endpoint so we can attach the "last-modified" param.
		endpointUrl, err := url.Parse(e.Endpoint)
		if err != nil {
			glog.Errorf("Disabling refresh HTTP events for policies: %v", err)
			return
		}
		urlQuery := endpointUrl.Query()
		urlQuery.Set("last-modified", e.lastUpdate.Format(time.RFC3339))
		endpointUrl.RawQuery = urlQuery.Encode()

		ctx, cancel := e.ctxProducer()
		resp, err := ctxhttp.Get(ctx, e.client, endpointUrl.String())
		if respObj, ok := e.parse(endpointUrl.String(), resp, err); ok {
			invalidated := extractInvalidations(respObj.Policies)
			if len(respObj.Policies) > 0 {
				e.updates <- events.Update{
					Policies: respObj.Policies,
				}
			}
			if len(invalidated) > 0 {
				e.invalidations <- events.Invalidation{
					Policies: invalidated,
				}
			}
			e.lastUpdate = thisTimeInUTC
		}
		cancel()
	}
}

// parse unpacks the HTTP response into the format we expect, handling errors which may occur.
func (e *HTTPEvents) parse(endpoint string, resp *http.Response, err error) (*responseContract, bool) {
	if err != nil {
		glog.Errorf("Failed call: GET %s for policies: %v", endpoint, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		glog.Errorf("Got %d response from GET %s for policies", resp.StatusCode, endpoint)
		return nil, false
	}

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		glog.Errorf("Failed to read body of GET %s for policies: %v", endpoint, err)
		return nil, false
	}

	var respObj responseContract
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		glog.Errorf("Failed to unmarshal body of GET %s for policies: %v", endpoint, err)
		return nil, false
	}

	return &respObj, true
}

// extractInvalidations strips deletion markers out of the changeset, returning
// the account ids they named.
func extractInvalidations(changes map[string]json.RawMessage) []string {
	deletedIDs := make([]string, 0, 5)
	for id, msg := range changes {
		var marker deletionMarker
		if err := json.Unmarshal(msg, &marker); err == nil && marker.Deleted {
			delete(changes, id)
			deletedIDs = append(deletedIDs, id)
		}
	}
	return deletedIDs
}

func (e *HTTPEvents) Updates() <-chan events.Update {
	return e.updates
}

func (e *HTTPEvents) Invalidations() <-chan events.Invalidation {
	return e.invalidations
}

type responseContract struct {
	Policies map[string]json.RawMessage `json:"policies"`
}

type deletionMarker struct {
	Deleted bool `json:"deleted"`
}
