package metadata

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/bidscreen/bidscreen-server/errortypes"
)

// Transport fetches a metadata document by URL.
type Transport interface {
	Fetch(url string) ([]byte, error)
}

// FastTransport fetches over fasthttp. Dictionary dumps run to megabytes and
// refresh on a ticker, so the pooled request/response buffers pay off.
type FastTransport struct {
	Client  *fasthttp.Client
	Timeout time.Duration
}

// NewFastTransport builds a FastTransport with a dedicated client.
func NewFastTransport(timeout time.Duration) *FastTransport {
	return &FastTransport{
		Client:  &fasthttp.Client{},
		Timeout: timeout,
	}
}

// Fetch downloads url and returns an owned copy of the body.
func (t *FastTransport) Fetch(url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod("GET")

	var err error
	if t.Timeout > 0 {
		err = t.Client.DoTimeout(req, resp, t.Timeout)
	} else {
		err = t.Client.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("metadata endpoint returned status %d", resp.StatusCode()),
		}
	}

	// The response buffer is pooled, so hand back a copy.
	body := resp.Body()
	owned := make([]byte, len(body))
	copy(owned, body)
	return owned, nil
}
