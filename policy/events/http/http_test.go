package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartup(t *testing.T) {
	server := httptest.NewServer(&mockResponseHandler{
		statusCode: 200,
		response:   `{"policies":{"acct-1":{"private_auction":true},"acct-2":{"excluded_attribute":[1]}}}`,
	})
	defer server.Close()

	ev := NewHTTPEvents(server.Client(), server.URL, nil, -1)

	update := <-ev.Updates()
	assert.Len(t, update.Policies, 2)
	assert.JSONEq(t, `{"private_auction":true}`, string(update.Policies["acct-1"]))
	assert.JSONEq(t, `{"excluded_attribute":[1]}`, string(update.Policies["acct-2"]))
}

func TestRefresh(t *testing.T) {
	handler := &recordingHandler{
		statusCode: 200,
		response:   `{"policies":{"acct-1":{"private_auction":true},"acct-2":{"deleted":true}}}`,
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	ev := NewHTTPEvents(server.Client(), server.URL, nil, -1)
	// The startup fetch produced one update. Drain it before driving a refresh.
	<-ev.Updates()

	ticks := make(chan time.Time, 1)
	go ev.refresh(ticks)
	ticks <- time.Now()

	update := <-ev.Updates()
	assert.Len(t, update.Policies, 1)
	assert.JSONEq(t, `{"private_auction":true}`, string(update.Policies["acct-1"]))

	invalidation := <-ev.Invalidations()
	assert.Equal(t, []string{"acct-2"}, invalidation.Policies)

	assert.NotEmpty(t, handler.lastModified, "refresh calls should send the last-modified param")
	if _, err := time.Parse(time.RFC3339, handler.lastModified); err != nil {
		t.Errorf("last-modified should be an rfc3339 timestamp. Got %s", handler.lastModified)
	}
}

func TestNoUpdatesOnErrors(t *testing.T) {
	server := httptest.NewServer(&mockResponseHandler{
		statusCode: 500,
		response:   "Something horrible happened.",
	})
	defer server.Close()

	ev := NewHTTPEvents(server.Client(), server.URL, nil, -1)

	select {
	case <-ev.Updates():
		t.Error("No updates should be produced when the server responds with an error.")
	default:
	}
}

func TestNoUpdatesOnMalformedResponses(t *testing.T) {
	server := httptest.NewServer(&mockResponseHandler{
		statusCode: 200,
		response:   `{"policies":`,
	})
	defer server.Close()

	ev := NewHTTPEvents(server.Client(), server.URL, nil, -1)

	select {
	case <-ev.Updates():
		t.Error("No updates should be produced when the server responds with malformed JSON.")
	default:
	}
}

type mockResponseHandler struct {
	statusCode int
	response   string
}

func (m *mockResponseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(m.statusCode)
	w.Write([]byte(m.response))
}

type recordingHandler struct {
	statusCode   int
	response     string
	lastModified string
}

func (m *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if lastModified := r.URL.Query().Get("last-modified"); lastModified != "" {
		m.lastModified = lastModified
	}
	w.WriteHeader(m.statusCode)
	w.Write([]byte(m.response))
}
