package http_fetcher

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// Tests for buildRequest
func TestSingleAccount(t *testing.T) {
	doBuildURLTest(t, "http://bidscreen.com/policies", []string{"acct-1"}, `http://bidscreen.com/policies?account-ids=["acct-1"]`)
}

func TestSeveralAccounts(t *testing.T) {
	doBuildURLTest(t, "http://bidscreen.com/policies", []string{"acct-1", "acct-2"}, `http://bidscreen.com/policies?account-ids=["acct-1","acct-2"]`)
}

func TestEndpointWithQuery(t *testing.T) {
	doBuildURLTest(t, "http://bidscreen.com/policies?tag=1", []string{"acct-1"}, `http://bidscreen.com/policies?tag=1&account-ids=["acct-1"]`)
}

// Tests for unpackResponse
func TestGoodResponse(t *testing.T) {
	payload := `{"policies":{"acct-1":{"private_auction":true}}}`
	expected := map[string]json.RawMessage{"acct-1": json.RawMessage(`{"private_auction":true}`)}
	doResponseUnpackTest(t, payload, expected, nil)
}

func TestNullResponse(t *testing.T) {
	payload := `{"policies":{"acct-1":{"private_auction":true},"acct-2":null}}`
	expected := map[string]json.RawMessage{"acct-1": json.RawMessage(`{"private_auction":true}`)}
	doResponseUnpackTest(t, payload, expected, []string{`Policy for account "acct-2" not found.`})
}

func TestMalformedResponse(t *testing.T) {
	doResponseUnpackTest(t, `{`, nil, []string{"unexpected end of JSON input"})
}

func TestErrorResponse(t *testing.T) {
	mockResponse := &http.Response{
		StatusCode: 502,
		Body:       closeWrapper{strings.NewReader("Bad response")},
	}
	data, errs := unpackResponse(mockResponse)
	if len(data) > 0 {
		t.Errorf("Bad data length: %d", len(data))
	}
	if len(errs) != 1 {
		t.Fatalf("Bad err length: %d", len(errs))
	}
}

func doBuildURLTest(t *testing.T, endpoint string, accounts []string, expected string) {
	httpFetcher := NewFetcher(nil, endpoint)
	req, err := buildRequest(httpFetcher.endpoint, accounts)
	if err != nil {
		t.Fatalf("Unexpected error building URL: %v", err)
	}

	if req.URL.String() != expected {
		t.Errorf("Bad URL. Expected %s, got %s", expected, req.URL.String())
	}
}

func doResponseUnpackTest(t *testing.T, resp string, expectedData map[string]json.RawMessage, expectedErrs []string) {
	mockResponse := &http.Response{
		StatusCode: 200,
		Body:       closeWrapper{strings.NewReader(resp)},
	}

	data, errs := unpackResponse(mockResponse)
	assertSameContents(t, expectedData, data)
	assertSameErrMsgs(t, expectedErrs, errs)
}

func assertSameContents(t *testing.T, expected map[string]json.RawMessage, actual map[string]json.RawMessage) {
	if len(expected) != len(actual) {
		t.Errorf("Wrong counts. Expected %d, actual %d", len(expected), len(actual))
		return
	}
	for expectedKey, expectedVal := range expected {
		if actualVal, ok := actual[expectedKey]; ok {
			if !bytes.Equal(expectedVal, actualVal) {
				t.Errorf("actual[%s] value %s does not match expected: %s", expectedKey, string(actualVal), string(expectedVal))
			}
		} else {
			t.Errorf("actual map missing expected key %s", expectedKey)
		}
	}
}

func assertSameErrMsgs(t *testing.T, expected []string, actual []error) {
	if len(expected) != len(actual) {
		t.Errorf("Wrong error counts. Expected %d, actual %d", len(expected), len(actual))
		return
	}
	for i, expectedErr := range expected {
		if actual[i].Error() != expectedErr {
			t.Errorf("Wrong error[%d]. Expected %s, got %s", i, expectedErr, actual[i].Error())
		}
	}
}

type closeWrapper struct {
	io.Reader
}

func (w closeWrapper) Close() error {
	return nil
}
