package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"

	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/bidscreen/bidscreen-server/policy/caches/memory"
	"github.com/bidscreen/bidscreen-server/policy/events"
)

func TestGoodUpdate(t *testing.T) {
	handle, listener, cache := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/policy-cache", strings.NewReader(`{"policies":{"acct-1":{"private_auction":true}}}`))
	handle(recorder, request, nil)

	assert.Equal(t, 200, recorder.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	listener.WaitFor(ctx, 1, 0)

	cached := cache.Get(context.Background(), []string{"acct-1"})
	assert.JSONEq(t, `{"private_auction":true}`, string(cached["acct-1"]))
}

func TestGoodInvalidation(t *testing.T) {
	handle, listener, cache := setupAPITest(nil)
	defer listener.Stop()

	cache.Save(context.Background(), map[string]json.RawMessage{
		"acct-1": json.RawMessage(`{}`),
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/policy-cache", strings.NewReader(`{"policies":["acct-1"]}`))
	handle(recorder, request, nil)

	assert.Equal(t, 200, recorder.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	listener.WaitFor(ctx, 0, 1)

	cached := cache.Get(context.Background(), []string{"acct-1"})
	assert.Len(t, cached, 0)
}

func TestBadUpdateJSON(t *testing.T) {
	handle, listener, _ := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/policy-cache", strings.NewReader(`{`))
	handle(recorder, request, nil)

	assert.Equal(t, 400, recorder.Code)
}

func TestUpdateMissingPolicies(t *testing.T) {
	handle, listener, _ := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/policy-cache", strings.NewReader(`{"accounts":{}}`))
	handle(recorder, request, nil)

	assert.Equal(t, 400, recorder.Code)
	assert.Equal(t, "Invalid update. Missing \"policies\" property.\n", recorder.Body.String())
}

func TestUpdateNonObjectPolicy(t *testing.T) {
	handle, listener, _ := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/policy-cache", strings.NewReader(`{"policies":{"acct-1":"not-an-object"}}`))
	handle(recorder, request, nil)

	assert.Equal(t, 400, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "must be a JSON object")
}

func TestUpdateFailingValidation(t *testing.T) {
	handle, listener, cache := setupAPITest(rejectingValidator{})
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/policy-cache", strings.NewReader(`{"policies":{"acct-1":{"bogus":true}}}`))
	handle(recorder, request, nil)

	assert.Equal(t, 400, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "no good")

	cached := cache.Get(context.Background(), []string{"acct-1"})
	assert.Len(t, cached, 0)
}

func TestBadInvalidationEntries(t *testing.T) {
	handle, listener, _ := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/policy-cache", strings.NewReader(`{"policies":[42]}`))
	handle(recorder, request, nil)

	assert.Equal(t, 400, recorder.Code)
	assert.Equal(t, "Invalid invalidation. Account ids must be strings.\n", recorder.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	handle, listener, _ := setupAPITest(nil)
	defer listener.Stop()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/policy-cache", nil)
	handle(recorder, request, nil)

	assert.Equal(t, 405, recorder.Code)
}

func setupAPITest(validator policy.SchemaValidator) (httprouter.Handle, *events.EventListener, policy.Cache) {
	producer, handle := NewEventsAPI(validator)
	cache := memory.NewCache(0, -1)
	listener := events.Listen(cache, producer)
	return handle, listener, cache
}

type rejectingValidator struct{}

func (v rejectingValidator) Validate(data json.RawMessage) error {
	return errors.New("that policy is no good")
}

func (v rejectingValidator) Schema() string {
	return "{}"
}
