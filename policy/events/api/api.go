package api

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/julienschmidt/httprouter"

	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/bidscreen/bidscreen-server/policy/events"
)

type eventsAPI struct {
	validator     policy.SchemaValidator
	updates       chan events.Update
	invalidations chan events.Invalidation
}

// NewEventsAPI creates an EventProducer driven by HTTP calls, plus the handle
// which drives it. POST saves the policies in the body, DELETE invalidates them.
//
// If validator is non-nil, posted policies must pass schema validation.
func NewEventsAPI(validator policy.SchemaValidator) (events.EventProducer, httprouter.Handle) {
	api := &eventsAPI{
		validator:     validator,
		updates:       make(chan events.Update),
		invalidations: make(chan events.Invalidation),
	}
	return api, httprouter.Handle(api.HandleEvent)
}

func (api *eventsAPI) HandleEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Method == "POST" {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing update data.\n"))
			return
		}

		update, err := api.parseUpdate(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error() + "\n"))
			return
		}

		api.updates <- update
	} else if r.Method == "DELETE" {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing invalidation data.\n"))
			return
		}

		invalidation, err := parseInvalidation(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error() + "\n"))
			return
		}

		api.invalidations <- invalidation
	} else {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// parseUpdate walks the "policies" object in the payload without unmarshalling
// the policy documents themselves, validating each one along the way.
func (api *eventsAPI) parseUpdate(body []byte) (events.Update, error) {
	update := events.Update{
		Policies: make(map[string]json.RawMessage),
	}
	err := jsonparser.ObjectEach(body, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		if dataType != jsonparser.Object {
			return fmt.Errorf(`Invalid update. Policy for account "%s" must be a JSON object.`, string(key))
		}
		if api.validator != nil {
			if err := api.validator.Validate(value); err != nil {
				return err
			}
		}
		update.Policies[string(key)] = json.RawMessage(value)
		return nil
	}, "policies")
	if err != nil {
		if err == jsonparser.KeyPathNotFoundError {
			return update, fmt.Errorf(`Invalid update. Missing "policies" property.`)
		}
		return update, err
	}
	return update, nil
}

func parseInvalidation(body []byte) (events.Invalidation, error) {
	invalidation := events.Invalidation{
		Policies: make([]string, 0),
	}
	var badEntry error
	_, err := jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if dataType == jsonparser.String {
			invalidation.Policies = append(invalidation.Policies, string(value))
		} else if badEntry == nil {
			badEntry = fmt.Errorf("Invalid invalidation. Account ids must be strings.")
		}
	}, "policies")
	if err != nil {
		if err == jsonparser.KeyPathNotFoundError {
			return invalidation, fmt.Errorf(`Invalid invalidation. Missing "policies" property.`)
		}
		return invalidation, err
	}
	if badEntry != nil {
		return invalidation, badEntry
	}
	return invalidation, nil
}

func (api *eventsAPI) Invalidations() <-chan events.Invalidation {
	return api.invalidations
}

func (api *eventsAPI) Updates() <-chan events.Update {
	return api.updates
}
