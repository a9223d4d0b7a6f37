package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeFetcher struct {
	returnData map[string]json.RawMessage
	returnErrs []error
}

func (f *fakeFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	return f.returnData, f.returnErrs
}

func TestMultiFetcher(t *testing.T) {
	mf0 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"abc": json.RawMessage(`{}`),
		},
		returnErrs: []error{NotFoundError{"def"}},
	}
	mf1 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"def": json.RawMessage(`{}`),
		},
		returnErrs: []error{NotFoundError{"abc"}},
	}
	mf := &MultiFetcher{mf0, mf1}
	ids := []string{"abc", "def"}

	// Verify we can use multifetcher as a fetcher
	var fetcher Fetcher = mf

	result, errs := fetcher.FetchPolicies(context.Background(), ids)

	assertResults(t, "results", 2, len(result))
	assertResults(t, "errors", 0, len(errs))
}

func TestMissingID(t *testing.T) {
	mf0 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"abc": json.RawMessage(`{}`),
		},
		returnErrs: []error{NotFoundError{"def"}, NotFoundError{"ghi"}},
	}
	mf1 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"def": json.RawMessage(`{}`),
		},
		returnErrs: []error{NotFoundError{"abc"}, NotFoundError{"ghi"}},
	}
	mf := &MultiFetcher{mf0, mf1}
	ids := []string{"abc", "def", "ghi"}

	result, errs := mf.FetchPolicies(context.Background(), ids)

	assertResults(t, "results", 2, len(result))
	assertResults(t, "errors", 1, len(errs))
}

func TestOtherError(t *testing.T) {
	mf0 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"abc": json.RawMessage(`{}`),
		},
		returnErrs: []error{NotFoundError{"def"}, errors.New("Other error")},
	}
	mf1 := &fakeFetcher{
		returnData: map[string]json.RawMessage{
			"def": json.RawMessage(`{}`),
		},
		returnErrs: []error{},
	}
	mf := &MultiFetcher{mf0, mf1}
	ids := []string{"abc", "def"}

	result, errs := mf.FetchPolicies(context.Background(), ids)

	assertResults(t, "results", 2, len(result))
	assertResults(t, "errors", 1, len(errs))
}

func assertResults(t *testing.T, obj string, expect int, found int) {
	if expect != found {
		t.Errorf("Expected %d %s, found %d", expect, obj, found)
	}
}
