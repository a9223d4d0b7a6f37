package file_fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/bidscreen/bidscreen-server/policy"
)

// NewFileFetcher _immediately_ loads policy data from local files.
// These are stored in memory for low-latency reads.
//
// This expects each file in the directory to be named "{account_id}.json".
// For example, when asked to fetch the policy for account "23", it will return
// the data from "directory/23.json".
//
// If validator is non-nil, every file must pass schema validation or the load fails.
func NewFileFetcher(directory string, validator policy.SchemaValidator) (policy.Fetcher, error) {
	storedData, err := collectStoredData(directory)
	if err != nil {
		return nil, err
	}
	if validator != nil {
		for id, data := range storedData {
			if err := validator.Validate(data); err != nil {
				return nil, fmt.Errorf("policy file %s/%s.json is invalid: %v", directory, id, err)
			}
		}
	}
	return &eagerFetcher{storedData}, nil
}

type eagerFetcher struct {
	storedData map[string]json.RawMessage
}

func (fetcher *eagerFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	errs := appendErrors(accountIDs, fetcher.storedData, nil)
	return fetcher.storedData, errs
}

func collectStoredData(directory string) (map[string]json.RawMessage, error) {
	fileInfos, err := ioutil.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	data := make(map[string]json.RawMessage, len(fileInfos))
	for _, fileInfo := range fileInfos {
		if fileInfo.IsDir() {
			continue
		}
		if strings.HasSuffix(fileInfo.Name(), ".json") { // Skip the .gitignore
			fileData, err := ioutil.ReadFile(fmt.Sprintf("%s/%s", directory, fileInfo.Name()))
			if err != nil {
				return nil, err
			}
			data[strings.TrimSuffix(fileInfo.Name(), ".json")] = json.RawMessage(fileData)
		}
	}
	return data, nil
}

func appendErrors(ids []string, data map[string]json.RawMessage, errs []error) []error {
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			errs = append(errs, policy.NotFoundError{
				ID: id,
			})
		}
	}
	return errs
}
