package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/metadata"
)

type metadataProvider interface {
	GetInfo() metadata.Info
}

// NewMetadataEndpoint reports the dictionary snapshot currently serving the
// screening engine: when it was installed, whether it has gone stale, and how
// many codes each dictionary resolves.
func NewMetadataEndpoint(provider metadataProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		jsonOutput, err := json.Marshal(provider.GetInfo())
		if err != nil {
			glog.Errorf("/metadata Critical error when trying to marshal metadata info: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonOutput)
	}
}
