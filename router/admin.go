package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/bidscreen/bidscreen-server/endpoints"
	"github.com/bidscreen/bidscreen-server/metadata"
)

// Admin builds the handler for the admin server. This is not the server that
// accepts screening requests; it serves operator information and profiling.
func Admin(version, revision string, metaProvider *metadata.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(version, revision))
	mux.HandleFunc("/metadata", endpoints.NewMetadataEndpoint(metaProvider))
	return mux
}
