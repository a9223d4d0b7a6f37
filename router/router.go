package router

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	analyticsConf "github.com/bidscreen/bidscreen-server/analytics/config"
	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/endpoints"
	"github.com/bidscreen/bidscreen-server/endpoints/openrtb2"
	"github.com/bidscreen/bidscreen-server/exchange"
	"github.com/bidscreen/bidscreen-server/metadata"
	metricsConf "github.com/bidscreen/bidscreen-server/metrics/config"
	"github.com/bidscreen/bidscreen-server/policy"
	policyConf "github.com/bidscreen/bidscreen-server/policy/config"
	"github.com/bidscreen/bidscreen-server/privacy"
)

// The policy schema ships next to the binary; policy documents are validated
// against it on every load and update.
const schemaDirectory = "static"

func serveIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.ServeFile(w, r, "static/index.html")
}

// NoCache forbids downstream caching of whatever its Handler writes.
type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// Router is the main server's handler: the screening endpoints, the policy
// events API, and the static assets.
type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Shutdown      func()
}

func getTransport(cfg *config.Configuration) *http.Transport {
	transport := &http.Transport{
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

// New builds the main Router and everything behind it: the metrics engine,
// the analytics modules, the account policy store and the exchange. The
// metadata provider is built by the caller because its refresh ticker and the
// admin endpoint outlive any single router.
func New(cfg *config.Configuration, metaProvider *metadata.Provider) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	generalHttpClient := &http.Client{
		Transport: getTransport(cfg),
	}

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg)

	analyticsRunner := analyticsConf.NewAnalytics(&cfg.Analytics)

	schemaValidator, err := policy.NewSchemaValidator(schemaDirectory)
	if err != nil {
		glog.Fatalf("Failed to create the policy schema validator. %v", err)
	}

	policyFetcher, policyShutdown := policyConf.CreatePolicyStore(&cfg.Policy, schemaValidator, r.MetricsEngine, generalHttpClient, r.Router)
	r.Shutdown = policyShutdown

	ex := exchange.NewExchange(policyFetcher, metaProvider, r.MetricsEngine)

	screenEndpoint, err := endpoints.NewScreenEndpoint(ex, cfg, r.MetricsEngine, analyticsRunner)
	if err != nil {
		glog.Fatalf("Failed to create the screening endpoint handler. %v", err)
	}

	openrtbEndpoint, err := openrtb2.NewEndpoint(ex, cfg, r.MetricsEngine, analyticsRunner, privacy.NewPolicy(&cfg.GDPR))
	if err != nil {
		glog.Fatalf("Failed to create the openrtb2 screening endpoint handler. %v", err)
	}

	r.POST("/screen", screenEndpoint)
	r.POST("/openrtb2/screen", openrtbEndpoint)
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/", serveIndex)
	r.ServeFiles("/static/*filepath", http.Dir("static"))

	return r, nil
}

// SupportCORS allows credentialed calls from any origin. The screening
// endpoints carry no cookies, so the only thing an origin can do is screen
// its own payloads.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedMethods: []string{"POST"},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
