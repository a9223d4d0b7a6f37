package config

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/metrics"
	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/bidscreen/bidscreen-server/policy/backends/db_fetcher"
	"github.com/bidscreen/bidscreen-server/policy/backends/empty_fetcher"
	"github.com/bidscreen/bidscreen-server/policy/backends/file_fetcher"
	"github.com/bidscreen/bidscreen-server/policy/backends/http_fetcher"
	"github.com/bidscreen/bidscreen-server/policy/caches/aerospike"
	"github.com/bidscreen/bidscreen-server/policy/caches/cassandra"
	"github.com/bidscreen/bidscreen-server/policy/caches/compressed"
	"github.com/bidscreen/bidscreen-server/policy/caches/memcache"
	"github.com/bidscreen/bidscreen-server/policy/caches/memory"
	"github.com/bidscreen/bidscreen-server/policy/caches/redis"
	"github.com/bidscreen/bidscreen-server/policy/events"
	apiEvents "github.com/bidscreen/bidscreen-server/policy/events/api"
	databaseEvents "github.com/bidscreen/bidscreen-server/policy/events/database"
	httpEvents "github.com/bidscreen/bidscreen-server/policy/events/http"
	"github.com/bidscreen/bidscreen-server/util/task"
)

// CreatePolicyStore returns two things:
//
// 1. A Fetcher which can be used to get account policies
// 2. A function which should be called on shutdown for graceful cleanups.
//
// If any errors occur, the program will exit with an error message.
// It probably means you have a bad config or networking issue.
//
// As a side-effect, it will add the cache events endpoint to the router if the config calls for it.
func CreatePolicyStore(cfg *config.Policy, validator policy.SchemaValidator, metricsEngine metrics.MetricsEngine, client *http.Client, router *httprouter.Router) (fetcher policy.Fetcher, shutdown func()) {
	var db *sql.DB
	if cfg.Database.ConnectionInfo.Database != "" {
		glog.Infof("Connecting to Postgres for policies. DB=%s, host=%s, port=%d, user=%s",
			cfg.Database.ConnectionInfo.Database,
			cfg.Database.ConnectionInfo.Host,
			cfg.Database.ConnectionInfo.Port,
			cfg.Database.ConnectionInfo.Username)
		db = newPostgresDB(cfg.Database.ConnectionInfo)
	}

	eventProducers := newEventProducers(cfg, validator, client, db, router)
	fetcher = newFetcher(cfg, validator, client, db)

	var shutdown1 func()

	if cfg.Cache.Type != "none" {
		cache := newCache(cfg)
		fetcher = policy.WithCache(fetcher, cache, metricsEngine)
		shutdown1 = addListeners(cache, eventProducers)
	}

	shutdown = func() {
		if shutdown1 != nil {
			shutdown1()
		}
		if db != nil {
			if err := db.Close(); err != nil {
				glog.Errorf("Error closing DB connection: %v", err)
			}
		}
	}

	return
}

func addListeners(cache policy.Cache, eventProducers []events.EventProducer) (shutdown func()) {
	listeners := make([]*events.EventListener, 0, len(eventProducers))

	for _, ep := range eventProducers {
		listeners = append(listeners, events.Listen(cache, ep))
	}

	return func() {
		for _, l := range listeners {
			l.Stop()
		}
	}
}

func newFetcher(cfg *config.Policy, validator policy.SchemaValidator, client *http.Client, db *sql.DB) policy.Fetcher {
	idList := make(policy.MultiFetcher, 0, 3)

	if cfg.Files.Enabled {
		idList = append(idList, newFilesystem(cfg.Files.Path, validator))
	}
	if cfg.Database.FetcherQueries.QueryTemplate != "" {
		glog.Infof("Loading policies via Postgres.\nQuery: %s", cfg.Database.FetcherQueries.QueryTemplate)
		idList = append(idList, db_fetcher.NewFetcher(db, cfg.Database.FetcherQueries.MakeQuery))
	} else if cfg.Database.CacheInitialization.Query != "" && cfg.Database.PollUpdates.Query != "" {
		// in this case data will be loaded to cache via poll for updates event
		idList = append(idList, empty_fetcher.EmptyFetcher{})
	}
	if cfg.HTTP.Endpoint != "" {
		glog.Infof("Loading policies via HTTP. endpoint=%s", cfg.HTTP.Endpoint)
		idList = append(idList, http_fetcher.NewFetcher(client, cfg.HTTP.Endpoint))
	}

	return consolidate(idList)
}

func newCache(cfg *config.Policy) policy.Cache {
	var cache policy.Cache

	switch cfg.Cache.Type {
	case "memory":
		cache = memory.NewCache(cfg.Cache.SizeBytes, cfg.Cache.TTLSeconds)
	case "redis":
		cache = redis.NewCache(cfg.Cache.Redis, cfg.Cache.TTLSeconds)
	case "memcache":
		cache = memcache.NewCache(cfg.Cache.Memcache, cfg.Cache.TTLSeconds)
	case "cassandra":
		cache = cassandra.NewCache(cfg.Cache.Cassandra, cfg.Cache.TTLSeconds)
	case "aerospike":
		cache = aerospike.NewCache(cfg.Cache.Aerospike, cfg.Cache.TTLSeconds)
	default:
		glog.Fatalf("Unknown policy cache type: %s", cfg.Cache.Type)
	}

	if cfg.Cache.Compression == "snappy" {
		cache = compressed.WithCompression(cache)
	}
	return cache
}

func newEventProducers(cfg *config.Policy, validator policy.SchemaValidator, client *http.Client, db *sql.DB, router *httprouter.Router) (eventProducers []events.EventProducer) {
	if cfg.CacheEvents.Enabled {
		eventProducers = append(eventProducers, newEventsAPI(router, cfg.CacheEvents.Endpoint, validator))
	}
	if cfg.HTTPEvents.RefreshRate != 0 && cfg.HTTPEvents.Endpoint != "" {
		eventProducers = append(eventProducers, newHttpEvents(client, cfg.HTTPEvents.TimeoutDuration(), cfg.HTTPEvents.RefreshRateDuration(), cfg.HTTPEvents.Endpoint))
	}
	if cfg.Database.CacheInitialization.Query != "" {
		dbEventCfg := databaseEvents.PolicyEventProducerConfig{
			DB:                 db,
			CacheInitQuery:     cfg.Database.CacheInitialization.Query,
			CacheInitTimeout:   time.Duration(cfg.Database.CacheInitialization.Timeout) * time.Millisecond,
			CacheUpdateQuery:   cfg.Database.PollUpdates.Query,
			CacheUpdateTimeout: time.Duration(cfg.Database.PollUpdates.Timeout) * time.Millisecond,
		}
		dbEventProducer := databaseEvents.NewPolicyEventProducer(dbEventCfg)
		fetchInterval := time.Duration(cfg.Database.PollUpdates.RefreshRate) * time.Second
		dbEventTickerTask := task.NewTickerTask(fetchInterval, dbEventProducer)
		dbEventTickerTask.Start()
		eventProducers = append(eventProducers, dbEventProducer)
	}
	return
}

func newEventsAPI(router *httprouter.Router, endpoint string, validator policy.SchemaValidator) events.EventProducer {
	producer, handler := apiEvents.NewEventsAPI(validator)
	router.POST(endpoint, handler)
	router.DELETE(endpoint, handler)
	return producer
}

func newHttpEvents(client *http.Client, timeout time.Duration, refreshRate time.Duration, endpoint string) events.EventProducer {
	ctxProducer := func() (ctx context.Context, canceller func()) {
		return context.WithTimeout(context.Background(), timeout)
	}
	return httpEvents.NewHTTPEvents(client, endpoint, ctxProducer, refreshRate)
}

func newFilesystem(configPath string, validator policy.SchemaValidator) policy.Fetcher {
	glog.Infof("Loading policies from filesystem at path %s", configPath)
	fetcher, err := file_fetcher.NewFileFetcher(configPath, validator)
	if err != nil {
		glog.Fatalf("Failed to create a policy FileFetcher: %v", err)
	}
	return fetcher
}

func newPostgresDB(cfg config.DatabaseConnection) *sql.DB {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		glog.Fatalf("Failed to open policy postgres connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		glog.Fatalf("Failed to ping policy postgres: %v", err)
	}

	return db
}

// consolidate returns a single Fetcher from a list of configured backends.
func consolidate(fetchers policy.MultiFetcher) policy.Fetcher {
	if len(fetchers) == 0 {
		glog.Warning("No policy backends configured. Accounts will screen with the builtin defaults. If you need policies, check your app config")
		return empty_fetcher.EmptyFetcher{}
	} else if len(fetchers) == 1 {
		return fetchers[0]
	}
	return &fetchers
}
