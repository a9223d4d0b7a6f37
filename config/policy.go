package config

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validator "github.com/asaskevich/govalidator"
	"github.com/golang/glog"
)

// Policy configures where account screening policies are loaded from, and how
// they are cached between requests.
type Policy struct {
	// Files should be enabled if policies are loaded from the filesystem.
	Files FileFetcherConfig `mapstructure:"filesystem"`
	// Database should be set if policies are loaded from a Postgres database.
	Database DatabaseConfig `mapstructure:"database"`
	// HTTP should be set if policies are loaded from a remote endpoint over HTTP.
	HTTP HTTPFetcherConfig `mapstructure:"http"`
	// Cache configures the local cache which sits in front of the fetchers.
	Cache PolicyCache `mapstructure:"cache"`
	// CacheEvents exposes an HTTP API for pushing cache updates and invalidations.
	CacheEvents CacheEventsConfig `mapstructure:"cache_events"`
	// HTTPEvents polls a remote endpoint for full policy refreshes.
	HTTPEvents HTTPEventsConfig `mapstructure:"http_events"`
}

func (cfg *Policy) validate(errs []error) []error {
	if cfg.CacheEvents.Enabled && cfg.Cache.Type == "none" {
		errs = append(errs, errors.New("policy.cache_events.enabled requires a configured policy.cache"))
	}
	if cfg.HTTP.Endpoint != "" && !validator.IsURL(cfg.HTTP.Endpoint) {
		errs = append(errs, fmt.Errorf("invalid policy.http.endpoint: %s", cfg.HTTP.Endpoint))
	}
	errs = cfg.Database.validate(errs)
	errs = cfg.Cache.validate(errs)
	errs = cfg.HTTPEvents.validate(errs)
	return errs
}

type FileFetcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"directorypath"`
}

type HTTPFetcherConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// DatabaseConfig configures the Postgres connection for policies.
type DatabaseConfig struct {
	ConnectionInfo      DatabaseConnection    `mapstructure:"connection"`
	FetcherQueries      DatabaseFetcherQueries `mapstructure:"fetcher"`
	CacheInitialization DatabaseCacheInit     `mapstructure:"initialize_caches"`
	PollUpdates         DatabaseUpdatePolling `mapstructure:"poll_for_updates"`
}

func (cfg *DatabaseConfig) validate(errs []error) []error {
	if cfg.ConnectionInfo.Database == "" {
		return errs
	}
	return cfg.PollUpdates.validate(cfg.CacheInitialization.validate(errs))
}

type DatabaseConnection struct {
	Database string `mapstructure:"dbname"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ConnString builds the lib/pq data source name from the connection settings.
func (cfg *DatabaseConnection) ConnString() string {
	buffer := bytes.NewBuffer(nil)

	if cfg.Host != "" {
		buffer.WriteString("host=")
		buffer.WriteString(cfg.Host)
		buffer.WriteString(" ")
	}

	if cfg.Port > 0 {
		buffer.WriteString("port=")
		buffer.WriteString(strconv.Itoa(cfg.Port))
		buffer.WriteString(" ")
	}

	if cfg.Username != "" {
		buffer.WriteString("user=")
		buffer.WriteString(cfg.Username)
		buffer.WriteString(" ")
	}

	if cfg.Password != "" {
		buffer.WriteString("password=")
		buffer.WriteString(cfg.Password)
		buffer.WriteString(" ")
	}

	if cfg.Database != "" {
		buffer.WriteString("dbname=")
		buffer.WriteString(cfg.Database)
		buffer.WriteString(" ")
	}

	buffer.WriteString("sslmode=disable")
	return buffer.String()
}

type DatabaseFetcherQueries struct {
	// QueryTemplate is the Postgres query used to fetch policies from the
	// database. It is a template rather than a full query because a single
	// request may need policies for several accounts.
	//
	// In the simplest case, this could be something like:
	//   SELECT account_id, policy, 'policy' AS type
	//     FROM policies
	//     WHERE account_id IN %ACCOUNT_ID_LIST%
	//
	// The MakeQuery function will transform this query into:
	//   SELECT account_id, policy, 'policy' AS type
	//     FROM policies
	//     WHERE account_id IN ($1, $2, $3, ...)
	//
	// ... where the number of "$x" args depends on how many account ids
	// the request needs.
	QueryTemplate string `mapstructure:"query"`
}

// MakeQuery builds a query which can fetch numAccounts policies.
// See the docs on DatabaseFetcherQueries.QueryTemplate for how it works.
func (cfg *DatabaseFetcherQueries) MakeQuery(numAccounts int) string {
	if numAccounts < 0 {
		glog.Errorf("Can't build a SQL query for %d accounts.", numAccounts)
		numAccounts = 0
	}
	return strings.Replace(cfg.QueryTemplate, "%ACCOUNT_ID_LIST%", makeIdList(numAccounts), -1)
}

func makeIdList(numArgs int) string {
	// An empty list like "()" is illegal in Postgres. A (NULL) is the next
	// best thing: `id IN (NULL)` is valid for all "id" column types, and
	// evaluates to an empty set almost for free.
	if numArgs == 0 {
		return "(NULL)"
	}

	final := bytes.NewBuffer(make([]byte, 0, 2+4*numArgs))
	final.WriteString("(")
	for i := 1; i < numArgs; i++ {
		final.WriteString("$")
		final.WriteString(strconv.Itoa(i))
		final.WriteString(", ")
	}
	final.WriteString("$")
	final.WriteString(strconv.Itoa(numArgs))
	final.WriteString(")")

	return final.String()
}

type DatabaseCacheInit struct {
	// Timeout is the amount of time before a call to the database is aborted.
	Timeout int `mapstructure:"timeout_ms"`
	// Query to fetch all policies from the database.
	// Queries can't be parameterized here. The rows need to be account_id, policy, type.
	Query string `mapstructure:"query"`
}

func (cfg *DatabaseCacheInit) validate(errs []error) []error {
	if cfg.Query == "" {
		return errs
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, errors.New("policy.database.initialize_caches.timeout_ms must be positive"))
	}
	if strings.Contains(cfg.Query, "$") {
		errs = append(errs, errors.New("policy.database.initialize_caches.query should not contain any wildcards (e.g. $1)"))
	}
	return errs
}

type DatabaseUpdatePolling struct {
	// RefreshRate determines how frequently the Query runs.
	RefreshRate int `mapstructure:"refresh_rate_seconds"`
	// Timeout is the amount of time before a call to the database is aborted.
	Timeout int `mapstructure:"timeout_ms"`
	// Query to fetch policies which have been updated since the last poll.
	// The query must contain exactly one wildcard, which will be the last
	// update time of the previous poll.
	//
	// For example:
	//   SELECT account_id, policy, 'policy' AS type
	//     FROM policies
	//     WHERE last_updated > $1
	Query string `mapstructure:"query"`
}

func (cfg *DatabaseUpdatePolling) validate(errs []error) []error {
	if cfg.Query == "" {
		return errs
	}
	if cfg.RefreshRate <= 0 {
		errs = append(errs, errors.New("policy.database.poll_for_updates.refresh_rate_seconds must be positive"))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, errors.New("policy.database.poll_for_updates.timeout_ms must be positive"))
	}
	if !strings.Contains(cfg.Query, "$1") || strings.Contains(cfg.Query, "$2") {
		errs = append(errs, errors.New("policy.database.poll_for_updates.query must contain exactly one wildcard"))
	}
	return errs
}

// PolicyCache configures the cache between the screening endpoints and the
// policy fetchers. Type selects the backend.
type PolicyCache struct {
	// Type must be one of "none", "memory", "redis", "memcache", "cassandra"
	// or "aerospike".
	Type string `mapstructure:"type"`
	// SizeBytes bounds the in-process cache. Only used when Type is "memory".
	SizeBytes int `mapstructure:"size_bytes"`
	// TTLSeconds is how long cached policies stay valid. 0 means forever.
	TTLSeconds int `mapstructure:"ttl_seconds"`
	// Compression must be "none" or "snappy".
	Compression string `mapstructure:"compression"`

	Redis     RedisCacheConfig     `mapstructure:"redis"`
	Memcache  MemcacheConfig       `mapstructure:"memcache"`
	Cassandra CassandraCacheConfig `mapstructure:"cassandra"`
	Aerospike AerospikeCacheConfig `mapstructure:"aerospike"`
}

func (cfg *PolicyCache) validate(errs []error) []error {
	switch cfg.Type {
	case "none":
	case "memory":
		if cfg.SizeBytes <= 0 {
			errs = append(errs, fmt.Errorf("policy.cache.size_bytes must be positive when policy.cache.type is memory. Got %d", cfg.SizeBytes))
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, errors.New("policy.cache.redis.addr is required when policy.cache.type is redis"))
		}
	case "memcache":
		if len(cfg.Memcache.Hosts) == 0 {
			errs = append(errs, errors.New("policy.cache.memcache.hosts is required when policy.cache.type is memcache"))
		}
	case "cassandra":
		if len(cfg.Cassandra.Hosts) == 0 || cfg.Cassandra.Keyspace == "" {
			errs = append(errs, errors.New("policy.cache.cassandra.hosts and policy.cache.cassandra.keyspace are required when policy.cache.type is cassandra"))
		}
	case "aerospike":
		if len(cfg.Aerospike.Hosts) == 0 || cfg.Aerospike.Namespace == "" {
			errs = append(errs, errors.New("policy.cache.aerospike.hosts and policy.cache.aerospike.namespace are required when policy.cache.type is aerospike"))
		}
	default:
		errs = append(errs, fmt.Errorf(`policy.cache.type must be "none", "memory", "redis", "memcache", "cassandra" or "aerospike". Got %s`, cfg.Type))
	}
	if cfg.TTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("policy.cache.ttl_seconds must not be negative. Got %d", cfg.TTLSeconds))
	}
	switch cfg.Compression {
	case "none", "snappy":
	default:
		errs = append(errs, fmt.Errorf(`policy.cache.compression must be "none" or "snappy". Got %s`, cfg.Compression))
	}
	return errs
}

type RedisCacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemcacheConfig struct {
	Hosts []string `mapstructure:"hosts"`
}

type CassandraCacheConfig struct {
	Hosts    []string `mapstructure:"hosts"`
	Keyspace string   `mapstructure:"keyspace"`
}

type AerospikeCacheConfig struct {
	Hosts     []string `mapstructure:"hosts"`
	Namespace string   `mapstructure:"namespace"`
}

type CacheEventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type HTTPEventsConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	RefreshRate int64  `mapstructure:"refresh_rate_seconds"`
	Timeout     int64  `mapstructure:"timeout_ms"`
}

func (cfg *HTTPEventsConfig) validate(errs []error) []error {
	if cfg.Endpoint == "" {
		return errs
	}
	if !validator.IsURL(cfg.Endpoint) {
		errs = append(errs, fmt.Errorf("invalid policy.http_events.endpoint: %s", cfg.Endpoint))
	}
	if cfg.RefreshRate <= 0 {
		errs = append(errs, errors.New("policy.http_events.refresh_rate_seconds must be positive"))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, errors.New("policy.http_events.timeout_ms must be positive"))
	}
	return errs
}

func (cfg *HTTPEventsConfig) TimeoutDuration() time.Duration {
	return time.Duration(cfg.Timeout) * time.Millisecond
}

func (cfg *HTTPEventsConfig) RefreshRateDuration() time.Duration {
	return time.Duration(cfg.RefreshRate) * time.Second
}
