package config

import (
	"fmt"
	"strings"

	validator "github.com/asaskevich/govalidator"
	"github.com/spf13/viper"

	"github.com/bidscreen/bidscreen-server/errortypes"
)

// Configuration is the resolved server config, assembled by viper from
// defaults, an optional yaml file, and BSS_* environment overrides.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	EnableGzip  bool   `mapstructure:"enable_gzip"`
	// StatusResponse is the string which will be returned by the /status endpoint when things are OK.
	// If empty, it will return a 204 with no content.
	StatusResponse string `mapstructure:"status_response"`
	// AccountRequired rejects requests which don't come with a known account id.
	AccountRequired bool       `mapstructure:"account_required"`
	RateLimit       RateLimit  `mapstructure:"rate_limit"`
	Client          HTTPClient `mapstructure:"http_client"`
	Metrics         Metrics    `mapstructure:"metrics"`
	Metadata        Metadata   `mapstructure:"metadata"`
	Policy          Policy     `mapstructure:"policy"`
	Analytics       Analytics  `mapstructure:"analytics"`
	GDPR            GDPR       `mapstructure:"gdpr"`
}

// validate returns all the errors found in this config. A non-empty return
// means the config is unusable.
func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.Port <= 0 || cfg.Port > 0xffff {
		errs = append(errs, fmt.Errorf("port must be in the range (0, %d]. Got %d", 0xffff, cfg.Port))
	}
	if cfg.AdminPort <= 0 || cfg.AdminPort > 0xffff {
		errs = append(errs, fmt.Errorf("admin_port must be in the range (0, %d]. Got %d", 0xffff, cfg.AdminPort))
	}
	if cfg.ExternalURL != "" && !validator.IsURL(cfg.ExternalURL) {
		errs = append(errs, fmt.Errorf("invalid external_url: %s", cfg.ExternalURL))
	}
	errs = cfg.RateLimit.validate(errs)
	errs = cfg.Metrics.validate(errs)
	errs = cfg.Metadata.validate(errs)
	errs = cfg.Policy.validate(errs)
	errs = cfg.GDPR.validate(errs)
	return errs
}

// RateLimit configures the tollbooth limiter in front of the screening endpoints.
type RateLimit struct {
	Enabled              bool  `mapstructure:"enabled"`
	MaxRequestsPerSecond int64 `mapstructure:"num_requests"`
}

func (cfg *RateLimit) validate(errs []error) []error {
	if cfg.Enabled && cfg.MaxRequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.num_requests must be positive when rate limiting is enabled. Got %d", cfg.MaxRequestsPerSecond))
	}
	return errs
}

// HTTPClient configures the http.Client shared by the policy and metadata fetchers.
type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

func (cfg *Metrics) validate(errs []error) []error {
	if cfg.Prometheus.Port < 0 || cfg.Prometheus.Port > 0xffff {
		errs = append(errs, fmt.Errorf("metrics.prometheus.port must be in the range [0, %d]. Got %d", 0xffff, cfg.Prometheus.Port))
	}
	return errs
}

// InfluxMetrics points the go-metrics registry reporter at an influx instance.
// An empty Host disables the reporter.
type InfluxMetrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PrometheusMetrics configures the standalone prometheus scrape server.
// Port 0 disables it.
type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// Metadata configures the exchange dictionaries (vendors, categories,
// creative attributes, sellers) which policies are interpreted against.
type Metadata struct {
	// Directory of dictionary dump files, loaded once at startup.
	Directory string `mapstructure:"directory"`
	// File is a single yaml bundle, an alternative to Directory for small
	// operator-managed dictionary sets.
	File string `mapstructure:"file"`
	// Endpoint serves a full metadata document for periodic refresh.
	Endpoint           string `mapstructure:"endpoint"`
	RefreshRateSeconds int    `mapstructure:"refresh_rate_seconds"`
	// StaleAfterSeconds marks the snapshot stale if no refresh succeeded for
	// this long. 0 means snapshots never go stale.
	StaleAfterSeconds int `mapstructure:"stale_after_seconds"`
	TimeoutMillis     int `mapstructure:"timeout_ms"`
	// MinSellersVersion rejects sellers.json documents below this version.
	MinSellersVersion string `mapstructure:"min_sellers_version"`
}

func (cfg *Metadata) validate(errs []error) []error {
	if cfg.Endpoint == "" {
		return errs
	}
	if !validator.IsURL(cfg.Endpoint) {
		errs = append(errs, fmt.Errorf("invalid metadata.endpoint: %s", cfg.Endpoint))
	}
	if cfg.RefreshRateSeconds < 0 || cfg.RefreshRateSeconds > 0xffff {
		errs = append(errs, fmt.Errorf("metadata.refresh_rate_seconds must be in the range [0, %d]. Got %d", 0xffff, cfg.RefreshRateSeconds))
	}
	if cfg.TimeoutMillis <= 0 {
		errs = append(errs, fmt.Errorf("metadata.timeout_ms must be positive. Got %d", cfg.TimeoutMillis))
	}
	return errs
}

// Analytics configures the modules which log screening transactions.
type Analytics struct {
	File FileLogs `mapstructure:"file"`
}

// FileLogs settings for the file-based analytics module.
type FileLogs struct {
	Filename string `mapstructure:"filename"`
}

// GDPR configures consent enforcement on the openrtb2 path.
type GDPR struct {
	Enabled bool `mapstructure:"enabled"`
	// DefaultValue is the GDPR applicability assumed when the request doesn't say.
	DefaultValue string `mapstructure:"default_value"`
}

func (cfg *GDPR) validate(errs []error) []error {
	if cfg.DefaultValue != "0" && cfg.DefaultValue != "1" {
		errs = append(errs, fmt.Errorf("gdpr.default_value must be 0 or 1. Got %s", cfg.DefaultValue))
	}
	return errs
}

// New resolves a Configuration from viper and validates it.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}
	return &c, nil
}

// SetupViper should be called before any viper.Get() calls. It tells viper
// where to read the config file from, sets defaults for every option, and
// wires up environment variable overrides.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("account_required", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.num_requests", 100)

	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)

	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")

	v.SetDefault("metadata.directory", "")
	v.SetDefault("metadata.file", "")
	v.SetDefault("metadata.endpoint", "")
	v.SetDefault("metadata.refresh_rate_seconds", 1800)
	v.SetDefault("metadata.stale_after_seconds", 0)
	v.SetDefault("metadata.timeout_ms", 30000)
	v.SetDefault("metadata.min_sellers_version", "")

	v.SetDefault("policy.filesystem.enabled", false)
	v.SetDefault("policy.filesystem.directorypath", "./policies")
	v.SetDefault("policy.database.connection.dbname", "")
	v.SetDefault("policy.database.connection.host", "")
	v.SetDefault("policy.database.connection.port", 0)
	v.SetDefault("policy.database.connection.user", "")
	v.SetDefault("policy.database.connection.password", "")
	v.SetDefault("policy.database.fetcher.query", "")
	v.SetDefault("policy.database.initialize_caches.timeout_ms", 0)
	v.SetDefault("policy.database.initialize_caches.query", "")
	v.SetDefault("policy.database.poll_for_updates.refresh_rate_seconds", 0)
	v.SetDefault("policy.database.poll_for_updates.timeout_ms", 0)
	v.SetDefault("policy.database.poll_for_updates.query", "")
	v.SetDefault("policy.http.endpoint", "")
	v.SetDefault("policy.cache.type", "none")
	v.SetDefault("policy.cache.size_bytes", 0)
	v.SetDefault("policy.cache.ttl_seconds", 0)
	v.SetDefault("policy.cache.compression", "none")
	v.SetDefault("policy.cache.redis.addr", "")
	v.SetDefault("policy.cache.redis.password", "")
	v.SetDefault("policy.cache.redis.db", 0)
	v.SetDefault("policy.cache.memcache.hosts", []string{})
	v.SetDefault("policy.cache.cassandra.hosts", []string{})
	v.SetDefault("policy.cache.cassandra.keyspace", "")
	v.SetDefault("policy.cache.aerospike.hosts", []string{})
	v.SetDefault("policy.cache.aerospike.namespace", "")
	v.SetDefault("policy.cache_events.enabled", false)
	v.SetDefault("policy.cache_events.endpoint", "/policy-cache")
	v.SetDefault("policy.http_events.endpoint", "")
	v.SetDefault("policy.http_events.refresh_rate_seconds", 0)
	v.SetDefault("policy.http_events.timeout_ms", 2000)

	v.SetDefault("analytics.file.filename", "")

	v.SetDefault("gdpr.enabled", true)
	v.SetDefault("gdpr.default_value", "1")

	v.SetEnvPrefix("BSS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.ReadInConfig()
}
