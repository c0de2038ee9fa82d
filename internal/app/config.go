package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the civicalert control plane.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	HAL         HALConfig         `mapstructure:"hal"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Lifecycle   LifecycleConfig   `mapstructure:"lifecycle"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	BaseURL         string        `mapstructure:"base_url"`
	ExposeErrors    bool          `mapstructure:"expose_errors"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects the quota counter backend.
type CacheConfig struct {
	// Backend is "redis", "database" or "memory". Redis falls back to the database when
	// it cannot be reached at startup.
	Backend string           `mapstructure:"backend"`
	Redis   RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures verification of access tokens issued by the identity provider.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// HALConfig controls link and pagination rendering.
type HALConfig struct {
	ProblemBaseURL  string `mapstructure:"problem_base_url"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
}

// QuotaConfig configures the fixed-window quota enforcer.
type QuotaConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	Limit       int64           `mapstructure:"limit"`
	Window      time.Duration   `mapstructure:"window"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	LogInterval time.Duration   `mapstructure:"log_interval"`
	Endpoints   []EndpointQuota `mapstructure:"endpoints"`
}

// EndpointQuota overrides the default policy for one route, named "METHOD /route/:param".
type EndpointQuota struct {
	Endpoint string        `mapstructure:"endpoint"`
	Limit    int64         `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`
}

// LifecycleConfig controls automatic expiry of unreviewed notifications.
type LifecycleConfig struct {
	ExpireAfter    time.Duration `mapstructure:"expire_after"`
	ExpirySchedule string        `mapstructure:"expiry_schedule"`
}

// MaintenanceConfig schedules housekeeping jobs.
type MaintenanceConfig struct {
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	CounterSchedule    string `mapstructure:"counter_schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CIVICALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports configuration that would prevent the server from starting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	c.Auth.JWT.Secret = strings.TrimSpace(c.Auth.JWT.Secret)
	if c.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	base, err := url.Parse(strings.TrimSpace(c.Server.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL (current: %q)", c.Server.BaseURL)
	}

	if c.Quota.Enabled {
		if c.Quota.Limit <= 0 {
			return errors.New("quota.limit must be positive")
		}
		if c.Quota.Window < time.Second {
			return errors.New("quota.window must be at least 1s")
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "redis", "database", "memory":
	default:
		return fmt.Errorf("cache.backend must be one of redis, database, memory (current: %q)", c.Cache.Backend)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.expose_errors", false)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/civicalert.sqlite")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.backend", "database")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "2s")

	v.SetDefault("auth.jwt.issuer", "civicalert")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("hal.default_page_size", 20)
	v.SetDefault("hal.max_page_size", 100)

	v.SetDefault("quota.enabled", true)
	v.SetDefault("quota.limit", 10)
	v.SetDefault("quota.window", "1m")
	v.SetDefault("quota.timeout", "250ms")
	v.SetDefault("quota.log_interval", "10s")

	v.SetDefault("lifecycle.expire_after", "24h")
	v.SetDefault("lifecycle.expiry_schedule", "@every 5m")

	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.counter_schedule", "@every 10m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
