package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storefront StorefrontConfig
	Cache      CacheConfig
	Sync       SyncConfig
	Preload    PreloadConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name            string
	Env             string
	ShutdownTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings for the snapshot mirror
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// StorefrontConfig holds the remote commerce API settings
type StorefrontConfig struct {
	ShopDomain             string
	AccessToken            string
	APIVersion             string
	APIBaseURL             string // overrides the URL derived from ShopDomain
	TimeoutSeconds         int
	PageSize               int
	PageDelay              time.Duration
	BreakerFailures        uint32
	BreakerCooldownSeconds int
}

// CacheConfig holds expiring cache settings
type CacheConfig struct {
	DefaultTTL       time.Duration
	SweepInterval    time.Duration
	OrdersTTL        time.Duration
	CustomersTTL     time.Duration
	ProductsTTL      time.Duration
	DiscountCodesTTL time.Duration
}

// SyncConfig holds reconciliation settings
type SyncConfig struct {
	Enabled             bool
	Interval            time.Duration
	RunOnStart          bool
	DailyLookbackDays   int
	ProductLookbackDays int
	CouponLookbackDays  int
}

// PreloadConfig holds dashboard preloader settings
type PreloadConfig struct {
	Enabled         bool
	RefreshInterval time.Duration
	TopN            int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable OpenTelemetry
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string  // Service name for traces and metrics
	Insecure              bool    // Use insecure (non-TLS) connection (development only)
	MetricsExportInterval time.Duration

	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STOREPULSE_ prefix (e.g., STOREPULSE_STOREFRONT_ACCESS_TOKEN)
// 2. config.toml, searched in paths, then ".", then /etc/storepulse
// 3. Built-in defaults
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/storepulse")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STOREPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Feature switches that default to on
	v.SetDefault("sync.enabled", true)
	v.SetDefault("preload.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name:            v.GetString("app.name"),
			Env:             v.GetString("app.env"),
			ShutdownTimeout: v.GetDuration("app.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Storefront: StorefrontConfig{
			ShopDomain:             v.GetString("storefront.shop_domain"),
			AccessToken:            v.GetString("storefront.access_token"),
			APIVersion:             v.GetString("storefront.api_version"),
			APIBaseURL:             v.GetString("storefront.api_base_url"),
			TimeoutSeconds:         v.GetInt("storefront.timeout_seconds"),
			PageSize:               v.GetInt("storefront.page_size"),
			PageDelay:              v.GetDuration("storefront.page_delay"),
			BreakerFailures:        v.GetUint32("storefront.breaker_failures"),
			BreakerCooldownSeconds: v.GetInt("storefront.breaker_cooldown_seconds"),
		},
		Cache: CacheConfig{
			DefaultTTL:       v.GetDuration("cache.default_ttl"),
			SweepInterval:    v.GetDuration("cache.sweep_interval"),
			OrdersTTL:        v.GetDuration("cache.orders_ttl"),
			CustomersTTL:     v.GetDuration("cache.customers_ttl"),
			ProductsTTL:      v.GetDuration("cache.products_ttl"),
			DiscountCodesTTL: v.GetDuration("cache.discount_codes_ttl"),
		},
		Sync: SyncConfig{
			Enabled:             v.GetBool("sync.enabled"),
			Interval:            v.GetDuration("sync.interval"),
			RunOnStart:          v.GetBool("sync.run_on_start"),
			DailyLookbackDays:   v.GetInt("sync.daily_lookback_days"),
			ProductLookbackDays: v.GetInt("sync.product_lookback_days"),
			CouponLookbackDays:  v.GetInt("sync.coupon_lookback_days"),
		},
		Preload: PreloadConfig{
			Enabled:         v.GetBool("preload.enabled"),
			RefreshInterval: v.GetDuration("preload.refresh_interval"),
			TopN:            v.GetInt("preload.top_n"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storepulse"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.ShutdownTimeout == 0 {
		cfg.App.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storepulse"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "storepulse:snapshot:"
	}

	if cfg.Storefront.APIVersion == "" {
		cfg.Storefront.APIVersion = "2024-01"
	}
	if cfg.Storefront.TimeoutSeconds == 0 {
		cfg.Storefront.TimeoutSeconds = 30
	}
	if cfg.Storefront.PageSize == 0 {
		cfg.Storefront.PageSize = 250
	}
	if cfg.Storefront.PageDelay == 0 {
		cfg.Storefront.PageDelay = 250 * time.Millisecond
	}
	if cfg.Storefront.BreakerFailures == 0 {
		cfg.Storefront.BreakerFailures = 5
	}
	if cfg.Storefront.BreakerCooldownSeconds == 0 {
		cfg.Storefront.BreakerCooldownSeconds = 60
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = 60 * time.Second
	}
	if cfg.Cache.OrdersTTL == 0 {
		cfg.Cache.OrdersTTL = 5 * time.Minute
	}
	if cfg.Cache.CustomersTTL == 0 {
		cfg.Cache.CustomersTTL = 5 * time.Minute
	}
	if cfg.Cache.ProductsTTL == 0 {
		cfg.Cache.ProductsTTL = 10 * time.Minute
	}
	if cfg.Cache.DiscountCodesTTL == 0 {
		cfg.Cache.DiscountCodesTTL = 30 * time.Minute
	}

	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = time.Hour
	}
	if cfg.Sync.DailyLookbackDays == 0 {
		cfg.Sync.DailyLookbackDays = 90
	}
	if cfg.Sync.ProductLookbackDays == 0 {
		cfg.Sync.ProductLookbackDays = 30
	}
	if cfg.Sync.CouponLookbackDays == 0 {
		cfg.Sync.CouponLookbackDays = 90
	}

	if cfg.Preload.RefreshInterval == 0 {
		cfg.Preload.RefreshInterval = 10 * time.Minute
	}
	if cfg.Preload.TopN == 0 {
		cfg.Preload.TopN = 10
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Storefront.PageSize < 0 || c.Storefront.PageSize > 250 {
		return fmt.Errorf("storefront.page_size must be between 1 and 250, got %d", c.Storefront.PageSize)
	}
	if c.Storefront.PageDelay < 0 {
		return fmt.Errorf("storefront.page_delay cannot be negative")
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.DailyLookbackDays < 0 || c.Sync.ProductLookbackDays < 0 || c.Sync.CouponLookbackDays < 0 {
		return fmt.Errorf("sync lookback days must be positive")
	}
	if c.Preload.RefreshInterval < 0 {
		return fmt.Errorf("preload.refresh_interval must be positive")
	}
	if c.Preload.TopN < 0 {
		return fmt.Errorf("preload.top_n must be positive")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
