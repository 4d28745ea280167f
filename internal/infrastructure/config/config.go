package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all gateway configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Session   SessionConfig
	Dispatch  DispatchConfig
	Directory DirectoryConfig
	Engine    EngineConfig
	Admin     AdminConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
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
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// SessionConfig holds session manager settings
type SessionConfig struct {
	IdleTimeout   time.Duration
	EvictInterval time.Duration
}

// DispatchConfig holds gateway dispatcher settings
type DispatchConfig struct {
	DedupTTL           time.Duration
	EngineTimeout      time.Duration
	EngineRetries      int
	EngineRetryBackoff time.Duration
	DeniedMessage      string
	UnavailableMessage string
}

// DirectoryConfig holds directory cache settings
type DirectoryConfig struct {
	RefreshInterval time.Duration
}

// EngineConfig holds conversation engine settings
type EngineConfig struct {
	Provider    string // openai, static
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// AdminConfig holds admin API authentication settings
type AdminConfig struct {
	JWTSecret string
	Issuer    string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CONCIERGE_ prefix (e.g. CONCIERGE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine; defaults and env vars apply.
	}

	v.SetEnvPrefix("CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
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
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Session: SessionConfig{
			IdleTimeout:   v.GetDuration("session.idle_timeout"),
			EvictInterval: v.GetDuration("session.evict_interval"),
		},
		Dispatch: DispatchConfig{
			DedupTTL:           v.GetDuration("dispatch.dedup_ttl"),
			EngineTimeout:      v.GetDuration("dispatch.engine_timeout"),
			EngineRetries:      v.GetInt("dispatch.engine_retries"),
			EngineRetryBackoff: v.GetDuration("dispatch.engine_retry_backoff"),
			DeniedMessage:      v.GetString("dispatch.denied_message"),
			UnavailableMessage: v.GetString("dispatch.unavailable_message"),
		},
		Directory: DirectoryConfig{
			RefreshInterval: v.GetDuration("directory.refresh_interval"),
		},
		Engine: EngineConfig{
			Provider:    v.GetString("engine.provider"),
			APIKey:      v.GetString("engine.api_key"),
			BaseURL:     v.GetString("engine.base_url"),
			Model:       v.GetString("engine.model"),
			MaxTokens:   v.GetInt("engine.max_tokens"),
			Temperature: v.GetFloat64("engine.temperature"),
		},
		Admin: AdminConfig{
			JWTSecret: v.GetString("admin.jwt_secret"),
			Issuer:    v.GetString("admin.issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "concierge-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "concierge")
	v.SetDefault("database.dbname", "concierge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("session.idle_timeout", 10*time.Minute)
	v.SetDefault("session.evict_interval", time.Minute)

	v.SetDefault("dispatch.dedup_ttl", 24*time.Hour)
	v.SetDefault("dispatch.engine_timeout", 30*time.Second)
	v.SetDefault("dispatch.engine_retries", 2)
	v.SetDefault("dispatch.engine_retry_backoff", 500*time.Millisecond)
	v.SetDefault("dispatch.denied_message", "This service is temporarily unavailable. Please contact the business directly.")
	v.SetDefault("dispatch.unavailable_message", "We are unable to take your request right now. Please try again shortly.")

	v.SetDefault("directory.refresh_interval", 5*time.Minute)

	v.SetDefault("engine.provider", "openai")
	v.SetDefault("engine.model", "gpt-4o-mini")
	v.SetDefault("engine.max_tokens", 512)
	v.SetDefault("engine.temperature", 0.3)

	v.SetDefault("admin.issuer", "concierge-gateway")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "concierge-gateway")
	v.SetDefault("telemetry.export_interval", 60*time.Second)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures
func (c *Config) Validate() error {
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session.idle_timeout must be positive")
	}
	if c.Dispatch.DedupTTL < c.Session.IdleTimeout {
		return fmt.Errorf("dispatch.dedup_ttl must cover at least session.idle_timeout")
	}
	if c.App.Env == "production" && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required in production")
	}
	return nil
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
