package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Stord     StordConfig     `mapstructure:"stord"`
	Shipbob   ShipbobConfig   `mapstructure:"shipbob"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// AppUsername/AppPassword are the static service credentials.
	AppUsername string `mapstructure:"app_username"`
	AppPassword string `mapstructure:"app_password"`

	// JWTSecret signs bearer tokens issued by POST /token.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	// AllowedOrigins is the CORS allow-list.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// RateLimit is the per-IP request budget per minute.
	RateLimit int `mapstructure:"rate_limit"`
}

// WarehouseConfig holds BigQuery warehouse configuration.
type WarehouseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Dataset         string `mapstructure:"dataset"`
	Location        string `mapstructure:"location"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// StordConfig holds the Stord partner API configuration.
type StordConfig struct {
	BaseURL    string   `mapstructure:"base_url"`
	APIToken   string   `mapstructure:"api_token"`
	OrgID      string   `mapstructure:"org_id"`
	NetworkID  string   `mapstructure:"network_id"`
	ChannelIDs []string `mapstructure:"channel_ids"`
	Statuses   []string `mapstructure:"statuses"`
}

// ShipbobConfig holds the ShipBob partner API configuration.
type ShipbobConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIToken string `mapstructure:"api_token"`
}

// JobsConfig holds the refresh job journal configuration.
type JobsConfig struct {
	// DSN is the SQLite path for the job journal. Empty disables journaling.
	DSN string `mapstructure:"dsn"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from .env, an optional config file, and the
// environment.
func LoadConfig(configPath string) (*Config, error) {
	// Settings historically live in a .env file; load it into the process
	// environment so viper's env overrides pick it up.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.app_username", "")
	v.SetDefault("auth.app_password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.allowed_origins", []string{})
	v.SetDefault("auth.rate_limit", 100)
	v.SetDefault("warehouse.project_id", "")
	v.SetDefault("warehouse.dataset", "oos_workflow")
	v.SetDefault("warehouse.location", "US")
	v.SetDefault("warehouse.credentials_json", "")
	v.SetDefault("stord.base_url", "https://api.stord.com/v2")
	v.SetDefault("stord.api_token", "")
	v.SetDefault("stord.org_id", "")
	v.SetDefault("stord.network_id", "")
	v.SetDefault("stord.channel_ids", []string{})
	v.SetDefault("stord.statuses", []string{"open", "partially_fulfilled"})
	v.SetDefault("shipbob.base_url", "https://api.shipbob.com/1.0")
	v.SetDefault("shipbob.api_token", "")
	v.SetDefault("jobs.dsn", "./data/oosflow.db")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("OOSFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original deployment's .env used unprefixed names; honor both.
	bindCompat(v, "warehouse.project_id", "GOOGLE_CLOUD_PROJECT")
	bindCompat(v, "warehouse.credentials_json", "GOOGLE_CREDENTIALS_JSON")
	bindCompat(v, "auth.app_username", "APP_USERNAME")
	bindCompat(v, "auth.app_password", "APP_PASSWORD")
	bindCompat(v, "auth.jwt_secret", "JWT_SECRET_KEY")
	bindCompat(v, "stord.api_token", "STORD_API_TOKEN")
	bindCompat(v, "stord.org_id", "STORD_ORG_ID")
	bindCompat(v, "stord.network_id", "STORD_NETWORK_ID")
	bindCompat(v, "shipbob.api_token", "SHIPBOB_API_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindCompat binds a key to both its OOSFLOW_-prefixed name and a legacy
// unprefixed environment variable.
func bindCompat(v *viper.Viper, key, legacy string) {
	prefixed := "OOSFLOW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	_ = v.BindEnv(key, prefixed, legacy)
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
