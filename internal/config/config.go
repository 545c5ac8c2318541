// Package config loads the server configuration from defaults, an optional
// YAML file, and BEACON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Logger    LoggerConfig    `koanf:"logger"`
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Auth      AuthConfig      `koanf:"auth"`
	Broker    BrokerConfig    `koanf:"broker"`
	Feed      FeedConfig      `koanf:"feed"`
	Sweeper   SweeperConfig   `koanf:"sweeper"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Mail      MailConfig      `koanf:"mail"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `koanf:"environment"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"` // json or pretty; empty picks by environment
	AddSource bool   `koanf:"add_source"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"` // zero: feeds are long-lived
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StoreConfig locates persistent data.
type StoreConfig struct {
	DataPath string `koanf:"data_path"`
}

// DBPath is the badger directory.
func (s StoreConfig) DBPath() string { return filepath.Join(s.DataPath, "db") }

// IndexPath is the search index directory.
func (s StoreConfig) IndexPath() string { return filepath.Join(s.DataPath, "search") }

// KeyPath is where generated signing keys live.
func (s StoreConfig) KeyPath() string { return s.DataPath }

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Issuer is "paseto" or "jwt".
	Issuer string `koanf:"issuer"`
	// PasetoKey is a hex v4.local key. Empty loads or generates one under the data path.
	PasetoKey string        `koanf:"paseto_key"`
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	ResetTTL  time.Duration `koanf:"reset_ttl"`
}

// BrokerConfig selects the pub/sub bus shared by instances.
type BrokerConfig struct {
	Driver        string        `koanf:"driver"` // memory, nats or embedded
	URL           string        `koanf:"url"`
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// FeedConfig tunes event fan-out.
type FeedConfig struct {
	Subject      string        `koanf:"subject"`
	QueueSize    int           `koanf:"queue_size"`
	ClientBuffer int           `koanf:"client_buffer"`
	Heartbeat    time.Duration `koanf:"heartbeat"`
}

// SweeperConfig schedules the expiry sweep.
type SweeperConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Time         string        `koanf:"time"` // HH:MM local time
	Retention    time.Duration `koanf:"retention"`
	RunAtStartup bool          `koanf:"run_at_startup"`
}

// RateLimitConfig bounds request rates. Zero requests disables a limiter.
type RateLimitConfig struct {
	AuthRequests     int           `koanf:"auth_requests"`
	AuthInterval     time.Duration `koanf:"auth_interval"`
	AuthBurst        int           `koanf:"auth_burst"`
	LocationRequests int           `koanf:"location_requests"`
	LocationInterval time.Duration `koanf:"location_interval"`
	LocationBurst    int           `koanf:"location_burst"`
}

// MailConfig selects how password reset mail is sent.
type MailConfig struct {
	Driver   string        `koanf:"driver"` // log or smtp
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	User     string        `koanf:"user"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	FromName string        `koanf:"from_name"`
	UseTLS   bool          `koanf:"use_tls"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	var errs []error

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		errs = append(errs, fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment))
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level))
	}
	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %q (must be json or pretty)", c.Logger.Format))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Store.DataPath == "" {
		errs = append(errs, errors.New("data path cannot be empty after expansion"))
	}

	switch c.Auth.Issuer {
	case "paseto":
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("jwt issuer needs a secret of at least 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid token issuer: %q (must be paseto or jwt)", c.Auth.Issuer))
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("token and reset lifetimes must be positive"))
	}

	switch c.Broker.Driver {
	case "memory", "embedded":
	case "nats":
		if c.Broker.URL == "" {
			errs = append(errs, errors.New("nats broker needs a url"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid broker driver: %q (must be memory, nats, or embedded)", c.Broker.Driver))
	}
	if c.Feed.QueueSize <= 0 || c.Feed.ClientBuffer <= 0 {
		errs = append(errs, errors.New("feed queue and client buffer sizes must be positive"))
	}

	if c.Sweeper.Enabled {
		if _, err := time.Parse("15:04", c.Sweeper.Time); err != nil {
			errs = append(errs, fmt.Errorf("invalid sweeper time %q, expected HH:MM", c.Sweeper.Time))
		}
		if c.Sweeper.Retention <= 0 {
			errs = append(errs, errors.New("sweeper retention must be positive"))
		}
	}

	if c.RateLimit.AuthRequests > 0 && c.RateLimit.AuthInterval <= 0 {
		errs = append(errs, errors.New("auth rate limit needs a positive interval"))
	}
	if c.RateLimit.LocationRequests > 0 && c.RateLimit.LocationInterval <= 0 {
		errs = append(errs, errors.New("location rate limit needs a positive interval"))
	}

	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("smtp mail needs a host and a from address"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid mail driver: %q (must be log or smtp)", c.Mail.Driver))
	}

	return errors.Join(errs...)
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute, defaulting to ~/Beacon/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Beacon", "data")

	expanded, err := expandPath(c.Store.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}
