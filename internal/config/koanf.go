package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks the environment variables read as configuration.
const EnvPrefix = "BEACON_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/beacon/config.yaml",
}

// sliceConfigPaths are parsed from comma separated strings when set by env.
var sliceConfigPaths = []string{
	"server.allowed_origins",
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Environment: "development",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Auth: AuthConfig{
			Issuer:   "paseto",
			TokenTTL: 7 * 24 * time.Hour,
			ResetTTL: 15 * time.Minute,
		},
		Broker: BrokerConfig{
			Driver:        "memory",
			Host:          "127.0.0.1",
			Port:          4222,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Feed: FeedConfig{
			Subject:      "beacon.events",
			QueueSize:    1024,
			ClientBuffer: 64,
			Heartbeat:    30 * time.Second,
		},
		Sweeper: SweeperConfig{
			Enabled:   true,
			Time:      "01:00",
			Retention: 30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			AuthRequests:     20,
			AuthInterval:     time.Minute,
			AuthBurst:        10,
			LocationRequests: 120,
			LocationInterval: time.Minute,
			LocationBurst:    20,
		},
		Mail: MailConfig{
			Driver:   "log",
			Port:     587,
			FromName: "Beacon",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration in layers:
//  1. Defaults
//  2. YAML file at path, $CONFIG_PATH, or the first of DefaultConfigPaths found
//  3. BEACON_* environment variables, e.g. BEACON_SERVER_PORT sets server.port
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envToKey maps BEACON_SECTION_FIELD_NAME to section.field_name.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + field
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// processSliceFields splits comma separated env values for slice fields.
// Values that are already lists, as from YAML, are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		var parts []string
		for p := range strings.SplitSeq(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
