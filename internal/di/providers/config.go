// Package providers contains dependency injection providers for the Beacon server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
)

// ConfigFrom provides the configuration loaded from path. An empty path
// falls back to $CONFIG_PATH and the default locations.
func ConfigFrom(path string) func(do.Injector) (*config.Config, error) {
	return func(do.Injector) (*config.Config, error) {
		return config.Load(path)
	}
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.Logger.AddSource || cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Beacon Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Store.DataPath,
		"broker", cfg.Broker.Driver,
	)

	return log, nil
}
