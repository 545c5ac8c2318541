package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/sweeper"
)

// ProvideReconciler provides the reference reconciler.
func ProvideReconciler(i do.Injector) (*reconcile.Reconciler, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return reconcile.New(storeHandle.Store, log.Logger), nil
}

// ProvideSweeperJob provides the scheduled expiry sweep. It returns nil when
// the sweeper is disabled.
func ProvideSweeperJob(i do.Injector) (*sweeper.Job, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Sweeper.Enabled {
		log.Info("Expiry sweeper disabled by configuration")
		return nil, nil
	}

	schedule, err := sweeper.ParseSchedule(cfg.Sweeper.Time)
	if err != nil {
		return nil, err
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	reconciler := do.MustInvoke[*reconcile.Reconciler](i)

	sw := sweeper.New(storeHandle.Store, sweeper.Options{
		Retention:  cfg.Sweeper.Retention,
		Index:      indexHandle.SearchIndex,
		Reconciler: reconciler,
		Logger:     log.Component("sweeper").Logger,
	})

	log.Info("Expiry sweeper scheduled",
		"time", cfg.Sweeper.Time,
		"retention", cfg.Sweeper.Retention,
		"run_at_startup", cfg.Sweeper.RunAtStartup,
	)

	return sweeper.NewJob(sw, schedule, cfg.Sweeper.RunAtStartup, log.Component("sweeper").Logger), nil
}
