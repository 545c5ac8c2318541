package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/store"
)

// StoreHandle closes the badger store when the container shuts down.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the document store under the data path. A sweep journal
// left by an interrupted run is reported here and finished by the next sweep.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).Component("store")

	dbPath := cfg.Store.DBPath()
	db, err := store.Open(dbPath, log.Logger, store.Options{})
	if err != nil {
		return nil, err
	}

	journal, err := db.LoadSweepJournal(context.Background())
	switch {
	case err != nil:
		log.Warn("Could not read sweep journal", "error", err)
	case journal != nil:
		log.Warn("Unfinished sweep found", "beacons", len(journal.BeaconIDs))
	}

	log.Info("Store opened", "path", dbPath)
	return &StoreHandle{Store: db}, nil
}

// ProvideSlogLogger exposes the bare *slog.Logger for packages that take one.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	return do.MustInvoke[*logger.Logger](i).Logger, nil
}
