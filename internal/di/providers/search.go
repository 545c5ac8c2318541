package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve geo index of beacons.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Store.IndexPath(),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// ReindexSearchIfNeeded rebuilds the index from the store when it was
// recreated on open, e.g. after a mapping change or a removed index
// directory. Expired beacons are swept, so the store stays small enough to
// reindex before serving.
func ReindexSearchIfNeeded(ctx context.Context, i do.Injector) error {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !indexHandle.Recreated() {
		return nil
	}

	n, err := indexHandle.Reindex(ctx, storeHandle.Beacons.List(ctx))
	if err != nil {
		return fmt.Errorf("reindex beacons: %w", err)
	}
	log.Info("Search index rebuilt from store", "documents", n)
	return nil
}
