package search

import (
	"context"
	"iter"
	"log/slog"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// IndexBeacon adds or refreshes one beacon. Beacons whose location does not
// parse are removed from the index instead.
func (s *SearchIndex) IndexBeacon(b *domain.Beacon) error {
	doc, err := NewBeaconDocument(b)
	if err != nil {
		s.logger.Warn("beacon location not indexable", "beacon_id", b.ID, "error", err)
		return s.DeleteDocuments([]string{b.ID})
	}
	return s.IndexDocument(doc)
}

// RemoveBeacons drops beacons from the index.
func (s *SearchIndex) RemoveBeacons(ids ...string) error {
	return s.DeleteDocuments(ids)
}

// Reindex rebuilds the index from the given beacons. Used at startup when the
// index was recreated or its document count drifted from the store.
func (s *SearchIndex) Reindex(ctx context.Context, beacons iter.Seq2[*domain.Beacon, error]) (int, error) {
	if err := s.Rebuild(); err != nil {
		return 0, err
	}

	var docs []*BeaconDocument
	for b, err := range beacons {
		if err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		doc, err := NewBeaconDocument(b)
		if err != nil {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "skipping beacon during reindex",
				slog.String("beacon_id", b.ID), slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}

	if err := s.IndexDocuments(docs); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.recreated = false
	s.mu.Unlock()
	s.logger.Info("search index rebuilt", "beacons", len(docs))
	return len(docs), nil
}
