package search

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// mappingVersion changes whenever buildIndexMapping does. An index written
// under another version is dropped and recreated on open.
const mappingVersion = "geo-1"

// batchSize bounds documents per bleve batch during reindexing.
const batchSize = 500

// SearchIndex is a Bleve index of beacon locations. All methods are safe for
// concurrent use; Rebuild excludes every other operation while it runs.
type SearchIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string // empty for in-memory indexes
	recreated bool
	logger    *slog.Logger
}

// Options configures the search index.
type Options struct {
	// DataPath is the directory holding the index. Empty keeps the index in memory.
	DataPath string
	Logger   *slog.Logger
}

// NewSearchIndex opens the index under opts.DataPath, recreating it when it
// is missing, unreadable or written under an older mapping.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &SearchIndex{index: index, recreated: true, logger: logger}, nil
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	s := &SearchIndex{
		path:   filepath.Join(opts.DataPath, "beacons.bleve"),
		logger: logger,
	}
	versionPath := filepath.Join(opts.DataPath, "beacons.version")

	if reason := s.staleReason(versionPath); reason != "" {
		logger.Info("recreating search index", "reason", reason, "mapping_version", mappingVersion)
		if err := s.create(); err != nil {
			return nil, err
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", "error", err)
		}
		return s, nil
	}

	logger.Info("opened search index", "path", s.path)
	return s, nil
}

// staleReason opens the existing index and returns why it cannot be used,
// or "" once s.index is open.
func (s *SearchIndex) staleReason(versionPath string) string {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return "missing"
	}
	version, err := os.ReadFile(versionPath)
	if err != nil {
		return "no version file"
	}
	if string(version) != mappingVersion {
		return "mapping changed from " + string(version)
	}
	index, err := bleve.Open(s.path)
	if err != nil {
		s.logger.Warn("failed to open search index", "path", s.path, "error", err)
		return "unreadable"
	}
	s.index = index
	return ""
}

// create replaces whatever is on disk with an empty index. Callers hold mu
// or own s exclusively.
func (s *SearchIndex) create() error {
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove old index: %w", err)
	}
	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index
	s.recreated = true
	return nil
}

// Recreated reports whether the index started empty, so the caller should
// reindex from the store.
func (s *SearchIndex) Recreated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recreated
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDocument adds or replaces one document.
func (s *SearchIndex) IndexDocument(doc *BeaconDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexDocuments indexes docs in batches of batchSize.
func (s *SearchIndex) IndexDocuments(docs []*BeaconDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for chunk := range slices.Chunk(docs, batchSize) {
		batch := s.index.NewBatch()
		for _, doc := range chunk {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	return nil
}

// DeleteDocuments removes documents. Unknown ids are ignored.
func (s *SearchIndex) DeleteDocuments(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// DocumentCount returns the number of indexed beacons.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops every document.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if s.path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return fmt.Errorf("create in-memory index: %w", err)
		}
		s.index = index
		return nil
	}
	if err := s.create(); err != nil {
		return err
	}
	s.logger.Info("rebuilt search index", "path", s.path)
	return nil
}
