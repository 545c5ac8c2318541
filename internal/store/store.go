package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// Index names shared with callers that classify index conflicts.
const (
	IndexShortcode = "shortcode"
	IndexEmail     = "email"
)

// Store wraps a Badger database instance.
// Every method touches at most one document atomically; multi-document
// changes are sequenced by the service layer.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	Users     *Entity[domain.User]
	Groups    *Entity[domain.Group]
	Beacons   *Entity[domain.Beacon]
	Landmarks *Entity[domain.Landmark]
}

// Options tunes how the database is opened.
type Options struct {
	// ReadOnly opens the database without taking the write lock.
	ReadOnly bool
}

// New creates a new Store instance at the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	return Open(path, logger, Options{})
}

// Open creates a Store with explicit options.
func Open(path string, logger *slog.Logger, o Options) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // Disable Badger's internal logging
	opts.SyncWrites = true // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = !o.ReadOnly
	opts.ReadOnly = o.ReadOnly

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.initUsers()
	store.initGroups()
	store.initBeacons()
	store.initLandmarks()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path, "read_only", o.ReadOnly)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// Ping reports whether the database is open and readable.
func (s *Store) Ping() error {
	if s.db.IsClosed() {
		return fmt.Errorf("database closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func (s *Store) initUsers() {
	s.Users = NewEntity[domain.User](s, "user:").
		WithIndexTransform(IndexEmail,
			func(u *domain.User) []string {
				return []string{normalizeEmail(u.Email)}
			},
			normalizeEmail, // Transform lookups to be case-insensitive
		)
}

func (s *Store) initGroups() {
	s.Groups = NewEntity[domain.Group](s, "group:").
		WithIndexTransform(IndexShortcode,
			func(g *domain.Group) []string { return []string{g.Shortcode} },
			strings.ToUpper,
		).
		WithIndex("leader", func(g *domain.Group) []string {
			return []string{g.LeaderID + ":" + g.ID}
		})
}

func (s *Store) initBeacons() {
	s.Beacons = NewEntity[domain.Beacon](s, "beacon:").
		WithIndexTransform(IndexShortcode,
			func(b *domain.Beacon) []string { return []string{b.Shortcode} },
			strings.ToUpper,
		).
		WithIndex("expires", func(b *domain.Beacon) []string {
			return []string{sortableTime(b.ExpiresAt) + ":" + b.ID}
		})
}

func (s *Store) initLandmarks() {
	s.Landmarks = NewEntity[domain.Landmark](s, "landmark:").
		WithIndex("beacon", func(l *domain.Landmark) []string {
			return []string{l.BeaconID + ":" + l.ID}
		}).
		WithIndex("creator", func(l *domain.Landmark) []string {
			return []string{l.CreatedBy + ":" + l.ID}
		})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sortableTime renders t with fixed-width nanoseconds so keys sort chronologically.
func sortableTime(t time.Time) string {
	t = t.UTC()
	return t.Format("2006-01-02T15:04:05") + fmt.Sprintf(".%09d", t.Nanosecond()) + "Z"
}
