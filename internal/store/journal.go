package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const sweepJournalKey = "journal:sweep"

// SweepJournal is the set of reference pulls a reclamation run still owes.
// It is written before any document is deleted so that a run abandoned after
// the deletes can be finished by the next run.
type SweepJournal struct {
	BeaconIDs []string            `json:"beacon_ids"`
	Groups    map[string][]string `json:"groups"`
	Users     map[string][]string `json:"users"`
}

// SaveSweepJournal records the pending pulls, replacing any previous journal.
func (s *Store) SaveSweepJournal(ctx context.Context, j *SweepJournal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal sweep journal: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sweepJournalKey), data)
	})
}

// LoadSweepJournal returns the pending journal, or nil when there is none.
func (s *Store) LoadSweepJournal(ctx context.Context) (*SweepJournal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var j *SweepJournal
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sweepJournalKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			j = &SweepJournal{}
			return json.Unmarshal(val, j)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load sweep journal: %w", err)
	}
	return j, nil
}

// ClearSweepJournal removes the journal once every pull has landed.
func (s *Store) ClearSweepJournal(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sweepJournalKey))
	})
}
