package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// deleteBatchSize is how many deletes are buffered before a flush.
const deleteBatchSize = 500

// batchDeleter buffers key deletions in a badger WriteBatch, flushing every
// limit keys. Deletes bypass the unique index bookkeeping of Delete, so
// callers must hand it index keys too.
type batchDeleter struct {
	db      *badger.DB
	logger  *slog.Logger
	batch   *badger.WriteBatch
	limit   int
	pending int
	total   int
}

func (s *Store) newBatchDeleter(limit int) *batchDeleter {
	return &batchDeleter{db: s.db, logger: s.logger, batch: s.db.NewWriteBatch(), limit: limit}
}

func (b *batchDeleter) delete(key []byte) error {
	if err := b.batch.Delete(key); err != nil {
		return fmt.Errorf("batch delete: %w", err)
	}
	b.pending++
	if b.pending >= b.limit {
		return b.flush()
	}
	return nil
}

func (b *batchDeleter) flush() error {
	if b.pending == 0 {
		return nil
	}
	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	b.total += b.pending
	b.pending = 0
	b.batch = b.db.NewWriteBatch()
	return nil
}

// cancel discards unflushed deletes. Safe after flush.
func (b *batchDeleter) cancel() {
	b.batch.Cancel()
	if b.logger != nil && b.total > 0 {
		b.logger.LogAttrs(context.Background(), slog.LevelDebug, "batch delete",
			slog.Int("keys", b.total),
		)
	}
}

// DeleteMany removes the entities that exist among ids together with their
// index keys, using a write batch. Missing ids are skipped, so a repeated
// call is a no-op. Returns the number of entities that were present.
func (e *Entity[T]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	type doomed struct {
		id     string
		entity *T
	}
	var found []doomed

	err := e.store.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			entity, err := e.read(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found = append(found, doomed{id: id, entity: entity})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(found) == 0 {
		return 0, nil
	}

	bw := e.store.newBatchDeleter(deleteBatchSize)
	defer bw.cancel()

	for _, d := range found {
		for _, k := range append(e.indexEntries(d.entity), e.key(d.id)) {
			if err := bw.delete(k); err != nil {
				return 0, err
			}
		}
	}
	if err := bw.flush(); err != nil {
		return 0, err
	}

	return len(found), nil
}
