package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// maxConflictRetries bounds how often a transaction is replayed after badger
// reports a write conflict with a concurrent one.
const maxConflictRetries = 64

const indexSegment = "idx:"

// Entity stores JSON documents of type T under a key prefix, with secondary
// indexes kept in the same transaction as the document.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index maps each key produced by keys to exactly one entity id. An index
// holding several entities per value appends the entity id to its keys
// ("value:id") and is read with ListByIndex.
type Index[T any] struct {
	name string
	keys func(*T) []string
	// normalize is applied to GetByIndex lookups, e.g. case folding.
	normalize func(string) string
}

// NewEntity creates an Entity for documents stored under prefix.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{store: s, prefix: prefix}
}

// WithIndex adds a secondary index.
func (e *Entity[T]) WithIndex(name string, keys func(*T) []string) *Entity[T] {
	return e.WithIndexTransform(name, keys, nil)
}

// WithIndexTransform adds a secondary index whose lookups pass through normalize.
func (e *Entity[T]) WithIndexTransform(name string, keys func(*T) []string, normalize func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keys: keys, normalize: normalize})
	return e
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

func (e *Entity[T]) indexKey(name, value string) []byte {
	return []byte(e.prefix + indexSegment + name + ":" + value)
}

// indexEntries lists every index key entity occupies.
func (e *Entity[T]) indexEntries(entity *T) [][]byte {
	var out [][]byte
	for _, idx := range e.indexes {
		for _, v := range idx.keys(entity) {
			if v != "" {
				out = append(out, e.indexKey(idx.name, v))
			}
		}
	}
	return out
}

// Create stores a new entity. It returns ErrAlreadyExists when id is taken
// and an *IndexConflictError when a unique index value is.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal %s%s: %w", e.prefix, id, err)
	}

	return e.update(ctx, func(txn *badger.Txn) error {
		switch _, err := txn.Get(e.key(id)); {
		case err == nil:
			return ErrAlreadyExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("check %s%s: %w", e.prefix, id, err)
		}
		if err := e.checkIndexes(txn, nil, entity); err != nil {
			return err
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("write %s%s: %w", e.prefix, id, err)
		}
		return e.setIndexes(txn, id, entity)
	})
}

// Get returns ErrNotFound when id does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) (err error) {
		entity, err = e.read(txn, id)
		return err
	})
	return entity, err
}

// GetMany loads the entities that exist among ids, in order, from one
// snapshot. Missing ids are skipped.
func (e *Entity[T]) GetMany(ctx context.Context, ids []string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(ids))
	err := e.store.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			entity, err := e.read(txn, id)
			switch {
			case errors.Is(err, ErrNotFound):
				continue
			case err != nil:
				return err
			}
			out = append(out, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByIndex resolves a unique index value to its entity.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, idx := range e.indexes {
		if idx.name == indexName && idx.normalize != nil {
			value = idx.normalize(value)
			break
		}
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.indexKey(indexName, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entity, err = e.read(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// ListByIndex returns the ids stored under index keys "value:<anything>".
func (e *Entity[T]) ListByIndex(ctx context.Context, indexName, value string) ([]string, error) {
	return e.scanIndex(ctx, e.indexKey(indexName, value+":"), nil)
}

// ListIndexBefore returns the ids whose index value sorts strictly before
// upper. The index must use fixed-width sortable values such as timestamps.
func (e *Entity[T]) ListIndexBefore(ctx context.Context, indexName, upper string) ([]string, error) {
	return e.scanIndex(ctx, e.indexKey(indexName, ""), e.indexKey(indexName, upper))
}

// scanIndex collects the ids under prefix, stopping at the first key >= limit
// when limit is set.
func (e *Entity[T]) scanIndex(ctx context.Context, prefix, limit []byte) ([]string, error) {
	var ids []string
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit != nil && bytes.Compare(it.Item().Key(), limit) >= 0 {
				return nil
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Mutate applies fn to the stored entity and writes the result when fn
// reports a change, all in one transaction. Concurrent mutations of the same
// entity conflict in badger and are replayed, so neither change is lost.
// It returns the entity as stored afterwards.
func (e *Entity[T]) Mutate(ctx context.Context, id string, fn func(*T) (bool, error)) (*T, error) {
	var result *T
	err := e.update(ctx, func(txn *badger.Txn) error {
		raw, err := e.raw(txn, id)
		if err != nil {
			return err
		}
		// Decode twice so fn cannot alias the slices of the old copy,
		// whose index keys still have to be removed.
		old, err := e.decode(id, raw)
		if err != nil {
			return err
		}
		current, err := e.decode(id, raw)
		if err != nil {
			return err
		}

		changed, err := fn(current)
		if err != nil {
			return err
		}
		result = current
		if !changed {
			return nil
		}

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("marshal %s%s: %w", e.prefix, id, err)
		}
		if err := e.deleteIndexes(txn, old); err != nil {
			return err
		}
		if err := e.checkIndexes(txn, old, current); err != nil {
			return err
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("write %s%s: %w", e.prefix, id, err)
		}
		return e.setIndexes(txn, id, current)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes an entity and its index keys. Deleting a missing id is not an error.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.update(ctx, func(txn *badger.Txn) error {
		entity, err := e.read(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.deleteIndexes(txn, entity); err != nil {
			return err
		}
		return txn.Delete(e.key(id))
	})
}

// List iterates over every entity. Iteration stops at the first error, which
// is yielded with a nil entity.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := []byte(e.prefix)
		indexPrefix := []byte(e.prefix + indexSegment)

		_ = e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}
				item := it.Item()
				if bytes.HasPrefix(item.Key(), indexPrefix) {
					continue
				}

				var entity T
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entity) }); err != nil {
					err = fmt.Errorf("decode %s: %w", item.Key(), err)
					yield(nil, err)
					return err
				}
				if !yield(&entity, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

func (e *Entity[T]) raw(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s%s: %w", e.prefix, id, err)
	}
	return item.ValueCopy(nil)
}

func (e *Entity[T]) decode(id string, raw []byte) (*T, error) {
	var entity T
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, fmt.Errorf("decode %s%s: %w", e.prefix, id, err)
	}
	return &entity, nil
}

// read loads one entity inside an open transaction.
func (e *Entity[T]) read(txn *badger.Txn, id string) (*T, error) {
	raw, err := e.raw(txn, id)
	if err != nil {
		return nil, err
	}
	return e.decode(id, raw)
}

// checkIndexes rejects index keys of next that another entity holds.
// Keys prev already owns are allowed.
func (e *Entity[T]) checkIndexes(txn *badger.Txn, prev, next *T) error {
	for _, idx := range e.indexes {
		owned := make(map[string]bool)
		if prev != nil {
			for _, v := range idx.keys(prev) {
				owned[v] = true
			}
		}
		for _, v := range idx.keys(next) {
			if v == "" || owned[v] {
				continue
			}
			_, err := txn.Get(e.indexKey(idx.name, v))
			if err == nil {
				return &IndexConflictError{Index: idx.name, Key: v}
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, k := range e.indexEntries(entity) {
		if err := txn.Set(k, []byte(id)); err != nil {
			return fmt.Errorf("write index key: %w", err)
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, entity *T) error {
	for _, k := range e.indexEntries(entity) {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("delete index key: %w", err)
		}
	}
	return nil
}

// update runs fn in a read-write transaction, replaying it on write conflicts.
func (e *Entity[T]) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := e.store.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}
