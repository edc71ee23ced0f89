package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic CRUD operations for any domain type.
// Every operation runs inside the caller's transaction, so several entities
// can be changed in one unit of work.
type Entity[T any] struct {
	prefix  string
	indexes []Index[T]
}

// Index defines a secondary index on an entity.
type Index[T any] struct {
	name   string
	keyGen func(*T) []string
	unique bool
}

// NewEntity creates a new Entity instance for type T stored under prefix.
func NewEntity[T any](prefix string) *Entity[T] {
	return &Entity[T]{
		prefix:  prefix,
		indexes: make([]Index[T], 0),
	}
}

// WithIndex adds a non-unique secondary index. Entries are keyed by value and id
// and carry no payload, so lookups are key-only scans.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

// WithUniqueIndex adds a secondary index whose values may belong to one entity only.
// The entry value is the owning id.
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen, unique: true})
	return e
}

func (e *Entity[T]) indexEntryKey(idx Index[T], value, id string) []byte {
	if idx.unique {
		return buildIndexKey(e.prefix, idx.name, value)
	}
	return buildIndexKey(e.prefix, idx.name, value+":"+id)
}

// Create stores a new entity with the given ID.
// Returns ErrAlreadyExists if the id or a unique index value is taken.
func (e *Entity[T]) Create(ctx context.Context, txn *badger.Txn, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	key := buildKey(e.prefix, id)
	_, err = txn.Get(key)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to check existing key: %w", err)
	}

	if err := e.checkUnique(txn, entity, nil); err != nil {
		return err
	}

	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return e.setIndexes(txn, id, entity)
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, txn *badger.Txn, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := txn.Get(buildKey(e.prefix, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// IndexIDs returns the ids recorded under value in a non-unique index, in id order.
// A positive limit stops the scan early.
func (e *Entity[T]) IndexIDs(ctx context.Context, txn *badger.Txn, indexName, value string, limit int) ([]string, error) {
	prefix := buildIndexKey(e.prefix, indexName, value+":")

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// Update replaces an existing entity and moves its index entries.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Update(ctx context.Context, txn *badger.Txn, id string, entity *T) error {
	old, err := e.Get(ctx, txn, id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	if err := e.checkUnique(txn, entity, old); err != nil {
		return err
	}
	if err := e.deleteIndexes(txn, id, old); err != nil {
		return err
	}

	if err := txn.Set(buildKey(e.prefix, id), data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return e.setIndexes(txn, id, entity)
}

// Delete removes an entity and its index entries.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, txn *badger.Txn, id string) error {
	entity, err := e.Get(ctx, txn, id)
	if err != nil {
		return err
	}

	if err := e.deleteIndexes(txn, id, entity); err != nil {
		return err
	}
	if err := txn.Delete(buildKey(e.prefix, id)); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// List returns an iterator over all entities in key order.
// The iterator must be drained or abandoned before the transaction is used again.
func (e *Entity[T]) List(ctx context.Context, txn *badger.Txn) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := []byte(e.prefix)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			// Check context cancellation
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			item := it.Item()
			if isIndexKey(e.prefix, item.Key()) {
				continue
			}

			var entity T
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			})
			if err != nil {
				yield(nil, fmt.Errorf("failed to unmarshal entity: %w", err))
				return
			}

			if !yield(&entity, nil) {
				return // Consumer stopped early
			}
		}
	}
}

// checkUnique fails with ErrAlreadyExists when entity would take a unique index
// value owned by another entity. Values already held by old are skipped.
func (e *Entity[T]) checkUnique(txn *badger.Txn, entity, old *T) error {
	for _, idx := range e.indexes {
		if !idx.unique {
			continue
		}

		held := make(map[string]bool)
		if old != nil {
			for _, k := range idx.keyGen(old) {
				held[k] = true
			}
		}

		for _, value := range idx.keyGen(entity) {
			if held[value] {
				continue
			}
			_, err := txn.Get(buildIndexKey(e.prefix, idx.name, value))
			if err == nil {
				return fmt.Errorf("index %s conflict on key %s: %w", idx.name, value, ErrAlreadyExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		var val []byte
		if idx.unique {
			val = []byte(id)
		}
		for _, value := range idx.keyGen(entity) {
			if err := txn.Set(e.indexEntryKey(idx, value, id), val); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Delete(e.indexEntryKey(idx, value, id)); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	return nil
}
