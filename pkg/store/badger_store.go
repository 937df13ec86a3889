package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/gantryhq/gantry/pkg/log"
)

// Validate that BadgerStore implements the Store interface.
var _ Store = (*BadgerStore)(nil)

// BadgerStore implements Store on top of BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger
}

// NewBadgerStore creates a BadgerDB-backed store.
func NewBadgerStore(logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &BadgerStore{logger: logger.WithComponent("store")}
}

// Open opens the database at path.
func (s *BadgerStore) Open(path string) error {
	s.path = path

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}
	s.db = db

	s.logger.Debug("Store opened", log.Str("path", path))
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create stores a new resource.
func (s *BadgerStore) Create(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	key := MakeKey(resourceType, namespace, name)

	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing resource: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Get loads a resource into the given value.
func (s *BadgerStore) Get(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	key := MakeKey(resourceType, namespace, name)

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, resource)
		})
	})
}

// List loads all resources of a type in a namespace into a slice pointer.
func (s *BadgerStore) List(ctx context.Context, resourceType, namespace string, into interface{}) error {
	prefix := MakePrefix(resourceType, namespace)

	var items []json.RawMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				items = append(items, append(json.RawMessage{}, val...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return unmarshalList(items, into)
}

// Update replaces an existing resource.
func (s *BadgerStore) Update(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	key := MakeKey(resourceType, namespace, name)

	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
		} else if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Delete removes a resource.
func (s *BadgerStore) Delete(ctx context.Context, resourceType, namespace, name string) error {
	key := MakeKey(resourceType, namespace, name)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s/%s: %w", resourceType, namespace, name, ErrNotFound)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// unmarshalList converts raw JSON items into the caller's slice pointer.
func unmarshalList(items []json.RawMessage, into interface{}) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to assemble list: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return nil
}

// badgerLogAdapter routes badger's internal logging through the gantry logger.
type badgerLogAdapter struct {
	logger log.Logger
}

func (a *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
