package queue

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	itemKeyPrefix = "queue:item:"
	idKeyPrefix   = "queue:id:"
	pathKeyPrefix = "queue:path:"
	seqKey        = "queue:seq"
)

// Store persists queue items in BadgerDB. Items are keyed by a
// monotonically increasing sequence so that key order is FIFO order.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenStore opens (or creates) the queue database in dir. An empty dir
// opens an in-memory store.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's own logging is far too chatty for the app log
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	seq, err := db.GetSequence([]byte(seqKey), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		logging.Warn("failed to release queue sequence: %v", err)
	}
	return s.db.Close()
}

func itemKey(seq uint64) []byte {
	key := make([]byte, len(itemKeyPrefix)+8)
	copy(key, itemKeyPrefix)
	binary.BigEndian.PutUint64(key[len(itemKeyPrefix):], seq)
	return key
}

// Push appends item to the end of the queue, assigning its sequence.
func (s *Store) Push(item *Item) error {
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	item.Seq = seq

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(itemKey(seq), data); err != nil {
			return fmt.Errorf("set item: %w", err)
		}
		if err := txn.Set([]byte(idKeyPrefix+item.ID), seqBytes); err != nil {
			return fmt.Errorf("set id index: %w", err)
		}
		if err := txn.Set([]byte(pathKeyPrefix+item.Path), seqBytes); err != nil {
			return fmt.Errorf("set path index: %w", err)
		}
		return nil
	})
}

// Head returns the oldest item, or nil when the queue is empty.
func (s *Store) Head() (*Item, error) {
	var item *Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 1
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(itemKeyPrefix)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		item = &Item{}
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, item)
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (*Item, error) {
	var item Item
	err := s.db.View(func(txn *badger.Txn) error {
		seq, err := lookupSeq(txn, idKeyPrefix+id)
		if err != nil {
			return err
		}
		it, err := txn.Get(itemKey(seq))
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("queue item %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func lookupSeq(txn *badger.Txn, key string) (uint64, error) {
	it, err := txn.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = it.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt index entry %s", key)
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

// Remove deletes the item with the given id. It reports whether the item
// existed.
func (s *Store) Remove(id string) (bool, error) {
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := lookupSeq(txn, idKeyPrefix+id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var item Item
		it, err := txn.Get(itemKey(seq))
		if err == nil {
			if err := it.Value(func(val []byte) error { return json.Unmarshal(val, &item) }); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Delete(itemKey(seq)); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		if err := txn.Delete([]byte(idKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete id index: %w", err)
		}
		if item.Path != "" {
			// Only drop the path entry if it still points at this item.
			if pathSeq, err := lookupSeq(txn, pathKeyPrefix+item.Path); err == nil && pathSeq == seq {
				if err := txn.Delete([]byte(pathKeyPrefix + item.Path)); err != nil {
					return fmt.Errorf("delete path index: %w", err)
				}
			}
		}
		removed = true
		return nil
	})
	return removed, err
}

// List returns every item in FIFO order.
func (s *Store) List() ([]*Item, error) {
	var items []*Item
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(itemKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			items = append(items, &item)
		}
		return nil
	})
	return items, err
}

// Len counts the queued items.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(itemKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// HasPath reports whether a file is already queued.
func (s *Store) HasPath(path string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(pathKeyPrefix + path))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Paths returns the set of queued file paths.
func (s *Store) Paths() (map[string]struct{}, error) {
	paths := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(pathKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			paths[string(it.Item().Key()[len(prefix):])] = struct{}{}
		}
		return nil
	})
	return paths, err
}
