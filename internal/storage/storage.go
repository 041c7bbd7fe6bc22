// Package storage provides a persistent BadgerDB-backed cache for the
// engine: raw NNUE weight-file bytes (keyed by file path + modification
// time, so a multi-megabyte weight file is not re-read from disk on
// every engine start) and the engine's setoption defaults (Hash size,
// BookPath, EvalFile), so they survive ucinewgame and process restarts.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

// Storage keys.
const (
	keyOptionsPrefix = "options:"
	keyWeightsPrefix = "weights:"
)

// EngineOptions holds the engine setoption defaults persisted across
// restarts.
type EngineOptions struct {
	HashMB   int    `json:"hash_mb"`
	BookPath string `json:"book_path"`
	EvalFile string `json:"eval_file"`
}

// DefaultEngineOptions returns the engine's built-in defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{HashMB: 64}
}

// Storage wraps BadgerDB for persistent storage.
type Storage struct {
	db *badger.DB
}

// NewStorage opens (creating if necessary) the BadgerDB database in the
// platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, fmt.Errorf("resolve database directory: %w", err)
	}

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// optionsKey is fixed: there is only ever one set of persisted engine
// options per data directory.
func optionsKey() []byte {
	return []byte(keyOptionsPrefix + "default")
}

// SaveEngineOptions persists the engine's setoption defaults.
func (s *Storage) SaveEngineOptions(opts EngineOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal engine options: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(optionsKey(), data)
	})
}

// LoadEngineOptions loads the persisted engine options, or the defaults
// if none have been saved yet.
func (s *Storage) LoadEngineOptions() (EngineOptions, error) {
	opts := DefaultEngineOptions()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(optionsKey())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &opts)
		})
	})
	if err != nil {
		return opts, fmt.Errorf("load engine options: %w", err)
	}

	return opts, nil
}

// weightsKey derives the cache key for an NNUE weight file from its
// path (as given) and modification time, so a changed or re-trained file
// at the same path invalidates the cache entry automatically.
func weightsKey(path string, modTimeUnixNano int64) []byte {
	h := xxhash.New()
	fmt.Fprintf(h, "%s:%d", path, modTimeUnixNano)
	sum := h.Sum64()
	return []byte(fmt.Sprintf("%s%016x", keyWeightsPrefix, sum))
}

// CacheWeights stores the raw weight-file bytes for path, tagged with the
// file's modification time.
func (s *Storage) CacheWeights(path string, modTimeUnixNano int64, blob []byte) error {
	key := weightsKey(path, modTimeUnixNano)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, blob)
	})
}

// LoadCachedWeights returns the cached weight blob for path if one was
// stored for this exact modification time. ok is false on a cache miss.
func (s *Storage) LoadCachedWeights(path string, modTimeUnixNano int64) (blob []byte, ok bool, err error) {
	key := weightsKey(path, modTimeUnixNano)

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		ok = true
		return item.Value(func(val []byte) error {
			blob = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("load cached weights for %q: %w", path, err)
	}

	return blob, ok, nil
}
