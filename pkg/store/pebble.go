package store

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"

	"talko/pkg/logger"
)

// Store owns the pebble handle. It is safe for concurrent use; mutations on
// one message are serialized by a striped lock while distinct messages
// proceed in parallel.
type Store struct {
	db    *pebble.DB
	path  string
	locks stripedLocks

	clock convClocks
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the on-disk location of the database.
func (s *Store) Path() string { return s.path }

func (s *Store) ensureOpen() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return nil
}

// getRaw reads a raw value; the second return is false when the key is absent.
func (s *Store) getRaw(key string) ([]byte, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	v, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, true, nil
}

// setRaw writes a raw key/value pair with a synced WAL.
func (s *Store) setRaw(key string, value []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Set([]byte(key), value, pebble.Sync)
}

// deleteRaw removes a raw key with a synced WAL.
func (s *Store) deleteRaw(key string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

// applyBatch commits a prepared batch atomically.
func (s *Store) applyBatch(b *pebble.Batch) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Apply(b, pebble.Sync)
}

// ListKeys returns all keys that start with the given prefix. If prefix is
// empty it returns every key in the DB; used by the admin inspection
// endpoint and the retention runner.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}
