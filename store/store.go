// Package store keeps a domain's records in memory and persists them as one JSON file.
//
// All handling units of a microservice share one Store. Lookups run concurrently; updates
// are serialized, so the state has a single writer at a time and every update is visible to
// lookups that start after it returns.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/logging"
)

var ErrEmptyKey = errors.New("store: empty key")

// Store maps normalized keys to records of type R.
type Store[R any] struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	records map[string]R
	dirty   bool
}

// Key normalizes a record key: surrounding space is dropped and letters are lowered, so
// "Buenos Aires" and " buenos aires" address the same record.
func Key(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// New returns an empty store that persists to path. An empty path keeps the store in memory.
func New[R any](path string) *Store[R] {
	return &Store[R]{path: path, log: logging.For("store"), records: make(map[string]R)}
}

// Open loads the records stored at path. A missing file yields an empty store.
func Open[R any](path string) (*Store[R], error) {
	s := New[R](path)
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info().Str("path", path).Msg("no state file, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "store: read %s", path)
	}
	var raw map[string]R
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "store: decode %s", path)
	}
	for k, rec := range raw {
		if key := Key(k); key != "" {
			s.records[key] = rec
		}
	}
	s.log.Info().Str("path", path).Int("records", len(s.records)).Msg("state loaded")
	return s, nil
}

func (s *Store[R]) Path() string { return s.path }

// Lookup returns the record stored under key.
func (s *Store[R]) Lookup(key string) (R, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[Key(key)]
	return rec, ok
}

// Update runs fn on the record under key while holding the write lock and stores the result.
// found reports whether the record existed; fn starts from the zero record otherwise.
func (s *Store[R]) Update(key string, fn func(rec *R, found bool)) (R, error) {
	k := Key(key)
	if k == "" {
		var zero R
		return zero, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[k]
	fn(&rec, found)
	s.records[k] = rec
	s.dirty = true
	return rec, nil
}

// Keys lists the stored keys in sorted order.
func (s *Store[R]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store[R]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Persist writes the records to the store's path through a temporary file and a rename, so
// a crash never leaves a truncated file behind. A store without changes or without a path is
// not written.
func (s *Store[R]) Persist() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "store: encode")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "store: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "store: temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "store: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "store: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "store: replace %s", s.path)
	}
	s.dirty = false
	s.log.Info().Str("path", s.path).Int("records", len(s.records)).Msg("state persisted")
	return nil
}
