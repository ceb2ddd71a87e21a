package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rentalshop-backend/internal/repository"
)

// Store is the flat-file repository backend. Each tenant owns a directory
// under the data root with one JSON document per logical collection:
//
//	<dataDir>/<shop>/orders.json
//	<dataDir>/<shop>/settings.json
//	<dataDir>/<shop>/settings.history.ndjson
//	<dataDir>/<shop>/subscriptions.json
//
// Writes serialize per tenant through a per-shop mutex, which also covers the
// (shop, sessionID) serialization the order repository requires.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the flat-file store rooted at dataDir, creating the root if
// needed, and returns it wrapped in the backend-agnostic repository.Store.
func New(dataDir string) (*repository.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonstore: create data dir: %w", err)
	}
	s := &Store{
		dir:   dataDir,
		locks: make(map[string]*sync.Mutex),
	}
	return &repository.Store{
		OrderRepository:              &orderRepository{s},
		SettingsRepository:           &settingsRepository{s},
		SubscriptionStatusRepository: &subscriptionRepository{s},
	}, nil
}

// Loader adapts New to the resolver's Loader signature.
func Loader(opts repository.Options) (*repository.Store, error) {
	return New(opts.DataDir)
}

func (s *Store) shopLock(shop string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[shop]
	if !ok {
		l = &sync.Mutex{}
		s.locks[shop] = l
	}
	return l
}

func (s *Store) shopDir(shop string) string {
	return filepath.Join(s.dir, shop)
}

// readDoc loads a collection document into out. A missing file leaves out at
// its zero value.
func (s *Store) readDoc(shop, file string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.shopDir(shop), file))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jsonstore: read %s/%s: %w", shop, file, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jsonstore: parse %s/%s: %w", shop, file, err)
	}
	return nil
}

// writeDoc persists a collection document atomically (temp file + rename).
func (s *Store) writeDoc(shop, file string, doc any) error {
	dir := s.shopDir(shop)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonstore: create shop dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: encode %s/%s: %w", shop, file, err)
	}
	tmp, err := os.CreateTemp(dir, file+".tmp*")
	if err != nil {
		return fmt.Errorf("jsonstore: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("jsonstore: write %s/%s: %w", shop, file, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("jsonstore: close %s/%s: %w", shop, file, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, file)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("jsonstore: replace %s/%s: %w", shop, file, err)
	}
	return nil
}

// appendLine appends one newline-delimited JSON record to a log file.
func (s *Store) appendLine(shop, file string, record any) error {
	dir := s.shopDir(shop)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonstore: create shop dir: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("jsonstore: encode history record: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonstore: open history log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonstore: append history: %w", err)
	}
	return nil
}
