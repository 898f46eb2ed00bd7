// Package sqlite provides the embedded durable driver: the committed
// inventory document is serialized as JSON and written under a single
// storage key in a SQLite table after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"vivarium/internal/infra/persistence/memory"
	"vivarium/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// storageKey is the single key the whole document lives under.
const storageKey = "vivarium_inventory"

// Store persists the in-memory state as one JSON document per write. The
// write replaces the full payload atomically, so a failed transaction never
// leaves a partial cascade behind.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) a SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "vivarium.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, domain.StorageError{Op: "create dirs", Err: err}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.StorageError{Op: "open sqlite", Err: err}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, domain.StorageError{Op: "create state table", Err: err}
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE key = ?`, storageKey).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return domain.StorageError{Op: "select state", Err: err}
	}
	var doc domain.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.StorageError{Op: "decode document", Err: err}
	}
	s.ImportDocument(doc)
	return nil
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.ExportDocument()
	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.StorageError{Op: "encode document", Err: err}
	}
	if _, err := s.db.Exec(
		`INSERT INTO state(key,payload) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET payload=excluded.payload`,
		storageKey, payload,
	); err != nil {
		return domain.StorageError{Op: fmt.Sprintf("upsert %s", storageKey), Err: err}
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots the full
// document to SQLite if successful. A failed write rolls the in-memory state
// back to the last persisted document, so memory and disk never diverge.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	prev := s.ExportDocument()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		s.ImportDocument(prev)
		return res, pErr
	}
	return res, nil
}

// RestoreDocument replaces the committed state with an archived document and
// persists it. A failed write restores the previous state.
func (s *Store) RestoreDocument(doc domain.Document) error {
	prev := s.ExportDocument()
	s.ImportDocument(doc)
	if err := s.persist(); err != nil {
		s.ImportDocument(prev)
		return err
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
