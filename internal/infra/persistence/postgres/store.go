// Package postgres provides a Postgres-backed persistent store with the same
// single-document semantics as the sqlite driver: the whole inventory
// document is upserted as JSONB under one storage key per commit.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"vivarium/internal/infra/persistence/memory"
	"vivarium/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/vivarium?sslmode=disable"
	storageKey    = "vivarium_inventory"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the state table exists, and hydrates the in-memory
// store from any existing document.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, domain.StorageError{Op: "open postgres", Err: err}
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, domain.StorageError{Op: "ping postgres", Err: err}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, domain.StorageError{Op: "ensure state table", Err: err}
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE key = $1`, storageKey).Scan(&payload)
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

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.Marshal(s.ExportDocument())
	if err != nil {
		return domain.StorageError{Op: "encode document", Err: err}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key,payload) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET payload=EXCLUDED.payload`,
		storageKey, payload,
	); err != nil {
		return domain.StorageError{Op: "upsert state", Err: err}
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots the
// document to Postgres if successful. A failed write rolls the in-memory
// state back to the last persisted document.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	prev := s.ExportDocument()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
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
	if err := s.persist(context.Background()); err != nil {
		s.ImportDocument(prev)
		return err
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
