package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"vivarium/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vivarium.db")
	store := openTestStore(t, path)

	var rack domain.Rack
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		rack, err = tx.CreateRack(domain.Rack{Name: "Rack A", Position: 1, Capacity: 2})
		if err != nil {
			return err
		}
		if _, err := tx.CreateCage(domain.Cage{RackID: rack.ID, Position: 1}); err != nil {
			return err
		}
		_, err = tx.CreateCage(domain.Cage{RackID: rack.ID, Position: 2})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, path)
	got, ok := reopened.GetRack(rack.ID)
	if !ok {
		t.Fatal("rack missing after reopen")
	}
	if got.Name != "Rack A" {
		t.Fatalf("name %q", got.Name)
	}
	if cages := reopened.ListCages(); len(cages) != 2 {
		t.Fatalf("cages %d, want 2", len(cages))
	}
}

func TestFailedCallbackDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vivarium.db")
	store := openTestStore(t, path)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateRack(domain.Rack{Name: "Rack A"}); err != nil {
			return err
		}
		return domain.ValidationError{Reason: "forced failure"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, path)
	if racks := reopened.ListRacks(); len(racks) != 0 {
		t.Fatalf("racks %d, want 0", len(racks))
	}
}

func TestRestoreDocumentPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vivarium.db")
	store := openTestStore(t, path)

	doc := domain.Document{Tables: domain.Tables{
		Racks: []domain.Rack{{Base: domain.Base{ID: "r1"}, Name: "Restored", Capacity: 0}},
	}}
	if err := store.RestoreDocument(doc); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, path)
	if _, ok := reopened.GetRack("r1"); !ok {
		t.Fatal("restored rack missing after reopen")
	}
}

func TestDefaultPathFallback(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "dir", "db.sqlite"), nil)
	if err != nil {
		t.Fatalf("open with nested dirs: %v", err)
	}
	if store.Path() == "" {
		t.Fatal("path should be recorded")
	}
	_ = store.Close()
}
