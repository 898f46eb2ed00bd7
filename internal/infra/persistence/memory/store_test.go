package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vivarium/pkg/domain"
)

func seedRackAndCage(t *testing.T, store *Store) (Rack, Cage) {
	t.Helper()
	var rack Rack
	var cage Cage
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		rack, err = tx.CreateRack(Rack{Name: "Rack A", Position: 1, Capacity: 1})
		if err != nil {
			return err
		}
		cage, err = tx.CreateCage(Cage{RackID: rack.ID, Position: 1, Number: 1, Capacity: domain.DefaultCageCapacity})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rack, cage
}

func TestCreateRackValidatesCapacity(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRack(Rack{Name: "bad", Capacity: -1})
		return err
	})
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateCageRequiresRack(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateCage(Cage{RackID: "missing", Position: 1})
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if nf.Entity != domain.EntityRack {
		t.Fatalf("entity %s, want rack", nf.Entity)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	seedRackAndCage(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateRack(Rack{Name: "Rack B"}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := len(store.ListRacks()); got != 1 {
		t.Fatalf("racks %d, want 1 after rollback", got)
	}
}

func TestReconcileDerivesOccupancy(t *testing.T) {
	store := NewStore(nil)
	_, cage := seedRackAndCage(t, store)

	var animal Animal
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		animal, err = tx.CreateAnimal(Animal{CageID: &cage.ID, Species: "mouse", Sex: domain.SexFemale})
		return err
	})
	if err != nil {
		t.Fatalf("add animal: %v", err)
	}

	got, ok := store.GetCage(cage.ID)
	if !ok {
		t.Fatal("cage missing")
	}
	if got.Status != domain.CageOccupied {
		t.Fatalf("status %s, want occupied", got.Status)
	}
	if len(got.AnimalIDs) != 1 || got.AnimalIDs[0] != animal.ID {
		t.Fatalf("animal ids %v, want [%s]", got.AnimalIDs, animal.ID)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteAnimal(animal.ID)
	})
	if err != nil {
		t.Fatalf("delete animal: %v", err)
	}
	got, _ = store.GetCage(cage.ID)
	if got.Status != domain.CageEmpty {
		t.Fatalf("status %s, want empty after delete", got.Status)
	}
	if len(got.AnimalIDs) != 0 {
		t.Fatalf("animal ids %v, want empty", got.AnimalIDs)
	}
}

func TestDeletedAnimalsExcludedFromOccupancy(t *testing.T) {
	store := NewStore(nil)
	_, cage := seedRackAndCage(t, store)

	var animal Animal
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		animal, err = tx.CreateAnimal(Animal{CageID: &cage.ID, Species: "mouse"})
		return err
	})
	if err != nil {
		t.Fatalf("add animal: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateAnimal(animal.ID, func(a *Animal) error {
			a.Status = domain.AnimalDeleted
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	got, _ := store.GetCage(cage.ID)
	if got.Status != domain.CageEmpty {
		t.Fatalf("status %s, want empty when only deleted animals remain", got.Status)
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRack(Rack{Name: "Rack A"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatal("result should carry the blocking violation")
	}
	if got := len(store.ListRacks()); got != 0 {
		t.Fatalf("racks %d, want 0 after blocked commit", got)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestDocumentRoundTripIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	_, cage := seedRackAndCage(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateAnimal(Animal{CageID: &cage.ID, Species: "mouse"}); err != nil {
			return err
		}
		_, err := tx.CreateEvent(Event{CageID: cage.ID, Type: domain.EventBreeding, Status: domain.EventActive})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	doc := store.ExportDocument()
	first, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	reloaded := NewStore(nil)
	var decoded Document
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	reloaded.ImportDocument(decoded)
	second, err := json.Marshal(reloaded.ExportDocument())
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("document changed across import/export round trip")
	}
}

func TestMigrateRepairsCorruptedDerivedFields(t *testing.T) {
	store := NewStore(nil)
	_, cage := seedRackAndCage(t, store)
	var animal Animal
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		animal, err = tx.CreateAnimal(Animal{CageID: &cage.ID, Species: "mouse"})
		return err
	})
	if err != nil {
		t.Fatalf("seed animal: %v", err)
	}

	doc := store.ExportDocument()
	for i := range doc.Tables.Cages {
		doc.Tables.Cages[i].Status = domain.CageEmpty
		doc.Tables.Cages[i].AnimalIDs = []string{"bogus"}
	}

	repaired := NewStore(nil)
	repaired.ImportDocument(doc)
	got, _ := repaired.GetCage(cage.ID)
	if got.Status != domain.CageOccupied {
		t.Fatalf("status %s, want occupied after repair", got.Status)
	}
	if len(got.AnimalIDs) != 1 || got.AnimalIDs[0] != animal.ID {
		t.Fatalf("animal ids %v, want [%s]", got.AnimalIDs, animal.ID)
	}
}

func TestMigrateDropsDanglingReferences(t *testing.T) {
	orphanCage := "no-such-rack"
	doc := Document{Tables: domain.Tables{
		Racks: []Rack{{Base: domain.Base{ID: "r1"}, Name: "Rack A", Capacity: 1}},
		Cages: []Cage{
			{Base: domain.Base{ID: "c1"}, RackID: "r1", Position: 1},
			{Base: domain.Base{ID: "c2"}, RackID: orphanCage, Position: 1},
		},
		Animals: []Animal{
			{Base: domain.Base{ID: "a1"}, CageID: strPtr("c2"), Status: domain.AnimalActive},
		},
		Events: []Event{
			{Base: domain.Base{ID: "e1"}, CageID: "c2", Type: domain.EventBreeding},
		},
	}}

	store := NewStore(nil)
	store.ImportDocument(doc)

	if _, ok := store.GetCage("c2"); ok {
		t.Fatal("cage with missing rack should be dropped")
	}
	animal, ok := store.GetAnimal("a1")
	if !ok {
		t.Fatal("animal should survive with detached cage")
	}
	if animal.CageID != nil {
		t.Fatal("animal cage reference should be cleared")
	}
	if animal.Status != domain.AnimalInactive {
		t.Fatalf("animal status %s, want inactive", animal.Status)
	}
	if _, ok := store.GetEvent("e1"); ok {
		t.Fatal("event on dropped cage should be dropped")
	}
}

func TestSetNowControlsTimestamps(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return fixed })

	var rack Rack
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		rack, err = tx.CreateRack(Rack{Name: "Rack A"})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !rack.CreatedAt.Equal(fixed) || !rack.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps %v/%v, want %v", rack.CreatedAt, rack.UpdatedAt, fixed)
	}
}

func TestViewSeesCommittedSnapshot(t *testing.T) {
	store := NewStore(nil)
	rack, _ := seedRackAndCage(t, store)

	err := store.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindRack(rack.ID); !ok {
			t.Fatal("rack missing from view")
		}
		if got := len(v.ListCages()); got != 1 {
			t.Fatalf("cages %d, want 1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func strPtr(s string) *string { return &s }
