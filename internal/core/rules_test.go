package core

import (
	"context"
	"testing"

	"vivarium/pkg/domain"
)

// stubView is a fixed read-only dataset handed to rules under test.
type stubView struct {
	racks   []Rack
	cages   []Cage
	animals []Animal
	events  []Event
}

func (v stubView) ListRacks() []Rack     { return v.racks }
func (v stubView) ListCages() []Cage     { return v.cages }
func (v stubView) ListAnimals() []Animal { return v.animals }
func (v stubView) ListEvents() []Event   { return v.events }

func (v stubView) FindRack(id string) (Rack, bool) {
	for _, r := range v.racks {
		if r.ID == id {
			return r, true
		}
	}
	return Rack{}, false
}

func (v stubView) FindCage(id string) (Cage, bool) {
	for _, c := range v.cages {
		if c.ID == id {
			return c, true
		}
	}
	return Cage{}, false
}

func (v stubView) FindAnimal(id string) (Animal, bool) {
	for _, a := range v.animals {
		if a.ID == id {
			return a, true
		}
	}
	return Animal{}, false
}

func (v stubView) FindEvent(id string) (Event, bool) {
	for _, e := range v.events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

func entity(id string) Base {
	return Base{ID: id}
}

func evaluate(t *testing.T, rule domain.Rule, view stubView) Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("%s: %v", rule.Name(), err)
	}
	return res
}

func TestCageOccupancyRuleDetectsStaleStatus(t *testing.T) {
	cage := Cage{Base: entity("c1"), RackID: "r1", Position: 1, Status: CageEmpty}
	cageID := "c1"
	view := stubView{
		cages:   []Cage{cage},
		animals: []Animal{{Base: entity("a1"), CageID: &cageID, Status: AnimalActive}},
	}

	res := evaluate(t, NewCageOccupancyRule(), view)
	if !res.HasBlocking() {
		t.Fatal("empty status with a housed animal must block")
	}
}

func TestCageOccupancyRuleIgnoresDeletedAnimals(t *testing.T) {
	cageID := "c1"
	view := stubView{
		cages:   []Cage{{Base: entity("c1"), RackID: "r1", Position: 1, Status: CageEmpty}},
		animals: []Animal{{Base: entity("a1"), CageID: &cageID, Status: AnimalDeleted}},
	}

	res := evaluate(t, NewCageOccupancyRule(), view)
	if res.HasBlocking() {
		t.Fatalf("deleted animals must not count as housed: %v", res.Violations)
	}
}

func TestCageOccupancyRuleDetectsIDDrift(t *testing.T) {
	cageID := "c1"
	view := stubView{
		cages: []Cage{{
			Base: entity("c1"), RackID: "r1", Position: 1,
			Status: CageOccupied, AnimalIDs: []string{"other"},
		}},
		animals: []Animal{{Base: entity("a1"), CageID: &cageID, Status: AnimalActive}},
	}

	res := evaluate(t, NewCageOccupancyRule(), view)
	if !res.HasBlocking() {
		t.Fatal("diverged animal id list must block")
	}
}

func TestEventBindingRuleMissingEvent(t *testing.T) {
	eventID := "missing"
	view := stubView{
		cages: []Cage{{Base: entity("c1"), Type: CageBreeding, EventID: &eventID}},
	}
	res := evaluate(t, NewEventBindingRule(), view)
	if !res.HasBlocking() {
		t.Fatal("dangling event reference must block")
	}
}

func TestEventBindingRuleTypeMismatch(t *testing.T) {
	eventID := "e1"
	view := stubView{
		cages:  []Cage{{Base: entity("c1"), Type: CageBreeding, EventID: &eventID}},
		events: []Event{{Base: entity("e1"), CageID: "c1", Type: domain.EventWeaning}},
	}
	res := evaluate(t, NewEventBindingRule(), view)
	if !res.HasBlocking() {
		t.Fatal("weaning event on a breeding cage must block")
	}
}

func TestEventBindingRuleGeneralEventExempt(t *testing.T) {
	eventID := "e1"
	view := stubView{
		cages:  []Cage{{Base: entity("c1"), Type: CageBreeding, EventID: &eventID}},
		events: []Event{{Base: entity("e1"), CageID: "c1", Type: domain.EventGeneral}},
	}
	res := evaluate(t, NewEventBindingRule(), view)
	if res.HasBlocking() {
		t.Fatalf("general events attach to any cage type: %v", res.Violations)
	}
}

func TestEventBindingRuleWrongOwner(t *testing.T) {
	eventID := "e1"
	view := stubView{
		cages:  []Cage{{Base: entity("c1"), Type: CageBreeding, EventID: &eventID}},
		events: []Event{{Base: entity("e1"), CageID: "c2", Type: domain.EventBreeding}},
	}
	res := evaluate(t, NewEventBindingRule(), view)
	if !res.HasBlocking() {
		t.Fatal("event owned by another cage must block")
	}
}

func TestPositionUniqueRule(t *testing.T) {
	view := stubView{
		cages: []Cage{
			{Base: entity("c1"), RackID: "r1", Position: 1},
			{Base: entity("c2"), RackID: "r1", Position: 1},
			{Base: entity("c3"), RackID: "r2", Position: 1},
		},
	}
	res := evaluate(t, NewPositionUniqueRule(), view)
	if !res.HasBlocking() {
		t.Fatal("duplicate position in the same rack must block")
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations %d, want 1 (same position in another rack is fine)", len(res.Violations))
	}
}

func TestRackCapacityRuleWarnsWithoutBlocking(t *testing.T) {
	view := stubView{
		racks: []Rack{{Base: entity("r1"), Name: "Rack A", Capacity: 3}},
		cages: []Cage{{Base: entity("c1"), RackID: "r1", Position: 1}},
	}
	res := evaluate(t, NewRackCapacityRule(), view)
	if len(res.Violations) != 1 {
		t.Fatalf("violations %d, want 1", len(res.Violations))
	}
	if res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("severity %s, want warn", res.Violations[0].Severity)
	}
	if res.HasBlocking() {
		t.Fatal("capacity drift must not block the commit")
	}
}

func TestRackCapacityWarningSurfacesThroughService(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rack, _ := mustAddRack(t, svc, "Rack A", 1)

	_, res, err := svc.UpdateRack(ctx, rack.ID, func(r *Rack) error {
		r.Capacity = 5
		return nil
	})
	if err != nil {
		t.Fatalf("update rack: %v", err)
	}
	found := false
	for _, v := range res.Violations {
		if v.Rule == "rack_capacity" && v.Severity == SeverityWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("violations %v, want a rack_capacity warning", res.Violations)
	}
}
