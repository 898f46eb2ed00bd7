// Package memory provides the in-memory implementation of the inventory
// persistence store. Durable drivers embed it and snapshot the committed
// document after each successful transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vivarium/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Rack aliases domain.Rack for in-memory persistence operations.
	Rack = domain.Rack
	// Cage aliases domain.Cage.
	Cage = domain.Cage
	// Animal aliases domain.Animal.
	Animal = domain.Animal
	// Event aliases domain.Event.
	Event = domain.Event
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// Document aliases domain.Document, the serialized single-key payload.
	Document = domain.Document
)

type memoryState struct {
	racks   map[string]Rack
	cages   map[string]Cage
	animals map[string]Animal
	events  map[string]Event
}

func newMemoryState() memoryState {
	return memoryState{
		racks:   make(map[string]Rack),
		cages:   make(map[string]Cage),
		animals: make(map[string]Animal),
		events:  make(map[string]Event),
	}
}

func cloneRack(r Rack) Rack { return r }

func cloneCage(c Cage) Cage {
	cp := c
	cp.AnimalIDs = append([]string(nil), c.AnimalIDs...)
	if c.EventID != nil {
		id := *c.EventID
		cp.EventID = &id
	}
	return cp
}

func cloneAnimal(a Animal) Animal {
	cp := a
	if a.CageID != nil {
		id := *a.CageID
		cp.CageID = &id
	}
	return cp
}

func cloneEvent(e Event) Event { return e }

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.racks {
		cloned.racks[k] = cloneRack(v)
	}
	for k, v := range s.cages {
		cloned.cages[k] = cloneCage(v)
	}
	for k, v := range s.animals {
		cloned.animals[k] = cloneAnimal(v)
	}
	for k, v := range s.events {
		cloned.events[k] = cloneEvent(v)
	}
	return cloned
}

// reconcile recomputes the derived cage fields from the animal table: a cage
// is occupied iff at least one non-deleted animal references it, and its
// animal id list mirrors exactly those animals. Centralizing the dual-write
// here keeps every mutation path consistent.
func (s *memoryState) reconcile() {
	members := make(map[string][]string, len(s.cages))
	for _, a := range s.animals {
		if a.CageID == nil || a.Status == domain.AnimalDeleted {
			continue
		}
		members[*a.CageID] = append(members[*a.CageID], a.ID)
	}
	for id, cage := range s.cages {
		ids := members[id]
		sort.Strings(ids)
		cage.AnimalIDs = ids
		if len(ids) > 0 {
			cage.Status = domain.CageOccupied
		} else {
			cage.Status = domain.CageEmpty
			cage.AnimalIDs = []string{}
		}
		s.cages[id] = cage
	}
}

// documentFromState exports a deterministic document: collections sorted by
// id so serialize/deserialize/re-serialize round-trips byte-identically.
func documentFromState(state memoryState) Document {
	doc := Document{Tables: domain.Tables{
		Racks:   make([]Rack, 0, len(state.racks)),
		Cages:   make([]Cage, 0, len(state.cages)),
		Animals: make([]Animal, 0, len(state.animals)),
		Events:  make([]Event, 0, len(state.events)),
	}}
	for _, r := range state.racks {
		doc.Tables.Racks = append(doc.Tables.Racks, cloneRack(r))
	}
	for _, c := range state.cages {
		doc.Tables.Cages = append(doc.Tables.Cages, cloneCage(c))
	}
	for _, a := range state.animals {
		doc.Tables.Animals = append(doc.Tables.Animals, cloneAnimal(a))
	}
	for _, e := range state.events {
		doc.Tables.Events = append(doc.Tables.Events, cloneEvent(e))
	}
	sort.Slice(doc.Tables.Racks, func(i, j int) bool { return doc.Tables.Racks[i].ID < doc.Tables.Racks[j].ID })
	sort.Slice(doc.Tables.Cages, func(i, j int) bool { return doc.Tables.Cages[i].ID < doc.Tables.Cages[j].ID })
	sort.Slice(doc.Tables.Animals, func(i, j int) bool { return doc.Tables.Animals[i].ID < doc.Tables.Animals[j].ID })
	sort.Slice(doc.Tables.Events, func(i, j int) bool { return doc.Tables.Events[i].ID < doc.Tables.Events[j].ID })
	return doc
}

func stateFromDocument(doc Document) memoryState {
	state := newMemoryState()
	for _, r := range doc.Tables.Racks {
		state.racks[r.ID] = cloneRack(r)
	}
	for _, c := range doc.Tables.Cages {
		state.cages[c.ID] = cloneCage(c)
	}
	for _, a := range doc.Tables.Animals {
		state.animals[a.ID] = cloneAnimal(a)
	}
	for _, e := range doc.Tables.Events {
		state.events[e.ID] = cloneEvent(e)
	}
	return state
}

// migrateDocument normalizes a loaded document: dangling foreign keys are
// repaired (cages without a rack deleted, orphaned animals detached, events
// without a cage dropped) and derived cage fields recomputed. The document
// has no schema version field, so every load runs the full pass.
func migrateDocument(state *memoryState) {
	for id, cage := range state.cages {
		if _, ok := state.racks[cage.RackID]; !ok {
			delete(state.cages, id)
		}
	}
	for id, animal := range state.animals {
		if animal.CageID == nil {
			continue
		}
		if _, ok := state.cages[*animal.CageID]; !ok {
			animal.CageID = nil
			if animal.Status == domain.AnimalActive {
				animal.Status = domain.AnimalInactive
			}
			state.animals[id] = animal
		}
	}
	for id, event := range state.events {
		if _, ok := state.cages[event.CageID]; !ok {
			delete(state.events, id)
		}
	}
	for id, cage := range state.cages {
		if cage.EventID != nil {
			if _, ok := state.events[*cage.EventID]; !ok {
				cage.EventID = nil
				state.cages[id] = cage
			}
		}
	}
	state.reconcile()
}

// Store provides an in-memory transactional store for the inventory domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the transaction clock, primarily for tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportDocument returns a deep copy of the committed state as a document.
func (s *Store) ExportDocument() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return documentFromState(s.state)
}

// ImportDocument replaces the committed state with the provided document
// after running the migration pass.
func (s *Store) ImportDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := stateFromDocument(doc)
	migrateDocument(&state)
	s.state = state
}

// RestoreDocument replaces the committed state with an archived document.
func (s *Store) RestoreDocument(doc Document) error {
	s.ImportDocument(doc)
	return nil
}

// transaction is a mutation set applied to a cloned copy of the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// view exposes a read-only state snapshot to rules and query helpers.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

func (v view) ListRacks() []Rack {
	out := make([]Rack, 0, len(v.state.racks))
	for _, r := range v.state.racks {
		out = append(out, cloneRack(r))
	}
	return out
}

func (v view) ListCages() []Cage {
	out := make([]Cage, 0, len(v.state.cages))
	for _, c := range v.state.cages {
		out = append(out, cloneCage(c))
	}
	return out
}

func (v view) ListAnimals() []Animal {
	out := make([]Animal, 0, len(v.state.animals))
	for _, a := range v.state.animals {
		out = append(out, cloneAnimal(a))
	}
	return out
}

func (v view) ListEvents() []Event {
	out := make([]Event, 0, len(v.state.events))
	for _, e := range v.state.events {
		out = append(out, cloneEvent(e))
	}
	return out
}

func (v view) FindRack(id string) (Rack, bool) {
	r, ok := v.state.racks[id]
	if !ok {
		return Rack{}, false
	}
	return cloneRack(r), true
}

func (v view) FindCage(id string) (Cage, bool) {
	c, ok := v.state.cages[id]
	if !ok {
		return Cage{}, false
	}
	return cloneCage(c), true
}

func (v view) FindAnimal(id string) (Animal, bool) {
	a, ok := v.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

func (v view) FindEvent(id string) (Event, bool) {
	e, ok := v.state.events[id]
	if !ok {
		return Event{}, false
	}
	return cloneEvent(e), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Derived cage fields are reconciled and rules evaluated before the
// copy replaces the committed state; any error leaves the store untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	tx.state.reconcile()

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the live transactional state as a read-only view.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateRack stores a new rack within the transaction.
func (tx *transaction) CreateRack(r Rack) (Rack, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.racks[r.ID]; exists {
		return Rack{}, domain.ConflictError{Reason: "rack " + r.ID + " already exists"}
	}
	if r.Capacity < 0 {
		return Rack{}, domain.ValidationError{Reason: "rack capacity must not be negative"}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.racks[r.ID] = cloneRack(r)
	tx.recordChange(Change{Entity: domain.EntityRack, Action: domain.ActionCreate, After: cloneRack(r)})
	return cloneRack(r), nil
}

// UpdateRack mutates a rack using the provided mutator function.
func (tx *transaction) UpdateRack(id string, mutator func(*Rack) error) (Rack, error) {
	current, ok := tx.state.racks[id]
	if !ok {
		return Rack{}, domain.NotFoundError{Entity: domain.EntityRack, ID: id}
	}
	before := cloneRack(current)
	if err := mutator(&current); err != nil {
		return Rack{}, err
	}
	if current.Capacity < 0 {
		return Rack{}, domain.ValidationError{Reason: "rack capacity must not be negative"}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.racks[id] = cloneRack(current)
	tx.recordChange(Change{Entity: domain.EntityRack, Action: domain.ActionUpdate, Before: before, After: cloneRack(current)})
	return cloneRack(current), nil
}

// DeleteRack removes a rack from the transaction state.
func (tx *transaction) DeleteRack(id string) error {
	current, ok := tx.state.racks[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRack, ID: id}
	}
	delete(tx.state.racks, id)
	tx.recordChange(Change{Entity: domain.EntityRack, Action: domain.ActionDelete, Before: cloneRack(current)})
	return nil
}

// CreateCage stores a new cage.
func (tx *transaction) CreateCage(c Cage) (Cage, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cages[c.ID]; exists {
		return Cage{}, domain.ConflictError{Reason: "cage " + c.ID + " already exists"}
	}
	if _, ok := tx.state.racks[c.RackID]; !ok {
		return Cage{}, domain.NotFoundError{Entity: domain.EntityRack, ID: c.RackID}
	}
	if c.Status == "" {
		c.Status = domain.CageEmpty
	}
	if c.Type == "" {
		c.Type = domain.CageMaintenance
	}
	if c.AnimalIDs == nil {
		c.AnimalIDs = []string{}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cages[c.ID] = cloneCage(c)
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionCreate, After: cloneCage(c)})
	return cloneCage(c), nil
}

// UpdateCage mutates a cage using the provided mutator function.
func (tx *transaction) UpdateCage(id string, mutator func(*Cage) error) (Cage, error) {
	current, ok := tx.state.cages[id]
	if !ok {
		return Cage{}, domain.NotFoundError{Entity: domain.EntityCage, ID: id}
	}
	before := cloneCage(current)
	if err := mutator(&current); err != nil {
		return Cage{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cages[id] = cloneCage(current)
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionUpdate, Before: before, After: cloneCage(current)})
	return cloneCage(current), nil
}

// DeleteCage removes a cage from the transaction state.
func (tx *transaction) DeleteCage(id string) error {
	current, ok := tx.state.cages[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCage, ID: id}
	}
	delete(tx.state.cages, id)
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionDelete, Before: cloneCage(current)})
	return nil
}

// CreateAnimal stores a new animal.
func (tx *transaction) CreateAnimal(a Animal) (Animal, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.animals[a.ID]; exists {
		return Animal{}, domain.ConflictError{Reason: "animal " + a.ID + " already exists"}
	}
	if a.CageID != nil {
		if _, ok := tx.state.cages[*a.CageID]; !ok {
			return Animal{}, domain.NotFoundError{Entity: domain.EntityCage, ID: *a.CageID}
		}
	}
	if a.Status == "" {
		a.Status = domain.AnimalActive
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.animals[a.ID] = cloneAnimal(a)
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionCreate, After: cloneAnimal(a)})
	return cloneAnimal(a), nil
}

// UpdateAnimal mutates an animal using the provided mutator function.
func (tx *transaction) UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error) {
	current, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
	}
	before := cloneAnimal(current)
	if err := mutator(&current); err != nil {
		return Animal{}, err
	}
	if current.CageID != nil {
		if _, ok := tx.state.cages[*current.CageID]; !ok {
			return Animal{}, domain.NotFoundError{Entity: domain.EntityCage, ID: *current.CageID}
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.animals[id] = cloneAnimal(current)
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionUpdate, Before: before, After: cloneAnimal(current)})
	return cloneAnimal(current), nil
}

// DeleteAnimal removes an animal from the transaction state.
func (tx *transaction) DeleteAnimal(id string) error {
	current, ok := tx.state.animals[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
	}
	delete(tx.state.animals, id)
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionDelete, Before: cloneAnimal(current)})
	return nil
}

// CreateEvent stores a new event.
func (tx *transaction) CreateEvent(e Event) (Event, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.events[e.ID]; exists {
		return Event{}, domain.ConflictError{Reason: "event " + e.ID + " already exists"}
	}
	if _, ok := tx.state.cages[e.CageID]; !ok {
		return Event{}, domain.NotFoundError{Entity: domain.EntityCage, ID: e.CageID}
	}
	if e.Status == "" {
		e.Status = domain.EventActive
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.events[e.ID] = cloneEvent(e)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, After: cloneEvent(e)})
	return cloneEvent(e), nil
}

// UpdateEvent mutates an event using the provided mutator function.
func (tx *transaction) UpdateEvent(id string, mutator func(*Event) error) (Event, error) {
	current, ok := tx.state.events[id]
	if !ok {
		return Event{}, domain.NotFoundError{Entity: domain.EntityEvent, ID: id}
	}
	before := cloneEvent(current)
	if err := mutator(&current); err != nil {
		return Event{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.events[id] = cloneEvent(current)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Before: before, After: cloneEvent(current)})
	return cloneEvent(current), nil
}

// DeleteEvent removes an event from the transaction state.
func (tx *transaction) DeleteEvent(id string) error {
	current, ok := tx.state.events[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEvent, ID: id}
	}
	delete(tx.state.events, id)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionDelete, Before: cloneEvent(current)})
	return nil
}

func (tx *transaction) FindRack(id string) (Rack, bool)     { return tx.Snapshot().FindRack(id) }
func (tx *transaction) FindCage(id string) (Cage, bool)     { return tx.Snapshot().FindCage(id) }
func (tx *transaction) FindAnimal(id string) (Animal, bool) { return tx.Snapshot().FindAnimal(id) }
func (tx *transaction) FindEvent(id string) (Event, bool)   { return tx.Snapshot().FindEvent(id) }

// Read helpers ---------------------------------------------------------------

// GetRack retrieves a rack by id from committed state.
func (s *Store) GetRack(id string) (Rack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.racks[id]
	if !ok {
		return Rack{}, false
	}
	return cloneRack(r), true
}

// ListRacks returns all racks from committed state.
func (s *Store) ListRacks() []Rack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rack, 0, len(s.state.racks))
	for _, r := range s.state.racks {
		out = append(out, cloneRack(r))
	}
	return out
}

// GetCage retrieves a cage by id from committed state.
func (s *Store) GetCage(id string) (Cage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cages[id]
	if !ok {
		return Cage{}, false
	}
	return cloneCage(c), true
}

// ListCages returns all cages from committed state.
func (s *Store) ListCages() []Cage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cage, 0, len(s.state.cages))
	for _, c := range s.state.cages {
		out = append(out, cloneCage(c))
	}
	return out
}

// GetAnimal retrieves an animal by id from committed state.
func (s *Store) GetAnimal(id string) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

// ListAnimals returns all animals from committed state.
func (s *Store) ListAnimals() []Animal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Animal, 0, len(s.state.animals))
	for _, a := range s.state.animals {
		out = append(out, cloneAnimal(a))
	}
	return out
}

// GetEvent retrieves an event by id from committed state.
func (s *Store) GetEvent(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.events[id]
	if !ok {
		return Event{}, false
	}
	return cloneEvent(e), true
}

// ListEvents returns all events from committed state.
func (s *Store) ListEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, len(s.state.events))
	for _, e := range s.state.events {
		out = append(out, cloneEvent(e))
	}
	return out
}
