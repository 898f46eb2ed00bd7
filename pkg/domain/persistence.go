package domain

import "context"

// Transaction exposes the record operations a persistence implementation
// must support within an atomic scope. Higher-level semantics (cascades,
// lifecycle transitions, event scheduling) compose these primitives.
type Transaction interface {
	Snapshot() TransactionView
	CreateRack(Rack) (Rack, error)
	UpdateRack(id string, mutator func(*Rack) error) (Rack, error)
	DeleteRack(id string) error
	CreateCage(Cage) (Cage, error)
	UpdateCage(id string, mutator func(*Cage) error) (Cage, error)
	DeleteCage(id string) error
	CreateAnimal(Animal) (Animal, error)
	UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error)
	DeleteAnimal(id string) error
	CreateEvent(Event) (Event, error)
	UpdateEvent(id string, mutator func(*Event) error) (Event, error)
	DeleteEvent(id string) error
	FindRack(id string) (Rack, bool)
	FindCage(id string) (Cage, bool)
	FindAnimal(id string) (Animal, bool)
	FindEvent(id string) (Event, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// query helpers.
type TransactionView interface {
	ListRacks() []Rack
	ListCages() []Cage
	ListAnimals() []Animal
	ListEvents() []Event
	FindRack(id string) (Rack, bool)
	FindCage(id string) (Cage, bool)
	FindAnimal(id string) (Animal, bool)
	FindEvent(id string) (Event, bool)
}

// PersistentStore is a minimal abstraction over durable backends. Every
// implementation serializes read-modify-write cycles through a single
// writer: a transaction either commits and persists the whole document in
// one write, or fails leaving the prior persisted state untouched.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetRack(id string) (Rack, bool)
	ListRacks() []Rack
	GetCage(id string) (Cage, bool)
	ListCages() []Cage
	GetAnimal(id string) (Animal, bool)
	ListAnimals() []Animal
	GetEvent(id string) (Event, bool)
	ListEvents() []Event
}

// DocumentExporter is implemented by stores that can snapshot the full
// document, e.g. for archival.
type DocumentExporter interface {
	ExportDocument() Document
}

// DocumentImporter is implemented by stores that can replace their state
// with an archived document. Durable implementations persist the restored
// document before returning.
type DocumentImporter interface {
	RestoreDocument(doc Document) error
}
