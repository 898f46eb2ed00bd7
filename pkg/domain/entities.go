// Package domain defines the persistent entities, value types, error
// taxonomy, and rule evaluation primitives used by vivarium.
package domain

import "time"

// EntityType identifies the type of record stored in the inventory.
type EntityType string

// Supported entity type identifiers used in Change records and the persisted document.
const (
	// EntityRack identifies a physical rack record.
	EntityRack EntityType = "rack"
	// EntityCage identifies a cage record.
	EntityCage EntityType = "cage"
	// EntityAnimal identifies an animal record.
	EntityAnimal EntityType = "animal"
	// EntityEvent identifies a husbandry event record.
	EntityEvent EntityType = "event"
)

// CageStatus captures the occupancy half of the cage lifecycle.
type CageStatus string

// Cage occupancy states.
const (
	CageEmpty    CageStatus = "empty"
	CageOccupied CageStatus = "occupied"
)

// CageType captures the husbandry half of the cage lifecycle.
type CageType string

// Husbandry workflow types a cage can carry.
const (
	CageBreeding          CageType = "breeding"
	CageExpectedPregnancy CageType = "expected_pregnancy"
	CageWeaning           CageType = "weaning"
	CageMaintenance       CageType = "maintenance"
)

// EventDuration returns the default countdown length in days for a cage type.
// Maintenance carries no countdown event.
func (t CageType) EventDuration() int {
	switch t {
	case CageBreeding:
		return 3
	case CageExpectedPregnancy, CageWeaning:
		return 21
	default:
		return 0
	}
}

// EventType returns the event type opened when a cage enters this workflow.
func (t CageType) EventType() EventType {
	return EventType(t)
}

// Sex enumerates animal sexes.
type Sex string

// Recognised animal sexes.
const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// AnimalStatus enumerates animal record states.
type AnimalStatus string

// Animal lifecycle states. Inactive animals are detached from cages but
// retained; deleted animals are excluded from occupancy counts.
const (
	AnimalActive   AnimalStatus = "active"
	AnimalInactive AnimalStatus = "inactive"
	AnimalDeleted  AnimalStatus = "deleted"
)

// EventType enumerates time-bound husbandry tasks and reminders.
type EventType string

// Event types: the four husbandry workflows plus free-form reminders.
const (
	EventBreeding          EventType = "breeding"
	EventExpectedPregnancy EventType = "expected_pregnancy"
	EventWeaning           EventType = "weaning"
	EventMaintenance       EventType = "maintenance"
	EventGeneral           EventType = "general"
)

// EventStatus enumerates event workflow states.
type EventStatus string

// Event workflow states.
const (
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// Default cage sizing applied when racks initialize their cages.
const (
	DefaultCageCapacity  = 8
	DefaultCageMaxEvents = 8
)

// Base contains common fields for all inventory records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rack is a physical storage unit holding a fixed-capacity set of cages.
// Capacity tracks the count of cages belonging to the rack; the relationship
// is maintained on cage add/remove and verified by a warn-level rule rather
// than a hard constraint.
type Rack struct {
	Base
	Name     string `json:"name"`
	Position int    `json:"position"`
	Capacity int    `json:"capacity"`
	Notes    string `json:"notes,omitempty"`
}

// Cage is a housing unit for animals. AnimalIDs and Status are derived from
// the animal table: the store recomputes both during every commit and on
// document load, so no call site writes them directly.
type Cage struct {
	Base
	RackID    string     `json:"rack_id"`
	Position  int        `json:"position"`
	Number    int        `json:"number"`
	Status    CageStatus `json:"status"`
	Type      CageType   `json:"type"`
	AnimalIDs []string   `json:"animal_ids"`
	EventID   *string    `json:"event_id"`
	Capacity  int        `json:"capacity"`
	MaxEvents int        `json:"max_events"`
	Notes     string     `json:"notes,omitempty"`
}

// Animal is an individual subject linked to at most one cage at a time.
type Animal struct {
	Base
	CageID    *string      `json:"cage_id"`
	Species   string       `json:"species"`
	Strain    string       `json:"strain,omitempty"`
	Sex       Sex          `json:"sex"`
	BirthDate time.Time    `json:"birth_date"`
	Status    AnimalStatus `json:"status"`
	Notes     string       `json:"notes,omitempty"`
}

// Event is a time-bounded husbandry task bound to a cage. A cage references
// at most one current event via Cage.EventID; updates overwrite the record
// in place and no history is retained.
type Event struct {
	Base
	CageID           string      `json:"cage_id"`
	Type             EventType   `json:"type"`
	StartDate        time.Time   `json:"start_date"`
	EndDate          time.Time   `json:"end_date"`
	NotificationDate time.Time   `json:"notification_date"`
	Status           EventStatus `json:"status"`
	Completed        bool        `json:"completed"`
	Title            string      `json:"title,omitempty"`
	Description      string      `json:"description,omitempty"`
}

// Tables groups the four entity collections of the persisted document.
type Tables struct {
	Racks   []Rack   `json:"racks"`
	Cages   []Cage   `json:"cages"`
	Animals []Animal `json:"animals"`
	Events  []Event  `json:"events"`
}

// Document is the single serialized object held under one storage key.
// There is no schema version field; loading normalizes absent collections
// and repairs derived fields in a migration pass.
type Document struct {
	Tables Tables `json:"tables"`
}

// Stats summarizes facility occupancy.
type Stats struct {
	TotalAnimals int `json:"total_animals"`
	ActiveCages  int `json:"active_cages"`
}

// Change captures an entity mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
