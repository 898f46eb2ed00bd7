package core

import "vivarium/pkg/domain"

type (
	EntityType         = domain.EntityType
	CageStatus         = domain.CageStatus
	CageType           = domain.CageType
	Sex                = domain.Sex
	AnimalStatus       = domain.AnimalStatus
	EventType          = domain.EventType
	EventStatus        = domain.EventStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Rack               = domain.Rack
	Cage               = domain.Cage
	Animal             = domain.Animal
	Event              = domain.Event
	Tables             = domain.Tables
	Document           = domain.Document
	Stats              = domain.Stats
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityRack   = domain.EntityRack
	EntityCage   = domain.EntityCage
	EntityAnimal = domain.EntityAnimal
	EntityEvent  = domain.EntityEvent
)

const (
	CageEmpty    = domain.CageEmpty
	CageOccupied = domain.CageOccupied
)

const (
	CageBreeding          = domain.CageBreeding
	CageExpectedPregnancy = domain.CageExpectedPregnancy
	CageWeaning           = domain.CageWeaning
	CageMaintenance       = domain.CageMaintenance
)

const (
	AnimalActive   = domain.AnimalActive
	AnimalInactive = domain.AnimalInactive
	AnimalDeleted  = domain.AnimalDeleted
)

const (
	EventActive    = domain.EventActive
	EventCompleted = domain.EventCompleted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
