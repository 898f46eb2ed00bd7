package domain

import "fmt"

// NotFoundError reports a referenced id that is absent from the document.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports caller-supplied data violating a precondition,
// such as a negative capacity or a transfer to the same cage.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConflictError reports a computed invariant violation, indicating prior
// state corruption rather than bad caller input.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// StorageError wraps serialization or storage I/O failures surfaced during
// document load or persist. The in-memory change is discarded; callers must
// re-invoke the operation.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }
