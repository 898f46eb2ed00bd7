// Package feed publishes "data changed" notifications after transactions
// commit. The store core never depends on it; the service layers it on as an
// option so subscribers (UI refresh, cache invalidation) can react without
// polling.
package feed

import (
	"context"
	"time"

	"vivarium/pkg/domain"
)

// ChangeRecord is the wire shape of a committed mutation.
type ChangeRecord struct {
	Entity    domain.EntityType `json:"entity"`
	Action    domain.Action     `json:"action"`
	ID        string            `json:"id"`
	Timestamp int64             `json:"timestamp"`
}

// NewChangeRecord builds a record from a transaction change.
func NewChangeRecord(change domain.Change, now time.Time) ChangeRecord {
	return ChangeRecord{
		Entity:    change.Entity,
		Action:    change.Action,
		ID:        changeID(change),
		Timestamp: now.Unix(),
	}
}

func changeID(change domain.Change) string {
	entity := change.After
	if entity == nil {
		entity = change.Before
	}
	switch v := entity.(type) {
	case domain.Rack:
		return v.ID
	case domain.Cage:
		return v.ID
	case domain.Animal:
		return v.ID
	case domain.Event:
		return v.ID
	}
	return ""
}

// Bus delivers change records to subscribers. Publish is best-effort from
// the caller's perspective: the transaction has already committed.
type Bus interface {
	Publish(ctx context.Context, record ChangeRecord) error
	Subscribe(ctx context.Context) <-chan ChangeRecord
	Close() error
}
