package core

import (
	"context"
	"fmt"

	"vivarium/pkg/domain"
)

// NewEventBindingRule returns the rule enforcing the cage/event
// cross-reference: a bound event must exist, must point back at the cage,
// and its type must match the cage's workflow type.
func NewEventBindingRule() domain.Rule {
	return eventBindingRule{}
}

type eventBindingRule struct{}

func (eventBindingRule) Name() string { return "event_binding" }

func (eventBindingRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, cage := range view.ListCages() {
		if cage.EventID == nil {
			continue
		}
		event, ok := view.FindEvent(*cage.EventID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "event_binding",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cage %s references missing event %s", cage.ID, *cage.EventID),
				Entity:   domain.EntityCage,
				EntityID: cage.ID,
			})
			continue
		}
		if event.CageID != cage.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "event_binding",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("event %s belongs to cage %s, not %s", event.ID, event.CageID, cage.ID),
				Entity:   domain.EntityEvent,
				EntityID: event.ID,
			})
			continue
		}
		if event.Type != domain.EventGeneral && event.Type != cage.Type.EventType() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "event_binding",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("event %s type %s diverges from cage type %s", event.ID, event.Type, cage.Type),
				Entity:   domain.EntityEvent,
				EntityID: event.ID,
			})
		}
	}
	return res, nil
}
