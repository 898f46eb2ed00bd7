package core

import (
	"context"
	"fmt"

	"vivarium/pkg/domain"
)

// NewPositionUniqueRule returns the rule enforcing that no two cages share a
// position within the same rack.
func NewPositionUniqueRule() domain.Rule {
	return positionUniqueRule{}
}

type positionUniqueRule struct{}

func (positionUniqueRule) Name() string { return "position_unique" }

func (positionUniqueRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	type slot struct {
		rack     string
		position int
	}
	seen := make(map[slot]string)
	res := domain.Result{}
	for _, cage := range view.ListCages() {
		key := slot{rack: cage.RackID, position: cage.Position}
		if other, dup := seen[key]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "position_unique",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cages %s and %s share position %d in rack %s", other, cage.ID, cage.Position, cage.RackID),
				Entity:   domain.EntityCage,
				EntityID: cage.ID,
			})
			continue
		}
		seen[key] = cage.ID
	}
	return res, nil
}
