package core

import (
	"context"
	"fmt"
	"sort"

	"vivarium/pkg/domain"
)

// NewCageOccupancyRule returns the in-transaction rule enforcing that a
// cage's status and animal id list match the animal table exactly.
func NewCageOccupancyRule() domain.Rule {
	return cageOccupancyRule{}
}

type cageOccupancyRule struct{}

func (cageOccupancyRule) Name() string { return "cage_occupancy" }

func (cageOccupancyRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	members := make(map[string][]string)
	for _, animal := range view.ListAnimals() {
		if animal.CageID == nil || animal.Status == domain.AnimalDeleted {
			continue
		}
		members[*animal.CageID] = append(members[*animal.CageID], animal.ID)
	}

	res := domain.Result{}
	for _, cage := range view.ListCages() {
		want := members[cage.ID]
		sort.Strings(want)
		occupied := len(want) > 0
		if occupied != (cage.Status == domain.CageOccupied) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cage_occupancy",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cage %s status %s does not match %d housed animals", cage.ID, cage.Status, len(want)),
				Entity:   domain.EntityCage,
				EntityID: cage.ID,
			})
			continue
		}
		if !equalIDs(cage.AnimalIDs, want) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cage_occupancy",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cage %s animal ids diverge from animal table", cage.ID),
				Entity:   domain.EntityCage,
				EntityID: cage.ID,
			})
		}
	}
	return res, nil
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
