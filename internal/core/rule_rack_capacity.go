package core

import (
	"context"
	"fmt"

	"vivarium/pkg/domain"
)

// NewRackCapacityRule returns the rule checking that a rack's capacity
// matches its cage count. The relationship is maintained on cage add/remove
// rather than hard-constrained, so drift only warns.
func NewRackCapacityRule() domain.Rule {
	return rackCapacityRule{}
}

type rackCapacityRule struct{}

func (rackCapacityRule) Name() string { return "rack_capacity" }

func (rackCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	counts := make(map[string]int)
	for _, cage := range view.ListCages() {
		counts[cage.RackID]++
	}

	res := domain.Result{}
	for _, rack := range view.ListRacks() {
		if count := counts[rack.ID]; count != rack.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "rack_capacity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("rack %s (%s) capacity %d does not match %d cages", rack.Name, rack.ID, rack.Capacity, count),
				Entity:   domain.EntityRack,
				EntityID: rack.ID,
			})
		}
	}
	return res, nil
}
