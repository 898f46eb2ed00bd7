package core

import (
	"context"
	"sort"
	"time"

	"vivarium/pkg/domain"
)

// upcomingWindow bounds the UpcomingEvents query.
const upcomingWindow = 7 * 24 * time.Hour

// Racks lists all racks.
func (s *Service) Racks(ctx context.Context) ([]Rack, error) {
	var racks []Rack
	err := s.store.View(ctx, func(view TransactionView) error {
		racks = view.ListRacks()
		return nil
	})
	return racks, err
}

// RackByID fetches one rack.
func (s *Service) RackByID(ctx context.Context, id string) (Rack, error) {
	var rack Rack
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindRack(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: id}
		}
		rack = found
		return nil
	})
	return rack, err
}

// Cages lists all cages.
func (s *Service) Cages(ctx context.Context) ([]Cage, error) {
	var cages []Cage
	err := s.store.View(ctx, func(view TransactionView) error {
		cages = view.ListCages()
		return nil
	})
	return cages, err
}

// CageByID fetches one cage.
func (s *Service) CageByID(ctx context.Context, id string) (Cage, error) {
	var cage Cage
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindCage(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: id}
		}
		cage = found
		return nil
	})
	return cage, err
}

// Animals lists all animals.
func (s *Service) Animals(ctx context.Context) ([]Animal, error) {
	var animals []Animal
	err := s.store.View(ctx, func(view TransactionView) error {
		animals = view.ListAnimals()
		return nil
	})
	return animals, err
}

// AnimalByID fetches one animal.
func (s *Service) AnimalByID(ctx context.Context, id string) (Animal, error) {
	var animal Animal
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindAnimal(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityAnimal, ID: id}
		}
		animal = found
		return nil
	})
	return animal, err
}

// Events lists all events.
func (s *Service) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	err := s.store.View(ctx, func(view TransactionView) error {
		events = view.ListEvents()
		return nil
	})
	return events, err
}

// EventByID fetches one event.
func (s *Service) EventByID(ctx context.Context, id string) (Event, error) {
	var event Event
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindEvent(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityEvent, ID: id}
		}
		event = found
		return nil
	})
	return event, err
}

// CagesByRack lists a rack's cages sorted by position.
func (s *Service) CagesByRack(ctx context.Context, rackID string) ([]Cage, error) {
	var cages []Cage
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindRack(rackID); !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: rackID}
		}
		for _, cage := range view.ListCages() {
			if cage.RackID == rackID {
				cages = append(cages, cage)
			}
		}
		sort.Slice(cages, func(i, j int) bool { return cages[i].Position < cages[j].Position })
		return nil
	})
	return cages, err
}

// AnimalsByCage lists the non-deleted animals housed in a cage.
func (s *Service) AnimalsByCage(ctx context.Context, cageID string) ([]Animal, error) {
	var animals []Animal
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindCage(cageID); !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		for _, animal := range view.ListAnimals() {
			if animal.CageID != nil && *animal.CageID == cageID && animal.Status != AnimalDeleted {
				animals = append(animals, animal)
			}
		}
		return nil
	})
	return animals, err
}

// AnimalCountForCage counts the non-deleted animals housed in a cage.
func (s *Service) AnimalCountForCage(ctx context.Context, cageID string) (int, error) {
	count := 0
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindCage(cageID); !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		count = housedCount(view, cageID)
		return nil
	})
	return count, err
}

// EventByCage returns the cage's current bound event. The boolean reports
// whether one is bound.
func (s *Service) EventByCage(ctx context.Context, cageID string) (Event, bool, error) {
	var event Event
	bound := false
	err := s.store.View(ctx, func(view TransactionView) error {
		cage, ok := view.FindCage(cageID)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		if cage.EventID == nil {
			return nil
		}
		if found, ok := view.FindEvent(*cage.EventID); ok {
			event = found
			bound = true
		}
		return nil
	})
	return event, bound, err
}

// AvailableCagesForTransfer lists the cages of a rack that can receive an
// animal: every cage except the source with room below its capacity, sorted
// by position.
func (s *Service) AvailableCagesForTransfer(ctx context.Context, rackID, excludeCageID string) ([]Cage, error) {
	var cages []Cage
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindRack(rackID); !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: rackID}
		}
		for _, cage := range view.ListCages() {
			if cage.RackID != rackID || cage.ID == excludeCageID {
				continue
			}
			if housedCount(view, cage.ID) < cage.Capacity {
				cages = append(cages, cage)
			}
		}
		sort.Slice(cages, func(i, j int) bool { return cages[i].Position < cages[j].Position })
		return nil
	})
	return cages, err
}

// Stats summarizes facility occupancy.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, animal := range view.ListAnimals() {
			if animal.Status != AnimalDeleted {
				stats.TotalAnimals++
			}
		}
		for _, cage := range view.ListCages() {
			if cage.Status == CageOccupied {
				stats.ActiveCages++
			}
		}
		return nil
	})
	return stats, err
}

// ExpiredEvents lists events whose end date has passed without completion.
func (s *Service) ExpiredEvents(ctx context.Context) ([]Event, error) {
	now := s.now()
	var events []Event
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, event := range view.ListEvents() {
			if event.Completed || !event.EndDate.Before(now) {
				continue
			}
			events = append(events, event)
		}
		sortEventsByEnd(events)
		return nil
	})
	return events, err
}

// UpcomingEvents lists incomplete events ending within the next seven days.
func (s *Service) UpcomingEvents(ctx context.Context) ([]Event, error) {
	now := s.now()
	horizon := now.Add(upcomingWindow)
	var events []Event
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, event := range view.ListEvents() {
			if event.Completed {
				continue
			}
			if event.EndDate.Before(now) || event.EndDate.After(horizon) {
				continue
			}
			events = append(events, event)
		}
		sortEventsByEnd(events)
		return nil
	})
	return events, err
}

// NextFreePosition reports the position AddCage would assign in a rack.
func (s *Service) NextFreePosition(ctx context.Context, rackID string) (int, error) {
	position := 0
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindRack(rackID); !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: rackID}
		}
		position = nextFreePosition(view, rackID)
		return nil
	})
	return position, err
}

func sortEventsByEnd(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].EndDate.Equal(events[j].EndDate) {
			return events[i].ID < events[j].ID
		}
		return events[i].EndDate.Before(events[j].EndDate)
	})
}
