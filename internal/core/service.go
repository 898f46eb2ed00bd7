package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vivarium/internal/feed"
	"vivarium/internal/infra/persistence/memory"
	"vivarium/internal/notify"
	"vivarium/pkg/domain"
)

// Service exposes one transactional operation per user action. Every
// mutation runs as a single load, mutate, validate, persist cycle; the
// scheduler and change feed are notified only after the commit succeeds.
type Service struct {
	store     PersistentStore
	log       *zap.Logger
	metrics   MetricsRecorder
	scheduler notify.Scheduler
	bus       feed.Bus
	nowFn     func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger attaches a structured logger. Defaults to a no-op.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches an operation metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithScheduler attaches the notification scheduler.
func WithScheduler(sched notify.Scheduler) Option {
	return func(s *Service) {
		if sched != nil {
			s.scheduler = sched
		}
	}
}

// WithFeed attaches a change feed bus for post-commit publication.
func WithFeed(bus feed.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithClock overrides the service clock for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		log:       zap.NewNop(),
		scheduler: notify.NoopScheduler{},
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service with an in-memory store and the
// default rules engine.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

// sideEffects collects post-commit work accumulated while a transaction
// closure runs. Nothing is delivered when the commit fails.
type sideEffects struct {
	records  []feed.ChangeRecord
	schedule []Event
	cancel   []string
}

func (fx *sideEffects) changed(entity EntityType, action Action, id string, at time.Time) {
	fx.records = append(fx.records, feed.ChangeRecord{
		Entity:    entity,
		Action:    action,
		ID:        id,
		Timestamp: at.Unix(),
	})
}

func (s *Service) commit(ctx context.Context, op string, fn func(tx Transaction, fx *sideEffects) error) (Result, error) {
	started := time.Now()
	fx := &sideEffects{}
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		*fx = sideEffects{}
		return fn(tx, fx)
	})
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	}
	if err != nil {
		s.log.Warn("operation failed", zap.String("operation", op), zap.Error(err))
		return res, err
	}
	s.log.Debug("operation committed",
		zap.String("operation", op),
		zap.Int("changes", len(fx.records)),
		zap.Int("warnings", len(res.Violations)),
	)
	s.deliver(ctx, fx)
	return res, nil
}

func (s *Service) deliver(ctx context.Context, fx *sideEffects) {
	if s.bus != nil {
		for _, record := range fx.records {
			if err := s.bus.Publish(ctx, record); err != nil {
				s.log.Warn("change feed publish failed", zap.String("id", record.ID), zap.Error(err))
			}
		}
	}
	now := s.now()
	for _, event := range fx.schedule {
		if !event.NotificationDate.After(now) {
			continue
		}
		if err := s.scheduler.ScheduleEventNotification(ctx, event); err != nil {
			s.log.Warn("notification schedule failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	for _, id := range fx.cancel {
		if err := s.scheduler.CancelEventNotification(ctx, id); err != nil {
			s.log.Warn("notification cancel failed", zap.String("event_id", id), zap.Error(err))
		}
	}
}

// AddRack creates a rack together with its initial cages, one per position
// 1..capacity, all empty and in maintenance.
func (s *Service) AddRack(ctx context.Context, name string, position, capacity int) (Rack, Result, error) {
	var created Rack
	res, err := s.commit(ctx, "add_rack", func(tx Transaction, fx *sideEffects) error {
		if capacity < 0 {
			return domain.ValidationError{Reason: "rack capacity must not be negative"}
		}
		var err error
		created, err = tx.CreateRack(Rack{Name: name, Position: position, Capacity: capacity})
		if err != nil {
			return err
		}
		fx.changed(EntityRack, ActionCreate, created.ID, s.now())
		for pos := 1; pos <= capacity; pos++ {
			cage, err := tx.CreateCage(Cage{
				RackID:    created.ID,
				Position:  pos,
				Number:    pos,
				Status:    CageEmpty,
				Type:      CageMaintenance,
				Capacity:  domain.DefaultCageCapacity,
				MaxEvents: domain.DefaultCageMaxEvents,
			})
			if err != nil {
				return err
			}
			fx.changed(EntityCage, ActionCreate, cage.ID, s.now())
		}
		return nil
	})
	return created, res, err
}

// UpdateRack mutates a rack using the provided mutator.
func (s *Service) UpdateRack(ctx context.Context, id string, mutator func(*Rack) error) (Rack, Result, error) {
	var updated Rack
	res, err := s.commit(ctx, "update_rack", func(tx Transaction, fx *sideEffects) error {
		var err error
		updated, err = tx.UpdateRack(id, mutator)
		if err != nil {
			return err
		}
		fx.changed(EntityRack, ActionUpdate, updated.ID, s.now())
		return nil
	})
	return updated, res, err
}

// DeleteRack removes a rack and everything it transitively owns: the events
// on its cages, the animals housed in them, the cages, then the rack. The
// cascade commits as one write.
func (s *Service) DeleteRack(ctx context.Context, id string) (Result, error) {
	return s.commit(ctx, "delete_rack", func(tx Transaction, fx *sideEffects) error {
		if _, ok := tx.FindRack(id); !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: id}
		}
		view := tx.Snapshot()
		for _, cage := range view.ListCages() {
			if cage.RackID != id {
				continue
			}
			if err := s.deleteCageCascade(tx, fx, cage); err != nil {
				return err
			}
		}
		if err := tx.DeleteRack(id); err != nil {
			return err
		}
		fx.changed(EntityRack, ActionDelete, id, s.now())
		return nil
	})
}

// deleteCageCascade removes a cage plus its events and animals.
func (s *Service) deleteCageCascade(tx Transaction, fx *sideEffects, cage Cage) error {
	view := tx.Snapshot()
	for _, event := range view.ListEvents() {
		if event.CageID != cage.ID {
			continue
		}
		if err := tx.DeleteEvent(event.ID); err != nil {
			return err
		}
		fx.changed(EntityEvent, ActionDelete, event.ID, s.now())
		fx.cancel = append(fx.cancel, event.ID)
	}
	for _, animal := range view.ListAnimals() {
		if animal.CageID == nil || *animal.CageID != cage.ID {
			continue
		}
		if err := tx.DeleteAnimal(animal.ID); err != nil {
			return err
		}
		fx.changed(EntityAnimal, ActionDelete, animal.ID, s.now())
	}
	if err := tx.DeleteCage(cage.ID); err != nil {
		return err
	}
	fx.changed(EntityCage, ActionDelete, cage.ID, s.now())
	return nil
}

// AddCage appends a cage to a rack at the lowest free position and bumps the
// rack's capacity.
func (s *Service) AddCage(ctx context.Context, rackID string) (Cage, Result, error) {
	var created Cage
	res, err := s.commit(ctx, "add_cage", func(tx Transaction, fx *sideEffects) error {
		if _, ok := tx.FindRack(rackID); !ok {
			return domain.NotFoundError{Entity: EntityRack, ID: rackID}
		}
		view := tx.Snapshot()
		position := nextFreePosition(view, rackID)
		for _, cage := range view.ListCages() {
			if cage.RackID == rackID && cage.Position == position {
				return domain.ConflictError{Reason: "cage position already occupied"}
			}
		}
		var err error
		created, err = tx.CreateCage(Cage{
			RackID:    rackID,
			Position:  position,
			Number:    position,
			Status:    CageEmpty,
			Type:      CageMaintenance,
			Capacity:  domain.DefaultCageCapacity,
			MaxEvents: domain.DefaultCageMaxEvents,
		})
		if err != nil {
			return err
		}
		fx.changed(EntityCage, ActionCreate, created.ID, s.now())
		rack, err := tx.UpdateRack(rackID, func(r *Rack) error {
			r.Capacity++
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityRack, ActionUpdate, rack.ID, s.now())
		return nil
	})
	return created, res, err
}

// DeleteCage removes a cage with its animals and events, and drops the
// rack's capacity by one (never below zero).
func (s *Service) DeleteCage(ctx context.Context, id string) (Result, error) {
	return s.commit(ctx, "delete_cage", func(tx Transaction, fx *sideEffects) error {
		cage, ok := tx.FindCage(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: id}
		}
		if err := s.deleteCageCascade(tx, fx, cage); err != nil {
			return err
		}
		rack, err := tx.UpdateRack(cage.RackID, func(r *Rack) error {
			if r.Capacity > 0 {
				r.Capacity--
			}
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityRack, ActionUpdate, rack.ID, s.now())
		return nil
	})
}

// ClearCage deletes the cage's current event, detaches its animals (kept as
// inactive records), and resets the cage to empty maintenance.
func (s *Service) ClearCage(ctx context.Context, id string) (Result, error) {
	return s.commit(ctx, "clear_cage", func(tx Transaction, fx *sideEffects) error {
		if _, ok := tx.FindCage(id); !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: id}
		}
		return s.clearCage(tx, fx, id)
	})
}

func (s *Service) clearCage(tx Transaction, fx *sideEffects, cageID string) error {
	view := tx.Snapshot()
	for _, event := range view.ListEvents() {
		if event.CageID != cageID {
			continue
		}
		if err := tx.DeleteEvent(event.ID); err != nil {
			return err
		}
		fx.changed(EntityEvent, ActionDelete, event.ID, s.now())
		fx.cancel = append(fx.cancel, event.ID)
	}
	for _, animal := range view.ListAnimals() {
		if animal.CageID == nil || *animal.CageID != cageID {
			continue
		}
		updated, err := tx.UpdateAnimal(animal.ID, func(a *Animal) error {
			a.CageID = nil
			a.Status = AnimalInactive
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityAnimal, ActionUpdate, updated.ID, s.now())
	}
	cage, err := tx.UpdateCage(cageID, func(c *Cage) error {
		c.Type = CageMaintenance
		c.EventID = nil
		return nil
	})
	if err != nil {
		return err
	}
	fx.changed(EntityCage, ActionUpdate, cage.ID, s.now())
	return nil
}

// UpdateCage mutates cage metadata (notes, capacity) using the provided
// mutator. Status and animal ids are derived and recomputed on commit.
func (s *Service) UpdateCage(ctx context.Context, id string, mutator func(*Cage) error) (Cage, Result, error) {
	var updated Cage
	res, err := s.commit(ctx, "update_cage", func(tx Transaction, fx *sideEffects) error {
		var err error
		updated, err = tx.UpdateCage(id, mutator)
		if err != nil {
			return err
		}
		fx.changed(EntityCage, ActionUpdate, updated.ID, s.now())
		return nil
	})
	return updated, res, err
}

// AddAnimal houses a new animal in a cage, flips the cage into the given
// husbandry type, and opens or refreshes the cage's countdown event. A
// non-positive durationDays selects the default for the type. Maintenance
// carries no countdown, so any bound event is dropped.
func (s *Service) AddAnimal(ctx context.Context, animal Animal, cageID string, cageType CageType, durationDays int) (Animal, Result, error) {
	var created Animal
	res, err := s.commit(ctx, "add_animal", func(tx Transaction, fx *sideEffects) error {
		cage, ok := tx.FindCage(cageID)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		animal.CageID = &cageID
		if animal.Status == "" {
			animal.Status = AnimalActive
		}
		var err error
		created, err = tx.CreateAnimal(animal)
		if err != nil {
			return err
		}
		fx.changed(EntityAnimal, ActionCreate, created.ID, s.now())
		return s.applyCageType(tx, fx, cage, cageType, durationDays)
	})
	return created, res, err
}

// applyCageType transitions a cage into the given husbandry type and keeps
// its single current event in sync: updated in place when one is bound,
// created otherwise, deleted for maintenance.
func (s *Service) applyCageType(tx Transaction, fx *sideEffects, cage Cage, cageType CageType, durationDays int) error {
	if cageType == CageMaintenance {
		if cage.EventID != nil {
			eventID := *cage.EventID
			if _, ok := tx.FindEvent(eventID); ok {
				if err := tx.DeleteEvent(eventID); err != nil {
					return err
				}
				fx.changed(EntityEvent, ActionDelete, eventID, s.now())
				fx.cancel = append(fx.cancel, eventID)
			}
		}
		updated, err := tx.UpdateCage(cage.ID, func(c *Cage) error {
			c.Type = CageMaintenance
			c.EventID = nil
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityCage, ActionUpdate, updated.ID, s.now())
		return nil
	}

	if durationDays <= 0 {
		durationDays = cageType.EventDuration()
	}
	start := s.now()
	end := start.AddDate(0, 0, durationDays)
	return s.upsertCageEvent(tx, fx, cage, cageType, start, end, end, "")
}

// upsertCageEvent updates the cage's bound event in place or creates one,
// then points the cage at it. There is never a second concurrent event.
func (s *Service) upsertCageEvent(tx Transaction, fx *sideEffects, cage Cage, cageType CageType, start, end, notification time.Time, notes string) error {
	eventType := cageType.EventType()
	var event Event
	if cage.EventID != nil {
		if existing, ok := tx.FindEvent(*cage.EventID); ok {
			updated, err := tx.UpdateEvent(existing.ID, func(e *Event) error {
				e.Type = eventType
				e.StartDate = start
				e.EndDate = end
				e.NotificationDate = notification
				e.Status = EventActive
				e.Completed = false
				return nil
			})
			if err != nil {
				return err
			}
			event = updated
			fx.changed(EntityEvent, ActionUpdate, event.ID, s.now())
		}
	}
	if event.ID == "" {
		created, err := tx.CreateEvent(Event{
			CageID:           cage.ID,
			Type:             eventType,
			StartDate:        start,
			EndDate:          end,
			NotificationDate: notification,
			Status:           EventActive,
		})
		if err != nil {
			return err
		}
		event = created
		fx.changed(EntityEvent, ActionCreate, event.ID, s.now())
	}
	eventID := event.ID
	updated, err := tx.UpdateCage(cage.ID, func(c *Cage) error {
		c.Type = cageType
		c.EventID = &eventID
		if notes != "" {
			c.Notes = notes
		}
		return nil
	})
	if err != nil {
		return err
	}
	fx.changed(EntityCage, ActionUpdate, updated.ID, s.now())
	fx.schedule = append(fx.schedule, event)
	return nil
}

// RemoveAnimal deletes an animal from its cage. Removing the last animal
// clears the cage: the bound event is deleted and the cage returns to empty
// maintenance.
func (s *Service) RemoveAnimal(ctx context.Context, animalID, cageID string) (Result, error) {
	return s.commit(ctx, "remove_animal", func(tx Transaction, fx *sideEffects) error {
		animal, ok := tx.FindAnimal(animalID)
		if !ok {
			return domain.NotFoundError{Entity: EntityAnimal, ID: animalID}
		}
		if animal.CageID == nil || *animal.CageID != cageID {
			return domain.ValidationError{Reason: "animal is not housed in the given cage"}
		}
		if _, ok := tx.FindCage(cageID); !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		if err := tx.DeleteAnimal(animalID); err != nil {
			return err
		}
		fx.changed(EntityAnimal, ActionDelete, animalID, s.now())
		if housedCount(tx.Snapshot(), cageID) == 0 {
			return s.clearCage(tx, fx, cageID)
		}
		return nil
	})
}

// TransferAnimal moves an animal between cages. An emptied source drops to
// maintenance with its event record left in the table unbound; a previously
// empty destination gets a fresh maintenance reminder.
func (s *Service) TransferAnimal(ctx context.Context, animalID, fromCageID, toCageID string) (Result, error) {
	return s.commit(ctx, "transfer_animal", func(tx Transaction, fx *sideEffects) error {
		if fromCageID == toCageID {
			return domain.ValidationError{Reason: "source and destination cage are the same"}
		}
		animal, ok := tx.FindAnimal(animalID)
		if !ok {
			return domain.NotFoundError{Entity: EntityAnimal, ID: animalID}
		}
		if _, ok := tx.FindCage(fromCageID); !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: fromCageID}
		}
		dest, ok := tx.FindCage(toCageID)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: toCageID}
		}
		if animal.CageID == nil || *animal.CageID != fromCageID {
			return domain.ValidationError{Reason: "animal is not housed in the source cage"}
		}
		destWasEmpty := housedCount(tx.Snapshot(), toCageID) == 0

		moved, err := tx.UpdateAnimal(animalID, func(a *Animal) error {
			cageID := toCageID
			a.CageID = &cageID
			a.Status = AnimalActive
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityAnimal, ActionUpdate, moved.ID, s.now())

		if housedCount(tx.Snapshot(), fromCageID) == 0 {
			source, err := tx.UpdateCage(fromCageID, func(c *Cage) error {
				c.Type = CageMaintenance
				c.EventID = nil
				return nil
			})
			if err != nil {
				return err
			}
			fx.changed(EntityCage, ActionUpdate, source.ID, s.now())
		}
		if destWasEmpty {
			now := s.now()
			return s.upsertCageEvent(tx, fx, dest, CageMaintenance, now, now, now, "")
		}
		return nil
	})
}

// UpdateCageType transitions a cage's husbandry type using the default
// countdown for the new type. Progress resets: the event restarts today.
func (s *Service) UpdateCageType(ctx context.Context, cageID string, newType CageType) (Result, error) {
	return s.commit(ctx, "update_cage_type", func(tx Transaction, fx *sideEffects) error {
		cage, ok := tx.FindCage(cageID)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		return s.applyCageType(tx, fx, cage, newType, 0)
	})
}

// CageEventChange describes a combined cage type and event window update.
type CageEventChange struct {
	Type             CageType
	Notes            string
	StartDate        time.Time
	EndDate          time.Time
	NotificationDate time.Time
}

// UpdateCageWithEvent transitions the cage type and updates or creates its
// single current event with an explicit date window.
func (s *Service) UpdateCageWithEvent(ctx context.Context, cageID string, change CageEventChange) (Result, error) {
	return s.commit(ctx, "update_cage_with_event", func(tx Transaction, fx *sideEffects) error {
		cage, ok := tx.FindCage(cageID)
		if !ok {
			return domain.NotFoundError{Entity: EntityCage, ID: cageID}
		}
		if change.Type == CageMaintenance {
			return s.applyCageType(tx, fx, cage, CageMaintenance, 0)
		}
		return s.upsertCageEvent(tx, fx, cage, change.Type, change.StartDate, change.EndDate, change.NotificationDate, change.Notes)
	})
}

// EventPatch carries optional event field updates. Nil fields are left
// unchanged.
type EventPatch struct {
	Type             *EventType
	StartDate        *time.Time
	EndDate          *time.Time
	NotificationDate *time.Time
	Title            *string
	Description      *string
}

// UpdateEvent patches an event. A type change propagates to the owning
// cage's husbandry type; a notification date change re-registers the
// reminder when the new date is still ahead.
func (s *Service) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (Event, Result, error) {
	var updated Event
	res, err := s.commit(ctx, "update_event", func(tx Transaction, fx *sideEffects) error {
		var err error
		updated, err = tx.UpdateEvent(eventID, func(e *Event) error {
			if patch.Type != nil {
				e.Type = *patch.Type
			}
			if patch.StartDate != nil {
				e.StartDate = *patch.StartDate
			}
			if patch.EndDate != nil {
				e.EndDate = *patch.EndDate
			}
			if patch.NotificationDate != nil {
				e.NotificationDate = *patch.NotificationDate
			}
			if patch.Title != nil {
				e.Title = *patch.Title
			}
			if patch.Description != nil {
				e.Description = *patch.Description
			}
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityEvent, ActionUpdate, updated.ID, s.now())

		if patch.Type != nil && *patch.Type != domain.EventGeneral {
			cage, ok := tx.FindCage(updated.CageID)
			if ok && cage.EventID != nil && *cage.EventID == updated.ID && cage.Type != CageType(*patch.Type) {
				changedCage, err := tx.UpdateCage(cage.ID, func(c *Cage) error {
					c.Type = CageType(updated.Type)
					return nil
				})
				if err != nil {
					return err
				}
				fx.changed(EntityCage, ActionUpdate, changedCage.ID, s.now())
			}
		}
		if patch.NotificationDate != nil {
			fx.schedule = append(fx.schedule, updated)
		}
		return nil
	})
	return updated, res, err
}

// CompleteEvent marks an event completed and cancels its pending reminder.
func (s *Service) CompleteEvent(ctx context.Context, eventID string) (Event, Result, error) {
	var completed Event
	res, err := s.commit(ctx, "complete_event", func(tx Transaction, fx *sideEffects) error {
		var err error
		completed, err = tx.UpdateEvent(eventID, func(e *Event) error {
			e.Completed = true
			e.Status = EventCompleted
			return nil
		})
		if err != nil {
			return err
		}
		fx.changed(EntityEvent, ActionUpdate, completed.ID, s.now())
		fx.cancel = append(fx.cancel, completed.ID)
		return nil
	})
	return completed, res, err
}

// housedCount returns the number of non-deleted animals referencing a cage.
func housedCount(view TransactionView, cageID string) int {
	count := 0
	for _, animal := range view.ListAnimals() {
		if animal.CageID == nil || *animal.CageID != cageID {
			continue
		}
		if animal.Status == AnimalDeleted {
			continue
		}
		count++
	}
	return count
}

// nextFreePosition returns the lowest position >= 1 not used by any cage of
// the rack. Gaps left by deleted cages are filled first.
func nextFreePosition(view TransactionView, rackID string) int {
	used := make(map[int]bool)
	for _, cage := range view.ListCages() {
		if cage.RackID == rackID {
			used[cage.Position] = true
		}
	}
	position := 1
	for used[position] {
		position++
	}
	return position
}
