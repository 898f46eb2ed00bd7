// Package notify defines the contract the inventory offers to a notification
// scheduler, plus the daily digest worker that summarizes expired and
// upcoming husbandry events. Delivery mechanics (push channels, device
// permissions) live outside this module.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vivarium/pkg/domain"
)

// Scheduler receives event notification requests. Calls are best-effort:
// the store commits regardless of scheduler outcome.
type Scheduler interface {
	// ScheduleEventNotification registers (or re-registers) the reminder for
	// an event's notification date. Implementations replace any prior
	// schedule for the same event id.
	ScheduleEventNotification(ctx context.Context, event domain.Event) error
	// CancelEventNotification drops any pending reminder for the event id.
	CancelEventNotification(ctx context.Context, eventID string) error
}

// NoopScheduler discards all requests.
type NoopScheduler struct{}

func (NoopScheduler) ScheduleEventNotification(context.Context, domain.Event) error { return nil }
func (NoopScheduler) CancelEventNotification(context.Context, string) error         { return nil }

// LogScheduler records schedule requests through a structured logger. It is
// the default wiring for the commands, where an external delivery channel is
// out of scope.
type LogScheduler struct {
	log *zap.Logger
}

// NewLogScheduler constructs a scheduler writing to the supplied logger.
func NewLogScheduler(log *zap.Logger) *LogScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogScheduler{log: log}
}

func (s *LogScheduler) ScheduleEventNotification(_ context.Context, event domain.Event) error {
	s.log.Info("schedule event notification",
		zap.String("event_id", event.ID),
		zap.String("cage_id", event.CageID),
		zap.String("type", string(event.Type)),
		zap.Time("notification_date", event.NotificationDate),
	)
	return nil
}

func (s *LogScheduler) CancelEventNotification(_ context.Context, eventID string) error {
	s.log.Info("cancel event notification", zap.String("event_id", eventID))
	return nil
}

// RecordingScheduler captures requests in memory for tests.
type RecordingScheduler struct {
	Scheduled []domain.Event
	Cancelled []string
}

func (r *RecordingScheduler) ScheduleEventNotification(_ context.Context, event domain.Event) error {
	r.Scheduled = append(r.Scheduled, event)
	return nil
}

func (r *RecordingScheduler) CancelEventNotification(_ context.Context, eventID string) error {
	r.Cancelled = append(r.Cancelled, eventID)
	return nil
}

// Digest summarizes the facility's event queue at a point in time.
type Digest struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Expired     []domain.Event `json:"expired"`
	Upcoming    []domain.Event `json:"upcoming"`
}
