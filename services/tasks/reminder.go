package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"schedulebot/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeSendReminder = "reminder:send"

func NewReminderTask(payload models.ReminderPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("reminder:" + payload.BookingID),
		asynq.MaxRetry(3),
	}

	return task, opts, nil
}

// ReminderBody is the text sent ahead of an appointment.
func ReminderBody(b *models.Booking, businessName string) string {
	when := models.Slot{Start: b.Start, End: b.End}.Describe()
	return fmt.Sprintf("⏰ Reminder from %s: your appointment is on %s (%s). Reply \"menu\" if you need anything else.",
		businessName, when, b.Address)
}

// Scheduler queues reminders on the asynq Redis queue.
type Scheduler struct {
	client       *asynq.Client
	lead         time.Duration
	businessName string
	now          func() time.Time
	logger       *zap.Logger
}

func NewScheduler(client *asynq.Client, lead time.Duration, businessName string, logger *zap.Logger) *Scheduler {
	return &Scheduler{client: client, lead: lead, businessName: businessName, now: time.Now, logger: logger}
}

// ScheduleReminder queues a reminder lead before the booking starts. Bookings
// too close to now get none.
func (s *Scheduler) ScheduleReminder(ctx context.Context, b *models.Booking) error {
	fireAt := b.Start.Add(-s.lead)
	if !fireAt.After(s.now()) {
		s.logger.Debug("Booking too close for a reminder", zap.String("booking", b.ID))
		return nil
	}
	task, opts, err := NewReminderTask(models.ReminderPayload{
		BookingID: b.ID,
		To:        b.UserKey,
		Body:      ReminderBody(b, s.businessName),
	}, fireAt)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue reminder: %w", err)
	}
	s.logger.Info("Reminder scheduled", zap.String("booking", b.ID), zap.String("task", info.ID), zap.Time("fireAt", fireAt))
	return nil
}
