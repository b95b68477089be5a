package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "schedulebot/database/repository/bookings"
	"schedulebot/models"
	"schedulebot/services/calendar"
	"schedulebot/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvailabilityChecker re-checks a slot right before booking it.
type AvailabilityChecker interface {
	IsFree(ctx context.Context, slot models.Slot) (bool, []models.Interval, error)
}

// ReminderScheduler queues a reminder for a stored booking.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, b *models.Booking) error
}

// Service submits confirmed bookings to the calendar and keeps a record of them.
type Service struct {
	availability AvailabilityChecker
	gateway      calendar.Gateway
	records      bookingRepo.BookingRepository
	reminders    ReminderScheduler
	businessName string
	days         *utils.KeyedMutex
	now          func() time.Time
	logger       *zap.Logger
}

// NewService wires the booking service. records and reminders may be nil.
func NewService(availability AvailabilityChecker, gateway calendar.Gateway, records bookingRepo.BookingRepository, reminders ReminderScheduler, businessName string, logger *zap.Logger) *Service {
	return &Service{
		availability: availability,
		gateway:      gateway,
		records:      records,
		reminders:    reminders,
		businessName: businessName,
		days:         utils.NewKeyedMutex(),
		now:          time.Now,
		logger:       logger,
	}
}

// Submit books a slot confirmed in the chat. A slot that became busy yields
// calendar.ErrSlotTaken.
func (s *Service) Submit(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	return s.Book(ctx, req, models.BookingSourceChat)
}

// Book creates the calendar event for a slot that is still free and records
// the booking. The check and the insert run under a lock on the slot's calendar
// date, so overlapping requests from different users cannot both pass the
// check.
func (s *Service) Book(ctx context.Context, req models.BookingRequest, source string) (*models.Booking, error) {
	unlock, err := s.days.LockContext(ctx, req.Slot.Start.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("wait for slot lock: %w", err)
	}
	defer unlock()

	free, conflicts, err := s.availability.IsFree(ctx, req.Slot)
	if err != nil {
		utils.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("re-check slot: %w", err)
	}
	if !free {
		utils.BookingsTotal.WithLabelValues("slot_taken").Inc()
		s.logger.Info("Slot busy at confirmation", zap.String("slot", req.Slot.Key()), zap.Int("conflicts", len(conflicts)))
		return nil, calendar.ErrSlotTaken
	}

	eventID, err := s.gateway.CreateEvent(ctx, req.Slot, EventDetailsFor(req, s.businessName))
	if err != nil {
		utils.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create event: %w", err)
	}

	b := &models.Booking{
		ID:          uuid.NewString(),
		EventID:     eventID,
		UserKey:     req.UserKey,
		Start:       req.Slot.Start,
		End:         req.Slot.End,
		Timezone:    req.Slot.Timezone(),
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		Description: req.Description,
		Source:      source,
		CreatedAt:   s.now(),
	}
	s.persist(ctx, b)
	utils.BookingsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Booking created", zap.String("booking", b.ID), zap.String("event", eventID), zap.String("user", req.UserKey), zap.String("source", source))
	return b, nil
}

// persist stores the booking and schedules its reminder. The event already
// exists at this point, so failures are logged and otherwise ignored.
func (s *Service) persist(ctx context.Context, b *models.Booking) {
	if s.records != nil {
		if _, err := s.records.Create(ctx, b); err != nil {
			s.logger.Error("Failed to record booking", zap.String("event", b.EventID), zap.Error(err))
		}
	}
	if s.reminders != nil && b.UserKey != "" {
		if err := s.reminders.ScheduleReminder(ctx, b); err != nil {
			s.logger.Error("Failed to schedule reminder", zap.String("booking", b.ID), zap.Error(err))
		}
	}
}

// Reschedule moves the record of an event to a new slot.
func (s *Service) Reschedule(ctx context.Context, eventID string, slot models.Slot) {
	if s.records == nil {
		return
	}
	b, err := s.records.GetByEventID(ctx, eventID)
	if err != nil {
		if !errors.Is(err, bookingRepo.ErrBookingNotFound) {
			s.logger.Error("Failed to load booking record", zap.String("event", eventID), zap.Error(err))
		}
		return
	}
	b.Start, b.End, b.Timezone = slot.Start, slot.End, slot.Timezone()
	if err := s.records.UpdateByEventID(ctx, eventID, b); err != nil {
		s.logger.Error("Failed to update booking record", zap.String("event", eventID), zap.Error(err))
	}
}

// Forget removes the record of a deleted event.
func (s *Service) Forget(ctx context.Context, eventID string) {
	if s.records == nil {
		return
	}
	if err := s.records.DeleteByEventID(ctx, eventID); err != nil && !errors.Is(err, bookingRepo.ErrBookingNotFound) {
		s.logger.Error("Failed to delete booking record", zap.String("event", eventID), zap.Error(err))
	}
}

// EventDetailsFor renders the calendar event for a booking request.
func EventDetailsFor(req models.BookingRequest, businessName string) calendar.EventDetails {
	return calendar.EventDetails{
		Summary: fmt.Sprintf("Visit: %s (%s)", req.Name, businessName),
		Description: fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\nAddress: %s\nDate: %s\nDuration: %d min\nTime zone: %s\n\nProject:\n%s",
			req.Name, req.Email, req.UserKey, req.Address, req.Slot.Describe(),
			int(req.Slot.Duration().Minutes()), req.Slot.Timezone(), req.Description),
	}
}
