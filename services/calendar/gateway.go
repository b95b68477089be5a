package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedulebot/models"
)

var (
	// ErrUnavailable means the calendar could not be reached or refused service.
	ErrUnavailable = errors.New("calendar unavailable")
	// ErrSlotTaken means the slot became busy between offer and confirmation.
	ErrSlotTaken = errors.New("slot is no longer available")
	// ErrEventNotFound is returned when patching or deleting an unknown event.
	ErrEventNotFound = errors.New("calendar event not found")
)

// GatewayError tags a calendar failure with the operation that caused it.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

const (
	OpQueryBusy   = "query_busy"
	OpCreateEvent = "create_event"
	OpPatchEvent  = "patch_event"
	OpDeleteEvent = "delete_event"
)

// EventDetails is the human-readable content of a calendar event.
type EventDetails struct {
	Summary     string
	Description string
}

// EventPatch changes selected fields of an existing event. Nil fields are kept.
type EventPatch struct {
	Summary     *string
	Description *string
	Slot        *models.Slot
}

// Gateway is the external calendar the business books into.
type Gateway interface {
	// QueryBusy returns the busy periods overlapping [start, end).
	QueryBusy(ctx context.Context, start, end time.Time) ([]models.Interval, error)
	CreateEvent(ctx context.Context, slot models.Slot, details EventDetails) (string, error)
	PatchEvent(ctx context.Context, eventID string, patch EventPatch) error
	DeleteEvent(ctx context.Context, eventID string) error
}
