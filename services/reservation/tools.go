package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedulebot/models"
	"schedulebot/services/calendar"

	"go.uber.org/zap"
)

var ErrUnknownTool = errors.New("unknown tool")

// Availability is the part of the slot engine the tools need.
type Availability interface {
	IsFree(ctx context.Context, slot models.Slot) (bool, []models.Interval, error)
	FreeSlotsBetween(ctx context.Context, start, end time.Time) ([]models.Slot, error)
	SlotDuration() time.Duration
	Location() *time.Location
}

// Records books slots and keeps booking records in step with calendar changes.
type Records interface {
	Book(ctx context.Context, req models.BookingRequest, source string) (*models.Booking, error)
	Reschedule(ctx context.Context, eventID string, slot models.Slot)
	Forget(ctx context.Context, eventID string)
}

// Tools answers the calendar tool calls made by the voice agent.
type Tools struct {
	availability Availability
	gateway      calendar.Gateway
	records      Records
	logger       *zap.Logger
}

func NewTools(availability Availability, gateway calendar.Gateway, records Records, logger *zap.Logger) *Tools {
	return &Tools{
		availability: availability,
		gateway:      gateway,
		records:      records,
		logger:       logger,
	}
}

// result is the JSON object returned for one tool call.
type result map[string]any

func failure(format string, args ...any) result {
	return result{"error": fmt.Sprintf(format, args...)}
}

// Dispatch runs one tool call. Tool failures are reported inside the result;
// only an unknown tool name is an error.
func (t *Tools) Dispatch(ctx context.Context, req models.ToolRequest) (any, error) {
	args := arguments(req.Arguments)
	var res result
	switch req.Tool {
	case "ping":
		res = result{"pong": true}
	case "check_availability":
		res = t.checkAvailability(ctx, args)
	case "list_available_slots":
		res = t.listAvailableSlots(ctx, args)
	case "create_reservation":
		res = t.createReservation(ctx, args)
	case "update_reservation":
		res = t.updateReservation(ctx, args)
	case "delete_reservation":
		res = t.deleteReservation(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, req.Tool)
	}
	if msg, failed := res["error"]; failed {
		t.logger.Warn("Tool call failed", zap.String("tool", req.Tool), zap.String("toolCallId", req.ToolCallID), zap.Any("error", msg))
	}
	return res, nil
}

type arguments map[string]any

func (a arguments) str(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%g", v)
	}
	return ""
}

func (a arguments) location(fallback *time.Location) (*time.Location, error) {
	name := a.str("timezone")
	if name == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}

// instant reads a date ("2006-01-02") and a clock time ("15:04") argument.
func (a arguments) instant(dateKey, timeKey, defaultTime string, loc *time.Location) (time.Time, error) {
	date := a.str(dateKey)
	if date == "" {
		return time.Time{}, fmt.Errorf("missing %s", dateKey)
	}
	clock := a.str(timeKey)
	if clock == "" {
		clock = defaultTime
	}
	if clock == "" {
		return time.Time{}, fmt.Errorf("missing %s", timeKey)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s/%s: use YYYY-MM-DD and HH:MM", dateKey, timeKey)
	}
	return ts, nil
}

func (t *Tools) slotFrom(args arguments) (models.Slot, error) {
	loc, err := args.location(t.availability.Location())
	if err != nil {
		return models.Slot{}, err
	}
	start, err := args.instant("date", "time", "", loc)
	if err != nil {
		return models.Slot{}, err
	}
	return models.NewSlot(start, t.availability.SlotDuration()), nil
}

func window(s models.Slot) result {
	return result{"start": s.Start.Format(time.RFC3339), "end": s.End.Format(time.RFC3339)}
}

func intervals(busy []models.Interval) []result {
	out := make([]result, 0, len(busy))
	for _, b := range busy {
		out = append(out, result{"start": b.Start.Format(time.RFC3339), "end": b.End.Format(time.RFC3339)})
	}
	return out
}

func calendarFailure(err error) result {
	if errors.Is(err, calendar.ErrEventNotFound) {
		return failure("event not found")
	}
	return failure("calendar unavailable, try again later")
}

func (t *Tools) checkAvailability(ctx context.Context, args arguments) result {
	slot, err := t.slotFrom(args)
	if err != nil {
		return failure("%v", err)
	}
	free, busy, err := t.availability.IsFree(ctx, slot)
	if err != nil {
		return calendarFailure(err)
	}
	return result{"available": free, "busy": intervals(busy), "window": window(slot)}
}

func (t *Tools) listAvailableSlots(ctx context.Context, args arguments) result {
	loc, err := args.location(t.availability.Location())
	if err != nil {
		return failure("%v", err)
	}
	start, err := args.instant("date", "start_time", "09:00", loc)
	if err != nil {
		return failure("%v", err)
	}
	end, err := args.instant("date", "end_time", "18:00", loc)
	if err != nil {
		return failure("%v", err)
	}
	if !end.After(start) {
		return failure("end_time must be after start_time")
	}
	slots, err := t.availability.FreeSlotsBetween(ctx, start, end)
	if err != nil {
		return calendarFailure(err)
	}
	out := make([]result, 0, len(slots))
	for _, s := range slots {
		r := window(s)
		r["label"] = s.Describe()
		out = append(out, r)
	}
	return result{"date": args.str("date"), "slots": out}
}

func (t *Tools) createReservation(ctx context.Context, args arguments) result {
	slot, err := t.slotFrom(args)
	if err != nil {
		return failure("%v", err)
	}
	name := args.str("name")
	if name == "" {
		return failure("missing name")
	}
	req := models.BookingRequest{
		UserKey:     args.str("customer_number"),
		Slot:        slot,
		Name:        name,
		Description: args.str("description"),
	}
	b, err := t.records.Book(ctx, req, models.BookingSourceTools)
	if errors.Is(err, calendar.ErrSlotTaken) {
		return result{"created": false, "reason": "not_available", "window": window(slot)}
	}
	if err != nil {
		return calendarFailure(err)
	}
	return result{"created": true, "event_id": b.EventID, "window": window(slot)}
}

func (t *Tools) updateReservation(ctx context.Context, args arguments) result {
	eventID := args.str("event_id")
	if eventID == "" {
		return failure("missing event_id")
	}
	var patch calendar.EventPatch
	if s := args.str("summary"); s != "" {
		patch.Summary = &s
	}
	if d := args.str("description"); d != "" {
		patch.Description = &d
	}
	if args.str("date") != "" || args.str("time") != "" {
		slot, err := t.slotFrom(args)
		if err != nil {
			return failure("%v", err)
		}
		patch.Slot = &slot
	}
	if patch.Summary == nil && patch.Description == nil && patch.Slot == nil {
		return failure("nothing to update")
	}
	if err := t.gateway.PatchEvent(ctx, eventID, patch); err != nil {
		return calendarFailure(err)
	}
	if patch.Slot != nil {
		t.records.Reschedule(ctx, eventID, *patch.Slot)
	}
	return result{"updated": true, "event_id": eventID}
}

func (t *Tools) deleteReservation(ctx context.Context, args arguments) result {
	eventID := args.str("event_id")
	if eventID == "" {
		return failure("missing event_id")
	}
	if err := t.gateway.DeleteEvent(ctx, eventID); err != nil {
		return calendarFailure(err)
	}
	t.records.Forget(ctx, eventID)
	return result{"deleted": true, "event_id": eventID}
}
