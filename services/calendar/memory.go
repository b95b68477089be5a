package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"schedulebot/models"

	"github.com/google/uuid"
)

// MemoryEvent is an event held by MemoryGateway.
type MemoryEvent struct {
	ID      string
	Slot    models.Slot
	Details EventDetails
}

// MemoryGateway is an in-process calendar. It backs local development and tests.
type MemoryGateway struct {
	mu      sync.Mutex
	busy    []models.Interval
	events  map[string]MemoryEvent
	queries []models.Interval
	failOps map[string]error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		events:  make(map[string]MemoryEvent),
		failOps: make(map[string]error),
	}
}

// AddBusy blocks out a period that is not backed by an event.
func (g *MemoryGateway) AddBusy(start, end time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = append(g.busy, models.Interval{Start: start, End: end})
}

// FailWith makes every later call of op return err. A nil err clears it.
func (g *MemoryGateway) FailWith(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failOps, op)
		return
	}
	g.failOps[op] = err
}

// Queries returns the windows passed to QueryBusy so far.
func (g *MemoryGateway) Queries() []models.Interval {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Interval(nil), g.queries...)
}

// Events returns the stored events ordered by start time.
func (g *MemoryGateway) Events() []MemoryEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MemoryEvent, 0, len(g.events))
	for _, e := range g.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.Start.Before(out[j].Slot.Start) })
	return out
}

func (g *MemoryGateway) QueryBusy(ctx context.Context, start, end time.Time) ([]models.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	window := models.Interval{Start: start, End: end}
	g.queries = append(g.queries, window)
	if err := g.failOps[OpQueryBusy]; err != nil {
		return nil, err
	}

	var out []models.Interval
	for _, b := range g.busy {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	for _, e := range g.events {
		if e.Slot.Interval().Overlaps(window) {
			out = append(out, e.Slot.Interval())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (g *MemoryGateway) CreateEvent(ctx context.Context, slot models.Slot, details EventDetails) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps[OpCreateEvent]; err != nil {
		return "", err
	}
	id := uuid.NewString()
	g.events[id] = MemoryEvent{ID: id, Slot: slot, Details: details}
	return id, nil
}

func (g *MemoryGateway) PatchEvent(ctx context.Context, eventID string, patch EventPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps[OpPatchEvent]; err != nil {
		return err
	}
	e, ok := g.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	if patch.Summary != nil {
		e.Details.Summary = *patch.Summary
	}
	if patch.Description != nil {
		e.Details.Description = *patch.Description
	}
	if patch.Slot != nil {
		e.Slot = *patch.Slot
	}
	g.events[eventID] = e
	return nil
}

func (g *MemoryGateway) DeleteEvent(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps[OpDeleteEvent]; err != nil {
		return err
	}
	if _, ok := g.events[eventID]; !ok {
		return ErrEventNotFound
	}
	delete(g.events, eventID)
	return nil
}
