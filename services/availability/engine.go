package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"schedulebot/models"
	"schedulebot/services/calendar"
	"schedulebot/services/rotation"
	"schedulebot/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoCandidates = errors.New("no candidate slots")

// Settings shape how slots are generated and offered.
type Settings struct {
	SlotDuration     time.Duration
	Grid             time.Duration
	MaxLookaheadDays int
	OfferSize        int
}

// Engine computes free appointment slots from business hours and the busy
// periods reported by the calendar, and picks which ones to suggest.
type Engine struct {
	hours    *calendar.BusinessCalendar
	gateway  calendar.Gateway
	memory   rotation.Memory
	locks    *utils.KeyedMutex
	settings Settings
	now      func() time.Time
	logger   *zap.Logger
}

func NewEngine(hours *calendar.BusinessCalendar, gateway calendar.Gateway, memory rotation.Memory, settings Settings, logger *zap.Logger) *Engine {
	if settings.Grid < time.Minute {
		settings.Grid = 30 * time.Minute
	}
	if settings.OfferSize <= 0 {
		settings.OfferSize = 3
	}
	return &Engine{
		hours:    hours,
		gateway:  gateway,
		memory:   memory,
		locks:    utils.NewKeyedMutex(),
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) SlotDuration() time.Duration { return e.settings.SlotDuration }

func (e *Engine) Location() *time.Location { return e.hours.Location() }

// Now is the engine clock in the business zone.
func (e *Engine) Now() time.Time { return e.now().In(e.hours.Location()) }

// alignUp moves t forward to the next grid boundary in wall-clock minutes.
// Times already on the grid with no seconds stay put.
func (e *Engine) alignUp(t time.Time) time.Time {
	grid := int(e.settings.Grid / time.Minute)
	if grid <= 0 {
		grid = 1
	}
	y, mo, d := t.Date()
	minutes := t.Hour()*60 + t.Minute()
	if t.Second() > 0 || t.Nanosecond() > 0 {
		minutes++
	}
	if rem := minutes % grid; rem != 0 {
		minutes += grid - rem
	}
	return time.Date(y, mo, d, 0, minutes, 0, 0, t.Location())
}

// ComputeDaySlots returns the free slots on the calendar date of day, given the
// busy periods for that date. Every slot starts on the grid, never lie in the past
// and never overlap a busy period.
func (e *Engine) ComputeDaySlots(day time.Time, period models.Period, busy []models.Interval) []models.Slot {
	now := e.Now()
	var slots []models.Slot
	for _, iv := range e.hours.Intervals(day, period) {
		slots = append(slots, e.intervalSlots(iv, now, busy)...)
	}
	return slots
}

func (e *Engine) intervalSlots(iv models.Interval, now time.Time, busy []models.Interval) []models.Slot {
	cursor := iv.Start
	if now.After(cursor) {
		cursor = now
	}
	cursor = e.alignUp(cursor)

	var slots []models.Slot
	for {
		cand := models.NewSlot(cursor, e.settings.SlotDuration)
		if cand.End.After(iv.End) {
			break
		}
		if !overlapsAny(cand.Interval(), busy) {
			slots = append(slots, cand)
		}
		cursor = e.alignUp(cursor.Add(e.settings.SlotDuration))
	}
	return slots
}

func overlapsAny(iv models.Interval, busy []models.Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// ListNextSlots walks forward from the calendar date of from, for at most
// MaxLookaheadDays days, and returns up to count free slots in chronological
// order. Closed days and intervals already over are skipped without asking
// the calendar; every other interval costs one busy query.
func (e *Engine) ListNextSlots(ctx context.Context, from time.Time, period models.Period, count int) ([]models.Slot, error) {
	if count <= 0 {
		return nil, nil
	}
	day := e.hours.StartOfDay(from)
	var out []models.Slot
	for i := 0; i < e.settings.MaxLookaheadDays && len(out) < count; i++ {
		slots, err := e.daySlots(ctx, day.AddDate(0, 0, i), period)
		if err != nil {
			return nil, err
		}
		out = append(out, slots...)
	}
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

// daySlots queries the busy periods of each open interval of day in parallel.
func (e *Engine) daySlots(ctx context.Context, day time.Time, period models.Period) ([]models.Slot, error) {
	now := e.Now()
	var open []models.Interval
	for _, iv := range e.hours.Intervals(day, period) {
		if iv.End.After(now) {
			open = append(open, iv)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	perInterval := make([][]models.Slot, len(open))
	g, gctx := errgroup.WithContext(ctx)
	for i, iv := range open {
		g.Go(func() error {
			busy, err := e.gateway.QueryBusy(gctx, iv.Start, iv.End)
			if err != nil {
				return err
			}
			perInterval[i] = e.intervalSlots(iv, now, busy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var slots []models.Slot
	for _, s := range perInterval {
		slots = append(slots, s...)
	}
	return slots, nil
}

// PickSuggestion returns the first candidate not shown to userKey within the
// rotation TTL and records it as shown. When every candidate was shown, the
// user's history is cleared and the first candidate is returned.
func (e *Engine) PickSuggestion(ctx context.Context, candidates []models.Slot, userKey string) (models.Slot, error) {
	if len(candidates) == 0 {
		return models.Slot{}, ErrNoCandidates
	}
	unlock := e.locks.Lock(userKey)
	defer unlock()

	records, err := e.memory.Recent(ctx, userKey)
	if err != nil {
		return models.Slot{}, err
	}
	shown := rotation.Recently(records)

	pick := candidates[0]
	found := false
	for _, c := range candidates {
		if _, seen := shown[c.Key()]; !seen {
			pick, found = c, true
			break
		}
	}
	if !found {
		e.logger.Debug("Rotation exhausted, starting over", zap.String("user", userKey), zap.Int("candidates", len(candidates)))
		if err := e.memory.Reset(ctx, userKey); err != nil {
			return models.Slot{}, err
		}
	}
	if err := e.memory.Record(ctx, userKey, pick.Key()); err != nil {
		return models.Slot{}, err
	}
	return pick, nil
}

// OfferSlots builds the menu of suggestions for userKey starting at from.
// It draws OfferSize picks from a larger pool of upcoming slots so that
// repeated requests rotate through different times, and returns them in
// chronological order. A failing rotation memory degrades to the earliest slots.
func (e *Engine) OfferSlots(ctx context.Context, userKey string, from time.Time, period models.Period) ([]models.Slot, error) {
	size := e.settings.OfferSize
	pool, err := e.ListNextSlots(ctx, from, period, size*3)
	if err != nil {
		return nil, err
	}
	if len(pool) <= size {
		for _, s := range pool {
			if err := e.memory.Record(ctx, userKey, s.Key()); err != nil {
				e.logger.Warn("Failed to record offered slot", zap.String("user", userKey), zap.Error(err))
				break
			}
		}
		return pool, nil
	}

	remaining := append([]models.Slot(nil), pool...)
	offer := make([]models.Slot, 0, size)
	for len(offer) < size {
		pick, err := e.PickSuggestion(ctx, remaining, userKey)
		if err != nil {
			e.logger.Warn("Rotation unavailable, offering earliest slots", zap.String("user", userKey), zap.Error(err))
			return pool[:size], nil
		}
		offer = append(offer, pick)
		remaining = without(remaining, pick)
	}
	sort.Slice(offer, func(i, j int) bool { return offer[i].Start.Before(offer[j].Start) })
	return offer, nil
}

func without(slots []models.Slot, drop models.Slot) []models.Slot {
	out := slots[:0]
	for _, s := range slots {
		if !s.Start.Equal(drop.Start) {
			out = append(out, s)
		}
	}
	return out
}

// IsFree re-checks a single slot against the calendar and returns the
// conflicting busy periods, if any.
func (e *Engine) IsFree(ctx context.Context, slot models.Slot) (bool, []models.Interval, error) {
	busy, err := e.gateway.QueryBusy(ctx, slot.Start, slot.End)
	if err != nil {
		return false, nil, err
	}
	var conflicts []models.Interval
	for _, b := range busy {
		if slot.Interval().Overlaps(b) {
			conflicts = append(conflicts, b)
		}
	}
	return len(conflicts) == 0, conflicts, nil
}

// FreeSlotsBetween lists free slots inside an arbitrary window on one date,
// ignoring business hours. start and end must share a calendar date.
func (e *Engine) FreeSlotsBetween(ctx context.Context, start, end time.Time) ([]models.Slot, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("window end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	busy, err := e.gateway.QueryBusy(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return e.intervalSlots(models.Interval{Start: start, End: end}, e.Now(), busy), nil
}
