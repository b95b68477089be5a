package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"schedulebot/models"
	"schedulebot/services/calendar"
	"schedulebot/services/rotation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func tr(sh, eh int) models.TimeRange {
	return models.TimeRange{Start: models.ClockTime{Hour: sh}, End: models.ClockTime{Hour: eh}}
}

type fixture struct {
	loc     *time.Location
	now     time.Time
	gateway *calendar.MemoryGateway
	memory  *rotation.InProcessMemory
	engine  *Engine
}

// newFixture freezes time on Monday 19 October 2026 at 09:10 in Madrid.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc := madrid(t)
	now := time.Date(2026, 10, 19, 9, 10, 0, 0, loc)
	hours := calendar.NewBusinessCalendar(map[time.Weekday][]models.TimeRange{
		time.Monday:    {tr(8, 12)},
		time.Tuesday:   {tr(14, 17)},
		time.Wednesday: {tr(8, 12), tr(14, 17)},
		time.Thursday:  {tr(8, 12)},
	}, models.ClockTime{Hour: 12}, loc)
	gw := calendar.NewMemoryGateway()
	mem := rotation.NewInProcessMemory(24 * time.Hour).WithClock(func() time.Time { return now })
	engine := NewEngine(hours, gw, mem, Settings{
		SlotDuration:     time.Hour,
		Grid:             30 * time.Minute,
		MaxLookaheadDays: 14,
		OfferSize:        3,
	}, zap.NewNop()).WithClock(func() time.Time { return now })
	return &fixture{loc: loc, now: now, gateway: gw, memory: mem, engine: engine}
}

func (f *fixture) at(day, hour, min int) time.Time {
	return time.Date(2026, 10, day, hour, min, 0, 0, f.loc)
}

func starts(slots []models.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("Mon 02 15:04")
	}
	return out
}

func TestComputeDaySlotsTodayStartsAfterNow(t *testing.T) {
	f := newFixture(t)
	slots := f.engine.ComputeDaySlots(f.now, models.PeriodAny, nil)
	assert.Equal(t, []string{"Mon 19 09:30", "Mon 19 10:30"}, starts(slots))
}

func TestComputeDaySlotsFullDay(t *testing.T) {
	f := newFixture(t)
	slots := f.engine.ComputeDaySlots(f.at(21, 0, 0), models.PeriodAny, nil)
	assert.Equal(t, []string{
		"Wed 21 08:00", "Wed 21 09:00", "Wed 21 10:00", "Wed 21 11:00",
		"Wed 21 14:00", "Wed 21 15:00", "Wed 21 16:00",
	}, starts(slots))
}

func TestComputeDaySlotsSkipsBusy(t *testing.T) {
	f := newFixture(t)
	busy := []models.Interval{{Start: f.at(21, 9, 30), End: f.at(21, 10, 15)}}
	slots := f.engine.ComputeDaySlots(f.at(21, 0, 0), models.PeriodMorning, busy)
	assert.Equal(t, []string{"Wed 21 08:00", "Wed 21 11:00"}, starts(slots))

	// A busy period that only touches a slot boundary blocks nothing else.
	busy = []models.Interval{{Start: f.at(21, 10, 0), End: f.at(21, 11, 0)}}
	slots = f.engine.ComputeDaySlots(f.at(21, 0, 0), models.PeriodMorning, busy)
	assert.Equal(t, []string{"Wed 21 08:00", "Wed 21 09:00", "Wed 21 11:00"}, starts(slots))
}

func TestComputeDaySlotsPastDayIsEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.engine.ComputeDaySlots(f.at(15, 0, 0), models.PeriodAny, nil))
}

func TestSlotProperties(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddBusy(f.at(20, 14, 45), f.at(20, 15, 10))
	f.gateway.AddBusy(f.at(22, 9, 0), f.at(22, 11, 0))

	slots, err := f.engine.ListNextSlots(context.Background(), f.now, models.PeriodAny, 50)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	busy, err := f.gateway.QueryBusy(context.Background(), f.now, f.now.AddDate(0, 0, 15))
	require.NoError(t, err)
	limit := f.engine.hours.StartOfDay(f.now).AddDate(0, 0, 14)

	for i, s := range slots {
		assert.Equal(t, time.Hour, s.Duration())
		assert.Zero(t, s.Start.Minute()%30, "slot %s off grid", s.Key())
		assert.Zero(t, s.Start.Second())
		assert.False(t, s.Start.Before(f.now), "slot %s in the past", s.Key())
		assert.True(t, s.Start.Before(limit), "slot %s beyond lookahead", s.Key())
		for _, b := range busy {
			assert.False(t, s.Interval().Overlaps(b), "slot %s overlaps busy", s.Key())
		}
		if i > 0 {
			assert.True(t, slots[i-1].Start.Before(s.Start), "slots out of order")
		}
	}
}

func (f *fixture) engineWith(duration, grid time.Duration) *Engine {
	return NewEngine(f.engine.hours, f.gateway, f.memory, Settings{
		SlotDuration:     duration,
		Grid:             grid,
		MaxLookaheadDays: 14,
	}, zap.NewNop()).WithClock(func() time.Time { return f.now })
}

func TestComputeDaySlotsNonHourDurationStaysOnGrid(t *testing.T) {
	f := newFixture(t)
	busy := []models.Interval{{Start: f.at(21, 9, 40), End: f.at(21, 9, 50)}}

	cases := []struct{ duration, grid time.Duration }{
		{45 * time.Minute, 15 * time.Minute},
		{90 * time.Minute, 30 * time.Minute},
		{45 * time.Minute, 30 * time.Minute},
		{20 * time.Minute, 10 * time.Minute},
	}
	for _, tc := range cases {
		e := f.engineWith(tc.duration, tc.grid)
		slots := e.ComputeDaySlots(f.at(21, 0, 0), models.PeriodAny, busy)
		require.NotEmpty(t, slots, "%s on %s grid", tc.duration, tc.grid)
		grid := int(tc.grid / time.Minute)
		for i, s := range slots {
			assert.Zero(t, (s.Start.Hour()*60+s.Start.Minute())%grid, "slot %s off the %s grid", s.Key(), tc.grid)
			assert.Equal(t, tc.duration, s.Duration())
			assert.False(t, s.Interval().Overlaps(busy[0]), "slot %s overlaps busy", s.Key())
			if i > 0 {
				assert.False(t, slots[i-1].End.After(s.Start), "slot %s overlaps the one before", s.Key())
			}
		}
	}

	slots := f.engineWith(45*time.Minute, 15*time.Minute).ComputeDaySlots(f.at(21, 0, 0), models.PeriodMorning, nil)
	assert.Equal(t, []string{"Wed 21 08:00", "Wed 21 08:45", "Wed 21 09:30", "Wed 21 10:15", "Wed 21 11:00"}, starts(slots))

	slots = f.engineWith(45*time.Minute, 30*time.Minute).ComputeDaySlots(f.at(21, 0, 0), models.PeriodMorning, nil)
	assert.Equal(t, []string{"Wed 21 08:00", "Wed 21 09:00", "Wed 21 10:00", "Wed 21 11:00"}, starts(slots))
}

func TestSubMinuteGridFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	e := f.engineWith(time.Hour, 30*time.Second)
	var slots []models.Slot
	assert.NotPanics(t, func() {
		slots = e.ComputeDaySlots(f.now, models.PeriodAny, nil)
	})
	assert.Equal(t, []string{"Mon 19 09:30", "Mon 19 10:30"}, starts(slots))
}

func TestListNextSlotsStopsWhenFilled(t *testing.T) {
	f := newFixture(t)
	slots, err := f.engine.ListNextSlots(context.Background(), f.now, models.PeriodAny, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Mon 19 09:30", "Mon 19 10:30",
		"Tue 20 14:00", "Tue 20 15:00", "Tue 20 16:00",
	}, starts(slots))
	assert.Len(t, f.gateway.Queries(), 2)
}

func TestListNextSlotsSkipsClosedDaysWithoutQuery(t *testing.T) {
	f := newFixture(t)
	slots, err := f.engine.ListNextSlots(context.Background(), f.at(23, 0, 0), models.PeriodAny, 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Mon 26 08:00", starts(slots)[0])

	queries := f.gateway.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, 26, queries[0].Start.Day())
}

func TestListNextSlotsPeriodSkipsOtherHalf(t *testing.T) {
	f := newFixture(t)
	slots, err := f.engine.ListNextSlots(context.Background(), f.at(20, 0, 0), models.PeriodMorning, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wed 21 08:00", "Wed 21 09:00"}, starts(slots))
	// Tuesday has no morning hours and Wednesday only its morning is queried.
	assert.Len(t, f.gateway.Queries(), 1)
}

func TestListNextSlotsBoundedLookahead(t *testing.T) {
	f := newFixture(t)
	f.gateway.AddBusy(f.at(1, 0, 0), f.at(1, 0, 0).AddDate(0, 2, 0))

	slots, err := f.engine.ListNextSlots(context.Background(), f.now, models.PeriodAny, 3)
	require.NoError(t, err)
	assert.Empty(t, slots)

	// Five open intervals per week over two weeks.
	queries := f.gateway.Queries()
	assert.Len(t, queries, 10)
	limit := f.at(19, 0, 0).AddDate(0, 0, 14)
	for _, q := range queries {
		assert.True(t, q.Start.Before(limit))
	}
}

func TestListNextSlotsPropagatesGatewayError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("calendar down")
	f.gateway.FailWith(calendar.OpQueryBusy, boom)

	_, err := f.engine.ListNextSlots(context.Background(), f.now, models.PeriodAny, 3)
	assert.ErrorIs(t, err, boom)
}

func TestPickSuggestionRotatesThenResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := f.engine.ComputeDaySlots(f.at(20, 0, 0), models.PeriodAny, nil)
	require.Len(t, candidates, 3)

	var picked []models.Slot
	for i := 0; i < 3; i++ {
		s, err := f.engine.PickSuggestion(ctx, candidates, "u1")
		require.NoError(t, err)
		picked = append(picked, s)
	}
	assert.Equal(t, candidates, picked)

	again, err := f.engine.PickSuggestion(ctx, candidates, "u1")
	require.NoError(t, err)
	assert.Equal(t, candidates[0], again)

	recent, err := f.memory.Recent(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, recent, 1, "history restarts after exhaustion")

	// Other users are unaffected.
	first, err := f.engine.PickSuggestion(ctx, candidates, "u2")
	require.NoError(t, err)
	assert.Equal(t, candidates[0], first)

	_, err = f.engine.PickSuggestion(ctx, nil, "u1")
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestOfferSlotsRotatesAcrossRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.at(20, 0, 0)

	first, err := f.engine.OfferSlots(ctx, "u1", from, models.PeriodAny)
	require.NoError(t, err)
	second, err := f.engine.OfferSlots(ctx, "u1", from, models.PeriodAny)
	require.NoError(t, err)

	require.Len(t, first, 3)
	require.Len(t, second, 3)
	seen := map[string]bool{}
	for _, s := range first {
		seen[s.Key()] = true
	}
	for _, s := range second {
		assert.False(t, seen[s.Key()], "slot %s offered twice in a row", s.Key())
	}
	for i := 1; i < len(second); i++ {
		assert.True(t, second[i-1].Start.Before(second[i].Start))
	}
}

func TestIsFree(t *testing.T) {
	f := newFixture(t)
	slot := models.NewSlot(f.at(21, 9, 0), time.Hour)

	free, conflicts, err := f.engine.IsFree(context.Background(), slot)
	require.NoError(t, err)
	assert.True(t, free)
	assert.Empty(t, conflicts)

	f.gateway.AddBusy(f.at(21, 9, 30), f.at(21, 9, 45))
	free, conflicts, err = f.engine.IsFree(context.Background(), slot)
	require.NoError(t, err)
	assert.False(t, free)
	assert.Len(t, conflicts, 1)
}
