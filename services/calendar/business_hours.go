package calendar

import (
	"sort"
	"time"

	"schedulebot/models"
)

// BusinessCalendar knows when the business is open on any given date.
type BusinessCalendar struct {
	loc           *time.Location
	weekly        map[time.Weekday][]models.TimeRange
	morningCutoff models.ClockTime
}

func NewBusinessCalendar(weekly map[time.Weekday][]models.TimeRange, morningCutoff models.ClockTime, loc *time.Location) *BusinessCalendar {
	hours := make(map[time.Weekday][]models.TimeRange, len(weekly))
	for day, ranges := range weekly {
		sorted := append([]models.TimeRange(nil), ranges...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Start.Minutes() < sorted[j].Start.Minutes()
		})
		hours[day] = sorted
	}
	return &BusinessCalendar{loc: loc, weekly: hours, morningCutoff: morningCutoff}
}

func (b *BusinessCalendar) Location() *time.Location {
	return b.loc
}

// Intervals returns the opening intervals on the calendar date of day, in
// chronological order. PeriodMorning keeps intervals that end by the morning
// cutoff; PeriodAfternoon keeps those that start at or after it.
func (b *BusinessCalendar) Intervals(day time.Time, period models.Period) []models.Interval {
	local := day.In(b.loc)
	var out []models.Interval
	for _, r := range b.weekly[local.Weekday()] {
		switch period {
		case models.PeriodMorning:
			if r.End.Minutes() > b.morningCutoff.Minutes() {
				continue
			}
		case models.PeriodAfternoon:
			if r.Start.Minutes() < b.morningCutoff.Minutes() {
				continue
			}
		}
		out = append(out, models.Interval{Start: r.Start.On(local, b.loc), End: r.End.On(local, b.loc)})
	}
	return out
}

// StartOfDay is midnight of the calendar date of t, in the business zone.
func (b *BusinessCalendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(b.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.loc)
}
