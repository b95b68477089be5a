package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// ClockTime is a wall-clock time of day, independent of any date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" in 24h form.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On places the clock time on the calendar date of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// TimeRange is a business interval within a single day, e.g. 08:00-12:00.
type TimeRange struct {
	Start ClockTime
	End   ClockTime
}

// ParseTimeRange accepts "HH:MM-HH:MM".
func ParseTimeRange(s string) (TimeRange, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("invalid time range %q: expected HH:MM-HH:MM", s)
	}
	start, err := ParseClockTime(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := ParseClockTime(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	if end.Minutes() <= start.Minutes() {
		return TimeRange{}, fmt.Errorf("invalid time range %q: end must be after start", s)
	}
	return TimeRange{Start: start, End: end}, nil
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Period narrows a search to one half of the business day.
type Period string

const (
	PeriodAny       Period = ""
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// ParsePeriod maps user words onto a Period. Unknown words are reported with ok=false.
func ParsePeriod(s string) (Period, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PeriodAny, true
	case "morning", "am", "mañana", "manana":
		return PeriodMorning, true
	case "afternoon", "pm", "tarde":
		return PeriodAfternoon, true
	}
	return PeriodAny, false
}
