package models

import (
	"fmt"
	"time"
)

// Interval is a half-open [Start, End) span of absolute time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Slot is a bookable appointment window. Its time zone is carried by Start.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewSlot(start time.Time, d time.Duration) Slot {
	return Slot{Start: start, End: start.Add(d)}
}

// ParseSlotKey rebuilds a slot from its key, rendered in loc.
func ParseSlotKey(key string, d time.Duration, loc *time.Location) (Slot, error) {
	start, err := time.Parse(time.RFC3339, key)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot key %q: %w", key, err)
	}
	return NewSlot(start.In(loc), d), nil
}

// Key identifies the slot for rotation memory and session storage.
func (s Slot) Key() string {
	return s.Start.Format(time.RFC3339)
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

func (s Slot) Timezone() string {
	return s.Start.Location().String()
}

// Describe renders the slot for people, e.g. "Monday 19 October 2026 at 10:00".
func (s Slot) Describe() string {
	return s.Start.Format("Monday 2 January 2006 at 15:04")
}
