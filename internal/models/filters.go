package models

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock offset from midnight
type TimeOfDay time.Duration

// EndOfDay is the last representable instant of a day
const EndOfDay = TimeOfDay(24*time.Hour - time.Nanosecond)

// ParseTimeOfDay parses "HH:MM" (24 hour clock)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM: %w", s, err)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// ClockOf returns the wall-clock component of t in its own location
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func (d TimeOfDay) String() string {
	td := time.Duration(d)
	return fmt.Sprintf("%02d:%02d", int(td.Hours()), int(td.Minutes())%60)
}

// FilterCriteria narrows a record collection before analysis
type FilterCriteria struct {
	VesselClasses []string // compared case-insensitively after trimming

	LengthMin float64 // inclusive, metres
	LengthMax float64 // inclusive, metres

	Start time.Time // inclusive, UTC
	End   time.Time // inclusive, UTC

	HourStart TimeOfDay // inclusive, local clock
	HourEnd   TimeOfDay // inclusive, local clock
}

// RecordQuery pushes coarse filtering down to the record store
type RecordQuery struct {
	Start         time.Time
	End           time.Time
	VesselClasses []string
	MMSIs         []int64
}
