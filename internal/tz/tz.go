// Package tz converts between UTC instants (storage) and local wall-clock
// date/time strings (business logic, display). The business offset is always
// passed in explicitly so no caller carries its own offset arithmetic.
package tz

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ICT is the business display timezone, UTC+7.
const ICT = 7 * time.Hour

var (
	ErrInvalidDate = errors.New("invalid local date, want YYYY-MM-DD")
	ErrInvalidTime = errors.New("invalid local time, want HH:mm")
)

// ToUTC interprets localDate+localTime as wall-clock time at the given fixed
// offset and returns the corresponding UTC instant.
func ToUTC(localDate, localTime string, offset time.Duration) (time.Time, error) {
	d, err := time.Parse(DateLayout, localDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, localDate)
	}
	t, err := time.Parse(TimeLayout, localTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, localTime)
	}

	loc := time.FixedZone("business", int(offset/time.Second))
	local := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	return local.UTC(), nil
}

// ToLocal renders a UTC instant as wall-clock date and time strings at the
// given fixed offset. ToLocal(ToUTC(d, t, off), off) == (d, t) for all valid
// inputs.
func ToLocal(instant time.Time, offset time.Duration) (localDate, localTime string) {
	loc := time.FixedZone("business", int(offset/time.Second))
	local := instant.In(loc)
	return local.Format(DateLayout), local.Format(TimeLayout)
}

// Weekday returns the day of week of a local calendar date.
func Weekday(localDate string) (time.Weekday, error) {
	d, err := time.Parse(DateLayout, localDate)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, localDate)
	}
	return d.Weekday(), nil
}
