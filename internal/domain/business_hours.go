package domain

import (
	"fmt"
	"time"
)

// BusinessHoursMode selects how a weekday is configured.
type BusinessHoursMode string

const (
	BusinessHoursOpen     BusinessHoursMode = "open"
	BusinessHoursClosed   BusinessHoursMode = "closed"
	BusinessHoursWindowed BusinessHoursMode = "windowed"
)

// BusinessHours configures one weekday for one tenant. Windowed days
// carry two explicit time-of-day windows in "15:04" format.
type BusinessHours struct {
	ID       string
	TenantID string
	Weekday  time.Weekday
	Mode     BusinessHoursMode
	// Window boundaries, "HH:MM". Only meaningful for windowed mode.
	FirstStart  string
	FirstEnd    string
	SecondStart string
	SecondEnd   string
	// Message overrides the tenant default absence notice when non-empty.
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the clock time of now falls within hours for
// this weekday configuration.
func (b *BusinessHours) Contains(now time.Time) (bool, error) {
	switch b.Mode {
	case BusinessHoursOpen:
		return true, nil
	case BusinessHoursClosed:
		return false, nil
	case BusinessHoursWindowed:
		minute := now.Hour()*60 + now.Minute()
		in1, err := windowContains(b.FirstStart, b.FirstEnd, minute)
		if err != nil {
			return false, err
		}
		in2, err := windowContains(b.SecondStart, b.SecondEnd, minute)
		if err != nil {
			return false, err
		}
		return in1 || in2, nil
	default:
		return false, fmt.Errorf("unknown business hours mode %q", b.Mode)
	}
}

func windowContains(start, end string, minute int) (bool, error) {
	if start == "" || end == "" {
		return false, nil
	}
	from, err := parseClock(start)
	if err != nil {
		return false, err
	}
	to, err := parseClock(end)
	if err != nil {
		return false, err
	}
	return minute >= from && minute <= to, nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
