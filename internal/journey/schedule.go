package journey

import (
	"fmt"
	"time"
)

// ScheduleRef carries the reference instants DueTime computes from.
type ScheduleRef struct {
	// Now is the evaluation instant.
	Now time.Time
	// EnrolledAt is when the lead entered the journey.
	EnrolledAt time.Time
	// PrevCompletedAt is when the previous step finished; zero for the
	// first step.
	PrevCompletedAt time.Time
	// Location is the tenant's timezone for wall-clock delay types.
	// Nil falls back to UTC.
	Location *time.Location
}

func (r ScheduleRef) loc() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.UTC
}

// DueTime computes when a step becomes due. Wall-clock delay types
// (fixed_time, specific_days) resolve in the tenant's timezone; the
// result is always returned in UTC for storage and comparison.
func DueTime(step Step, ref ScheduleRef) (time.Time, error) {
	switch step.DelayType {
	case DelayImmediate:
		return ref.Now.UTC(), nil

	case DelayAfterEnrollment:
		return ref.EnrolledAt.Add(step.DelayConfig.Duration()).UTC(), nil

	case DelayAfterPrevious:
		base := ref.PrevCompletedAt
		if base.IsZero() {
			base = ref.Now
		}
		return base.Add(step.DelayConfig.Duration()).UTC(), nil

	case DelayFixedTime:
		return fixedTime(step.DelayConfig, ref)

	case DelaySpecificDays:
		return nextWeekday(step.DelayConfig, ref)

	default:
		return time.Time{}, fmt.Errorf("%w: delay type %q", ErrInvalidArgument, step.DelayType)
	}
}

func fixedTime(cfg DelayConfig, ref ScheduleRef) (time.Time, error) {
	hh, mm, err := parseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	loc := ref.loc()

	if cfg.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", cfg.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: fixed_time date %q", ErrInvalidArgument, cfg.Date)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, loc).UTC(), nil
	}

	// No date: the next occurrence of the time of day, today if still ahead.
	now := ref.Now.In(loc)
	at := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at.UTC(), nil
}

func nextWeekday(cfg DelayConfig, ref ScheduleRef) (time.Time, error) {
	hh, mm, err := parseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	loc := ref.loc()
	now := ref.Now.In(loc)

	allowed := make(map[time.Weekday]bool, len(cfg.Weekdays))
	for _, d := range cfg.Weekdays {
		allowed[d] = true
	}

	for offset := 0; offset < 8; offset++ {
		day := now.AddDate(0, 0, offset)
		if !allowed[day.Weekday()] {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, loc)
		if at.After(now) {
			return at.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: specific_days has no upcoming weekday", ErrInvalidArgument)
}

func parseTimeOfDay(s string) (hh, mm int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidArgument, s)
	}
	return t.Hour(), t.Minute(), nil
}
