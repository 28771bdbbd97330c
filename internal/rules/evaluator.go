package rules

import (
	"fmt"
	"sort"
	"time"
)

const lookaheadDays = 7

// Messages returned by NextAllowedDescription.
const (
	MessageAnyTime       = "You can track at any time."
	MessageNoWindows     = "No tracking windows are configured. Contact your administrator."
	MessageTodayAnyTime  = "You can track today at any time."
	MessageNoUpcoming    = "No upcoming tracking windows found in the next 7 days."
	MessageNoRestriction = "No restrictions apply."
)

// Evaluator answers tracking-permission questions for rules in a fixed location.
type Evaluator struct {
	location *time.Location
}

// NewEvaluator constructs an Evaluator that reads wall-clock values in loc.
// If loc is nil, instants are evaluated in their own location.
func NewEvaluator(loc *time.Location) *Evaluator {
	return &Evaluator{location: loc}
}

// Location returns the evaluation location, or nil when none is fixed.
func (e *Evaluator) Location() *time.Location {
	if e == nil {
		return nil
	}
	return e.location
}

func (e *Evaluator) local(now time.Time) time.Time {
	if e == nil || e.location == nil {
		return now
	}
	return now.In(e.location)
}

// IsAllowed reports whether tracking may start at now under rule.
//
// Only active schedules are considered. Unknown rule types never allow tracking.
func (e *Evaluator) IsAllowed(rule Rule, now time.Time) bool {
	now = e.local(now)
	clock := TimeOf(now)
	day := now.Weekday()

	switch rule.Type {
	case TypeAllDays:
		return true
	case TypeAllDaysWithTime:
		for _, s := range rule.ActiveSchedules() {
			if s.Contains(clock) {
				return true
			}
		}
		return false
	case TypeDayAnyTime:
		for _, s := range rule.ActiveSchedules() {
			if s.onDay(day) {
				return true
			}
		}
		return false
	case TypeCustom:
		for _, s := range rule.ActiveSchedules() {
			if s.onDay(day) && s.Contains(clock) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// NextAllowedDescription describes the next window in which tracking is
// permitted, looking at most seven days ahead starting with today.
//
// When several schedules apply to the same day the earliest start wins and
// all-day schedules sort before timed ones.
func (e *Evaluator) NextAllowedDescription(rule Rule, now time.Time) string {
	if rule.Type == TypeAllDays {
		return MessageAnyTime
	}

	schedules := rule.ActiveSchedules()
	if len(schedules) == 0 {
		return MessageNoWindows
	}
	sort.SliceStable(schedules, func(i, j int) bool {
		return startKey(schedules[i]) < startKey(schedules[j])
	})

	now = e.local(now)
	clock := TimeOf(now)

	for offset := 0; offset < lookaheadDays; offset++ {
		day := now.AddDate(0, 0, offset)
		weekday := day.Weekday()

		for _, s := range schedules {
			if s.DayOfWeek != AllDays && !s.onDay(weekday) {
				continue
			}
			if s.AllDay() {
				if offset == 0 {
					return MessageTodayAnyTime
				}
				return fmt.Sprintf("Next allowed: %s at any time", weekday)
			}
			if offset == 0 {
				if clock < *s.Start {
					return fmt.Sprintf("Next allowed: Today at %s", *s.Start)
				}
				continue
			}
			return fmt.Sprintf("Next allowed: %s at %s", weekday, *s.Start)
		}
	}

	return MessageNoUpcoming
}

func startKey(s Schedule) int {
	if s.AllDay() {
		return -1
	}
	return int(*s.Start)
}
