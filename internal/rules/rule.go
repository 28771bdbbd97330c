// Package rules evaluates time-window policies that decide when an employee
// may start tracking work.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type selects how a rule's schedules are interpreted.
type Type string

const (
	// TypeAllDays allows tracking at any time and carries no schedules.
	TypeAllDays Type = "ALL_DAYS"
	// TypeAllDaysWithTime allows tracking every day inside one time window.
	TypeAllDaysWithTime Type = "ALL_DAYS_WITH_TIME"
	// TypeDayAnyTime allows tracking all day on the listed weekdays.
	TypeDayAnyTime Type = "DAY_ANY_TIME"
	// TypeCustom allows tracking inside per-weekday time windows.
	TypeCustom Type = "CUSTOM"
)

// AllDays is the schedule day sentinel meaning "every day of the week".
const AllDays = "ALL"

// Default rule attributes created by the rule service at startup.
const (
	DefaultRuleName        = "Unrestricted Access"
	DefaultRuleDescription = "Default rule - tracking allowed at any time"
)

// ErrInvalidConfiguration reports a rule whose schedules do not fit its type.
var ErrInvalidConfiguration = errors.New("rules: invalid rule configuration")

// ErrInvalidTimeOfDay reports a malformed clock value.
var ErrInvalidTimeOfDay = errors.New("rules: invalid time of day")

// ParseType converts a stored or requested type name into a Type.
func ParseType(value string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(value))); t {
	case TypeAllDays, TypeAllDaysWithTime, TypeDayAnyTime, TypeCustom:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown rule type %q", ErrInvalidConfiguration, value)
	}
}

// TimeOfDay is a wall-clock time with second resolution, stored as seconds
// since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// TimeOf returns the wall-clock part of t in t's own location.
func TimeOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	limits := []int{23, 59, 59}
	var fields [3]int
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		fields[i] = n
	}
	return NewTimeOfDay(fields[0], fields[1], fields[2]), nil
}

// MustParseTimeOfDay is ParseTimeOfDay for literals known to be valid.
func MustParseTimeOfDay(value string) TimeOfDay {
	t, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return t
}

// Hour returns the hour, 0 to 23.
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute returns the minute within the hour.
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

// Second returns the second within the minute.
func (t TimeOfDay) Second() int { return int(t) % 60 }

// String renders "HH:MM", or "HH:MM:SS" when seconds are set.
func (t TimeOfDay) String() string {
	if t.Second() == 0 {
		return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// Ptr returns a pointer to a copy of t.
func (t TimeOfDay) Ptr() *TimeOfDay {
	return &t
}

// Schedule is one window of a rule. A schedule without bounds covers the whole day.
type Schedule struct {
	DayOfWeek string
	Start     *TimeOfDay
	End       *TimeOfDay
	Active    bool
}

// AllDay reports whether the schedule covers the entire day.
func (s Schedule) AllDay() bool {
	return s.Start == nil || s.End == nil
}

// Contains reports whether t falls inside the window, bounds included.
func (s Schedule) Contains(t TimeOfDay) bool {
	if s.AllDay() {
		return true
	}
	return t >= *s.Start && t <= *s.End
}

func (s Schedule) onDay(day time.Weekday) bool {
	return strings.EqualFold(s.DayOfWeek, WeekdayName(day))
}

// Rule is a named tracking policy.
type Rule struct {
	ID          string
	Name        string
	Description string
	Type        Type
	IsDefault   bool
	Schedules   []Schedule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActiveSchedules returns the schedules that take part in evaluation.
func (r Rule) ActiveSchedules() []Schedule {
	active := make([]Schedule, 0, len(r.Schedules))
	for _, s := range r.Schedules {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	clone := r
	clone.Schedules = CloneSchedules(r.Schedules)
	return clone
}

// CloneSchedules deep-copies a schedule slice.
func CloneSchedules(schedules []Schedule) []Schedule {
	if schedules == nil {
		return nil
	}
	out := make([]Schedule, len(schedules))
	for i, s := range schedules {
		out[i] = s
		if s.Start != nil {
			out[i].Start = s.Start.Ptr()
		}
		if s.End != nil {
			out[i].End = s.End.Ptr()
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// WeekdayName returns the upper-case name used in schedules, e.g. "MONDAY".
func WeekdayName(day time.Weekday) string {
	return strings.ToUpper(day.String())
}

// ParseWeekday resolves an upper- or mixed-case weekday name.
func ParseWeekday(value string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(value))]
	return day, ok
}
