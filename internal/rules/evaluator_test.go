package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2024-03-11 is a Monday.
func at(day, hour, minute, second int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, second, 0, time.UTC)
}

func window(day, start, end string) Schedule {
	return Schedule{
		DayOfWeek: day,
		Start:     MustParseTimeOfDay(start).Ptr(),
		End:       MustParseTimeOfDay(end).Ptr(),
		Active:    true,
	}
}

func wholeDay(day string) Schedule {
	return Schedule{DayOfWeek: day, Active: true}
}

func TestEvaluatorIsAllowed(t *testing.T) {
	evaluator := NewEvaluator(time.UTC)

	allDays := Rule{Type: TypeAllDays}
	officeHours := Rule{Type: TypeAllDaysWithTime, Schedules: []Schedule{window(AllDays, "09:00", "17:00")}}
	mondays := Rule{Type: TypeDayAnyTime, Schedules: []Schedule{wholeDay("MONDAY")}}
	mondayMorning := Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:00", "12:00")}}

	tests := []struct {
		name string
		rule Rule
		now  time.Time
		want bool
	}{
		{name: "all days at midnight", rule: allDays, now: at(11, 0, 0, 0), want: true},
		{name: "all days on sunday night", rule: allDays, now: at(17, 23, 59, 59), want: true},
		{name: "window one second before start", rule: officeHours, now: at(11, 8, 59, 59), want: false},
		{name: "window at start boundary", rule: officeHours, now: at(11, 9, 0, 0), want: true},
		{name: "window at end boundary", rule: officeHours, now: at(11, 17, 0, 0), want: true},
		{name: "window one second after end", rule: officeHours, now: at(11, 17, 0, 1), want: false},
		{name: "window ignores weekday", rule: officeHours, now: at(16, 12, 0, 0), want: true},
		{name: "listed weekday", rule: mondays, now: at(11, 3, 0, 0), want: true},
		{name: "unlisted weekday", rule: mondays, now: at(12, 3, 0, 0), want: false},
		{name: "custom day and time match", rule: mondayMorning, now: at(11, 10, 0, 0), want: true},
		{name: "custom wrong day", rule: mondayMorning, now: at(12, 10, 0, 0), want: false},
		{name: "custom wrong time", rule: mondayMorning, now: at(11, 13, 0, 0), want: false},
		{name: "unknown type", rule: Rule{Type: Type("SOMETIMES")}, now: at(11, 10, 0, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluator.IsAllowed(tt.rule, tt.now))
		})
	}
}

func TestEvaluatorIgnoresInactiveSchedules(t *testing.T) {
	evaluator := NewEvaluator(time.UTC)
	disabled := window("MONDAY", "09:00", "12:00")
	disabled.Active = false
	rule := Rule{Type: TypeCustom, Schedules: []Schedule{disabled}}

	assert.False(t, evaluator.IsAllowed(rule, at(11, 10, 0, 0)))
	assert.Equal(t, MessageNoWindows, evaluator.NextAllowedDescription(rule, at(11, 8, 0, 0)))
}

func TestEvaluatorUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	evaluator := NewEvaluator(tokyo)
	rule := Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "08:00", "09:00")}}

	// Sunday 23:30 UTC is Monday 08:30 in Tokyo.
	assert.True(t, evaluator.IsAllowed(rule, at(10, 23, 30, 0)))
	assert.False(t, NewEvaluator(time.UTC).IsAllowed(rule, at(10, 23, 30, 0)))
}

func TestEvaluatorIsDeterministic(t *testing.T) {
	evaluator := NewEvaluator(time.UTC)
	rule := Rule{Type: TypeCustom, Schedules: []Schedule{window("FRIDAY", "09:00", "10:00")}}
	now := at(11, 9, 30, 0)

	first := evaluator.NextAllowedDescription(rule, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, evaluator.NextAllowedDescription(rule, now))
		assert.Equal(t, evaluator.IsAllowed(rule, now), evaluator.IsAllowed(rule, now))
	}
}

func TestNextAllowedDescription(t *testing.T) {
	evaluator := NewEvaluator(time.UTC)

	tests := []struct {
		name string
		rule Rule
		now  time.Time
		want string
	}{
		{
			name: "all days",
			rule: Rule{Type: TypeAllDays},
			now:  at(11, 8, 0, 0),
			want: "You can track at any time.",
		},
		{
			name: "no schedules",
			rule: Rule{Type: TypeCustom},
			now:  at(11, 8, 0, 0),
			want: "No tracking windows are configured. Contact your administrator.",
		},
		{
			name: "later today",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:00", "17:00")}},
			now:  at(11, 8, 0, 0),
			want: "Next allowed: Today at 09:00",
		},
		{
			name: "only window this week already passed",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:00", "17:00")}},
			now:  at(11, 18, 0, 0),
			want: "No upcoming tracking windows found in the next 7 days.",
		},
		{
			name: "later in the week",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:00", "17:00")}},
			now:  at(12, 10, 0, 0),
			want: "Next allowed: Monday at 09:00",
		},
		{
			name: "daily window tomorrow",
			rule: Rule{Type: TypeAllDaysWithTime, Schedules: []Schedule{window(AllDays, "09:00", "17:00")}},
			now:  at(11, 18, 0, 0),
			want: "Next allowed: Tuesday at 09:00",
		},
		{
			name: "whole day today",
			rule: Rule{Type: TypeDayAnyTime, Schedules: []Schedule{wholeDay("WEDNESDAY")}},
			now:  at(13, 6, 0, 0),
			want: "You can track today at any time.",
		},
		{
			name: "whole day later",
			rule: Rule{Type: TypeDayAnyTime, Schedules: []Schedule{wholeDay("WEDNESDAY")}},
			now:  at(11, 6, 0, 0),
			want: "Next allowed: Wednesday at any time",
		},
		{
			name: "earliest start wins on the same day",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{
				window("TUESDAY", "14:00", "16:00"),
				window("TUESDAY", "10:00", "12:00"),
			}},
			now:  at(11, 18, 0, 0),
			want: "Next allowed: Tuesday at 10:00",
		},
		{
			name: "skips a started window and reports the later one today",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{
				window("MONDAY", "08:00", "09:00"),
				window("MONDAY", "13:00", "14:00"),
			}},
			now:  at(11, 10, 0, 0),
			want: "Next allowed: Today at 13:00",
		},
		{
			name: "seconds are rendered when present",
			rule: Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:30:15", "10:00")}},
			now:  at(11, 9, 0, 0),
			want: "Next allowed: Today at 09:30:15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluator.NextAllowedDescription(tt.rule, tt.now))
		})
	}
}
