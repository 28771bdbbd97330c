package rules

import "fmt"

// Validate checks that schedules have the shape required by the rule type.
// Failures wrap ErrInvalidConfiguration.
func Validate(ruleType Type, schedules []Schedule) error {
	switch ruleType {
	case TypeAllDays:
		if len(schedules) != 0 {
			return invalid("ALL_DAYS rules must not have schedules")
		}
		return nil

	case TypeAllDaysWithTime:
		if len(schedules) != 1 {
			return invalid("ALL_DAYS_WITH_TIME rules require exactly one schedule")
		}
		s := schedules[0]
		if s.DayOfWeek != AllDays {
			return invalid("ALL_DAYS_WITH_TIME schedule day must be %q", AllDays)
		}
		if s.Start == nil || s.End == nil {
			return invalid("ALL_DAYS_WITH_TIME schedule requires start and end times")
		}
		return checkWindow(0, s)

	case TypeDayAnyTime:
		if len(schedules) == 0 {
			return invalid("DAY_ANY_TIME rules require at least one schedule")
		}
		for i, s := range schedules {
			if err := checkWeekday(i, s); err != nil {
				return err
			}
			if s.Start != nil || s.End != nil {
				return invalid("schedule %d: DAY_ANY_TIME schedules must not set times", i)
			}
		}
		return nil

	case TypeCustom:
		if len(schedules) == 0 {
			return invalid("CUSTOM rules require at least one schedule")
		}
		for i, s := range schedules {
			if err := checkWeekday(i, s); err != nil {
				return err
			}
			if s.Start == nil || s.End == nil {
				return invalid("schedule %d: CUSTOM schedules require start and end times", i)
			}
			if err := checkWindow(i, s); err != nil {
				return err
			}
		}
		return nil

	default:
		return invalid("unknown rule type %q", ruleType)
	}
}

func checkWeekday(i int, s Schedule) error {
	if s.DayOfWeek == "" {
		return invalid("schedule %d: day of week is required", i)
	}
	if _, ok := ParseWeekday(s.DayOfWeek); !ok {
		return invalid("schedule %d: unknown day of week %q", i, s.DayOfWeek)
	}
	return nil
}

func checkWindow(i int, s Schedule) error {
	if *s.Start >= *s.End {
		return invalid("schedule %d: start time must be before end time", i)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
