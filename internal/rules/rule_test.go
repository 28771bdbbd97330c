package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Run("accepts minutes and seconds forms", func(t *testing.T) {
		got, err := ParseTimeOfDay("09:30")
		require.NoError(t, err)
		assert.Equal(t, NewTimeOfDay(9, 30, 0), got)
		assert.Equal(t, "09:30", got.String())

		got, err = ParseTimeOfDay("23:59:59")
		require.NoError(t, err)
		assert.Equal(t, "23:59:59", got.String())
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		for _, value := range []string{"", "9:30", "24:00", "12:60", "12:00:60", "noon", "12:00:00:00"} {
			_, err := ParseTimeOfDay(value)
			assert.ErrorIs(t, err, ErrInvalidTimeOfDay, value)
		}
	})
}

func TestTimeOfDayComponents(t *testing.T) {
	tod := NewTimeOfDay(17, 45, 9)
	assert.Equal(t, 17, tod.Hour())
	assert.Equal(t, 45, tod.Minute())
	assert.Equal(t, 9, tod.Second())
}

func TestTimeOfTruncatesSubSecond(t *testing.T) {
	instant := time.Date(2024, time.March, 11, 17, 0, 0, 999_000_000, time.UTC)
	assert.Equal(t, NewTimeOfDay(17, 0, 0), TimeOf(instant))
}

func TestScheduleContains(t *testing.T) {
	s := window("MONDAY", "09:00", "17:00")
	assert.True(t, s.Contains(MustParseTimeOfDay("09:00")))
	assert.True(t, s.Contains(MustParseTimeOfDay("17:00")))
	assert.False(t, s.Contains(MustParseTimeOfDay("08:59:59")))
	assert.False(t, s.Contains(MustParseTimeOfDay("17:00:01")))
	assert.True(t, wholeDay("MONDAY").Contains(MustParseTimeOfDay("03:00")))
}

func TestParseType(t *testing.T) {
	got, err := ParseType("custom")
	require.NoError(t, err)
	assert.Equal(t, TypeCustom, got)

	_, err = ParseType("WEEKENDS")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseWeekday(t *testing.T) {
	day, ok := ParseWeekday("friday")
	assert.True(t, ok)
	assert.Equal(t, time.Friday, day)

	_, ok = ParseWeekday(AllDays)
	assert.False(t, ok)
	assert.Equal(t, "SATURDAY", WeekdayName(time.Saturday))
}

func TestCloneSchedulesIsDeep(t *testing.T) {
	original := Rule{Type: TypeCustom, Schedules: []Schedule{window("MONDAY", "09:00", "10:00")}}
	clone := original.Clone()
	*clone.Schedules[0].Start = MustParseTimeOfDay("11:00")

	assert.Equal(t, "09:00", original.Schedules[0].Start.String())
}
