package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/testfixtures"
)

// forEachStore runs fn as a subtest against every store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store persistence.Store)) {
	t.Helper()
	for name, open := range testfixtures.StoreFactories() {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, open(t))
		})
	}
}

func TestUserRepository(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		ctx := context.Background()

		rule := testfixtures.NewRule("rule-1", "Office")
		require.NoError(t, store.CreateRule(ctx, rule))

		phone := "+44 20 7946 0000"
		user := testfixtures.NewUser(
			testfixtures.WithUserID("emp-1"),
			testfixtures.WithUserName("Ada", "Lovelace"),
			testfixtures.WithUserRule(rule.ID),
		)
		user.PhoneNumber = &phone
		require.NoError(t, store.CreateUser(ctx, user))

		err := store.CreateUser(ctx, user)
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		fetched, err := store.GetUser(ctx, "emp-1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", fetched.FirstName)
		require.NotNil(t, fetched.PhoneNumber)
		assert.Equal(t, phone, *fetched.PhoneNumber)
		require.NotNil(t, fetched.RuleID)
		assert.Equal(t, rule.ID, *fetched.RuleID)
		assert.True(t, fetched.CreatedAt.Equal(user.CreatedAt))

		count, err := store.CountUsersWithRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		fetched.LastName = "King"
		fetched.PhoneNumber = nil
		fetched.RuleID = nil
		fetched.Status = persistence.StatusInactive
		require.NoError(t, store.UpdateUser(ctx, fetched))

		updated, err := store.GetUser(ctx, "emp-1")
		require.NoError(t, err)
		assert.Equal(t, "King", updated.LastName)
		assert.Nil(t, updated.PhoneNumber)
		assert.Nil(t, updated.RuleID)
		assert.Equal(t, persistence.StatusInactive, updated.Status)

		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserID("emp-0"))))
		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "emp-0", users[0].UserID)

		require.NoError(t, store.DeleteUser(ctx, "emp-1"))
		assert.ErrorIs(t, store.DeleteUser(ctx, "emp-1"), persistence.ErrNotFound)
		_, err = store.GetUser(ctx, "emp-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		assert.ErrorIs(t, store.UpdateUser(ctx, fetched), persistence.ErrNotFound)
	})
}

func TestUserRepositoryRejectsUnknownRule(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		user := testfixtures.NewUser(testfixtures.WithUserRule("missing"))
		err := store.CreateUser(context.Background(), user)
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
	})
}

func TestRuleRepository(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		ctx := context.Background()

		_, err := store.GetDefaultRule(ctx)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		def := testfixtures.NewRule("rule-default", "Unrestricted Access", testfixtures.AsDefaultRule())
		require.NoError(t, store.CreateRule(ctx, def))

		office := testfixtures.NewRule("rule-office", "Office Hours",
			testfixtures.WithCustomWindow("MONDAY", "09:00:00", "17:00:00"),
			testfixtures.WithCustomWindow("TUESDAY", "09:00:00", "12:30:00"),
		)
		office.Description = "Weekdays"
		require.NoError(t, store.CreateRule(ctx, office))

		got, err := store.GetDefaultRule(ctx)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
		assert.Empty(t, got.Schedules)

		fetched, err := store.GetRule(ctx, office.ID)
		require.NoError(t, err)
		assert.Equal(t, "CUSTOM", fetched.Type)
		require.Len(t, fetched.Schedules, 2)
		assert.Equal(t, "MONDAY", fetched.Schedules[0].DayOfWeek)
		assert.Equal(t, "12:30:00", *fetched.Schedules[1].EndTime)

		exists, err := store.RuleNameExists(ctx, "Office Hours")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = store.RuleNameExists(ctx, "Night Shift")
		require.NoError(t, err)
		assert.False(t, exists)

		dup := testfixtures.NewRule("rule-dup", "Office Hours")
		assert.ErrorIs(t, store.CreateRule(ctx, dup), persistence.ErrDuplicate)
		second := testfixtures.NewRule("rule-second-default", "Another", testfixtures.AsDefaultRule())
		assert.ErrorIs(t, store.CreateRule(ctx, second), persistence.ErrDuplicate)

		allDay := "FRIDAY"
		fetched.Type = "DAY_ANY_TIME"
		fetched.Schedules = []persistence.RuleSchedule{{DayOfWeek: allDay, Active: true}}
		fetched.UpdatedAt = fetched.UpdatedAt.Add(time.Hour)
		require.NoError(t, store.UpdateRule(ctx, fetched))

		fetched, err = store.GetRule(ctx, office.ID)
		require.NoError(t, err)
		require.Len(t, fetched.Schedules, 1)
		assert.Equal(t, allDay, fetched.Schedules[0].DayOfWeek)
		assert.Nil(t, fetched.Schedules[0].StartTime)

		missing := testfixtures.NewRule("rule-missing", "Missing")
		assert.ErrorIs(t, store.UpdateRule(ctx, missing), persistence.ErrNotFound)

		listed, err := store.ListRules(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "Office Hours", listed[0].Name)
		assert.Equal(t, "Unrestricted Access", listed[1].Name)
		assert.Len(t, listed[0].Schedules, 1)

		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserRule(office.ID))))
		assert.ErrorIs(t, store.DeleteRule(ctx, office.ID), persistence.ErrConstraintViolation)

		require.NoError(t, store.DeleteRule(ctx, def.ID))
		assert.ErrorIs(t, store.DeleteRule(ctx, def.ID), persistence.ErrNotFound)
	})
}

func TestWorkSessionRepository(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserID("emp-1"))))
		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserID("emp-2"))))

		estimate := int64(90)
		first := testfixtures.NewSession("emp-1",
			testfixtures.WithSessionID("sess-a"),
			testfixtures.StartedAt(base.Add(-3*time.Hour)),
			testfixtures.StoppedAt(base.Add(-2*time.Hour)),
		)
		active := testfixtures.NewSession("emp-1", testfixtures.WithSessionID("sess-b"), testfixtures.StartedAt(base))
		active.EstimatedDurationMinutes = &estimate
		other := testfixtures.NewSession("emp-2", testfixtures.WithSessionID("sess-c"), testfixtures.StartedAt(base.Add(time.Minute)))

		for _, s := range []persistence.WorkSession{first, active, other} {
			require.NoError(t, store.CreateSession(ctx, s))
		}

		second := testfixtures.NewSession("emp-1", testfixtures.WithSessionID("sess-d"))
		assert.ErrorIs(t, store.CreateSession(ctx, second), persistence.ErrDuplicate, "one ACTIVE session per user")

		orphan := testfixtures.NewSession("ghost", testfixtures.WithSessionID("sess-ghost"))
		assert.ErrorIs(t, store.CreateSession(ctx, orphan), persistence.ErrConstraintViolation)

		fetched, err := store.GetSession(ctx, "sess-b")
		require.NoError(t, err)
		assert.True(t, fetched.StartTime.Equal(base))
		require.NotNil(t, fetched.EstimatedDurationMinutes)
		assert.Equal(t, int64(90), *fetched.EstimatedDurationMinutes)
		assert.Nil(t, fetched.EndTime)

		_, err = store.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		sessions, err := store.ListSessions(ctx, persistence.SessionFilter{UserID: "emp-1"})
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "sess-b", sessions[0].ID)
		assert.Equal(t, "sess-a", sessions[1].ID)

		activeOnly, err := store.ListSessions(ctx, persistence.SessionFilter{Status: persistence.StatusActive})
		require.NoError(t, err)
		require.Len(t, activeOnly, 2)
		assert.Equal(t, "sess-c", activeOnly[0].ID)

		checked := base.Add(30 * time.Minute)
		fetched.IdleWarningSent = true
		fetched.LastIdleCheckTime = &checked
		require.NoError(t, store.UpdateActiveSession(ctx, fetched))

		end := base.Add(time.Hour)
		fetched.Status = persistence.StatusStopped
		fetched.EndTime = &end
		require.NoError(t, store.UpdateActiveSession(ctx, fetched))

		stopped, err := store.GetSession(ctx, "sess-b")
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusStopped, stopped.Status)
		assert.True(t, stopped.IdleWarningSent)
		require.NotNil(t, stopped.LastIdleCheckTime)
		assert.True(t, stopped.LastIdleCheckTime.Equal(checked))
		require.NotNil(t, stopped.EndTime)
		assert.True(t, stopped.EndTime.Equal(end))

		later := end.Add(time.Hour)
		stopped.EndTime = &later
		assert.ErrorIs(t, store.UpdateActiveSession(ctx, stopped), persistence.ErrConflict)
		assert.ErrorIs(t, store.UpdateActiveSession(ctx, testfixtures.NewSession("emp-1", testfixtures.WithSessionID("nope"))), persistence.ErrNotFound)

		reread, err := store.GetSession(ctx, "sess-b")
		require.NoError(t, err)
		assert.True(t, reread.EndTime.Equal(end), "a stopped session keeps its end time")

		require.NoError(t, store.CreateSession(ctx, second), "a new ACTIVE session is allowed once the previous one stopped")
	})
}

func TestUpdateActiveSessionHasOneWinner(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		ctx := context.Background()
		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserID("emp-1"))))
		session := testfixtures.NewSession("emp-1", testfixtures.WithSessionID("sess-race"))
		require.NoError(t, store.CreateSession(ctx, session))

		const racers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			winners   int
			conflicts int
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				stop := session
				end := session.StartTime.Add(time.Duration(i+1) * time.Minute)
				stop.Status = persistence.StatusStopped
				stop.EndTime = &end
				err := store.UpdateActiveSession(ctx, stop)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners++
				case errors.Is(err, persistence.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		assert.Equal(t, racers-1, conflicts)
	})
}

func TestActivityLogRepository(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, store persistence.Store) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		require.NoError(t, store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithUserID("emp-1"))))
		require.NoError(t, store.CreateSession(ctx, testfixtures.NewSession("emp-1", testfixtures.WithSessionID("sess-1"))))

		for _, offset := range []time.Duration{0, 5 * time.Minute, 10 * time.Minute, 20 * time.Minute} {
			log := testfixtures.NewActivityLog("sess-1", base.Add(offset), offset >= 10*time.Minute)
			require.NoError(t, store.CreateActivityLog(ctx, log))
		}

		orphan := testfixtures.NewActivityLog("sess-missing", base, false)
		assert.ErrorIs(t, store.CreateActivityLog(ctx, orphan), persistence.ErrConstraintViolation)

		all, err := store.ListActivityLogs(ctx, "sess-1")
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.True(t, all[0].LoggedAt.Equal(base))
		assert.True(t, all[3].LoggedAt.Equal(base.Add(20*time.Minute)))

		recent, err := store.ListActivityLogsSince(ctx, "sess-1", base.Add(5*time.Minute))
		require.NoError(t, err)
		require.Len(t, recent, 2, "the boundary entry is excluded")
		assert.True(t, recent[0].LoggedAt.Equal(base.Add(20*time.Minute)))
		assert.Equal(t, persistence.StatusIdle, recent[0].Status)

		none, err := store.ListActivityLogsSince(ctx, "sess-1", base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, none)

		require.NoError(t, store.DeleteUser(ctx, "emp-1"))
		_, err = store.GetSession(ctx, "sess-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound, "sessions cascade with their user")
		gone, err := store.ListActivityLogs(ctx, "sess-1")
		require.NoError(t, err)
		assert.Empty(t, gone)
	})
}
