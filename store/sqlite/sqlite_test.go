package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveUser(t *testing.T, store *sqlite.Store, username string, remain int) *leave.User {
	u := &leave.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         leave.RoleUser,
		RemainDays:   leave.DaysOf(remain),
		Active:       true,
	}
	require.NoError(t, store.SaveUser(context.Background(), u))
	return u
}

func saveLeave(t *testing.T, store *sqlite.Store, userID int64, start, end calendar.Date, status leave.Status, using int) *leave.Leave {
	l := &leave.Leave{
		UserID:    userID,
		Type:      leave.TypeAnnual,
		Range:     calendar.Range{Start: start, End: end},
		Status:    status,
		UsingDays: leave.DaysOf(using),
	}
	require.NoError(t, store.SaveLeave(context.Background(), l))
	return l
}

func date(year int, month time.Month, day int) calendar.Date {
	return calendar.NewDate(year, month, day)
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestUser_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	u := saveUser(t, store, "alice", 15)
	require.NotZero(t, u.ID)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, leave.RoleUser, got.Role)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(15)))
	assert.True(t, got.Active)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUser_GetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetUser(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUser_Update(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	u.RemainDays = leave.DaysOf(3)
	u.Role = leave.RoleAdmin
	require.NoError(t, store.SaveUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(3)))
	assert.Equal(t, leave.RoleAdmin, got.Role)
}

func TestUser_GetByEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	got, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	got, err = store.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUser_GetReturnsInactive(t *testing.T) {
	// Deactivation must not hide the row from id lookups: pending leaves of
	// a deactivated user still need decisions and refunds.

	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	u.Active = false
	require.NoError(t, store.SaveUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)
}

func TestDecide_RejectAfterDeactivation_Refunds(t *testing.T) {
	// GIVEN: A waiting 1-day leave whose owner has since been deactivated
	// WHEN: An admin rejects it
	// THEN: The decision lands and the reservation is refunded

	ctx := context.Background()
	store := newTestStore(t)
	engine := leave.NewEngine(store, nil, nil, nil)
	u := saveUser(t, store, "alice", 15)

	result, err := engine.Apply(ctx, u.ID, leave.TypeAnnual,
		calendar.Range{Start: date(2023, time.May, 8), End: date(2023, time.May, 8)})
	require.NoError(t, err)

	fresh, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	fresh.Active = false
	require.NoError(t, store.SaveUser(ctx, fresh))

	decided, err := engine.Decide(ctx, result.LeaveID, false)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejection, decided.Status)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(15)))
}

func TestUser_GetByEmail_IgnoresInactive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	u.Active = false
	require.NoError(t, store.SaveUser(ctx, u))

	got, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchUsers_Pagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		saveUser(t, store, name, 15)
	}

	users, total, err := store.SearchUsers(ctx, "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	users, total, err = store.SearchUsers(ctx, "", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, users, 1)
	assert.Equal(t, "erin", users[0].Username)
}

func TestSearchUsers_QueryMatchesUsernameAndEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveUser(t, store, "alice", 15)
	saveUser(t, store, "bob", 15)

	users, total, err := store.SearchUsers(ctx, "ali", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	users, total, err = store.SearchUsers(ctx, "bob@example", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
}

// =============================================================================
// LEAVE TESTS
// =============================================================================

func TestLeave_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	l := saveLeave(t, store, u.ID, date(2023, time.May, 10), date(2023, time.May, 14), leave.StatusWaiting, 3)
	require.NotZero(t, l.ID)

	got, err := store.GetLeave(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, leave.TypeAnnual, got.Type)
	assert.Equal(t, "2023-05-10", got.Range.Start.String())
	assert.Equal(t, "2023-05-14", got.Range.End.String())
	assert.Equal(t, leave.StatusWaiting, got.Status)
	assert.True(t, got.UsingDays.Equal(leave.DaysOf(3)))
}

func TestLeave_UpdateTouchesOnlyStatusAndReservation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)
	l := saveLeave(t, store, u.ID, date(2023, time.May, 10), date(2023, time.May, 14), leave.StatusWaiting, 3)

	l.Status = leave.StatusRejection
	l.UsingDays = leave.ZeroDays()
	require.NoError(t, store.SaveLeave(ctx, l))

	got, err := store.GetLeave(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejection, got.Status)
	assert.True(t, got.UsingDays.IsZero())
	assert.Equal(t, "2023-05-10", got.Range.Start.String())
}

func TestListLeaves_OrderAndScope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)
	other := saveUser(t, store, "bob", 15)

	first := saveLeave(t, store, u.ID, date(2023, time.May, 1), date(2023, time.May, 5), leave.StatusWaiting, 5)
	saveLeave(t, store, other.ID, date(2023, time.May, 2), date(2023, time.May, 3), leave.StatusWaiting, 2)
	third := saveLeave(t, store, u.ID, date(2023, time.May, 8), date(2023, time.May, 8), leave.StatusWaiting, 1)

	infos, err := store.ListLeaves(ctx, nil)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, first.ID, infos[0].LeaveID)
	assert.Equal(t, "alice", infos[0].Username)

	infos, err = store.ListLeaves(ctx, &u.ID)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID, infos[0].LeaveID)
	assert.Equal(t, third.ID, infos[1].LeaveID)
}

func TestListLeavesStarting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	match := saveLeave(t, store, u.ID, date(2023, time.May, 8), date(2023, time.May, 12), leave.StatusWaiting, 5)
	saveLeave(t, store, u.ID, date(2023, time.May, 9), date(2023, time.May, 12), leave.StatusWaiting, 4)
	saveLeave(t, store, u.ID, date(2023, time.May, 8), date(2023, time.May, 8), leave.StatusApproval, 1)

	got, err := store.ListLeavesStarting(ctx, date(2023, time.May, 8), leave.StatusWaiting)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, match.ID, got[0].ID)
}

// =============================================================================
// ALARM TESTS
// =============================================================================

func TestListAlarms_FiltersByLeaveStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	approved := saveLeave(t, store, u.ID, date(2023, time.May, 1), date(2023, time.May, 5), leave.StatusApproval, 5)
	waiting := saveLeave(t, store, u.ID, date(2023, time.May, 8), date(2023, time.May, 8), leave.StatusWaiting, 1)

	a1 := &leave.Alarm{UserID: u.ID, LeaveID: approved.ID, Message: "approved"}
	require.NoError(t, store.SaveAlarm(ctx, a1))
	require.NoError(t, store.SaveAlarm(ctx, &leave.Alarm{UserID: u.ID, LeaveID: waiting.ID, Message: "registered"}))

	got, err := store.ListAlarms(ctx, u.ID, leave.StatusApproval)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a1.ID, got[0].ID)
	assert.Equal(t, "approved", got[0].Message)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)

	err := store.WithTx(ctx, func(s leave.Store) error {
		user, err := s.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		user.RemainDays = leave.DaysOf(7)
		return s.SaveUser(ctx, user)
	})
	require.NoError(t, err)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(7)))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := saveUser(t, store, "alice", 15)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s leave.Store) error {
		user, err := s.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		user.RemainDays = leave.DaysOf(0)
		if err := s.SaveUser(ctx, user); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(15)))
}
