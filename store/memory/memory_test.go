package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	u := &leave.User{Username: "alice", Email: "alice@example.com", RemainDays: leave.DaysOf(15), Active: true}
	require.NoError(t, store.SaveUser(ctx, u))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s leave.Store) error {
		user, err := s.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		user.RemainDays = leave.ZeroDays()
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

func TestWithTx_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	u := &leave.User{Username: "alice", Email: "alice@example.com", RemainDays: leave.DaysOf(15), Active: true}
	require.NoError(t, store.SaveUser(ctx, u))

	err := store.WithTx(ctx, func(s leave.Store) error {
		user, err := s.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		user.RemainDays = leave.DaysOf(9)
		return s.SaveUser(ctx, user)
	})
	require.NoError(t, err)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainDays.Equal(leave.DaysOf(9)))
}

func TestGetUser_ReturnsInactive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	u := &leave.User{Username: "alice", Email: "alice@example.com", RemainDays: leave.DaysOf(15), Active: true}
	require.NoError(t, store.SaveUser(ctx, u))
	u.Active = false
	require.NoError(t, store.SaveUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)

	byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, byEmail)
}

func TestSearchUsers_PaginationAndFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	for _, name := range []string{"alice", "bob", "carol"} {
		u := &leave.User{Username: name, Email: name + "@example.com", RemainDays: leave.DaysOf(15), Active: true}
		require.NoError(t, store.SaveUser(ctx, u))
	}
	inactive := &leave.User{Username: "ghost", Email: "ghost@example.com", RemainDays: leave.DaysOf(15), Active: false}
	require.NoError(t, store.SaveUser(ctx, inactive))

	users, total, err := store.SearchUsers(ctx, "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, users, 2)

	users, total, err = store.SearchUsers(ctx, "car", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Username)
}
