// Package storetest checks a core.Store implementation against the behavior
// the registry and the room directory rely on.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes every check against a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) core.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("user filters", func(t *testing.T) { testUserFilters(t, open(t)) })
	t.Run("rooms", func(t *testing.T) { testRooms(t, open(t)) })
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func identity(name string, status domain.Status, at time.Time) domain.Identity {
	return domain.Identity{
		Username:     name,
		ConnectionID: domain.ConnectionID("conn-" + name),
		Status:       status,
		LastActiveAt: at,
		AvatarRef:    domain.DefaultAvatar,
	}
}

func testUsers(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.FindUser(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	alice := identity("alice", domain.StatusOnline, t0)
	alice.DesiredGroupSize = 3
	alice.CurrentRoom = "room_a"
	require.NoError(t, s.UpsertUser(ctx, alice))

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ConnectionID, got.ConnectionID)
	assert.Equal(t, 3, got.DesiredGroupSize)
	assert.Equal(t, domain.RoomName("room_a"), got.CurrentRoom)
	assert.True(t, got.LastActiveAt.Equal(t0))

	alice.CurrentRoom = ""
	alice.DesiredGroupSize = 0
	alice.ConnectionID = "conn-2"
	require.NoError(t, s.UpsertUser(ctx, alice))

	got, err = s.FindUserByConnection(ctx, "conn-2")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.CurrentRoom)
	assert.Zero(t, got.DesiredGroupSize)

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), domain.ErrNotFound)
	_, err = s.FindUserByConnection(ctx, "conn-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUserFilters(t *testing.T, s core.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertUser(ctx, identity("a", domain.StatusOffline, t0)))
	require.NoError(t, s.UpsertUser(ctx, identity("b", domain.StatusOnline, t0)))
	require.NoError(t, s.UpsertUser(ctx, identity("c", domain.StatusOffline, t0.Add(time.Minute))))

	cutoff := t0.Add(30 * time.Second)
	stale, err := s.FindUsers(ctx, core.UserFilter{Status: domain.StatusOffline, ActiveBefore: cutoff})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(stale))

	old, err := s.FindUsers(ctx, core.UserFilter{ActiveBefore: cutoff})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(old))

	n, err := s.DeleteUsers(ctx, core.UserFilter{ActiveBefore: cutoff})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.DeleteUsers(ctx, core.UserFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	all, err := s.FindUsers(ctx, core.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testRooms(t *testing.T, s core.Store) {
	ctx := context.Background()
	m := func(name string) domain.Member {
		return domain.Member{Username: name, AvatarRef: domain.DefaultAvatar, ConnectionID: domain.ConnectionID("conn-" + name)}
	}

	first := domain.Room{Name: "room_1", Members: []domain.Member{m("a")}, CreatedAt: t0}
	second := domain.Room{Name: "room_2", Capacity: 2, Members: []domain.Member{m("b")}, CreatedAt: t0.Add(time.Second)}
	require.NoError(t, s.InsertRoom(ctx, second))
	require.NoError(t, s.InsertRoom(ctx, first))
	assert.Error(t, s.InsertRoom(ctx, first), "names are unique")

	first.Capacity = 3
	first.Members = append(first.Members, m("c"))
	require.NoError(t, s.UpdateRoom(ctx, first))

	got, err := s.FindRoom(ctx, "room_1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Capacity)
	assert.Equal(t, first.Members, got.Members)
	assert.True(t, got.CreatedAt.Equal(t0))

	rooms, err := s.FindRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomName("room_1"), rooms[0].Name)
	assert.Equal(t, domain.RoomName("room_2"), rooms[1].Name)

	require.NoError(t, s.DeleteRoom(ctx, "room_1"))
	assert.ErrorIs(t, s.DeleteRoom(ctx, "room_1"), domain.ErrNotFound)
	_, err = s.FindRoom(ctx, "room_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.DeleteRooms(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func names(ids []domain.Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Username)
	}
	return out
}
