package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesIdentity(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "alice")

	assert.Equal(t, domain.StatusOnline, id.Status)
	assert.Equal(t, domain.DefaultAvatar, id.AvatarRef)
	assert.Equal(t, f.clock.Now(), id.LastActiveAt)

	conn, ok := f.reg.Connection("alice")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnectionID("conn-alice"), conn)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.RegisterOrRefresh(f.ctx, Registration{Username: "", ConnectionID: "c"})
	assert.ErrorIs(t, err, domain.ErrUsernameEmpty)
	_, err = f.reg.RegisterOrRefresh(f.ctx, Registration{Username: "a", ConnectionID: "c", DesiredGroupSize: -2})
	assert.ErrorIs(t, err, domain.ErrInvalidGroupSize)
}

func TestRegisterRefreshSwitchesConnection(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.RegisterOrRefresh(f.ctx, Registration{Username: "alice", ConnectionID: "old", AvatarRef: "/avatars/me.png"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	id, err := f.reg.RegisterOrRefresh(f.ctx, Registration{
		Username:         "alice",
		ConnectionID:     "new",
		DesiredGroupSize: 3,
		RoomHint:         "room_a",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("new"), id.ConnectionID)
	assert.Equal(t, "/avatars/me.png", id.AvatarRef, "empty avatar keeps the previous one")
	assert.Equal(t, 3, id.DesiredGroupSize)
	assert.Equal(t, domain.RoomName("room_a"), id.CurrentRoom)
	assert.Equal(t, f.clock.Now(), id.LastActiveAt)

	_, err = f.reg.LookupByConnection(f.ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := f.reg.LookupByConnection(f.ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestRegistryWritesBehind(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	_, err := f.store.FindUser(f.ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound, "durable write is deferred")

	f.writes.Flush(f.ctx)
	stored, err := f.store.FindUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("conn-alice"), stored.ConnectionID)
}

func TestRegistryRehydratesOnMiss(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpsertUser(f.ctx, domain.Identity{
		Username:     "bob",
		ConnectionID: "conn-bob",
		Status:       domain.StatusOnline,
		CurrentRoom:  "room_b",
		LastActiveAt: f.clock.Now(),
		AvatarRef:    domain.DefaultAvatar,
	}))

	id, err := f.reg.Lookup(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("room_b"), id.CurrentRoom)

	byConn, err := f.reg.LookupByConnection(f.ctx, "conn-bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", byConn.Username)

	_, err = f.reg.Lookup(f.ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkOfflineAndTouch(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	f.clock.Advance(5 * time.Second)
	id, err := f.reg.MarkOffline(f.ctx, "conn-alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, id.Status)
	assert.Equal(t, f.clock.Now(), id.LastActiveAt)
	_, ok := f.reg.Connection("alice")
	assert.False(t, ok)

	// still in the mirror
	_, err = f.reg.Lookup(f.ctx, "alice")
	require.NoError(t, err)

	_, err = f.reg.MarkOffline(f.ctx, "conn-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStaleListsIdleOfflineIdentities(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.register(t, "bob")
	f.register(t, "carol")

	_, err := f.reg.MarkOffline(f.ctx, "conn-alice")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.reg.MarkOffline(f.ctx, "conn-bob")
	require.NoError(t, err)
	f.clock.Advance(25 * time.Second)

	stale, err := f.reg.Stale(f.ctx, f.clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "alice", stale[0].Username)
}

func TestStaleIncludesStoreOnlyIdentities(t *testing.T) {
	f := newFixture(t)
	old := f.clock.Now().Add(-time.Hour)
	require.NoError(t, f.store.UpsertUser(f.ctx, domain.Identity{
		Username: "ghost", Status: domain.StatusOffline, LastActiveAt: old, AvatarRef: domain.DefaultAvatar,
	}))
	stale, err := f.reg.Stale(f.ctx, f.clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ghost", stale[0].Username)
}

func TestRemoveDeletesEverywhere(t *testing.T) {
	f := newFixture(t)
	ref, err := f.files.Store(f.ctx, ".png", bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	_, err = f.reg.RegisterOrRefresh(f.ctx, Registration{Username: "alice", ConnectionID: "c", AvatarRef: ref})
	require.NoError(t, err)
	f.writes.Flush(f.ctx)
	f.register(t, "alice") // leaves a pending write behind

	require.NoError(t, f.reg.Remove(f.ctx, "alice"))
	f.writes.Flush(f.ctx)

	_, err = f.reg.Lookup(f.ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.FindUser(f.ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := afero.Exists(f.fs, "/data/avatars/"+ref[len("/avatars/"):])
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPurgeBeforeIgnoresStatus(t *testing.T) {
	f := newFixture(t)
	f.register(t, "old-online")
	f.clock.Advance(100 * time.Hour)
	f.register(t, "fresh")

	n, err := f.reg.PurgeBefore(f.ctx, f.clock.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all := f.reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].Username)
}

func TestRegistryReset(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.writes.Flush(f.ctx)
	f.register(t, "bob")

	require.NoError(t, f.reg.Reset(context.Background()))
	f.writes.Flush(f.ctx)

	assert.Empty(t, f.reg.All())
	users, err := f.store.FindUsers(f.ctx, core.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestSetAvatarReturnsPrevious(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	prev, err := f.reg.SetAvatar(f.ctx, "alice", "/avatars/new.png")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAvatar, prev)

	id, err := f.reg.Lookup(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/avatars/new.png", id.AvatarRef)
}
