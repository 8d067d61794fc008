package orch

import (
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/app/expiry"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvictIdleMember(t *testing.T) {
	h := newHarness(t)
	room := h.pair(t, "a", "b")

	require.NoError(t, h.o.Disconnect(h.ctx, conn("a")))
	h.clock.Advance(31 * time.Second)
	require.NoError(t, h.o.Heartbeat(h.ctx, conn("b"), room))
	cutoff := h.clock.Now().Add(-30 * time.Second)

	stale, err := h.o.StaleIdentities(h.ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a", stale[0].Username)

	require.NoError(t, h.o.Evict(h.ctx, "a", cutoff))

	_, err = h.o.Registry.Lookup(h.ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	svc, err := h.o.Rooms.Get(h.ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, svc.Snapshot().Usernames())

	changes := testutil.EventsOf[core.UserStatusChange](h.rec.SentTo(conn("b")))
	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].Username)
	assert.Equal(t, core.ReasonDisconnected, changes[0].Reason)
	assert.NotEmpty(t, testutil.EventsOf[core.RoomList](h.rec.Broadcasts()))
}

func TestEvictSparesReturnedIdentity(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a")
	require.NoError(t, h.o.Disconnect(h.ctx, conn("a")))
	h.clock.Advance(31 * time.Second)
	cutoff := h.clock.Now().Add(-30 * time.Second)
	h.register(t, "a")

	require.NoError(t, h.o.Evict(h.ctx, "a", cutoff))
	_, err := h.o.Registry.Lookup(h.ctx, "a")
	assert.NoError(t, err)

	assert.NoError(t, h.o.Evict(h.ctx, "ghost", cutoff))
}

func TestSweepEmptyRoomsBroadcastsOnChange(t *testing.T) {
	h := newHarness(t)
	n, err := h.o.SweepEmptyRooms(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.rec.Broadcasts())
}

func TestPurgeDormant(t *testing.T) {
	h := newHarness(t)
	h.register(t, "old")
	h.clock.Advance(73 * time.Hour)
	h.register(t, "new")

	n, err := h.o.PurgeDormant(h.ctx, h.clock.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = h.o.Registry.Lookup(h.ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweeperKeepsRoomWithRemainingMember(t *testing.T) {
	h := newHarness(t)
	room := h.pair(t, "a", "b")
	require.NoError(t, h.o.Disconnect(h.ctx, conn("a")))
	h.clock.Advance(31 * time.Second)

	sweeper := expiry.NewSweeper(h.o, 30*time.Second, 72*time.Hour)
	assert.Equal(t, 1, sweeper.SweepIdle(h.ctx, h.clock.Now()))

	svc, err := h.o.Rooms.Get(h.ctx, room)
	require.NoError(t, err)
	snap := svc.Snapshot()
	assert.Equal(t, []string{"b"}, snap.Usernames())
	assert.Equal(t, 2, snap.Capacity)

	changes := testutil.EventsOf[core.UserStatusChange](h.rec.SentTo(conn("b")))
	require.Len(t, changes, 1)
	assert.Equal(t, core.ReasonDisconnected, changes[0].Reason)

	require.NoError(t, h.o.Disconnect(h.ctx, conn("b")))
	h.clock.Advance(31 * time.Second)
	assert.Equal(t, 1, sweeper.SweepIdle(h.ctx, h.clock.Now()))
	assert.Empty(t, h.o.ListRooms())
}
