package orch

import (
	"context"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/app/writebehind"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/infra/files"
	"github.com/abhimm5/chatapp/internal/infra/liveness"
	"github.com/abhimm5/chatapp/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ctx    context.Context
	o      *Orchestrator
	rec    *testutil.Recorder
	clock  *testutil.Clock
	writes *writebehind.Scheduler
	fs     afero.Fs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewStore(t)
	writes := writebehind.New(ctx, writebehind.Config{Delay: time.Hour, Backoff: time.Millisecond})
	t.Cleanup(func() { writes.Close(context.Background()) })

	fs := afero.NewMemMapFs()
	avatars, err := files.NewAvatarStorage(fs, "/avatars", "/avatars", 1<<10)
	require.NoError(t, err)

	clock := testutil.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	reg := app.NewRegistry(store, avatars, writes)
	reg.SetClock(clock.Now)
	rooms, err := app.NewRoomManager(store, writes, liveness.NewMemory())
	require.NoError(t, err)
	rooms.SetClock(clock.Now)

	rec := testutil.NewRecorder()
	o := &Orchestrator{
		Registry:   reg,
		Rooms:      rooms,
		Matcher:    app.NewMatchmaker(reg, rooms),
		Notifier:   rec,
		Files:      avatars,
		Policy:     app.SimplePolicy{},
		ImageDelay: 10 * time.Millisecond,
	}
	t.Cleanup(o.Wait)
	return &harness{ctx: ctx, o: o, rec: rec, clock: clock, writes: writes, fs: fs}
}

func conn(name string) domain.ConnectionID { return domain.ConnectionID("conn-" + name) }

func (h *harness) register(t *testing.T, name string) domain.Identity {
	t.Helper()
	id, err := h.o.Register(h.ctx, app.Registration{Username: name, ConnectionID: conn(name)})
	require.NoError(t, err)
	return id
}

// pair puts a and b into one fresh room of two and clears the recorder.
func (h *harness) pair(t *testing.T, a, b string) domain.RoomName {
	t.Helper()
	h.register(t, a)
	h.register(t, b)
	m, err := h.o.RandomConnect(h.ctx, a, 2)
	require.NoError(t, err)
	_, err = h.o.RandomConnect(h.ctx, b, 2)
	require.NoError(t, err)
	h.rec.Reset()
	return m.Room.Name
}
