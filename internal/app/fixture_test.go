package app

import (
	"context"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/app/writebehind"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/infra/files"
	"github.com/abhimm5/chatapp/internal/infra/liveness"
	"github.com/abhimm5/chatapp/internal/infra/persistence/sqlstore"
	"github.com/abhimm5/chatapp/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx    context.Context
	store  *sqlstore.Store
	writes *writebehind.Scheduler
	fs     afero.Fs
	files  *files.AvatarStorage
	live   *liveness.Memory
	clock  *testutil.Clock
	reg    *Registry
	rooms  *RoomManagerImpl
	mm     *Matchmaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: testutil.NewStore(t),
		fs:    afero.NewMemMapFs(),
		live:  liveness.NewMemory(),
		clock: testutil.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.writes = writebehind.New(f.ctx, writebehind.Config{Delay: time.Hour, Backoff: time.Millisecond})
	t.Cleanup(func() { f.writes.Close(context.Background()) })

	var err error
	f.files, err = files.NewAvatarStorage(f.fs, "/data/avatars", "/avatars", 0)
	require.NoError(t, err)

	f.reg = NewRegistry(f.store, f.files, f.writes)
	f.reg.SetClock(f.clock.Now)
	f.rooms, err = NewRoomManager(f.store, f.writes, f.live)
	require.NoError(t, err)
	f.rooms.SetClock(f.clock.Now)
	f.mm = NewMatchmaker(f.reg, f.rooms)
	return f
}

func (f *fixture) register(t *testing.T, name string) domain.Identity {
	t.Helper()
	id, err := f.reg.RegisterOrRefresh(f.ctx, Registration{
		Username:     name,
		ConnectionID: domain.ConnectionID("conn-" + name),
	})
	require.NoError(t, err)
	return id
}
