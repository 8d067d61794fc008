// Package apptest wires a complete orchestrator over in-memory backends for adapter tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/app/orch"
	"github.com/abhimm5/chatapp/internal/app/writebehind"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/infra/files"
	"github.com/abhimm5/chatapp/internal/infra/liveness"
	"github.com/abhimm5/chatapp/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type Env struct {
	Orch    *orch.Orchestrator
	Avatars *files.AvatarStorage
	Writes  *writebehind.Scheduler
}

// New builds the stack with notifier as the outbound side.
func New(t *testing.T, notifier core.Notifier) *Env {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewStore(t)
	writes := writebehind.New(ctx, writebehind.Config{Delay: time.Hour})
	t.Cleanup(func() { writes.Close(context.Background()) })

	avatars, err := files.NewAvatarStorage(afero.NewMemMapFs(), "/avatars", "/avatars", 0)
	require.NoError(t, err)

	reg := app.NewRegistry(store, avatars, writes)
	rooms, err := app.NewRoomManager(store, writes, liveness.NewMemory())
	require.NoError(t, err)

	o := &orch.Orchestrator{
		Registry:   reg,
		Rooms:      rooms,
		Matcher:    app.NewMatchmaker(reg, rooms),
		Notifier:   notifier,
		Files:      avatars,
		Policy:     app.SimplePolicy{},
		ImageDelay: 10 * time.Millisecond,
	}
	t.Cleanup(o.Wait)
	return &Env{Orch: o, Avatars: avatars, Writes: writes}
}
