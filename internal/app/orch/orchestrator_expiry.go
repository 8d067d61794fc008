package orch

import (
	"context"
	"errors"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) StaleIdentities(ctx context.Context, cutoff time.Time) ([]domain.Identity, error) {
	return o.Registry.Stale(ctx, cutoff)
}

// Evict removes an identity that stayed offline past cutoff. Identities that
// came back online in the meantime are left alone.
func (o *Orchestrator) Evict(ctx context.Context, username string, cutoff time.Time) error {
	unlock := o.lock(username)
	defer unlock()

	id, err := o.Registry.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if id.Online() || !id.LastActiveAt.Before(cutoff) {
		return nil
	}
	left := false
	if id.CurrentRoom != "" {
		if err := o.leave(ctx, id, id.CurrentRoom, core.ReasonDisconnected); err != nil {
			return err
		}
		left = true
	}
	if err := o.Registry.Remove(ctx, username); err != nil {
		return err
	}
	log.Info().Str("module", "orch.expiry").Str("user", username).Msg("evicted idle identity")
	if left {
		o.broadcastRooms()
	}
	return nil
}

func (o *Orchestrator) SweepEmptyRooms(ctx context.Context) (int, error) {
	n, err := o.Rooms.SweepEmpty(ctx)
	if n > 0 {
		o.broadcastRooms()
	}
	return n, err
}

func (o *Orchestrator) PurgeDormant(ctx context.Context, cutoff time.Time) (int, error) {
	return o.Registry.PurgeBefore(ctx, cutoff)
}
