package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Relay delivers msg to every member of the sender's room, sender included.
// Messages from identities outside any room are dropped without error.
// Images go out as a placeholder first and as the full payload after ImageDelay.
func (o *Orchestrator) Relay(ctx context.Context, msg domain.Message) (core.PublishResult, error) {
	id, err := o.Registry.Lookup(ctx, msg.From)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return core.PublishResult{}, nil
		}
		return core.PublishResult{}, err
	}
	if id.CurrentRoom == "" {
		return core.PublishResult{}, nil
	}
	svc, err := o.Rooms.Get(ctx, id.CurrentRoom)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return core.PublishResult{}, nil
		}
		return core.PublishResult{}, err
	}
	snap := svc.Snapshot()
	if !snap.Has(msg.From) {
		return core.PublishResult{}, nil
	}

	if !msg.IsImage() {
		return o.deliver(snap, core.NewReceiveMessage(msg)), nil
	}

	res := o.deliver(snap, core.NewImagePlaceholder(msg.From))
	delay := o.ImageDelay
	if delay <= 0 {
		delay = DefaultImageDelay
	}
	full := core.NewReceiveMessage(msg)
	o.timers.Go(func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		<-t.C
		o.deliver(snap, full)
	})
	return res, nil
}

// deliver fans event out to the members of room that are online now.
// A failing member never blocks the others.
func (o *Orchestrator) deliver(room domain.Room, event any) core.PublishResult {
	var (
		mu  sync.Mutex
		res core.PublishResult
		wg  conc.WaitGroup
	)
	for _, m := range room.Members {
		conn, ok := o.Registry.Connection(m.Username)
		if !ok {
			continue
		}
		wg.Go(func() {
			err := o.Notifier.Send(conn, event)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.SendTo++
			case errors.Is(err, core.ErrBackPressure):
				res.Dropped = append(res.Dropped, m)
			default:
				log.Debug().Str("module", "orch.relay").Err(err).Str("user", m.Username).Msg("delivery failed")
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "orch.relay").Str("panic", r.String()).Msg("delivery panicked")
	}
	o.applyPolicy(room, res.Dropped)
	return res
}

func (o *Orchestrator) applyPolicy(room domain.Room, dropped []domain.Member) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		action := o.Policy.OnBackPressure(room, slow)
		log.Warn().Str("module", "orch.relay").Str("room", string(room.Name)).Str("user", slow.Username).
			Str("action", action.String()).Msg("member lagging")
		switch action {
		case app.KickMember:
			if conn, ok := o.Registry.Connection(slow.Username); ok {
				o.Notifier.Disconnect(conn)
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
