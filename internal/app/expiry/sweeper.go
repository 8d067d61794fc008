// Package expiry evicts identities and rooms nobody uses anymore.
package expiry

import (
	"context"
	"time"

	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdlePeriod   = 30 * time.Second
	DefaultDormantAfter = 72 * time.Hour
)

// Reaper is the part of the session coordinator the sweeper drives.
type Reaper interface {
	StaleIdentities(ctx context.Context, cutoff time.Time) ([]domain.Identity, error)
	Evict(ctx context.Context, username string, cutoff time.Time) error
	SweepEmptyRooms(ctx context.Context) (int, error)
	PurgeDormant(ctx context.Context, cutoff time.Time) (int, error)
}

type Sweeper struct {
	Reaper       Reaper
	IdlePeriod   time.Duration
	DormantAfter time.Duration
	Now          func() time.Time

	logger zerolog.Logger
}

func NewSweeper(reaper Reaper, idle, dormant time.Duration) *Sweeper {
	if idle <= 0 {
		idle = DefaultIdlePeriod
	}
	if dormant <= 0 {
		dormant = DefaultDormantAfter
	}
	return &Sweeper{
		Reaper:       reaper,
		IdlePeriod:   idle,
		DormantAfter: dormant,
		Now:          time.Now,
		logger:       log.With().Str("module", "app.expiry").Logger(),
	}
}

// Run ticks both sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	idle := time.NewTicker(s.IdlePeriod)
	defer idle.Stop()
	dormant := time.NewTicker(s.DormantAfter)
	defer dormant.Stop()

	s.logger.Info().Dur("idle_period", s.IdlePeriod).Dur("dormant_after", s.DormantAfter).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return nil
		case <-idle.C:
			s.SweepIdle(ctx, s.Now())
		case <-dormant.C:
			s.PurgeDormant(ctx, s.Now())
		}
	}
}

// SweepIdle evicts offline identities idle for longer than IdlePeriod, then
// drops rooms left without members. It returns the number of evictions.
func (s *Sweeper) SweepIdle(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.IdlePeriod)
	stale, err := s.Reaper.StaleIdentities(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing stale identities")
	}
	evicted := 0
	for _, id := range stale {
		if err := s.Reaper.Evict(ctx, id.Username, cutoff); err != nil {
			s.logger.Error().Err(err).Str("user", id.Username).Msg("evict failed")
			continue
		}
		evicted++
	}
	rooms, err := s.Reaper.SweepEmptyRooms(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("empty room sweep failed")
	}
	if evicted > 0 || rooms > 0 {
		s.logger.Info().Int("identities", evicted).Int("rooms", rooms).Msg("idle sweep")
	}
	return evicted
}

// PurgeDormant deletes identities inactive for longer than DormantAfter, whatever their status.
func (s *Sweeper) PurgeDormant(ctx context.Context, now time.Time) int {
	n, err := s.Reaper.PurgeDormant(ctx, now.Add(-s.DormantAfter))
	if err != nil {
		s.logger.Error().Err(err).Msg("dormant purge incomplete")
	}
	if n > 0 {
		s.logger.Info().Int("identities", n).Msg("dormant purge")
	}
	return n
}
