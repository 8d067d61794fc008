package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReaper struct {
	mu       sync.Mutex
	stale    []domain.Identity
	staleErr error
	failFor  map[string]error
	evicted  []string
	cutoffs  []time.Time
	sweeps   int
	purges   []time.Time
}

func (f *fakeReaper) StaleIdentities(_ context.Context, cutoff time.Time) ([]domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.stale, f.staleErr
}

func (f *fakeReaper) Evict(_ context.Context, username string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[username]; err != nil {
		return err
	}
	f.evicted = append(f.evicted, username)
	return nil
}

func (f *fakeReaper) SweepEmptyRooms(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0, nil
}

func (f *fakeReaper) PurgeDormant(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges = append(f.purges, cutoff)
	return 2, nil
}

func (f *fakeReaper) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestNewSweeperDefaults(t *testing.T) {
	s := NewSweeper(&fakeReaper{}, 0, -1)
	assert.Equal(t, DefaultIdlePeriod, s.IdlePeriod)
	assert.Equal(t, DefaultDormantAfter, s.DormantAfter)
}

func TestSweepIdleEvictsStale(t *testing.T) {
	r := &fakeReaper{
		stale:   []domain.Identity{{Username: "a"}, {Username: "b"}, {Username: "c"}},
		failFor: map[string]error{"b": errors.New("boom")},
	}
	s := NewSweeper(r, 30*time.Second, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 31, 0, time.UTC)

	n := s.SweepIdle(context.Background(), now)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "c"}, r.evicted)
	assert.Equal(t, []time.Time{now.Add(-30 * time.Second)}, r.cutoffs)
	assert.Equal(t, 1, r.sweeps)
}

func TestSweepIdleStillSweepsRoomsOnListError(t *testing.T) {
	r := &fakeReaper{staleErr: domain.ErrStorageUnavailable}
	s := NewSweeper(r, time.Second, time.Hour)
	assert.Zero(t, s.SweepIdle(context.Background(), time.Now()))
	assert.Equal(t, 1, r.sweeps)
}

func TestPurgeDormantUsesCutoff(t *testing.T) {
	r := &fakeReaper{}
	s := NewSweeper(r, time.Second, 72*time.Hour)
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, s.PurgeDormant(context.Background(), now))
	require.Len(t, r.purges, 1)
	assert.Equal(t, now.Add(-72*time.Hour), r.purges[0])
}

func TestRunTicksUntilCancelled(t *testing.T) {
	r := &fakeReaper{}
	s := NewSweeper(r, 10*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.sweepCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
