// Package writebehind defers durable writes behind the in-memory mirror.
//
// Work is keyed per entity. A second Schedule for a pending key replaces the
// task but keeps the original deadline, so bursts of mirror changes collapse
// into one store write. Tasks for the same key never run concurrently.
package writebehind

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Task performs one durable write. It should read the current mirror state
// and return nil when the entity no longer exists.
type Task func(ctx context.Context) error

var ErrClosed = errors.New("write-behind scheduler closed")

type Config struct {
	Delay   time.Duration
	Retries int
	Backoff time.Duration
}

type pending struct {
	task  Task
	timer *time.Timer
}

type Scheduler struct {
	cfg    Config
	base   context.Context
	logger zerolog.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	pending  map[string]*pending
	inflight int
	closed   bool

	keys core.KeyedMutex
}

func New(base context.Context, cfg Config) *Scheduler {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	s := &Scheduler{
		cfg:     cfg,
		base:    base,
		logger:  log.With().Str("module", "app.writebehind").Logger(),
		pending: make(map[string]*pending),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Schedule runs task for key after the configured delay.
func (s *Scheduler) Schedule(key string, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if p, ok := s.pending[key]; ok {
		p.task = task
		return
	}
	p := &pending{task: task}
	p.timer = time.AfterFunc(s.cfg.Delay, func() { s.fire(key, p) })
	s.pending[key] = p
}

func (s *Scheduler) fire(key string, p *pending) {
	s.mu.Lock()
	if s.pending[key] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	task := p.task
	s.inflight++
	s.mu.Unlock()

	defer s.done()
	var pc panics.Catcher
	pc.Try(func() {
		unlock := s.keys.Lock(key)
		defer unlock()
		s.run(s.base, key, task)
	})
	if r := pc.Recovered(); r != nil {
		s.logger.Error().Str("panic", r.String()).Str("key", key).Msg("deferred task panicked")
	}
}

func (s *Scheduler) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// Now drops any pending task for key and runs task synchronously,
// ordered after any write for key that is already in flight.
func (s *Scheduler) Now(ctx context.Context, key string, task Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.dropLocked(key)
	s.mu.Unlock()

	unlock := s.keys.Lock(key)
	defer unlock()
	return task(ctx)
}

func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(key)
}

func (s *Scheduler) CancelPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.pending {
		if strings.HasPrefix(key, prefix) {
			s.dropLocked(key)
		}
	}
}

func (s *Scheduler) dropLocked(key string) {
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

// Pending is the number of tasks waiting for their deadline.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush runs every pending task immediately and waits for in-flight work.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := make(map[string]Task, len(s.pending))
	for key, p := range s.pending {
		p.timer.Stop()
		batch[key] = p.task
		delete(s.pending, key)
	}
	s.mu.Unlock()

	var wg conc.WaitGroup
	for key, task := range batch {
		wg.Go(func() {
			unlock := s.keys.Lock(key)
			defer unlock()
			s.run(ctx, key, task)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		s.logger.Error().Str("panic", r.String()).Msg("flush task panicked")
	}
	s.wait()
}

// Close flushes pending writes and rejects further work.
func (s *Scheduler) Close(ctx context.Context) {
	s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.logger.Info().Msg("scheduler closed")
}

// wait blocks until no timer-fired task is running.
func (s *Scheduler) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

func (s *Scheduler) run(ctx context.Context, key string, task Task) {
	var err error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if err = task(ctx); err == nil {
			return
		}
		s.logger.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("deferred write failed")
		if attempt == s.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			s.logger.Error().Err(ctx.Err()).Str("key", key).Msg("deferred write abandoned")
			return
		case <-time.After(time.Duration(attempt) * s.cfg.Backoff):
		}
	}
	s.logger.Error().Err(err).Str("key", key).Msg("deferred write dropped, mirror keeps state")
}
