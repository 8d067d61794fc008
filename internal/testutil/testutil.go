// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/infra/persistence/sqlstore"
	"github.com/stretchr/testify/require"
)

// NewStore opens a private in-memory SQLite store.
func NewStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

type Sent struct {
	Conn  domain.ConnectionID
	Event any
}

// Recorder is a core.Notifier that remembers everything.
type Recorder struct {
	mu           sync.Mutex
	sent         []Sent
	broadcasts   []any
	disconnected []domain.ConnectionID
	fail         map[domain.ConnectionID]error
}

var _ core.Notifier = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[domain.ConnectionID]error)}
}

func (r *Recorder) Send(conn domain.ConnectionID, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[conn]; ok {
		return err
	}
	r.sent = append(r.sent, Sent{Conn: conn, Event: event})
	return nil
}

func (r *Recorder) Broadcast(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event)
}

func (r *Recorder) Disconnect(conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, conn)
}

// Fail makes every Send to conn return err.
func (r *Recorder) Fail(conn domain.ConnectionID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[conn] = err
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) SentTo(conn domain.ConnectionID) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, s := range r.sent {
		if s.Conn == conn {
			out = append(out, s.Event)
		}
	}
	return out
}

func (r *Recorder) Broadcasts() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.broadcasts...)
}

func (r *Recorder) Disconnected() []domain.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionID(nil), r.disconnected...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.broadcasts = nil
	r.disconnected = nil
}

// EventsOf filters events down to type T.
func EventsOf[T any](events []any) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Clock is a manual time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
