package writebehind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T, delay time.Duration) *Scheduler {
	t.Helper()
	s := New(context.Background(), Config{Delay: delay, Backoff: time.Millisecond})
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestScheduleCoalescesPerKey(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond)
	var mu sync.Mutex
	var ran []string
	task := func(tag string) Task {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, tag)
			return nil
		}
	}

	s.Schedule("user:a", task("first"))
	s.Schedule("user:a", task("second"))
	s.Schedule("user:b", task("other"))
	assert.Equal(t, 2, s.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 2
	}, time.Second, 5*time.Millisecond)
	s.Flush(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"second", "other"}, ran)
}

func TestNowCancelsPendingTask(t *testing.T) {
	s := newScheduler(t, time.Hour)
	var deferred, immediate atomic.Int32
	s.Schedule("room:r", func(context.Context) error {
		deferred.Add(1)
		return nil
	})

	err := s.Now(context.Background(), "room:r", func(context.Context) error {
		immediate.Add(1)
		return nil
	})
	require.NoError(t, err)
	s.Flush(context.Background())

	assert.EqualValues(t, 1, immediate.Load())
	assert.EqualValues(t, 0, deferred.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestNowReturnsTaskError(t *testing.T) {
	s := newScheduler(t, time.Hour)
	boom := errors.New("boom")
	err := s.Now(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCancelAndCancelPrefix(t *testing.T) {
	s := newScheduler(t, time.Hour)
	var ran atomic.Int32
	task := func(context.Context) error {
		ran.Add(1)
		return nil
	}
	s.Schedule("user:a", task)
	s.Schedule("user:b", task)
	s.Schedule("room:r", task)

	s.Cancel("user:a")
	assert.Equal(t, 2, s.Pending())
	s.CancelPrefix("user:")
	assert.Equal(t, 1, s.Pending())

	s.Flush(context.Background())
	assert.EqualValues(t, 1, ran.Load())
}

func TestFailedTaskIsRetried(t *testing.T) {
	s := newScheduler(t, time.Hour)
	var attempts atomic.Int32
	s.Schedule("k", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("store down")
		}
		return nil
	})
	s.Flush(context.Background())
	assert.EqualValues(t, 3, attempts.Load())
}

func TestTaskGivesUpAfterRetries(t *testing.T) {
	s := newScheduler(t, time.Hour)
	var attempts atomic.Int32
	s.Schedule("k", func(context.Context) error {
		attempts.Add(1)
		return errors.New("store down")
	})
	s.Flush(context.Background())
	assert.EqualValues(t, 3, attempts.Load())
}

func TestSameKeyNeverRunsConcurrently(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var inside, overlap atomic.Int32
	slow := func(context.Context) error {
		if inside.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		inside.Add(-1)
		return nil
	}
	for range 10 {
		s.Schedule("k", slow)
		_ = s.Now(context.Background(), "k", slow)
		time.Sleep(2 * time.Millisecond)
	}
	s.Flush(context.Background())
	assert.EqualValues(t, 0, overlap.Load())
}

func TestClosedSchedulerRejectsWork(t *testing.T) {
	s := New(context.Background(), Config{Delay: time.Hour})
	s.Close(context.Background())

	s.Schedule("k", func(context.Context) error { return nil })
	assert.Equal(t, 0, s.Pending())
	err := s.Now(context.Background(), "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFlushWhileTimersFire(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var writes atomic.Int32
	task := func(context.Context) error {
		writes.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				s.Schedule(fmt.Sprintf("user:%d-%d", i, j), task)
				time.Sleep(100 * time.Microsecond)
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 20 {
			s.Flush(context.Background())
		}
	}()
	wg.Wait()
	<-done
	s.Flush(context.Background())

	assert.EqualValues(t, 200, writes.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestPanickingTaskDoesNotBlockFlush(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var after atomic.Int32
	s.Schedule("room:bad", func(context.Context) error { panic("boom") })
	s.Schedule("room:good", func(context.Context) error {
		after.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
	s.Flush(context.Background())
	assert.EqualValues(t, 1, after.Load())
	assert.NoError(t, s.Now(context.Background(), "room:bad", func(context.Context) error { return nil }))
}
