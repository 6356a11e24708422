package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/zoobzio/edgez/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestExecutor(clock clockz.Clock, opts ...Option) *Executor {
	opts = append([]Option{WithClock(clock), WithLogger(logging.NewNopLogger())}, opts...)
	return New(opts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestExecutor_Schedule(t *testing.T) {
	clock := clockz.NewFakeClock()
	e := newTestExecutor(clock)
	defer func() { _ = e.Shutdown(context.Background()) }()

	var ran atomic.Int32
	f := e.Schedule(time.Second, func() error {
		ran.Inc()
		return nil
	})
	assert.False(t, f.Done())
	assert.True(t, e.HasActiveTasks())

	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()
	assert.Equal(t, int32(0), ran.Load())

	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()
	waitFor(t, f.Done)
	assert.Equal(t, int32(1), ran.Load())
	assert.False(t, e.HasActiveTasks())
	assert.False(t, f.Cancel())
}

func TestExecutor_ScheduleCancel(t *testing.T) {
	clock := clockz.NewFakeClock()
	e := newTestExecutor(clock)
	defer func() { _ = e.Shutdown(context.Background()) }()

	var ran atomic.Int32
	f := e.Schedule(time.Second, func() error {
		ran.Inc()
		return nil
	})
	assert.True(t, f.Cancel())
	assert.False(t, f.Cancel())
	assert.True(t, f.Done())

	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()
	assert.Equal(t, int32(0), ran.Load())
	assert.False(t, e.HasActiveTasks())
}

func TestExecutor_FixedRate(t *testing.T) {
	clock := clockz.NewFakeClock()
	e := newTestExecutor(clock)
	defer func() { _ = e.Shutdown(context.Background()) }()

	var ran atomic.Int32
	f, err := e.ScheduleAtFixedRate(time.Second, time.Second, func() error {
		ran.Inc()
		return nil
	})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		want := int32(i)
		waitFor(t, func() bool { return ran.Load() == want })
	}
	assert.True(t, f.Cancel())
	clock.Advance(3 * time.Second)
	clock.BlockUntilReady()
	assert.Equal(t, int32(5), ran.Load())
	waitFor(t, func() bool { return !e.HasActiveTasks() })
}

func TestExecutor_FixedRateInvalidPeriod(t *testing.T) {
	e := newTestExecutor(clockz.NewFakeClock())
	defer func() { _ = e.Shutdown(context.Background()) }()

	_, err := e.ScheduleAtFixedRate(0, 0, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = e.ScheduleAtFixedRate(0, -time.Second, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestExecutor_FixedRateFailureStopsTask(t *testing.T) {
	clock := clockz.NewFakeClock()
	var reported atomic.Int32
	e := newTestExecutor(clock, OnError(func(error) { reported.Inc() }))
	defer func() { _ = e.Shutdown(context.Background()) }()

	boom := errors.New("boom")
	var ran atomic.Int32
	f, err := e.ScheduleAtFixedRate(time.Second, time.Second, func() error {
		if ran.Inc() == 2 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		if i < 2 {
			want := int32(i + 1)
			waitFor(t, func() bool { return ran.Load() == want })
		}
	}

	waitFor(t, f.Done)
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, int32(1), reported.Load())
	assert.ErrorIs(t, e.Err(), boom)
	select {
	case err := <-e.Errors():
		assert.ErrorIs(t, err, boom)
	default:
		t.Fatal("expected failure on the error channel")
	}
}

func TestExecutor_PanicReported(t *testing.T) {
	e := newTestExecutor(clockz.RealClock)
	defer func() { _ = e.Shutdown(context.Background()) }()

	e.Execute(func() error {
		panic("kaboom")
	})

	select {
	case <-e.Failed():
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
	assert.Contains(t, e.Err().Error(), "kaboom")
	_, failed := e.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestExecutor_ExecuteConcurrencyBound(t *testing.T) {
	e := newTestExecutor(clockz.RealClock, WithConcurrency(2))
	defer func() { _ = e.Shutdown(context.Background()) }()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		e.Execute(func() error {
			defer wg.Done()
			n := current.Inc()
			for {
				p := peak.Load()
				if n <= p || peak.CAS(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Dec()
			return nil
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	require.NoError(t, e.Wait(context.Background()))
}

func TestExecutor_HoldKeepsAlive(t *testing.T) {
	e := newTestExecutor(clockz.RealClock)
	defer func() { _ = e.Shutdown(context.Background()) }()

	release := e.Hold()
	assert.True(t, e.HasActiveTasks())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)

	release()
	release()
	assert.False(t, e.HasActiveTasks())
	require.NoError(t, e.Wait(context.Background()))
}

func TestExecutor_GoCanceledOnShutdown(t *testing.T) {
	e := newTestExecutor(clockz.RealClock)

	started := make(chan struct{})
	e.Go(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	assert.True(t, e.HasActiveTasks())

	require.NoError(t, e.Shutdown(context.Background()))
	waitFor(t, func() bool { return !e.HasActiveTasks() })
	assert.NoError(t, e.Err())
}

func TestExecutor_GoContextCarriesLogger(t *testing.T) {
	logger := logging.NewNopLogger()
	e := newTestExecutor(clockz.RealClock, WithLogger(logger))
	defer func() { _ = e.Shutdown(context.Background()) }()

	got := make(chan any, 1)
	e.Go(func(ctx context.Context) error {
		got <- logging.FromContext(ctx)
		return nil
	})
	assert.Same(t, logger, <-got)
}

func TestExecutor_RejectsAfterShutdown(t *testing.T) {
	clock := clockz.NewFakeClock()
	e := newTestExecutor(clock)

	f := e.Schedule(time.Second, func() error { return nil })
	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, f.Done())

	late := e.Schedule(0, func() error { return nil })
	assert.True(t, late.Done())
	_, err := e.ScheduleAtFixedRate(0, time.Second, func() error { return nil })
	assert.ErrorIs(t, err, ErrShutdown)
	assert.False(t, e.HasActiveTasks())
}
