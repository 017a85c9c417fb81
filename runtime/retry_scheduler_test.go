package runtime

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryScheduler_Runs_After_Delay(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())
	defer scheduler.Stop()

	done := make(chan struct{})
	scheduler.Schedule("alice", 20*time.Millisecond, func(ctx context.Context) {
		close(done)
	})
	req.True(scheduler.Pending("alice"))

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("retry did not run")
	}
	req.Eventually(func() bool { return !scheduler.Pending("alice") }, time.Second, 5*time.Millisecond)
}

func TestRetryScheduler_Schedule_Replaces_Previous(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())
	defer scheduler.Stop()

	var first, second atomic.Int32
	scheduler.Schedule("alice", 30*time.Millisecond, func(ctx context.Context) { first.Add(1) })
	scheduler.Schedule("alice", 30*time.Millisecond, func(ctx context.Context) { second.Add(1) })
	req.Equal(1, scheduler.Len())

	req.Eventually(func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	req.Equal(int32(0), first.Load())
	req.Equal(int32(1), second.Load())
}

func TestRetryScheduler_Cancel(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())
	defer scheduler.Stop()

	var calls atomic.Int32
	scheduler.Schedule("alice", 20*time.Millisecond, func(ctx context.Context) { calls.Add(1) })

	req.True(scheduler.Cancel("alice"))
	req.False(scheduler.Cancel("alice"))
	req.False(scheduler.Pending("alice"))

	time.Sleep(60 * time.Millisecond)
	req.Equal(int32(0), calls.Load())
}

func TestRetryScheduler_Identities_Are_Independent(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())
	defer scheduler.Stop()

	var alice, bob atomic.Int32
	scheduler.Schedule("alice", 20*time.Millisecond, func(ctx context.Context) { alice.Add(1) })
	scheduler.Schedule("bob", 20*time.Millisecond, func(ctx context.Context) { bob.Add(1) })
	req.Equal(2, scheduler.Len())

	scheduler.Cancel("alice")
	req.Eventually(func() bool { return bob.Load() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(int32(0), alice.Load())
}

func TestRetryScheduler_Stop_Drops_Everything(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())

	var calls atomic.Int32
	scheduler.Schedule("alice", 20*time.Millisecond, func(ctx context.Context) { calls.Add(1) })
	scheduler.Schedule("bob", 20*time.Millisecond, func(ctx context.Context) { calls.Add(1) })

	scheduler.Stop()
	req.Equal(0, scheduler.Len())

	// Given the scheduler is stopped, new retries are ignored
	scheduler.Schedule("carol", time.Millisecond, func(ctx context.Context) { calls.Add(1) })
	req.False(scheduler.Pending("carol"))

	time.Sleep(60 * time.Millisecond)
	req.Equal(int32(0), calls.Load())
}

func TestRetryScheduler_Callback_Can_Reschedule(t *testing.T) {
	req := require.New(t)
	scheduler := NewRetryScheduler(context.Background(), slog.Default())
	defer scheduler.Stop()

	var calls atomic.Int32
	var retry func(ctx context.Context)
	retry = func(ctx context.Context) {
		if calls.Add(1) < 3 {
			scheduler.Schedule("alice", 5*time.Millisecond, retry)
		}
	}
	scheduler.Schedule("alice", 5*time.Millisecond, retry)

	req.Eventually(func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return !scheduler.Pending("alice") }, time.Second, 5*time.Millisecond)
}
