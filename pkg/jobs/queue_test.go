package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoutesByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2})
	done := make(chan Job, 2)
	q.Handle("a", func(_ context.Context, j Job) error { done <- j; return nil })
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "a", Payload: 1}))
	select {
	case j := <-done:
		assert.Equal(t, 1, j.Payload)
		assert.NotEmpty(t, j.ID)
		assert.False(t, j.Enqueued.IsZero())
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	q := NewQueue("test", QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	var calls int32
	q.Handle("flaky", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{Type: "flaky"}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, 5*time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRecoversPanics(t *testing.T) {
	q := NewQueue("test", QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	var calls int32
	q.Handle("panic", func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("bad payload")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "panic"}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 5*time.Second, 5*time.Millisecond)
}

func TestEnqueueFailsFastWhenFullOrStopped(t *testing.T) {
	q := NewQueue("test", QueueConfig{BufferSize: 1})
	assert.Error(t, q.Enqueue(Job{Type: "x"}))

	block := make(chan struct{})
	q.Handle("x", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{Type: "x"}))
	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = q.Enqueue(Job{Type: "x"})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
	close(block)

	q.Stop()
	assert.Error(t, q.Enqueue(Job{Type: "x"}))
}

func TestQueueReportsOutcomes(t *testing.T) {
	outcomes := make(chan string, 4)
	q := NewQueue("test", QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Observer:   func(_ string, outcome string) { outcomes <- outcome },
	})
	var calls int32
	q.Handle("once-flaky", func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "once-flaky"}))
	var got []string
	for len(got) < 2 {
		select {
		case o := <-outcomes:
			got = append(got, o)
		case <-time.After(time.Second):
			t.Fatalf("outcomes so far: %v", got)
		}
	}
	assert.Equal(t, []string{OutcomeRetried, OutcomeSucceeded}, got)
}
