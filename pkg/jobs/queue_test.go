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

func TestQueueSubmitReturnsHandlerResult(t *testing.T) {
	boom := errors.New("boom")
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if job.Type == "fail" {
			return boom
		}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	assert.NoError(t, q.Submit(context.Background(), Job{ID: "1", Type: "ok"}))
	assert.ErrorIs(t, q.Submit(context.Background(), Job{ID: "2", Type: "fail"}), boom)
}

func TestQueueSubmitRecoversPanics(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		panic("corrupt workbook")
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	err := q.Submit(context.Background(), Job{ID: "1", Type: "parse"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestQueueSubmitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Submit(ctx, Job{ID: "1"}), context.DeadlineExceeded)
}

func TestQueueRejectsWorkWhenStopped(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Submit(context.Background(), Job{ID: "1"}), ErrQueueStopped)
	assert.ErrorIs(t, q.Enqueue(Job{ID: "1"}), ErrQueueStopped)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "2"}), ErrQueueStopped)
}

func TestQueueEnqueueRetries(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "invalidate"}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestQueueEnqueueGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
