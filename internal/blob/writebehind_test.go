package blob

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueRejectsBlankName(t *testing.T) {
	q := NewQueue(QueueConfig{Put: func(context.Context, Job) error { return nil }})
	assert.False(t, q.Enqueue(Job{Name: "  "}))
}

func TestQueueEnqueueReportsFull(t *testing.T) {
	q := NewQueue(QueueConfig{
		Put:       func(context.Context, Job) error { return nil },
		QueueSize: 1,
	})
	// Workers never started, so the single slot stays occupied.
	assert.True(t, q.Enqueue(Job{Name: "a"}))
	assert.False(t, q.Enqueue(Job{Name: "b"}))
}

func TestQueueCompletesJobs(t *testing.T) {
	var count atomic.Int32
	q := NewQueue(QueueConfig{
		Put: func(_ context.Context, job Job) error {
			count.Add(1)
			return nil
		},
	})
	q.Start()
	defer q.Shutdown(context.Background())

	require.True(t, q.Enqueue(Job{Name: "a", Payload: []byte("x")}))
	require.True(t, q.Enqueue(Job{Name: "b", Payload: []byte("y")}))

	require.Eventually(t, func() bool {
		return q.Stats().Completed == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), count.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue(QueueConfig{
		Put: func(_ context.Context, job Job) error {
			if attempts.Add(1) < 3 {
				return errors.New("flaky")
			}
			return nil
		},
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	})
	q.Start()
	defer q.Shutdown(context.Background())

	require.True(t, q.Enqueue(Job{Name: "a"}))
	require.Eventually(t, func() bool {
		return q.Stats().Completed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestQueueSerializesSameNameJobs(t *testing.T) {
	release := make(chan struct{})
	var count atomic.Int32
	q := NewQueue(QueueConfig{
		Put: func(_ context.Context, job Job) error {
			if count.Add(1) == 1 {
				<-release
			}
			return nil
		},
		Workers: 2,
	})
	q.Start()
	defer q.Shutdown(context.Background())

	// Both jobs target the same object; the second must wait for the
	// first instead of being discarded.
	require.True(t, q.Enqueue(Job{Name: "a", Payload: []byte("one")}))
	require.True(t, q.Enqueue(Job{Name: "a", Payload: []byte("two")}))

	require.Never(t, func() bool {
		return q.Stats().Completed > 1
	}, 100*time.Millisecond, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return q.Stats().Completed == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), count.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestQueueShutdownDeadLettersPending(t *testing.T) {
	q := NewQueue(QueueConfig{
		Put:       func(context.Context, Job) error { return nil },
		QueueSize: 4,
	})
	// No Start: jobs stay queued until shutdown records them.
	require.True(t, q.Enqueue(Job{Name: "a"}))
	require.True(t, q.Enqueue(Job{Name: "b"}))

	require.NoError(t, q.Shutdown(context.Background()))

	dead := q.DeadLetters()
	require.Len(t, dead, 2)
	assert.Equal(t, "a", dead[0].Name)
	assert.Contains(t, dead[0].LastErr, "shut down")
}
