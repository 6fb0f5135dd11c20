package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	job Job
	err error
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	results := make(chan outcome, 1)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond, OnResult: func(j Job, err error) {
		results <- outcome{j, err}
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "email"}))

	select {
	case res := <-results:
		assert.NoError(t, res.err)
		assert.Equal(t, 2, res.job.Attempt)
		assert.NotEmpty(t, res.job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job never completed")
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	results := make(chan outcome, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnResult: func(j Job, err error) {
		results <- outcome{j, err}
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))
	select {
	case res := <-results:
		assert.EqualError(t, res.err, "permanent")
		assert.Equal(t, "j1", res.job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job never gave up")
	}
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{}))

	q.Start(context.Background())
	q.Stop()
	assert.Error(t, q.Enqueue(Job{}))
}
