package jobqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond)
}

func fastWorkerOpts(extra ...jobqueue.WorkerOption) []jobqueue.WorkerOption {
	return append([]jobqueue.WorkerOption{
		jobqueue.WithPollInterval(5 * time.Millisecond),
	}, extra...)
}

func TestWorker_ProcessesJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	var processed atomic.Int64
	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		processed.Add(1)
		return map[string]string{"status": "sent"}, nil
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{To: "a@b.c"})
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 2*time.Second, func() bool { return processed.Load() == 1 })
	waitFor(t, 2*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusCompleted
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptsMade)
	require.NotNil(t, got.FinishedAt)

	var result map[string]string
	require.NoError(t, json.Unmarshal(got.ReturnValue, &result))
	assert.Equal(t, "sent", result["status"])
}

func TestWorker_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return nil, nil
	}, fastWorkerOpts(jobqueue.WithConcurrency(2))...)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := q.Add(ctx, "welcome", emailPayload{})
		require.NoError(t, err)
	}

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		counts, err := q.Counts(ctx)
		return err == nil && counts.Completed == 6
	})

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	var attempts atomic.Int64
	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("smtp unavailable")
		}
		return nil, nil
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{},
		jobqueue.WithMaxAttempts(5),
		jobqueue.WithJobBackoff(jobqueue.BackoffSettings{Type: jobqueue.BackoffFixed, Delay: time.Millisecond}),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusCompleted
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AttemptsMade)
}

func TestWorker_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		return nil, errors.New("permanent failure")
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{},
		jobqueue.WithMaxAttempts(2),
		jobqueue.WithJobBackoff(jobqueue.BackoffSettings{Type: jobqueue.BackoffFixed, Delay: time.Millisecond}),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusFailed
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptsMade)
	assert.Contains(t, got.FailedReason, "permanent failure")
	require.NotNil(t, got.FinishedAt)
}

func TestQueue_RetryFailedJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	var failing atomic.Bool
	failing.Store(true)
	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		if failing.Load() {
			return nil, errors.New("smtp unavailable")
		}
		return nil, nil
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{}, jobqueue.WithMaxAttempts(1))
	require.NoError(t, err)

	// Retrying anything but a failed job is rejected.
	assert.ErrorIs(t, q.RetryJob(ctx, job.ID), jobqueue.ErrJobNotFailed)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusFailed
	})

	failing.Store(false)
	require.NoError(t, q.RetryJob(ctx, job.ID))

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusCompleted
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptsMade)
	assert.Empty(t, got.FailedReason)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		panic("template rendering blew up")
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{}, jobqueue.WithMaxAttempts(1))
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusFailed
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.FailedReason, "panic")
}

func TestWorker_JobTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	}, fastWorkerOpts(jobqueue.WithJobTimeout(20*time.Millisecond))...)
	require.NoError(t, err)

	job, err := q.Add(ctx, "welcome", emailPayload{}, jobqueue.WithMaxAttempts(1))
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	waitFor(t, 5*time.Second, func() bool {
		got, err := q.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobqueue.StatusFailed
	})

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.FailedReason, "timed out")
}

func TestWorker_ConfigTuning(t *testing.T) {
	t.Parallel()

	t.Run("configured job timeout applies", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{
			PollInterval: 5 * time.Millisecond,
			JobTimeout:   20 * time.Millisecond,
		}, nil)
		q, err := adapter.Queue("emails")
		require.NoError(t, err)

		// No per-worker options: tuning must come from the adapter Config.
		w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(300 * time.Millisecond):
				return nil, nil
			}
		})
		require.NoError(t, err)

		job, err := q.Add(ctx, "welcome", emailPayload{}, jobqueue.WithMaxAttempts(1))
		require.NoError(t, err)

		require.NoError(t, w.Start(ctx))
		t.Cleanup(func() { _ = w.Close() })

		waitFor(t, 5*time.Second, func() bool {
			got, err := q.GetJob(ctx, job.ID)
			return err == nil && got.Status == jobqueue.StatusFailed
		})

		got, err := q.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Contains(t, got.FailedReason, "timed out")
	})

	t.Run("configured concurrency applies", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{
			Concurrency:  1,
			PollInterval: 5 * time.Millisecond,
		}, nil)
		q, err := adapter.Queue("emails")
		require.NoError(t, err)

		var (
			mu      sync.Mutex
			current int
			peak    int
		)
		w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			_, err := q.Add(ctx, "welcome", emailPayload{})
			require.NoError(t, err)
		}

		require.NoError(t, w.Start(ctx))
		t.Cleanup(func() { _ = w.Close() })

		waitFor(t, 5*time.Second, func() bool {
			counts, err := q.Counts(ctx)
			return err == nil && counts.Completed == 4
		})

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, peak)
	})

	t.Run("per-worker options override config", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{
			PollInterval: 5 * time.Millisecond,
			JobTimeout:   10 * time.Millisecond,
		}, nil)
		q, err := adapter.Queue("emails")
		require.NoError(t, err)

		w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return nil, nil
			}
		}, jobqueue.WithJobTimeout(time.Second))
		require.NoError(t, err)

		job, err := q.Add(ctx, "welcome", emailPayload{}, jobqueue.WithMaxAttempts(1))
		require.NoError(t, err)

		require.NoError(t, w.Start(ctx))
		t.Cleanup(func() { _ = w.Close() })

		waitFor(t, 5*time.Second, func() bool {
			got, err := q.GetJob(ctx, job.ID)
			return err == nil && got.Status == jobqueue.StatusCompleted
		})
	})
}

func TestWorker_PauseResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)
	q, err := adapter.Queue("emails")
	require.NoError(t, err)

	var processed atomic.Int64
	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		processed.Add(1)
		return nil, nil
	}, fastWorkerOpts()...)
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Close() })

	w.Pause()
	_, err = q.Add(ctx, "welcome", emailPayload{})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), processed.Load())

	w.Resume()
	waitFor(t, 2*time.Second, func() bool { return processed.Load() == 1 })
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := jobqueue.NewMemoryAdapter(jobqueue.Config{}, nil)

	w, err := adapter.Worker("emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "emails", w.QueueName())
	assert.ErrorIs(t, w.Close(), jobqueue.ErrWorkerNotStarted)

	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), jobqueue.ErrWorkerStarted)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), jobqueue.ErrWorkerNotStarted)
}
