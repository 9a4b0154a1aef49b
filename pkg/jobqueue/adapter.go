package jobqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Processor executes a single job. The returned value is recorded as the
// job's return value on success; a non-nil error marks the attempt failed
// and triggers the retry policy.
type Processor func(ctx context.Context, job *Job) (any, error)

// Queue is the backend-agnostic contract every adapter must satisfy.
// Callers obtain queues from the Service and never depend on which
// backend is active.
type Queue interface {
	// Name returns the logical queue name.
	Name() string

	// Add enqueues a unit of work. The payload is JSON-marshaled and stored
	// opaquely. The returned job snapshot is in waiting state, or delayed
	// when a delay option is set.
	Add(ctx context.Context, name string, data any, opts ...JobOption) (*Job, error)

	// AddBulk enqueues multiple jobs, applied per item with no cross-item
	// transaction guarantee. Returned jobs preserve input order.
	AddBulk(ctx context.Context, items []BulkItem) ([]*Job, error)

	// GetJob returns a snapshot of the job or ErrJobNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// GetJobs returns snapshots of jobs in any of the given statuses.
	GetJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error)

	GetWaiting(ctx context.Context) ([]*Job, error)
	GetActive(ctx context.Context) ([]*Job, error)
	GetCompleted(ctx context.Context) ([]*Job, error)
	GetFailed(ctx context.Context) ([]*Job, error)

	// UpdateProgress sets the job's progress, clamped to 0-100.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// RetryJob re-enqueues a terminally failed job: its attempt counter and
	// failure bookkeeping are reset and it becomes waiting again. Jobs in
	// any other state yield ErrJobNotFailed.
	RetryJob(ctx context.Context, id uuid.UUID) error

	// Pause stops new jobs from becoming active. Jobs already active run
	// to completion; Pause is not a cancellation primitive.
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	IsPaused(ctx context.Context) bool

	// Clean removes up to limit jobs in the given status older than grace.
	// A non-positive limit removes all matching jobs. Active jobs are
	// never cleaned.
	Clean(ctx context.Context, grace time.Duration, limit int, status JobStatus) (int, error)

	// Drain removes every not-yet-active job, leaving active jobs to finish.
	Drain(ctx context.Context) error

	// Obliterate hard-removes the queue and all of its jobs.
	Obliterate(ctx context.Context) error

	// Counts returns per-state queue statistics.
	Counts(ctx context.Context) (JobCounts, error)

	// Subscribe registers an event handler and returns an unsubscribe
	// function. SubscribeOnce removes the handler after first delivery.
	Subscribe(ev Event, fn EventHandler) func()
	SubscribeOnce(ev Event, fn EventHandler) func()

	// Close releases queue resources. The queue's jobs are untouched.
	Close() error
}

// Worker is a processing entity bound to a single queue name.
type Worker interface {
	// QueueName returns the name of the queue the worker consumes.
	QueueName() string

	// Start begins pulling and processing jobs in the background.
	Start(ctx context.Context) error

	// Pause stops claiming new jobs; in-flight jobs run to completion.
	Pause()
	Resume()

	// Close stops the worker and waits for in-flight jobs to finish.
	Close() error
}

// Adapter creates queues and workers for one backend. A process uses
// exactly one adapter, chosen once at startup by the Provider.
type Adapter interface {
	// Backend identifies the adapter implementation.
	Backend() Backend

	// Queue returns the queue with the given logical name, creating it on
	// first use. The same name always yields the same instance.
	Queue(name string) (Queue, error)

	// Worker creates a worker bound to the named queue.
	Worker(queue string, p Processor, opts ...WorkerOption) (Worker, error)

	// Healthy reports whether the adapter's backing store is reachable.
	// It returns a boolean rather than an error so callers can treat it
	// as a simple signal.
	Healthy(ctx context.Context) bool

	// Close releases adapter resources, including every queue it created.
	Close() error
}
