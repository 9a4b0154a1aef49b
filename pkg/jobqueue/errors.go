package jobqueue

import "errors"

// Common errors
var (
	// ErrNotInitialized is returned when queues are requested before Initialize.
	ErrNotInitialized = errors.New("queue service is not initialized")

	// ErrQueueNotRegistered is returned when a queue name was never registered.
	ErrQueueNotRegistered = errors.New("queue is not registered")

	// ErrServiceClosed is returned when initializing a service after CloseAll.
	// A closed service cannot be revived; construct a new one.
	ErrServiceClosed = errors.New("queue service is closed")

	// ErrJobNotFound is returned when a job id does not exist in the queue.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrAdapterClosed is returned when creating queues on a closed adapter.
	ErrAdapterClosed = errors.New("adapter is closed")

	// ErrBrokerUnavailable is returned by Resolve when the Redis backend was
	// requested, connectivity validation failed, and fallback is disabled.
	// It aborts application startup.
	ErrBrokerUnavailable = errors.New("redis broker is unavailable and fallback is disabled")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails.
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrInvalidPriority is returned when priority is outside valid range.
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrNoItemsToAdd is returned when AddBulk is called with an empty batch.
	ErrNoItemsToAdd = errors.New("no items to enqueue")

	// ErrProcessorNil is returned when a worker is created without a processor.
	ErrProcessorNil = errors.New("processor cannot be nil")

	// ErrWorkerStarted is returned when starting an already running worker.
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when stopping a worker that never ran.
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrJobNotFailed is returned when retrying a job that is not in the
	// failed state.
	ErrJobNotFailed = errors.New("job is not in failed state")

	// ErrJobTimeout marks jobs aborted by the per-job processing timeout.
	ErrJobTimeout = errors.New("job processing timed out")

	// ErrInvalidCleanStatus is returned when Clean targets a state that has
	// no removable jobs (active jobs are never cleaned).
	ErrInvalidCleanStatus = errors.New("cannot clean jobs in this status")
)
