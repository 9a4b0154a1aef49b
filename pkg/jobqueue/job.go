package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newJob validates the payload and options and builds a Job ready to be
// persisted by either adapter.
func newJob(queue string, defaults jobDefaults, name string, data any, opts ...JobOption) (*Job, error) {
	if data == nil {
		return nil, ErrPayloadNil
	}

	options := &jobOptions{
		priority:      PriorityDefault,
		maxAttempts:   defaults.maxAttempts,
		keepCompleted: defaults.keepCompleted,
		keepFailed:    defaults.keepFailed,
	}
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload of type %T: %w", ErrPayloadMarshal, data, err)
	}

	backoff := defaults.backoff
	if options.backoff != nil {
		backoff = *options.backoff
	}
	if backoff.Delay <= 0 {
		backoff = BackoffSettings{Type: BackoffExponential, Delay: time.Second}
	}

	now := time.Now()
	job := &Job{
		ID:            uuid.New(),
		Queue:         queue,
		Name:          name,
		Data:          payload,
		Status:        StatusWaiting,
		Priority:      options.priority,
		MaxAttempts:   options.maxAttempts,
		Backoff:       backoff,
		ReadyAt:       now,
		CreatedAt:     now,
		KeepCompleted: options.keepCompleted,
		KeepFailed:    options.keepFailed,
	}
	if options.delay > 0 {
		job.Status = StatusDelayed
		job.ReadyAt = now.Add(options.delay)
	}
	return job, nil
}
