package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Backend identifies a concrete queue implementation.
type Backend string

const (
	// BackendRedis runs queues on a shared Redis broker. Jobs survive process
	// restarts and are visible to every process using the same key prefix.
	BackendRedis Backend = "redis"

	// BackendMemory runs queues inside the current process. Jobs are lost on
	// restart; the backend exists for local development and as a fallback
	// when Redis is unreachable.
	BackendMemory Backend = "memory"
)

// ParseBackend converts a configuration string into a Backend.
// The second return value reports whether the input named a known backend.
func ParseBackend(s string) (Backend, bool) {
	switch Backend(s) {
	case BackendRedis:
		return BackendRedis, true
	case BackendMemory:
		return BackendMemory, true
	default:
		return BackendRedis, false
	}
}

// JobStatus tracks the lifecycle state of a job through the queue system.
type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusDelayed   JobStatus = "delayed"
	StatusPaused    JobStatus = "paused"
)

// Valid checks if the status is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed, StatusPaused:
		return true
	}
	return false
}

// normalizeStatus maps unknown backend-native states onto the common
// enumeration. Anything unrecognized is treated as waiting rather than
// rejected, so a newer broker schema does not break older readers.
func normalizeStatus(s JobStatus) JobStatus {
	if s.Valid() {
		return s
	}
	return StatusWaiting
}

// Priority represents job priority (0-100, higher is processed sooner)
// Using int8 provides sufficient range while keeping memory footprint minimal
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMin
)

// Valid checks if the priority is within the allowed range (0-100).
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// BackoffType selects the delay strategy between retry attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// maxBackoffDelay caps exponential growth so a job with many attempts
// cannot schedule itself into the distant future.
const maxBackoffDelay = time.Hour

// BackoffSettings describes the retry delay policy for a job.
type BackoffSettings struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// NextDelay returns the delay before the given retry attempt (1-based).
// Fixed backoff always returns the base delay; exponential doubles it
// for every prior attempt.
func (b BackoffSettings) NextDelay(attempt int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	d := b.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	return d
}

// Job represents one unit of enqueued work with payload, state, and
// retry bookkeeping. Instances returned from queue methods are copies;
// mutating them has no effect on the stored job.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data,omitempty"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	ReturnValue  json.RawMessage `json:"return_value,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Priority     Priority        `json:"priority"`
	Backoff      BackoffSettings `json:"backoff"`
	// ReadyAt is the earliest time the job may become active. It is set in
	// the future for delayed jobs and for retries waiting out their backoff.
	ReadyAt   time.Time  `json:"ready_at"`
	CreatedAt time.Time  `json:"created_at"`
	// ProcessedAt records when the most recent attempt started.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Retention after terminal state: nil keeps the job, 0 removes it
	// immediately, n>0 keeps the most recent n terminal jobs in the queue.
	KeepCompleted *int `json:"keep_completed,omitempty"`
	KeepFailed    *int `json:"keep_failed,omitempty"`
}

// clampProgress bounds progress reports to the 0-100 range.
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// JobCounts represents per-state queue statistics. While a queue is
// paused its not-yet-active jobs are reported under Paused instead of
// Waiting.
type JobCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// Add sums the per-state counters of two snapshots.
func (c JobCounts) Add(other JobCounts) JobCounts {
	return JobCounts{
		Waiting:   c.Waiting + other.Waiting,
		Active:    c.Active + other.Active,
		Completed: c.Completed + other.Completed,
		Failed:    c.Failed + other.Failed,
		Delayed:   c.Delayed + other.Delayed,
		Paused:    c.Paused + other.Paused,
	}
}

// BulkItem describes one job in an AddBulk call.
type BulkItem struct {
	Name string
	Data any
	Opts []JobOption
}
