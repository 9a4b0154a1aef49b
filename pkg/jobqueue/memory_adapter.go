package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdapter implements the queue contracts entirely in-process.
// It trades persistence and cross-process visibility for availability:
// jobs live in an in-memory map and are lost on restart. The adapter is
// used for local development and as the fallback when Redis is down.
type MemoryAdapter struct {
	mu       sync.RWMutex
	queues   map[string]*memoryQueue
	cfg      Config
	defaults jobDefaults
	logger   *slog.Logger
	closed   bool
}

// NewMemoryAdapter creates an in-process adapter with job defaults and
// worker tuning derived from cfg.
func NewMemoryAdapter(cfg Config, logger *slog.Logger) *MemoryAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MemoryAdapter{
		queues:   make(map[string]*memoryQueue),
		cfg:      cfg,
		defaults: cfg.jobDefaults(),
		logger:   logger,
	}
}

// Backend implements Adapter.
func (a *MemoryAdapter) Backend() Backend { return BackendMemory }

// Queue implements Adapter. The same logical name always yields the same
// queue instance.
func (a *MemoryAdapter) Queue(name string) (Queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}
	if q, ok := a.queues[name]; ok {
		return q, nil
	}
	q := newMemoryQueue(name, a.defaults, a.logger)
	a.queues[name] = q
	return q, nil
}

// Worker implements Adapter.
func (a *MemoryAdapter) Worker(queue string, p Processor, opts ...WorkerOption) (Worker, error) {
	if p == nil {
		return nil, ErrProcessorNil
	}
	q, err := a.Queue(queue)
	if err != nil {
		return nil, err
	}
	return newWorker(q.(*memoryQueue), p, a.cfg, opts...), nil
}

// Healthy implements Adapter. The in-process backend has no external
// dependency to fail, so it is always healthy once constructed.
func (a *MemoryAdapter) Healthy(ctx context.Context) bool { return true }

// Close implements Adapter.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	for _, q := range a.queues {
		_ = q.Close()
	}
	return nil
}

// memoryQueue keeps jobs in a map keyed by generated id. Pending jobs
// (waiting and delayed) share one FIFO order slice; the claim path skips
// entries whose ReadyAt is still in the future. Priority is accepted on
// Add but does not reorder activation: the in-process backend is
// deliberately FIFO-only.
type memoryQueue struct {
	name     string
	defaults jobDefaults
	logger   *slog.Logger
	events   *emitter

	mu        sync.RWMutex
	jobs      map[uuid.UUID]*Job
	pending   []uuid.UUID
	active    map[uuid.UUID]struct{}
	completed []uuid.UUID
	failed    []uuid.UUID
	paused    bool
	closed    bool
}

func newMemoryQueue(name string, defaults jobDefaults, logger *slog.Logger) *memoryQueue {
	return &memoryQueue{
		name:     name,
		defaults: defaults,
		logger:   logger,
		events:   newEmitter(),
		jobs:     make(map[uuid.UUID]*Job),
		active:   make(map[uuid.UUID]struct{}),
	}
}

func (q *memoryQueue) Name() string { return q.name }

// Add implements Queue.
func (q *memoryQueue) Add(ctx context.Context, name string, data any, opts ...JobOption) (*Job, error) {
	job, err := newJob(q.name, q.defaults, name, data, opts...)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	stored := *job
	q.jobs[job.ID] = &stored
	q.pending = append(q.pending, job.ID)
	q.mu.Unlock()

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobAdded, Job: job})
	return job, nil
}

// AddBulk implements Queue. Items are applied one by one; an invalid item
// aborts the batch and the jobs added so far stay enqueued.
func (q *memoryQueue) AddBulk(ctx context.Context, items []BulkItem) ([]*Job, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsToAdd
	}

	jobs := make([]*Job, 0, len(items))
	for i, item := range items {
		job, err := q.Add(ctx, item.Name, item.Data, item.Opts...)
		if err != nil {
			return jobs, fmt.Errorf("bulk item %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob implements Queue.
func (q *memoryQueue) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := q.snapshotLocked(job, time.Now())
	return &snapshot, nil
}

// snapshotLocked copies a job out, resolving the delayed/waiting/paused
// presentation from the queue state and the current time.
func (q *memoryQueue) snapshotLocked(job *Job, now time.Time) Job {
	snapshot := *job
	if snapshot.Status == StatusDelayed && !snapshot.ReadyAt.After(now) {
		snapshot.Status = StatusWaiting
	}
	if snapshot.Status == StatusWaiting && q.paused {
		snapshot.Status = StatusPaused
	}
	return snapshot
}

// GetJobs implements Queue.
func (q *memoryQueue) GetJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	want := make(map[JobStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[normalizeStatus(s)] = struct{}{}
	}

	now := time.Now()
	var out []*Job
	for _, id := range q.orderedIDsLocked() {
		job := q.jobs[id]
		snapshot := q.snapshotLocked(job, now)
		if _, ok := want[snapshot.Status]; ok {
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

// orderedIDsLocked lists job ids in a stable order: pending first, then
// active, then terminal lists.
func (q *memoryQueue) orderedIDsLocked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(q.jobs))
	ids = append(ids, q.pending...)
	for id := range q.active {
		ids = append(ids, id)
	}
	ids = append(ids, q.completed...)
	ids = append(ids, q.failed...)
	return ids
}

func (q *memoryQueue) GetWaiting(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusWaiting)
}

func (q *memoryQueue) GetActive(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusActive)
}

func (q *memoryQueue) GetCompleted(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusCompleted)
}

func (q *memoryQueue) GetFailed(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusFailed)
}

// UpdateProgress implements Queue.
func (q *memoryQueue) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Progress = clampProgress(progress)
	return nil
}

// RetryJob implements Queue. The job restarts its lifecycle from scratch:
// attempts, progress, and failure bookkeeping are all reset.
func (q *memoryQueue) RetryJob(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusFailed {
		return ErrJobNotFailed
	}

	q.failed = slices.DeleteFunc(q.failed, func(fid uuid.UUID) bool { return fid == id })

	job.Status = StatusWaiting
	job.FailedReason = ""
	job.FinishedAt = nil
	job.ProcessedAt = nil
	job.AttemptsMade = 0
	job.Progress = 0
	job.ReadyAt = time.Now()
	q.pending = append(q.pending, id)
	return nil
}

// Pause implements Queue.
func (q *memoryQueue) Pause(ctx context.Context) error {
	q.mu.Lock()
	already := q.paused
	q.paused = true
	q.mu.Unlock()

	if !already {
		q.events.emit(EventPayload{Queue: q.name, Event: EventQueuePaused})
	}
	return nil
}

// Resume implements Queue.
func (q *memoryQueue) Resume(ctx context.Context) error {
	q.mu.Lock()
	paused := q.paused
	q.paused = false
	q.mu.Unlock()

	if paused {
		q.events.emit(EventPayload{Queue: q.name, Event: EventQueueResumed})
	}
	return nil
}

// IsPaused implements Queue.
func (q *memoryQueue) IsPaused(ctx context.Context) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// Clean implements Queue.
func (q *memoryQueue) Clean(ctx context.Context, grace time.Duration, limit int, status JobStatus) (int, error) {
	status = normalizeStatus(status)
	if status == StatusActive {
		return 0, ErrInvalidCleanStatus
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-grace)
	removed := 0

	removable := func(job *Job) bool {
		if limit > 0 && removed >= limit {
			return false
		}
		snapshot := q.snapshotLocked(job, now)
		if snapshot.Status != status {
			return false
		}
		ts := job.CreatedAt
		if job.FinishedAt != nil {
			ts = *job.FinishedAt
		}
		return ts.Before(cutoff)
	}

	drop := func(ids []uuid.UUID) []uuid.UUID {
		return slices.DeleteFunc(ids, func(id uuid.UUID) bool {
			if removable(q.jobs[id]) {
				delete(q.jobs, id)
				removed++
				return true
			}
			return false
		})
	}

	switch status {
	case StatusCompleted:
		q.completed = drop(q.completed)
	case StatusFailed:
		q.failed = drop(q.failed)
	default:
		q.pending = drop(q.pending)
	}
	return removed, nil
}

// Drain implements Queue. Every not-yet-active job is removed; active
// jobs run to completion.
func (q *memoryQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.pending {
		delete(q.jobs, id)
	}
	q.pending = nil
	return nil
}

// Obliterate implements Queue. The queue object stays usable but every
// job, including active and terminal ones, is removed.
func (q *memoryQueue) Obliterate(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = make(map[uuid.UUID]*Job)
	q.pending = nil
	q.active = make(map[uuid.UUID]struct{})
	q.completed = nil
	q.failed = nil
	return nil
}

// Counts implements Queue.
func (q *memoryQueue) Counts(ctx context.Context) (JobCounts, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	now := time.Now()
	counts := JobCounts{
		Active:    int64(len(q.active)),
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
	}
	for _, id := range q.pending {
		job := q.jobs[id]
		if job.Status == StatusDelayed && job.ReadyAt.After(now) {
			counts.Delayed++
			continue
		}
		if q.paused {
			counts.Paused++
		} else {
			counts.Waiting++
		}
	}
	return counts, nil
}

// Subscribe implements Queue.
func (q *memoryQueue) Subscribe(ev Event, fn EventHandler) func() {
	return q.events.subscribe(ev, fn, false)
}

// SubscribeOnce implements Queue.
func (q *memoryQueue) SubscribeOnce(ev Event, fn EventHandler) func() {
	return q.events.subscribe(ev, fn, true)
}

// Close implements Queue.
func (q *memoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *memoryQueue) emitter() *emitter { return q.events }

// claimNext pops the first eligible pending job and marks it active. It
// returns nil when the queue is paused, closed, or has nothing ready.
func (q *memoryQueue) claimNext(ctx context.Context) (*Job, error) {
	now := time.Now()
	q.mu.Lock()

	if q.paused || q.closed {
		q.mu.Unlock()
		return nil, nil
	}

	idx := -1
	for i, id := range q.pending {
		if !q.jobs[id].ReadyAt.After(now) {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return nil, nil
	}

	id := q.pending[idx]
	q.pending = slices.Delete(q.pending, idx, idx+1)

	job := q.jobs[id]
	job.Status = StatusActive
	job.AttemptsMade++
	processedAt := now
	job.ProcessedAt = &processedAt
	q.active[id] = struct{}{}

	snapshot := *job
	q.mu.Unlock()

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobStarted, Job: &snapshot})
	return &snapshot, nil
}

// completeJob records a successful attempt and applies completion retention.
func (q *memoryQueue) completeJob(ctx context.Context, j *Job, returnValue json.RawMessage) error {
	id := j.ID
	q.mu.Lock()

	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	delete(q.active, id)

	now := time.Now()
	job.Status = StatusCompleted
	job.ReturnValue = returnValue
	job.FinishedAt = &now
	snapshot := *job

	if job.KeepCompleted != nil && *job.KeepCompleted == 0 {
		delete(q.jobs, id)
	} else {
		q.completed = append(q.completed, id)
		if job.KeepCompleted != nil {
			q.completed = q.trimLocked(q.completed, *job.KeepCompleted)
		}
	}
	q.mu.Unlock()

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobCompleted, Job: &snapshot})
	return nil
}

// failJob records a failed attempt. With attempts remaining the job
// returns to pending after its backoff delay; otherwise it is terminally
// failed.
func (q *memoryQueue) failJob(ctx context.Context, j *Job, reason string) (bool, error) {
	id := j.ID
	q.mu.Lock()

	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return false, ErrJobNotFound
	}
	delete(q.active, id)

	if job.AttemptsMade < job.MaxAttempts {
		job.Status = StatusDelayed
		job.FailedReason = reason
		job.ReadyAt = time.Now().Add(job.Backoff.NextDelay(job.AttemptsMade))
		q.pending = append(q.pending, id)
		q.mu.Unlock()
		return false, nil
	}

	now := time.Now()
	job.Status = StatusFailed
	job.FailedReason = reason
	job.FinishedAt = &now
	snapshot := *job

	if job.KeepFailed != nil && *job.KeepFailed == 0 {
		delete(q.jobs, id)
	} else {
		q.failed = append(q.failed, id)
		if job.KeepFailed != nil {
			q.failed = q.trimLocked(q.failed, *job.KeepFailed)
		}
	}
	q.mu.Unlock()

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobFailed, Job: &snapshot, Err: errors.New(reason)})
	return true, nil
}

// trimLocked drops the oldest entries beyond keep, removing their job
// bodies as well.
func (q *memoryQueue) trimLocked(ids []uuid.UUID, keep int) []uuid.UUID {
	for len(ids) > keep {
		delete(q.jobs, ids[0])
		ids = slices.Delete(ids, 0, 1)
	}
	return ids
}
