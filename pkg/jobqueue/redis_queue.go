package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteInterval is how often due delayed jobs are moved back to the
// waiting structures.
const promoteInterval = 250 * time.Millisecond

// redisQueue implements Queue against the broker's native structures.
// State transitions rewrite the job body and move its id between the
// per-state structures; membership is the source of truth for counts.
type redisQueue struct {
	name      string
	client    *redis.Client
	keys      queueKeys
	defaults  jobDefaults
	scanBatch int
	logger    *slog.Logger
	events    *emitter

	stop     chan struct{}
	stopOnce sync.Once
}

func newRedisQueue(client *redis.Client, prefix, name string, defaults jobDefaults, scanBatch int, logger *slog.Logger) *redisQueue {
	q := &redisQueue{
		name:      name,
		client:    client,
		keys:      queueKeys{prefix: prefix, queue: name},
		defaults:  defaults,
		scanBatch: scanBatch,
		logger:    logger,
		events:    newEmitter(),
		stop:      make(chan struct{}),
	}
	go q.promoteLoop()
	return q
}

func (q *redisQueue) Name() string { return q.name }

func (q *redisQueue) emitter() *emitter { return q.events }

func unixMilli(t time.Time) float64 { return float64(t.UnixMilli()) }

// priorityBand spaces priority ranks in the prioritized zset so a
// monotonic per-queue sequence occupies the low digits as an
// insertion-order tiebreak. ZPopMin breaks score ties lexicographically
// by member, which would randomize equal-priority order without it.
// Scores stay exactly representable in float64 up to 2^53, so the band
// holds FIFO order for the first 2^40 prioritized jobs per queue.
const priorityBand = 1 << 40

// prioritizedScore allocates the next sequence number and folds it into
// the priority rank. Lower scores pop first: higher priority wins, and
// within one priority the earlier enqueue wins.
func (q *redisQueue) prioritizedScore(ctx context.Context, p Priority) (float64, error) {
	seq, err := q.client.Incr(ctx, q.keys.seq()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate priority sequence: %w", err)
	}
	return float64(int64(PriorityMax-p))*priorityBand + float64(seq), nil
}

func (q *redisQueue) storeJob(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return q.client.Set(ctx, q.keys.job(job.ID.String()), body, 0).Err()
}

func (q *redisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	body, err := q.client.Get(ctx, q.keys.job(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	job.Status = normalizeStatus(job.Status)
	return &job, nil
}

// Add implements Queue.
func (q *redisQueue) Add(ctx context.Context, name string, data any, opts ...JobOption) (*Job, error) {
	job, err := newJob(q.name, q.defaults, name, data, opts...)
	if err != nil {
		return nil, err
	}

	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}

	id := job.ID.String()
	switch {
	case job.Status == StatusDelayed:
		err = q.client.ZAdd(ctx, q.keys.delayed(), redis.Z{Score: unixMilli(job.ReadyAt), Member: id}).Err()
	case job.Priority > PriorityMin:
		var score float64
		score, err = q.prioritizedScore(ctx, job.Priority)
		if err == nil {
			err = q.client.ZAdd(ctx, q.keys.prioritized(), redis.Z{Score: score, Member: id}).Err()
		}
	default:
		err = q.client.RPush(ctx, q.keys.waiting(), id).Err()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", id, err)
	}

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobAdded, Job: job})
	return job, nil
}

// AddBulk implements Queue. Items are applied one by one; an invalid item
// aborts the batch and the jobs added so far stay enqueued.
func (q *redisQueue) AddBulk(ctx context.Context, items []BulkItem) ([]*Job, error) {
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
func (q *redisQueue) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return q.loadJob(ctx, id.String())
}

// GetJobs implements Queue.
func (q *redisQueue) GetJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	paused, err := q.isPaused(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Job
	for _, status := range statuses {
		ids, err := q.idsInStatus(ctx, normalizeStatus(status), paused)
		if err != nil {
			return nil, err
		}
		jobs, err := q.loadJobs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if paused && normalizeStatus(status) == StatusPaused {
			for _, job := range jobs {
				job.Status = StatusPaused
			}
		}
		out = append(out, jobs...)
	}
	return out, nil
}

// idsInStatus resolves which structure holds jobs presented in the given
// status. While the queue is paused its waiting jobs surface under the
// paused status instead of waiting.
func (q *redisQueue) idsInStatus(ctx context.Context, status JobStatus, paused bool) ([]string, error) {
	waitingIDs := func() ([]string, error) {
		ids, err := q.client.LRange(ctx, q.keys.waiting(), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		prioritized, err := q.client.ZRange(ctx, q.keys.prioritized(), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		return append(prioritized, ids...), nil
	}

	switch status {
	case StatusWaiting:
		if paused {
			return nil, nil
		}
		return waitingIDs()
	case StatusPaused:
		if !paused {
			return nil, nil
		}
		return waitingIDs()
	case StatusActive:
		return q.client.LRange(ctx, q.keys.active(), 0, -1).Result()
	case StatusDelayed:
		return q.client.ZRange(ctx, q.keys.delayed(), 0, -1).Result()
	case StatusCompleted:
		return q.client.ZRange(ctx, q.keys.completed(), 0, -1).Result()
	case StatusFailed:
		return q.client.ZRange(ctx, q.keys.failed(), 0, -1).Result()
	}
	return nil, nil
}

func (q *redisQueue) loadJobs(ctx context.Context, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = q.keys.job(id)
	}
	values, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	for _, v := range values {
		body, ok := v.(string)
		if !ok {
			continue // body already removed, skip the dangling id
		}
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			q.logger.Debug("skipping undecodable job body", slog.String("queue", q.name))
			continue
		}
		job.Status = normalizeStatus(job.Status)
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (q *redisQueue) GetWaiting(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusWaiting)
}

func (q *redisQueue) GetActive(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusActive)
}

func (q *redisQueue) GetCompleted(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusCompleted)
}

func (q *redisQueue) GetFailed(ctx context.Context) ([]*Job, error) {
	return q.GetJobs(ctx, StatusFailed)
}

// UpdateProgress implements Queue.
func (q *redisQueue) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	job, err := q.loadJob(ctx, id.String())
	if err != nil {
		return err
	}
	job.Progress = clampProgress(progress)
	return q.storeJob(ctx, job)
}

// RetryJob implements Queue. The job restarts its lifecycle from scratch:
// attempts, progress, and failure bookkeeping are all reset.
func (q *redisQueue) RetryJob(ctx context.Context, id uuid.UUID) error {
	job, err := q.loadJob(ctx, id.String())
	if err != nil {
		return err
	}
	if job.Status != StatusFailed {
		return ErrJobNotFailed
	}

	job.Status = StatusWaiting
	job.FailedReason = ""
	job.FinishedAt = nil
	job.ProcessedAt = nil
	job.AttemptsMade = 0
	job.Progress = 0
	job.ReadyAt = time.Now()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", id, err)
	}

	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, q.keys.failed(), id.String())
	pipe.Set(ctx, q.keys.job(id.String()), body, 0)
	if job.Priority > PriorityMin {
		score, err := q.prioritizedScore(ctx, job.Priority)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, q.keys.prioritized(), redis.Z{Score: score, Member: id.String()})
	} else {
		pipe.RPush(ctx, q.keys.waiting(), id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", id, err)
	}
	return nil
}

// Pause implements Queue.
func (q *redisQueue) Pause(ctx context.Context) error {
	set, err := q.client.SetNX(ctx, q.keys.paused(), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("failed to pause queue %s: %w", q.name, err)
	}
	if set {
		q.events.emit(EventPayload{Queue: q.name, Event: EventQueuePaused})
	}
	return nil
}

// Resume implements Queue.
func (q *redisQueue) Resume(ctx context.Context) error {
	removed, err := q.client.Del(ctx, q.keys.paused()).Result()
	if err != nil {
		return fmt.Errorf("failed to resume queue %s: %w", q.name, err)
	}
	if removed > 0 {
		q.events.emit(EventPayload{Queue: q.name, Event: EventQueueResumed})
	}
	return nil
}

func (q *redisQueue) isPaused(ctx context.Context) (bool, error) {
	n, err := q.client.Exists(ctx, q.keys.paused()).Result()
	return n > 0, err
}

// IsPaused implements Queue.
func (q *redisQueue) IsPaused(ctx context.Context) bool {
	paused, _ := q.isPaused(ctx)
	return paused
}

// Clean implements Queue. For terminal states the finished-at score makes
// the age check a single range query; waiting and delayed jobs are aged
// by their creation time. Removal is not atomic across the membership
// structure and the job bodies: Redis guarantees per-command atomicity
// only, so a concurrent reader may briefly observe a dangling id.
func (q *redisQueue) Clean(ctx context.Context, grace time.Duration, limit int, status JobStatus) (int, error) {
	status = normalizeStatus(status)
	if status == StatusActive {
		return 0, ErrInvalidCleanStatus
	}

	cutoff := time.Now().Add(-grace)

	switch status {
	case StatusCompleted:
		return q.cleanTerminal(ctx, q.keys.completed(), cutoff, limit)
	case StatusFailed:
		return q.cleanTerminal(ctx, q.keys.failed(), cutoff, limit)
	default:
		return q.cleanPending(ctx, status, cutoff, limit)
	}
}

func (q *redisQueue) cleanTerminal(ctx context.Context, key string, cutoff time.Time, limit int) (int, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(cutoff.UnixMilli(), 10)}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}
	ids, err := q.client.ZRangeByScore(ctx, key, rangeBy).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cleanable jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]any, len(ids))
	bodies := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		bodies[i] = q.keys.job(id)
	}

	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, key, members...)
	pipe.Del(ctx, bodies...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to clean jobs: %w", err)
	}
	return len(ids), nil
}

func (q *redisQueue) cleanPending(ctx context.Context, status JobStatus, cutoff time.Time, limit int) (int, error) {
	paused, err := q.isPaused(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := q.idsInStatus(ctx, status, paused)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if limit > 0 && removed >= limit {
			break
		}
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		if !job.CreatedAt.Before(cutoff) {
			continue
		}

		pipe := q.client.Pipeline()
		pipe.LRem(ctx, q.keys.waiting(), 1, id)
		pipe.ZRem(ctx, q.keys.prioritized(), id)
		pipe.ZRem(ctx, q.keys.delayed(), id)
		pipe.Del(ctx, q.keys.job(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("failed to clean job %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// Drain implements Queue. Every not-yet-active job is removed; active
// jobs run to completion.
func (q *redisQueue) Drain(ctx context.Context) error {
	var ids []string

	waiting, err := q.client.LRange(ctx, q.keys.waiting(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to drain queue %s: %w", q.name, err)
	}
	ids = append(ids, waiting...)

	for _, key := range []string{q.keys.prioritized(), q.keys.delayed()} {
		members, err := q.client.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to drain queue %s: %w", q.name, err)
		}
		ids = append(ids, members...)
	}

	pipe := q.client.Pipeline()
	pipe.Del(ctx, q.keys.waiting(), q.keys.prioritized(), q.keys.delayed())
	for _, id := range ids {
		pipe.Del(ctx, q.keys.job(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to drain queue %s: %w", q.name, err)
	}
	return nil
}

// Obliterate implements Queue. It scans and deletes every key under the
// queue's prefix in batches. The scan-and-delete is not atomic: jobs
// added concurrently with an obliterate may survive it.
func (q *redisQueue) Obliterate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := q.client.Scan(ctx, cursor, q.keys.pattern(), int64(q.scanBatch)).Result()
		if err != nil {
			return fmt.Errorf("failed to obliterate queue %s: %w", q.name, err)
		}
		if len(keys) > 0 {
			if err := q.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to obliterate queue %s: %w", q.name, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Counts implements Queue.
func (q *redisQueue) Counts(ctx context.Context) (JobCounts, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.keys.waiting())
	prioritized := pipe.ZCard(ctx, q.keys.prioritized())
	active := pipe.LLen(ctx, q.keys.active())
	delayed := pipe.ZCard(ctx, q.keys.delayed())
	completed := pipe.ZCard(ctx, q.keys.completed())
	failed := pipe.ZCard(ctx, q.keys.failed())
	paused := pipe.Exists(ctx, q.keys.paused())
	if _, err := pipe.Exec(ctx); err != nil {
		return JobCounts{}, fmt.Errorf("failed to count jobs in queue %s: %w", q.name, err)
	}

	counts := JobCounts{
		Waiting:   waiting.Val() + prioritized.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	if paused.Val() > 0 {
		counts.Paused = counts.Waiting
		counts.Waiting = 0
	}
	return counts, nil
}

// Subscribe implements Queue. Subscriptions are process-local: events
// fire only for transitions driven by this process.
func (q *redisQueue) Subscribe(ev Event, fn EventHandler) func() {
	return q.events.subscribe(ev, fn, false)
}

// SubscribeOnce implements Queue.
func (q *redisQueue) SubscribeOnce(ev Event, fn EventHandler) func() {
	return q.events.subscribe(ev, fn, true)
}

// Close implements Queue. Jobs stored in Redis are untouched.
func (q *redisQueue) Close() error {
	q.stopOnce.Do(func() { close(q.stop) })
	return nil
}

// claimNext implements the worker contract. Prioritized jobs are popped
// first; otherwise the oldest waiting job moves to the active list.
func (q *redisQueue) claimNext(ctx context.Context) (*Job, error) {
	paused, err := q.isPaused(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	id, err := q.popPrioritized(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id, err = q.popWaiting(ctx)
		if err != nil {
			return nil, err
		}
	}
	if id == "" {
		return nil, nil
	}

	job, err := q.activate(ctx, id)
	if err != nil {
		return nil, err
	}

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobStarted, Job: job})
	return job, nil
}

func (q *redisQueue) popPrioritized(ctx context.Context) (string, error) {
	members, err := q.client.ZPopMin(ctx, q.keys.prioritized(), 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to pop prioritized job: %w", err)
	}
	if len(members) == 0 {
		return "", nil
	}
	id, _ := members[0].Member.(string)
	if id == "" {
		return "", nil
	}
	if err := q.client.RPush(ctx, q.keys.active(), id).Err(); err != nil {
		return "", fmt.Errorf("failed to move job %s to active: %w", id, err)
	}
	return id, nil
}

func (q *redisQueue) popWaiting(ctx context.Context) (string, error) {
	id, err := q.client.LMove(ctx, q.keys.waiting(), q.keys.active(), "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop waiting job: %w", err)
	}
	return id, nil
}

func (q *redisQueue) activate(ctx context.Context, id string) (*Job, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		// The body is gone; drop the dangling id from the active list.
		_ = q.client.LRem(ctx, q.keys.active(), 1, id)
		return nil, err
	}

	now := time.Now()
	job.Status = StatusActive
	job.AttemptsMade++
	job.ProcessedAt = &now
	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// completeJob implements the worker contract.
func (q *redisQueue) completeJob(ctx context.Context, job *Job, returnValue json.RawMessage) error {
	id := job.ID.String()
	now := time.Now()

	job.Status = StatusCompleted
	job.ReturnValue = returnValue
	job.FinishedAt = &now

	pipe := q.client.Pipeline()
	pipe.LRem(ctx, q.keys.active(), 1, id)
	if job.KeepCompleted != nil && *job.KeepCompleted == 0 {
		pipe.Del(ctx, q.keys.job(id))
	} else {
		body, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job %s: %w", id, err)
		}
		pipe.Set(ctx, q.keys.job(id), body, 0)
		pipe.ZAdd(ctx, q.keys.completed(), redis.Z{Score: unixMilli(now), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}

	if job.KeepCompleted != nil && *job.KeepCompleted > 0 {
		if err := q.trimTerminal(ctx, q.keys.completed(), *job.KeepCompleted); err != nil {
			return err
		}
	}

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobCompleted, Job: job})
	return nil
}

// failJob implements the worker contract.
func (q *redisQueue) failJob(ctx context.Context, job *Job, reason string) (bool, error) {
	id := job.ID.String()

	if job.AttemptsMade < job.MaxAttempts {
		job.Status = StatusDelayed
		job.FailedReason = reason
		job.ReadyAt = time.Now().Add(job.Backoff.NextDelay(job.AttemptsMade))

		body, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("failed to marshal job %s: %w", id, err)
		}
		pipe := q.client.Pipeline()
		pipe.LRem(ctx, q.keys.active(), 1, id)
		pipe.Set(ctx, q.keys.job(id), body, 0)
		pipe.ZAdd(ctx, q.keys.delayed(), redis.Z{Score: unixMilli(job.ReadyAt), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("failed to schedule retry for job %s: %w", id, err)
		}
		return false, nil
	}

	now := time.Now()
	job.Status = StatusFailed
	job.FailedReason = reason
	job.FinishedAt = &now

	pipe := q.client.Pipeline()
	pipe.LRem(ctx, q.keys.active(), 1, id)
	if job.KeepFailed != nil && *job.KeepFailed == 0 {
		pipe.Del(ctx, q.keys.job(id))
	} else {
		body, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("failed to marshal job %s: %w", id, err)
		}
		pipe.Set(ctx, q.keys.job(id), body, 0)
		pipe.ZAdd(ctx, q.keys.failed(), redis.Z{Score: unixMilli(now), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record failure for job %s: %w", id, err)
	}

	if job.KeepFailed != nil && *job.KeepFailed > 0 {
		if err := q.trimTerminal(ctx, q.keys.failed(), *job.KeepFailed); err != nil {
			return true, err
		}
	}

	q.events.emit(EventPayload{Queue: q.name, Event: EventJobFailed, Job: job, Err: errors.New(reason)})
	return true, nil
}

// trimTerminal keeps only the most recent keep entries, removing older
// job bodies with them.
func (q *redisQueue) trimTerminal(ctx context.Context, key string, keep int) error {
	card, err := q.client.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}
	excess := card - int64(keep)
	if excess <= 0 {
		return nil
	}

	ids, err := q.client.ZRange(ctx, key, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}

	pipe := q.client.Pipeline()
	pipe.ZRemRangeByRank(ctx, key, 0, excess-1)
	for _, id := range ids {
		pipe.Del(ctx, q.keys.job(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}
	return nil
}

// promoteLoop periodically moves due delayed jobs back to the waiting
// structures. Several processes may run the loop for the same queue;
// ZRem acts as the claim so each id is promoted exactly once.
func (q *redisQueue) promoteLoop() {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), promoteInterval*4)
			if err := q.promoteDue(ctx); err != nil {
				q.logger.Debug("failed to promote delayed jobs",
					slog.String("queue", q.name),
					slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

func (q *redisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 128,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.keys.delayed(), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another process promoted it first
		}

		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue // body cleaned while delayed
		}
		job.Status = StatusWaiting
		if err := q.storeJob(ctx, job); err != nil {
			return err
		}

		if job.Priority > PriorityMin {
			score, serr := q.prioritizedScore(ctx, job.Priority)
			if serr != nil {
				return serr
			}
			err = q.client.ZAdd(ctx, q.keys.prioritized(), redis.Z{Score: score, Member: id}).Err()
		} else {
			err = q.client.RPush(ctx, q.keys.waiting(), id).Err()
		}
		if err != nil {
			return err
		}
	}
	return nil
}
