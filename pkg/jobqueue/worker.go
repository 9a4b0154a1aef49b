package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// processableQueue is the internal contract between the worker loop and an
// adapter's queue. Both backends implement it so the claim/process/resolve
// cycle, concurrency bounding, and metrics reporting live in one place.
type processableQueue interface {
	Name() string

	// claimNext pops the next eligible job and marks it active.
	// It returns (nil, nil) when nothing is claimable right now.
	claimNext(ctx context.Context) (*Job, error)

	// completeJob resolves the job as succeeded with the given return value.
	completeJob(ctx context.Context, job *Job, returnValue json.RawMessage) error

	// failJob records a failed attempt. It reports whether the failure was
	// terminal (retries exhausted) or the job was rescheduled.
	failJob(ctx context.Context, job *Job, reason string) (terminal bool, err error)

	emitter() *emitter
}

// worker drives a processableQueue with bounded concurrency. One worker is
// bound to exactly one queue name.
type worker struct {
	queue     processableQueue
	processor Processor
	sem       chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	stopMu    sync.Mutex // Protects stopping state and WaitGroup operations

	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	tracker      *Tracker

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	paused   atomic.Bool
}

// newWorker builds a worker tuned by the adapter's Config; per-worker
// options override the configured defaults.
func newWorker(q processableQueue, p Processor, cfg Config, opts ...WorkerOption) *worker {
	options := defaultWorkerOptions(cfg)
	for _, opt := range opts {
		opt(options)
	}

	return &worker{
		queue:        q,
		processor:    p,
		sem:          make(chan struct{}, options.concurrency),
		pollInterval: options.pollInterval,
		jobTimeout:   options.jobTimeout,
		logger:       options.logger,
		tracker:      options.tracker,
	}
}

// QueueName implements Worker.
func (w *worker) QueueName() string { return w.queue.Name() }

// Start implements Worker.
func (w *worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.String("queue", w.queue.Name()),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Pause implements Worker. In-flight jobs run to completion.
func (w *worker) Pause() { w.paused.Store(true) }

// Resume implements Worker.
func (w *worker) Resume() { w.paused.Store(false) }

// Close implements Worker. It stops claiming and waits for in-flight jobs
// to finish.
func (w *worker) Close() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", slog.String("queue", w.queue.Name()))
	return nil
}

// run is the main processing loop.
func (w *worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.paused.Load() {
				continue
			}

			select {
			case w.sem <- struct{}{}:
				// Use stopMu to ensure we don't add to WaitGroup after Close() starts
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()
					w.pullAndProcess()
				}()
			default:
				// All slots busy, skip this tick
			}
		}
	}
}

func (w *worker) pullAndProcess() {
	job, err := w.queue.claimNext(w.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Error("failed to claim job",
			slog.String("queue", w.queue.Name()),
			slog.String("error", err.Error()))
		w.queue.emitter().emit(EventPayload{Queue: w.queue.Name(), Event: EventQueueErrored, Err: err})
		return
	}
	if job == nil {
		return
	}
	w.processJob(job)
}

// processJob executes the processor with a per-job timeout, recovering
// panics as failures and resolving the job's terminal state.
func (w *worker) processJob(job *Job) {
	start := time.Now()

	if w.tracker != nil {
		w.tracker.RecordJobStart(w.queue.Name(), job.ID.String())
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("processor panicked",
				slog.String("queue", w.queue.Name()),
				slog.String("job_id", job.ID.String()),
				slog.Any("panic", r))
			w.resolveFailure(job, fmt.Errorf("panic in processor: %v", r), time.Since(start))
		}
	}()

	// Detached from the worker context so graceful shutdown lets the job finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	result, err := w.processor(ctx, job)
	duration := time.Since(start)

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrJobTimeout, w.jobTimeout)
		}
		w.resolveFailure(job, err, duration)
		return
	}

	returnValue, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		w.logger.Error("failed to marshal return value",
			slog.String("queue", w.queue.Name()),
			slog.String("job_id", job.ID.String()),
			slog.String("error", marshalErr.Error()))
		returnValue = nil
	}

	if err := w.queue.completeJob(context.Background(), job, returnValue); err != nil {
		w.logger.Error("failed to mark job completed",
			slog.String("queue", w.queue.Name()),
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
	if w.tracker != nil {
		w.tracker.RecordJobComplete(w.queue.Name(), job.ID.String(), duration)
	}

	w.logger.Info("job completed",
		slog.String("queue", w.queue.Name()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Duration("duration", duration))
}

func (w *worker) resolveFailure(job *Job, execErr error, duration time.Duration) {
	w.logger.Error("job attempt failed",
		slog.String("queue", w.queue.Name()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Int("attempts_made", job.AttemptsMade),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", execErr.Error()))

	terminal, err := w.queue.failJob(context.Background(), job, execErr.Error())
	if err != nil {
		w.logger.Error("failed to record job failure",
			slog.String("queue", w.queue.Name()),
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}

	if w.tracker != nil {
		if terminal {
			w.tracker.RecordJobFailed(w.queue.Name(), job.ID.String(), duration)
		} else {
			w.tracker.RecordJobRetry(w.queue.Name(), job.ID.String())
		}
	}
}
