package jobqueue

import (
	"log/slog"
	"time"
)

// JobOption is a functional option for a single Add/AddBulk call.
type JobOption func(*jobOptions)

type jobOptions struct {
	priority      Priority
	delay         time.Duration
	maxAttempts   int
	backoff       *BackoffSettings
	keepCompleted *int
	keepFailed    *int
}

// WithJobPriority sets the job priority. Higher priority jobs are activated
// sooner on backends that support priority ordering.
func WithJobPriority(p Priority) JobOption {
	return func(o *jobOptions) {
		o.priority = p
	}
}

// WithJobDelay delays the job's eligibility for processing.
func WithJobDelay(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithMaxAttempts sets the total number of processing attempts before the
// job is terminally failed.
func WithMaxAttempts(n int) JobOption {
	return func(o *jobOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithJobBackoff sets the retry delay policy for the job.
func WithJobBackoff(b BackoffSettings) JobOption {
	return func(o *jobOptions) {
		if b.Delay > 0 {
			o.backoff = &b
		}
	}
}

// WithRemoveOnComplete controls retention after successful completion:
// 0 removes the job immediately, n>0 keeps only the most recent n
// completed jobs in the queue.
func WithRemoveOnComplete(keep int) JobOption {
	return func(o *jobOptions) {
		if keep >= 0 {
			o.keepCompleted = &keep
		}
	}
}

// WithRemoveOnFail controls retention after terminal failure, with the
// same semantics as WithRemoveOnComplete.
func WithRemoveOnFail(keep int) JobOption {
	return func(o *jobOptions) {
		if keep >= 0 {
			o.keepFailed = &keep
		}
	}
}

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	tracker      *Tracker
}

func defaultWorkerOptions(cfg Config) *workerOptions {
	o := &workerOptions{
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		logger:       slog.Default(),
	}
	if o.concurrency <= 0 {
		o.concurrency = 5
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 100 * time.Millisecond
	}
	if o.jobTimeout <= 0 {
		o.jobTimeout = 5 * time.Minute
	}
	return o
}

// WithConcurrency sets the maximum number of jobs processed in parallel.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollInterval sets how often the worker checks for claimable jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithJobTimeout sets the per-job processing timeout. A processor that
// exceeds it is aborted and the job fails with a timeout reason.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerTracker attaches a metrics tracker updated on every job
// start, completion, and failure.
func WithWorkerTracker(t *Tracker) WorkerOption {
	return func(o *workerOptions) {
		if t != nil {
			o.tracker = t
		}
	}
}

// ServiceOption is a functional option for configuring the Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by the service and its components.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracker replaces the default metrics tracker.
func WithTracker(t *Tracker) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithProvider replaces the default adapter provider. Mostly useful in
// tests that need to inject a pre-resolved adapter.
func WithProvider(p *Provider) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}
