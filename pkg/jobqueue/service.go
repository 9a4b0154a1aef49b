package jobqueue

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	redisconn "github.com/dmitrymomot/queuekit/pkg/redis"
)

// Service is the facade the rest of the application talks to. It owns
// backend resolution, the queue registry, the workers, and the metrics
// tracker, so callers never touch an adapter directly.
type Service struct {
	provider *Provider
	logger   *slog.Logger
	tracker  *Tracker

	mu        sync.RWMutex
	adapter   Adapter
	selection Selection
	queues    map[string]Queue
	workers   []Worker
	closed    bool
}

// New builds an uninitialized service. Nothing connects until Initialize
// is called.
func New(cfg Config, redisCfg redisconn.Config, opts ...ServiceOption) *Service {
	s := &Service{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracker: NewTracker(),
		queues:  make(map[string]Queue),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.provider == nil {
		s.provider = NewProvider(cfg, redisCfg, s.logger)
	}
	return s
}

// Initialize resolves the backend. It is idempotent: once resolution has
// succeeded further calls return nil without touching the broker. A failed
// initialization may be retried. A service that was shut down via CloseAll
// stays closed; the provider's adapter is gone with it.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if s.adapter != nil {
		return nil
	}

	adapter, sel, err := s.provider.Resolve(ctx)
	if err != nil {
		return err
	}
	s.adapter = adapter
	s.selection = sel
	return nil
}

// RegisterQueue creates (or returns) the queue with the given name.
// Registering the same name twice is a warned no-op yielding the
// original queue.
func (s *Service) RegisterQueue(name string) (Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter == nil {
		return nil, ErrNotInitialized
	}
	if q, ok := s.queues[name]; ok {
		s.logger.Warn("queue already registered", slog.String("queue", name))
		return q, nil
	}

	q, err := s.adapter.Queue(name)
	if err != nil {
		return nil, err
	}
	s.queues[name] = q

	s.logger.Info("queue registered", slog.String("queue", name))
	return q, nil
}

// GetQueue returns a previously registered queue.
func (s *Service) GetQueue(name string) (Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.adapter == nil {
		return nil, ErrNotInitialized
	}
	q, ok := s.queues[name]
	if !ok {
		return nil, ErrQueueNotRegistered
	}
	return q, nil
}

// RegisterProcessor attaches a processor to the named queue and starts a
// worker for it. The queue is registered implicitly if it was not yet.
// Workers are wired to the service tracker unless an explicit tracker
// option overrides it.
func (s *Service) RegisterProcessor(ctx context.Context, queueName string, p Processor, opts ...WorkerOption) (Worker, error) {
	if _, err := s.RegisterQueue(queueName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter == nil {
		return nil, ErrNotInitialized
	}

	workerOpts := append([]WorkerOption{
		WithWorkerLogger(s.logger),
		WithWorkerTracker(s.tracker),
	}, opts...)

	w, err := s.adapter.Worker(queueName, p, workerOpts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	s.workers = append(s.workers, w)
	return w, nil
}

// GlobalCounts aggregates job counts across every registered queue.
func (s *Service) GlobalCounts(ctx context.Context) (JobCounts, error) {
	s.mu.RLock()
	if s.adapter == nil {
		s.mu.RUnlock()
		return JobCounts{}, ErrNotInitialized
	}
	queues := make([]Queue, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	var (
		total   JobCounts
		totalMu sync.Mutex
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		q := q
		g.Go(func() error {
			counts, err := q.Counts(ctx)
			if err != nil {
				return err
			}
			totalMu.Lock()
			total = total.Add(counts)
			totalMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JobCounts{}, err
	}
	return total, nil
}

// QueueNames returns the registered queue names.
func (s *Service) QueueNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	return names
}

// Selection returns the backend resolution outcome. The zero value is
// returned before Initialize.
func (s *Service) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Tracker exposes the service's metrics tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// CloseAll shuts the subsystem down: workers first so in-flight jobs
// finish, then queues, then the adapter. Individual close errors are
// logged and swallowed so one misbehaving component cannot block the
// rest of the shutdown.
func (s *Service) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.adapter == nil {
		return
	}
	s.closed = true

	for _, w := range s.workers {
		if err := w.Close(); err != nil {
			s.logger.Error("failed to close worker",
				slog.String("queue", w.QueueName()),
				slog.String("error", err.Error()))
		}
	}
	s.workers = nil

	for name, q := range s.queues {
		if err := q.Close(); err != nil {
			s.logger.Error("failed to close queue",
				slog.String("queue", name),
				slog.String("error", err.Error()))
		}
	}
	s.queues = make(map[string]Queue)

	if err := s.adapter.Close(); err != nil {
		s.logger.Error("failed to close queue adapter",
			slog.String("error", err.Error()))
	}
	s.adapter = nil
}
