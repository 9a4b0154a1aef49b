package jobqueue

import (
	"context"
	"io"
	"log/slog"
	"sync"

	redisconn "github.com/dmitrymomot/queuekit/pkg/redis"
)

// Selection describes the outcome of backend resolution.
type Selection struct {
	// Requested is the backend the configuration asked for, after unknown
	// values were coerced to the default.
	Requested Backend

	// Actual is the backend that was instantiated.
	Actual Backend

	// BrokerAvailable reports the result of the connectivity probe. It is
	// true without probing when the memory backend was requested.
	BrokerAvailable bool

	// FallbackOccurred is true only when Redis was requested and the
	// in-memory backend was instantiated instead.
	FallbackOccurred bool
}

// Provider resolves configuration into exactly one adapter. A successful
// resolution is sticky: every later Resolve call returns the same adapter
// and selection. A failed resolution is not cached, so the caller may
// retry once the broker is back.
type Provider struct {
	cfg      Config
	redisCfg redisconn.Config
	logger   *slog.Logger

	mu        sync.Mutex
	adapter   Adapter
	selection Selection
}

// NewProvider builds an unresolved provider. Nothing connects until
// Resolve is called.
func NewProvider(cfg Config, redisCfg redisconn.Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{cfg: cfg, redisCfg: redisCfg, logger: logger}
}

// Resolve picks and instantiates the backend. Redis is probed first when
// requested; an unreachable broker degrades to the in-memory backend if
// fallback is enabled and aborts with ErrBrokerUnavailable otherwise.
func (p *Provider) Resolve(ctx context.Context) (Adapter, Selection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adapter != nil {
		return p.adapter, p.selection, nil
	}

	adapter, sel, err := p.resolve(ctx)
	if err != nil {
		return nil, sel, err
	}
	p.adapter = adapter
	p.selection = sel
	return p.adapter, p.selection, nil
}

func (p *Provider) resolve(ctx context.Context) (Adapter, Selection, error) {
	requested, ok := ParseBackend(p.cfg.Backend)
	if !ok {
		p.logger.Warn("unknown queue backend, using redis",
			slog.String("backend", p.cfg.Backend))
		requested = BackendRedis
	}

	sel := Selection{Requested: requested}

	if requested == BackendMemory {
		sel.Actual = BackendMemory
		sel.BrokerAvailable = true
		p.logger.Info("queue backend selected", slog.String("backend", string(BackendMemory)))
		return NewMemoryAdapter(p.cfg, p.logger), sel, nil
	}

	sel.BrokerAvailable = ValidateConnection(ctx, p.redisCfg, p.cfg, p.logger)
	if sel.BrokerAvailable {
		client, err := redisconn.Connect(ctx, p.redisCfg)
		if err != nil {
			// The broker vanished between the probe and the connect.
			p.logger.Warn("broker connect failed after successful probe",
				slog.String("error", err.Error()))
			sel.BrokerAvailable = false
		} else {
			adapter := NewRedisAdapter(client, p.cfg, p.logger)
			if p.redisCfg.ScanBatchSize > 0 {
				adapter.scanBatch = p.redisCfg.ScanBatchSize
			}
			sel.Actual = BackendRedis
			p.logger.Info("queue backend selected", slog.String("backend", string(BackendRedis)))
			return adapter, sel, nil
		}
	}

	if !p.cfg.FallbackEnabled {
		return nil, sel, ErrBrokerUnavailable
	}

	sel.Actual = BackendMemory
	sel.FallbackOccurred = true
	p.logger.Warn("broker unreachable, falling back to in-memory queue backend")
	return NewMemoryAdapter(p.cfg, p.logger), sel, nil
}

// IsFallbackActive reports whether resolution degraded to the in-memory
// backend. It is false before Resolve has succeeded.
func (p *Provider) IsFallbackActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection.FallbackOccurred
}
