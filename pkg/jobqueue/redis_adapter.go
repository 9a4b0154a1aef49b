package jobqueue

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultScanBatchSize = 1000

// RedisAdapter implements the queue contracts on a shared Redis broker.
// Jobs are persistent and visible to every process using the same key
// prefix. The adapter owns the prefix and applies it to every queue it
// creates, so a producer and its worker can never end up namespaced
// differently within one process.
type RedisAdapter struct {
	client    *redis.Client
	prefix    string
	scanBatch int
	cfg       Config
	defaults  jobDefaults
	logger    *slog.Logger

	mu     sync.Mutex
	queues map[string]*redisQueue
	closed bool
}

// NewRedisAdapter wraps an already connected client. The caller keeps
// ownership of nothing: Close closes the client.
func NewRedisAdapter(client *redis.Client, cfg Config, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "queuekit"
	}
	return &RedisAdapter{
		client:    client,
		prefix:    prefix,
		scanBatch: defaultScanBatchSize,
		cfg:       cfg,
		defaults:  cfg.jobDefaults(),
		logger:    logger,
		queues:    make(map[string]*redisQueue),
	}
}

// Backend implements Adapter.
func (a *RedisAdapter) Backend() Backend { return BackendRedis }

// Queue implements Adapter. The same logical name always yields the same
// queue instance.
func (a *RedisAdapter) Queue(name string) (Queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}
	if q, ok := a.queues[name]; ok {
		return q, nil
	}
	q := newRedisQueue(a.client, a.prefix, name, a.defaults, a.scanBatch, a.logger)
	a.queues[name] = q
	return q, nil
}

// Worker implements Adapter.
func (a *RedisAdapter) Worker(queue string, p Processor, opts ...WorkerOption) (Worker, error) {
	if p == nil {
		return nil, ErrProcessorNil
	}
	q, err := a.Queue(queue)
	if err != nil {
		return nil, err
	}
	return newWorker(q.(*redisQueue), p, a.cfg, opts...), nil
}

// Healthy implements Adapter. A failed ping yields false, never an error.
func (a *RedisAdapter) Healthy(ctx context.Context) bool {
	return a.client.Ping(ctx).Err() == nil
}

// Close implements Adapter. It stops every queue's background promoter
// and closes the underlying client.
func (a *RedisAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	for _, q := range a.queues {
		_ = q.Close()
	}
	return a.client.Close()
}

// queueKeys builds the Redis key layout for one queue:
//
//	{prefix}:{queue}:waiting      list, RPush tail / pop head (FIFO)
//	{prefix}:{queue}:prioritized  zset, score = (100 - priority)·band + seq
//	{prefix}:{queue}:seq          counter feeding the prioritized tiebreak
//	{prefix}:{queue}:delayed      zset, score = ready-at unix ms
//	{prefix}:{queue}:active       list
//	{prefix}:{queue}:completed    zset, score = finished-at unix ms
//	{prefix}:{queue}:failed       zset, score = finished-at unix ms
//	{prefix}:{queue}:paused       flag
//	{prefix}:{queue}:job:{id}     job body, JSON
type queueKeys struct {
	prefix string
	queue  string
}

func (k queueKeys) base() string        { return k.prefix + ":" + k.queue }
func (k queueKeys) waiting() string     { return k.base() + ":waiting" }
func (k queueKeys) prioritized() string { return k.base() + ":prioritized" }
func (k queueKeys) seq() string         { return k.base() + ":seq" }
func (k queueKeys) delayed() string     { return k.base() + ":delayed" }
func (k queueKeys) active() string      { return k.base() + ":active" }
func (k queueKeys) completed() string   { return k.base() + ":completed" }
func (k queueKeys) failed() string      { return k.base() + ":failed" }
func (k queueKeys) paused() string      { return k.base() + ":paused" }
func (k queueKeys) job(id string) string { return k.base() + ":job:" + id }
func (k queueKeys) pattern() string     { return k.base() + ":*" }
