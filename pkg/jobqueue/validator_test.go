package jobqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/queuekit/pkg/jobqueue"
	redisconn "github.com/dmitrymomot/queuekit/pkg/redis"
)

// fastProbeConfig keeps connectivity validation snappy in tests: the
// target ports are closed locally, so dials fail immediately anyway.
func fastProbeConfig() jobqueue.Config {
	return jobqueue.Config{
		ProbeAttempts: 2,
		ProbeTimeout:  100 * time.Millisecond,
		ProbeBackoff:  time.Millisecond,
	}
}

func TestValidateConnection_UnreachableBroker(t *testing.T) {
	t.Parallel()

	redisCfg := redisconn.Config{ConnectionURL: "redis://127.0.0.1:1/0"}

	start := time.Now()
	ok := jobqueue.ValidateConnection(context.Background(), redisCfg, fastProbeConfig(), nil)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestValidateConnection_MalformedURL(t *testing.T) {
	t.Parallel()

	redisCfg := redisconn.Config{ConnectionURL: "not-a-redis-url"}
	ok := jobqueue.ValidateConnection(context.Background(), redisCfg, fastProbeConfig(), nil)
	assert.False(t, ok)
}

func TestValidateConnection_EmptyURL(t *testing.T) {
	t.Parallel()

	ok := jobqueue.ValidateConnection(context.Background(), redisconn.Config{}, fastProbeConfig(), nil)
	assert.False(t, ok)
}

func TestValidateConnection_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	redisCfg := redisconn.Config{ConnectionURL: "redis://127.0.0.1:1/0"}
	ok := jobqueue.ValidateConnection(ctx, redisCfg, fastProbeConfig(), nil)
	assert.False(t, ok)
}
