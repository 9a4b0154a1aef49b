package jobqueue

import (
	"context"
	"log/slog"
	"time"

	redisconn "github.com/dmitrymomot/queuekit/pkg/redis"
)

// ValidateConnection probes the Redis broker and reports whether it is
// reachable. It makes up to cfg.ProbeAttempts short-lived connection
// attempts, each bounded by cfg.ProbeTimeout, with a linearly growing
// pause between them (ProbeBackoff, 2×ProbeBackoff, ...). Every probe
// client is closed before the next attempt.
//
// The result is a plain boolean so backend selection can branch on it:
// validation failure is an expected condition, not an error.
func ValidateConnection(ctx context.Context, redisCfg redisconn.Config, cfg Config, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.ProbeAttempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	backoff := cfg.ProbeBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if probe(ctx, redisCfg, timeout) {
			logger.Debug("broker connectivity confirmed",
				slog.Int("attempt", attempt))
			return true
		}

		logger.Debug("broker connectivity probe failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return false
}

// probe opens one client, pings it within the timeout, and closes it.
// Any failure, including a malformed connection URL, yields false.
func probe(ctx context.Context, redisCfg redisconn.Config, timeout time.Duration) bool {
	client, err := redisconn.Open(redisCfg)
	if err != nil {
		return false
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return client.Ping(ctx).Err() == nil
}
