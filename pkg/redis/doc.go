// Package redis provides Redis client initialization and health checking
// for the queue subsystem.
//
// Connect validates the connection URL, retries transient failures, and
// verifies connectivity with a ping before returning the client. Open
// returns an unverified client for callers that manage their own probing,
// such as the queue provider's connectivity validator.
//
// Configuration is environment-driven through the Config struct. Both
// redis:// and rediss:// (TLS) URL schemes are supported.
//
// Sentinel errors (ErrRedisNotReady, ErrFailedToParseRedisConnString,
// ErrHealthcheckFailed) wrap the underlying go-redis errors and can be
// checked with errors.Is.
package redis
