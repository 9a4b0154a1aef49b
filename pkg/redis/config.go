package redis

import "time"

// Config holds Redis connection settings loaded from the environment.
type Config struct {
	// ConnectionURL is the broker address in redis:// or rediss:// form,
	// e.g. "redis://:password@localhost:6379/0".
	ConnectionURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// RetryAttempts is the number of connection attempts Connect makes
	// before giving up.
	RetryAttempts int `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryInterval is the pause between Connect attempts.
	RetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`

	// ConnectTimeout bounds the whole Connect call.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// ScanBatchSize is the COUNT hint used when scanning keys in bulk
	// (e.g. while obliterating a queue).
	ScanBatchSize int `env:"REDIS_SCAN_BATCH_SIZE" envDefault:"1000"`
}
