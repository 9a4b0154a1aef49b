package jobqueue

import "time"

// Config holds the configuration for the queue subsystem.
type Config struct {
	// Backend selects the preferred queue implementation ("redis" or "memory").
	// Unknown values are coerced to "redis" with a logged warning.
	Backend string `env:"QUEUE_BACKEND" envDefault:"redis"`

	// FallbackEnabled allows the provider to degrade to the in-memory backend
	// when Redis is unreachable. When disabled an unreachable broker aborts
	// initialization.
	FallbackEnabled bool `env:"QUEUE_FALLBACK_ENABLED" envDefault:"true"`

	// KeyPrefix namespaces every Redis key written by the subsystem. Producers
	// and consumers must share the prefix; the adapter applies it uniformly so
	// a mismatch cannot be configured per queue.
	KeyPrefix string `env:"QUEUE_KEY_PREFIX" envDefault:"queuekit"`

	Concurrency  int           `env:"QUEUE_CONCURRENCY" envDefault:"5"`
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"100ms"`
	JobTimeout   time.Duration `env:"QUEUE_JOB_TIMEOUT" envDefault:"5m"`

	// Default job options, overridable per job via JobOption.
	DefaultMaxAttempts  int           `env:"QUEUE_DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	DefaultBackoffType  string        `env:"QUEUE_DEFAULT_BACKOFF_TYPE" envDefault:"exponential"`
	DefaultBackoffDelay time.Duration `env:"QUEUE_DEFAULT_BACKOFF_DELAY" envDefault:"1s"`

	// Terminal job retention defaults: n>0 keeps the most recent n
	// terminal jobs per queue, anything else keeps all. Immediate removal
	// is only available per job via WithRemoveOnComplete/WithRemoveOnFail.
	KeepCompleted int `env:"QUEUE_KEEP_COMPLETED" envDefault:"0"`
	KeepFailed    int `env:"QUEUE_KEEP_FAILED" envDefault:"0"`

	// Connectivity probe tuning used during backend selection.
	ProbeAttempts int           `env:"QUEUE_PROBE_ATTEMPTS" envDefault:"3"`
	ProbeTimeout  time.Duration `env:"QUEUE_PROBE_TIMEOUT" envDefault:"1s"`
	ProbeBackoff  time.Duration `env:"QUEUE_PROBE_BACKOFF" envDefault:"100ms"`
}

// defaultBackoff builds BackoffSettings from the configured defaults.
func (c Config) defaultBackoff() BackoffSettings {
	t := BackoffType(c.DefaultBackoffType)
	if t != BackoffFixed && t != BackoffExponential {
		t = BackoffExponential
	}
	delay := c.DefaultBackoffDelay
	if delay <= 0 {
		delay = time.Second
	}
	return BackoffSettings{Type: t, Delay: delay}
}

// jobDefaults carries per-adapter defaults derived from Config.
type jobDefaults struct {
	maxAttempts   int
	backoff       BackoffSettings
	keepCompleted *int
	keepFailed    *int
}

func (c Config) jobDefaults() jobDefaults {
	d := jobDefaults{
		maxAttempts: c.DefaultMaxAttempts,
		backoff:     c.defaultBackoff(),
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 3
	}
	if c.KeepCompleted > 0 {
		keep := c.KeepCompleted
		d.keepCompleted = &keep
	}
	if c.KeepFailed > 0 {
		keep := c.KeepFailed
		d.keepFailed = &keep
	}
	return d
}
