package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/config"
)

type queueTestConfig struct {
	Backend     string `env:"TEST_QUEUE_BACKEND" envDefault:"redis"`
	Concurrency int    `env:"TEST_QUEUE_CONCURRENCY" envDefault:"5"`
}

type requiredTestConfig struct {
	Secret string `env:"TEST_REQUIRED_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg queueTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "redis", cfg.Backend)
		assert.Equal(t, 5, cfg.Concurrency)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("TEST_QUEUE_BACKEND", "memory")
		t.Setenv("TEST_QUEUE_CONCURRENCY", "10")

		var cfg queueTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "memory", cfg.Backend)
		assert.Equal(t, 10, cfg.Concurrency)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[queueTestConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredTestConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("succeeds with defaults", func(t *testing.T) {
		assert.NotPanics(t, func() {
			var cfg queueTestConfig
			config.MustLoad(&cfg)
		})
	})
}
