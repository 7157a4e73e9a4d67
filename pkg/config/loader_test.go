package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/config"
)

type gateConfig struct {
	Timeout    time.Duration `env:"TEST_GATE_TIMEOUT" envDefault:"2s"`
	FailClosed bool          `env:"TEST_GATE_FAIL_CLOSED" envDefault:"false"`
	NearLimit  int           `env:"TEST_GATE_NEAR_LIMIT" envDefault:"80"`
}

type requiredConfig struct {
	ConnURL string `env:"TEST_REQUIRED_CONN_URL,required"`
}

type dotenvConfig struct {
	BaseURL string `env:"TEST_DOTENV_BASE_URL"`
}

func TestLoad(t *testing.T) {
	t.Run("uses defaults", func(t *testing.T) {
		config.ResetCache()

		var cfg gateConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 2*time.Second, cfg.Timeout)
		assert.False(t, cfg.FailClosed)
		assert.Equal(t, 80, cfg.NearLimit)
	})

	t.Run("reads environment and caches per type", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_GATE_TIMEOUT", "500ms")
		t.Setenv("TEST_GATE_FAIL_CLOSED", "true")

		var first gateConfig
		require.NoError(t, config.Load(&first))
		assert.Equal(t, 500*time.Millisecond, first.Timeout)
		assert.True(t, first.FailClosed)

		t.Setenv("TEST_GATE_TIMEOUT", "9s")

		var second gateConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, 500*time.Millisecond, second.Timeout, "cached value should win")

		config.ResetCache()
		var third gateConfig
		require.NoError(t, config.Load(&third))
		assert.Equal(t, 9*time.Second, third.Timeout)
	})

	t.Run("missing required value is a parsing error", func(t *testing.T) {
		config.ResetCache()
		os.Unsetenv("TEST_REQUIRED_CONN_URL")

		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("failed parse is not cached", func(t *testing.T) {
		config.ResetCache()
		os.Unsetenv("TEST_REQUIRED_CONN_URL")

		var cfg requiredConfig
		require.Error(t, config.Load(&cfg))

		t.Setenv("TEST_REQUIRED_CONN_URL", "postgres://localhost/engine")
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "postgres://localhost/engine", cfg.ConnURL)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *gateConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("must load panics on failure", func(t *testing.T) {
		config.ResetCache()
		os.Unsetenv("TEST_REQUIRED_CONN_URL")

		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing files are ignored", func(t *testing.T) {
		assert.NoError(t, config.LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
	})

	t.Run("loads variables from file", func(t *testing.T) {
		config.ResetCache()
		os.Unsetenv("TEST_DOTENV_BASE_URL")
		t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_BASE_URL") })

		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("TEST_DOTENV_BASE_URL=https://pay.example.com\n"), 0o600))
		require.NoError(t, config.LoadEnv(path))

		var cfg dotenvConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "https://pay.example.com", cfg.BaseURL)
	})
}
