package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverConfig struct {
	Port          int           `env:"CFGTEST_PORT" envDefault:"3002"`
	AccessExpiry  time.Duration `env:"CFGTEST_ACCESS_EXPIRY" envDefault:"15m"`
	Brokers       []string      `env:"CFGTEST_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	TracesEnabled bool          `env:"CFGTEST_TRACES"`
}

type secretsConfig struct {
	AccessSecret  string `env:"CFGTEST_ACCESS_SECRET,required"`
	RefreshSecret string `env:"CFGTEST_REFRESH_SECRET,required"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg serverConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, serverConfig{
		Port:         3002,
		AccessExpiry: 15 * time.Minute,
		Brokers:      []string{"localhost:9092"},
	}, cfg)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CFGTEST_PORT", "8081")
	t.Setenv("CFGTEST_ACCESS_EXPIRY", "1h30m")
	t.Setenv("CFGTEST_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CFGTEST_TRACES", "true")

	var cfg serverConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 90*time.Minute, cfg.AccessExpiry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.True(t, cfg.TracesEnabled)
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("CFGTEST_ACCESS_EXPIRY", "fifteen minutes")

	var cfg serverConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
	assert.Contains(t, err.Error(), "CFGTEST_ACCESS_EXPIRY")
}

func TestLoad_Required(t *testing.T) {
	t.Run("all present", func(t *testing.T) {
		t.Setenv("CFGTEST_ACCESS_SECRET", "a")
		t.Setenv("CFGTEST_REFRESH_SECRET", "r")

		var cfg secretsConfig
		require.NoError(t, Load(&cfg))
		assert.Equal(t, secretsConfig{AccessSecret: "a", RefreshSecret: "r"}, cfg)
	})

	t.Run("every missing variable is reported", func(t *testing.T) {
		var cfg secretsConfig
		err := Load(&cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "CFGTEST_ACCESS_SECRET")
		assert.Contains(t, err.Error(), "CFGTEST_REFRESH_SECRET")
	})
}
