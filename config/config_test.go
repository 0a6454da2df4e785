package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)

		assert.Equal(t, 3004, cfg.Port)
		assert.Equal(t, 4, cfg.MatchWorkers)
		assert.Equal(t, time.Hour, cfg.CacheTTL)
		assert.False(t, cfg.DatabaseEnabled())
		assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("DB_HOST", "db")
		t.Setenv("DB_MIGRATION_VERSION", "3")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("KAFKA_BATCH_TIMEOUT_MS", "250")
		t.Setenv("REDIS_HOST", "cache")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.True(t, cfg.DatabaseEnabled())
		assert.Equal(t, "db", cfg.Database().Host)
		assert.Equal(t, uint(3), cfg.Migration().Version)

		producer := cfg.Producer()
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, producer.Brokers)
		assert.Equal(t, 250*time.Millisecond, producer.BatchTimeout)

		assert.Equal(t, "cache:6379", cfg.Redis().Addr)
		assert.Equal(t, 8080, cfg.Server().Port)
	})

	t.Run("env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("MATCH_CHUNK_SIZE=50\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("MATCH_CHUNK_SIZE") })

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.MatchChunkSize)
	})
}

func TestParseProfile(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, err := ParseProfile([]byte(`
high_threshold = 95
apply_abbreviations = true

[custom_abbreviations]
intl = "international"
`))
		require.NoError(t, err)

		assert.Equal(t, 95, cfg.HighThreshold)
		assert.Equal(t, matching.DefaultConfig().MedThreshold, cfg.MedThreshold)
		assert.True(t, cfg.ApplyAbbreviations)
		assert.Equal(t, "international", cfg.CustomAbbreviations["intl"])
	})

	t.Run("med above high", func(t *testing.T) {
		_, err := ParseProfile([]byte("high_threshold = 70\nmed_threshold = 80\n"))
		assert.Error(t, err)
	})

	t.Run("top_k below one", func(t *testing.T) {
		_, err := ParseProfile([]byte("top_k = 0\n"))
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseProfile([]byte("hgh_threshold = 70\n"))
		assert.Error(t, err)
	})
}

func TestLoadProfile(t *testing.T) {
	cfg, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, matching.DefaultConfig(), cfg)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte("top_k = 5\n"), 0o600))
	cfg, err = LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TopK)
}
