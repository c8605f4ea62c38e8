package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Keywords.MaxKeywords)
	assert.Equal(t, 10, cfg.Recommend.DefaultLimit)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobmatch.yaml")
	body := []byte(`
server:
  port: 9000
embedding:
  provider: hash
  dimension: 128
keywords:
  diversity: 0.7
recommend:
  timeout: 3s
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	t.Setenv("JM_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.InDelta(t, 0.7, cfg.Keywords.Diversity, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Recommend.Timeout)
	assert.Equal(t, 64, cfg.Embedding.BatchSize, "untouched fields keep defaults")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "word2vec" }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"ngram too large", func(c *Config) { c.Keywords.NgramMax = 4 }},
		{"diversity out of range", func(c *Config) { c.Keywords.Diversity = 1.5 }},
		{"limit above max", func(c *Config) { c.Recommend.DefaultLimit = 500 }},
		{"file source without path", func(c *Config) { c.Source.Kind = "file" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Source.Kind)
	assert.Equal(t, 10*time.Second, cfg.Recommend.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CacheTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
}
