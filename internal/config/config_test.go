// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litreview/papersearch/internal/worker"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, worker.DefaultNumWorkers, cfg.NumWorkers)
	assert.Equal(t, 0.90, cfg.FuzzyThreshold)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papersearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_workers: 8\nmax_retries: 3\n"), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadAppliesSecrets(t *testing.T) {
	secretsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secretsDir, "openalex-email"), []byte("me@example.org\n"), 0o644))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), secretsDir)
	require.NoError(t, err)
	assert.Equal(t, "me@example.org", cfg.Sources["openalex"].PoliteEmail)
}

func TestEnvOverridesDefault(t *testing.T) {
	t.Setenv("RESEARCH_ENGINE_NUM_WORKERS", "12")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.NumWorkers)
}

func TestRateLimitOverridesSkipsUnconfiguredSources(t *testing.T) {
	cfg := Defaults()
	cfg.Sources["arxiv"] = SourceConfig{RatePerSecond: 2, Burst: 4}
	overrides := cfg.RateLimitOverrides()
	assert.Equal(t, 2.0, overrides["arxiv"].RatePerSecond)
	assert.Equal(t, 4, overrides["arxiv"].Burst)
}
