// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config implements the module's layered configuration:
// defaults, then an optional YAML file, then RESEARCH_ENGINE_*
// environment variables, via Viper — the same precedence chain as the
// teacher's cmd/research-engine/main.go initConfig, generalized from a
// package-level global into a Load function a caller can invoke
// outside of cobra's OnInitialize hook (so library consumers of
// pkg/manager don't need a cobra command to configure it).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/litreview/papersearch/internal/breaker"
	"github.com/litreview/papersearch/internal/ratelimit"
	"github.com/litreview/papersearch/internal/secrets"
	"github.com/litreview/papersearch/internal/source"
	"github.com/litreview/papersearch/internal/worker"
)

// SourceConfig is one source's tunable settings.
type SourceConfig struct {
	RatePerSecond  float64
	Burst          int
	FailureThresh  int
	CooldownSec    int
	APIKey         string
	PoliteEmail    string
	PageSize       int
	TimeoutSeconds int
}

// Config is the fully resolved configuration for a run.
type Config struct {
	CachePath     string
	JournalPath   string
	NumWorkers    int
	MaxRetries    int
	FuzzyThreshold float64
	EnableMetrics bool
	MetricsNamespace string
	Sources       map[string]SourceConfig
}

// Defaults returns the module's out-of-the-box configuration before any
// file or environment override is applied.
func Defaults() Config {
	return Config{
		CachePath:        "papersearch-cache.db",
		JournalPath:      "papersearch-queue.jsonl",
		NumWorkers:       worker.DefaultNumWorkers,
		MaxRetries:       5,
		FuzzyThreshold:   0.90,
		EnableMetrics:    false,
		MetricsNamespace: "papersearch",
		Sources:          map[string]SourceConfig{},
	}
}

// Load builds a Config from defaults, an optional config file
// (./papersearch.yaml, or ~/.config/papersearch/papersearch.yaml), and
// RESEARCH_ENGINE_-prefixed environment variables, in that order of
// increasing precedence. secretsDir, if non-empty, is loaded via
// internal/secrets and used to fill in any source's APIKey/PoliteEmail
// left blank by the file/env layers.
func Load(cfgFile, secretsDir string) (Config, error) {
	v := viper.New()
	def := Defaults()
	v.SetDefault("cache_path", def.CachePath)
	v.SetDefault("journal_path", def.JournalPath)
	v.SetDefault("num_workers", def.NumWorkers)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("fuzzy_threshold", def.FuzzyThreshold)
	v.SetDefault("enable_metrics", def.EnableMetrics)
	v.SetDefault("metrics_namespace", def.MetricsNamespace)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("papersearch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "papersearch"))
		}
	}

	v.SetEnvPrefix("RESEARCH_ENGINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := Config{
		CachePath:        v.GetString("cache_path"),
		JournalPath:      v.GetString("journal_path"),
		NumWorkers:        v.GetInt("num_workers"),
		MaxRetries:        v.GetInt("max_retries"),
		FuzzyThreshold:    v.GetFloat64("fuzzy_threshold"),
		EnableMetrics:     v.GetBool("enable_metrics"),
		MetricsNamespace:  v.GetString("metrics_namespace"),
		Sources:           map[string]SourceConfig{},
	}

	sourcesRaw := v.GetStringMap("sources")
	for name := range sourcesRaw {
		prefix := "sources." + name + "."
		cfg.Sources[name] = SourceConfig{
			RatePerSecond:  v.GetFloat64(prefix + "rate_per_second"),
			Burst:          v.GetInt(prefix + "burst"),
			FailureThresh:  v.GetInt(prefix + "failure_threshold"),
			CooldownSec:    v.GetInt(prefix + "cooldown_seconds"),
			APIKey:         v.GetString(prefix + "api_key"),
			PoliteEmail:    v.GetString(prefix + "polite_email"),
			PageSize:       v.GetInt(prefix + "page_size"),
			TimeoutSeconds: v.GetInt(prefix + "timeout_seconds"),
		}
	}

	if secretsDir != "" {
		secretValues, err := secrets.Load(secretsDir)
		if err != nil {
			return Config{}, fmt.Errorf("config: loading secrets: %w", err)
		}
		applySecrets(&cfg, secretValues)
	}

	return cfg, nil
}

func applySecrets(cfg *Config, secretValues map[string]string) {
	withSource := func(name string) SourceConfig {
		sc, ok := cfg.Sources[name]
		if !ok {
			sc = SourceConfig{}
		}
		return sc
	}

	if sc := withSource("openalex"); sc.PoliteEmail == "" {
		if v, ok := secretValues["openalex-email"]; ok {
			sc.PoliteEmail = v
			cfg.Sources["openalex"] = sc
		}
	}
	if sc := withSource("semantic_scholar"); sc.APIKey == "" {
		if v, ok := secretValues["semantic-scholar-api-key"]; ok {
			sc.APIKey = v
			cfg.Sources["semantic_scholar"] = sc
		}
	}
	if sc := withSource("crossref"); sc.PoliteEmail == "" {
		if v, ok := secretValues["crossref-mailto"]; ok {
			sc.PoliteEmail = v
			cfg.Sources["crossref"] = sc
		}
	}
	if sc := withSource("patentsview"); sc.APIKey == "" {
		if v, ok := secretValues["patentsview-api-key"]; ok {
			sc.APIKey = v
			cfg.Sources["patentsview"] = sc
		}
	}
}

// RateLimitOverrides converts the per-source config into the registry
// override map internal/ratelimit.NewRegistry expects.
func (c Config) RateLimitOverrides() map[string]ratelimit.Config {
	out := make(map[string]ratelimit.Config)
	for name, sc := range c.Sources {
		if sc.RatePerSecond <= 0 {
			continue
		}
		burst := sc.Burst
		if burst <= 0 {
			burst = 1
		}
		out[name] = ratelimit.Config{RatePerSecond: sc.RatePerSecond, Burst: burst}
	}
	return out
}

// BreakerConfig returns the shared circuit breaker Config, falling
// back to breaker.DefaultConfig for any zero field. Breakers are tuned
// module-wide rather than per-source in this configuration surface,
// matching spec.md §4.3's single illustrative default.
func (c Config) BreakerConfig() breaker.Config {
	cfg := breaker.DefaultConfig
	for _, sc := range c.Sources {
		if sc.FailureThresh > 0 {
			cfg.FailureThreshold = sc.FailureThresh
		}
		if sc.CooldownSec > 0 {
			cfg.Cooldown = time.Duration(sc.CooldownSec) * time.Second
		}
	}
	return cfg
}

// SourceOptions converts the per-source config into the
// internal/source.Options map the worker pool passes to each adapter.
func (c Config) SourceOptions() map[string]source.Options {
	out := make(map[string]source.Options)
	for name, sc := range c.Sources {
		out[name] = source.Options{
			PageSize:       sc.PageSize,
			TimeoutSeconds: sc.TimeoutSeconds,
			APIKey:         sc.APIKey,
			PoliteEmail:    sc.PoliteEmail,
			MaxRetries:     c.MaxRetries,
		}
	}
	return out
}

// WorkerConfig converts c into the worker.Config the pool is built
// from.
func (c Config) WorkerConfig() worker.Config {
	return worker.Config{
		NumWorkers:    c.NumWorkers,
		MaxRetries:    c.MaxRetries,
		SourceOptions: c.SourceOptions(),
	}
}
