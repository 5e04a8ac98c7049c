// Package config loads service and analysis settings from an optional YAML
// file with environment-variable overrides. Every field has a usable default
// so the binaries run with no config at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openmave/mavemeter/internal/analysis"
)

// ServerConfig holds the HTTP service settings.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	DataDir         string   `yaml:"data_dir"`
	RedisAddr       string   `yaml:"redis_addr"`
	RedisPassword   string   `yaml:"redis_password"`
	RedisDB         int      `yaml:"redis_db"`
	AllowOrigins    []string `yaml:"allow_origins"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRequestBytes int64    `yaml:"max_request_bytes"`
}

// AnalysisConfig mirrors the tunable parts of the analysis core. Zero values
// fall back to the core defaults at conversion time.
type AnalysisConfig struct {
	HighThreshold        float64 `yaml:"high_threshold"`
	ModerateThreshold    float64 `yaml:"moderate_threshold"`
	MinObservations      int     `yaml:"min_observations"`
	KCandidates          []int   `yaml:"k_candidates"`
	CVFolds              int     `yaml:"cv_folds"`
	MaskFraction         float64 `yaml:"mask_fraction"`
	MinCoverage          int     `yaml:"min_coverage"`
	MinDonors            int     `yaml:"min_donors"`
	Seed                 int64   `yaml:"seed"`
	ReliabilityThreshold float64 `yaml:"reliability_threshold"`
	Workers              int     `yaml:"workers"`
}

// Config is the top-level configuration for both binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	a := analysis.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			DataDir:         "./data",
			RedisAddr:       "localhost:6379",
			AllowOrigins:    []string{"http://localhost:5173"},
			RateLimitPerMin: 60,
			MaxRequestBytes: 32 << 20,
		},
		Analysis: AnalysisConfig{
			HighThreshold:        a.HighThreshold,
			ModerateThreshold:    a.ModerateThreshold,
			MinObservations:      a.MinObservations,
			KCandidates:          a.KCandidates,
			CVFolds:              a.CVFolds,
			MaskFraction:         a.MaskFraction,
			MinCoverage:          a.MinCoverage,
			MinDonors:            a.MinDonors,
			Seed:                 a.Seed,
			ReliabilityThreshold: a.ReliabilityThreshold,
		},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envOrDefault("PORT", c.Server.Port)
	c.Server.DataDir = envOrDefault("DATA_DIR", c.Server.DataDir)
	c.Server.RedisAddr = envOrDefault("REDIS_ADDR", c.Server.RedisAddr)
	c.Server.RedisPassword = envOrDefault("REDIS_PASSWORD", c.Server.RedisPassword)
	if v, ok := envInt("REDIS_DB"); ok {
		c.Server.RedisDB = v
	}
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = splitAndTrim(v)
	}
	if v, ok := envInt("RATE_LIMIT_PER_MIN"); ok {
		c.Server.RateLimitPerMin = v
	}
	if v, ok := envInt64("ANALYSIS_SEED"); ok {
		c.Analysis.Seed = v
	}
	if v, ok := envInt("ANALYSIS_WORKERS"); ok {
		c.Analysis.Workers = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.RateLimitPerMin < 1 {
		return fmt.Errorf("server.rate_limit_per_min must be >= 1, got %d", c.Server.RateLimitPerMin)
	}
	if c.Analysis.MaskFraction <= 0 || c.Analysis.MaskFraction >= 1 {
		return fmt.Errorf("analysis.mask_fraction must be in (0, 1), got %v", c.Analysis.MaskFraction)
	}
	if c.Analysis.HighThreshold < c.Analysis.ModerateThreshold {
		return fmt.Errorf("analysis.high_threshold %v is below moderate_threshold %v",
			c.Analysis.HighThreshold, c.Analysis.ModerateThreshold)
	}
	for _, k := range c.Analysis.KCandidates {
		if k < 1 {
			return fmt.Errorf("analysis.k_candidates must all be >= 1, got %d", k)
		}
	}
	if c.Analysis.CVFolds < 1 {
		return fmt.Errorf("analysis.cv_folds must be >= 1, got %d", c.Analysis.CVFolds)
	}
	return nil
}

// AnalysisConfig converts the loaded settings into the core's config type,
// filling gaps with the core defaults.
func (c *Config) AnalysisConfig() analysis.Config {
	a := analysis.DefaultConfig()
	if c.Analysis.HighThreshold != 0 {
		a.HighThreshold = c.Analysis.HighThreshold
	}
	if c.Analysis.ModerateThreshold != 0 {
		a.ModerateThreshold = c.Analysis.ModerateThreshold
	}
	if c.Analysis.MinObservations > 0 {
		a.MinObservations = c.Analysis.MinObservations
	}
	if len(c.Analysis.KCandidates) > 0 {
		a.KCandidates = c.Analysis.KCandidates
	}
	if c.Analysis.CVFolds > 0 {
		a.CVFolds = c.Analysis.CVFolds
	}
	if c.Analysis.MaskFraction > 0 {
		a.MaskFraction = c.Analysis.MaskFraction
	}
	if c.Analysis.MinCoverage > 0 {
		a.MinCoverage = c.Analysis.MinCoverage
	}
	if c.Analysis.MinDonors > 0 {
		a.MinDonors = c.Analysis.MinDonors
	}
	if c.Analysis.ReliabilityThreshold > 0 {
		a.ReliabilityThreshold = c.Analysis.ReliabilityThreshold
	}
	a.Seed = c.Analysis.Seed
	a.Workers = c.Analysis.Workers
	return a
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
