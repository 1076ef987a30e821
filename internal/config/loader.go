package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional YAML file, and
// environment variables. Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) at path, or $HOOP_CONFIG when path is empty
//  3. env (prefix HOOP_, e.g. HOOP_K_MAX, HOOP_STABILITY_REPS)
func Load(path string) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv("HOOP_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// HOOP_K_MAX -> k_max; underscores preserved to match the koanf tags.
	envProvider := env.Provider("HOOP_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "hoop_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ExposureMinutes <= 0:
		return fmt.Errorf("exposure_minutes must be positive, got %v", c.ExposureMinutes)
	case c.KMin < 2:
		return fmt.Errorf("k_min must be at least 2, got %d", c.KMin)
	case c.KMax < c.KMin:
		return fmt.Errorf("k_max %d below k_min %d", c.KMax, c.KMin)
	case c.MaxIter < 1:
		return fmt.Errorf("max_iter must be at least 1, got %d", c.MaxIter)
	case c.StabilityReps < 1:
		return fmt.Errorf("stability_reps must be at least 1, got %d", c.StabilityReps)
	case c.StabilityThreshold < 0 || c.StabilityThreshold > 1:
		return fmt.Errorf("stability_threshold must be in [0,1], got %v", c.StabilityThreshold)
	case c.CorrelationCutoff < 0 || c.CorrelationCutoff > 1:
		return fmt.Errorf("correlation_cutoff must be in [0,1], got %v", c.CorrelationCutoff)
	case c.MinGames < 0:
		return fmt.Errorf("min_games must not be negative, got %d", c.MinGames)
	case c.MinMinutes < 0:
		return fmt.Errorf("min_minutes must not be negative, got %v", c.MinMinutes)
	case c.PCAComponents != 2 && c.PCAComponents != 3:
		return fmt.Errorf("pca_components must be 2 or 3, got %d", c.PCAComponents)
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}
