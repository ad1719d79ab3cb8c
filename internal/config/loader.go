package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

// Environment keys.
const (
	EnvConfig = "ROCKETSTAT_CONFIG"
	envPrefix = "ROCKETSTAT_"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROCKETSTAT_CONFIG is set
//  3. env (prefix ROCKETSTAT_; "__" separates nested keys, e.g.
//     ROCKETSTAT_STORAGE__PATH)
func Load(_ context.Context) (*Config, error) {
	return load(os.Getenv(EnvConfig))
}

// LoadFile is Load with an explicit file path in place of ROCKETSTAT_CONFIG.
func LoadFile(_ context.Context, path string) (*Config, error) {
	if path == "" {
		return nil, ErrNoConfigFile
	}
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if s == "config" || s == "players" {
			return ""
		}
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	for i := range cfg.Players {
		cfg.Players[i].Platform = strings.ToLower(strings.TrimSpace(cfg.Players[i].Platform))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and that players are unique.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Records(); err != nil {
		return err
	}
	return nil
}

// Watch calls onChange with the reloaded configuration whenever the file
// named by ROCKETSTAT_CONFIG changes. Invalid files are logged and skipped.
// The returned func stops watching.
func Watch(ctx context.Context, onChange func(*Config)) (stop func(), err error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return nil, ErrNoConfigFile
	}
	return watch(ctx, path, onChange)
}

func watch(ctx context.Context, path string, onChange func(*Config)) (func(), error) {
	log := logger.Get().Named("config")
	fp := file.Provider(path)

	err := fp.Watch(func(_ any, werr error) {
		if werr != nil {
			metrics.RecordConfigReload("error")
			log.Warn(ctx, "config watch failed", logger.String("path", path), logger.Error(werr))
			return
		}
		cfg, lerr := load(path)
		if lerr != nil {
			metrics.RecordConfigReload("invalid")
			log.Warn(ctx, "ignoring invalid config change", logger.String("path", path), logger.Error(lerr))
			return
		}
		metrics.RecordConfigReload("ok")
		log.Info(ctx, "config reloaded", logger.Int("players", len(cfg.Players)))
		onChange(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}
	return func() { _ = fp.Unwatch() }, nil
}
