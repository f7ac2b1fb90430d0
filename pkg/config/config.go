// Package config loads control-plane configuration from defaults, an
// optional YAML file, and AEGIS_ environment overrides (in that order).
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Runner    RunnerConfig    `koanf:"runner"`
	Governor  GovernorConfig  `koanf:"governor"`
	Oversight OversightConfig `koanf:"oversight"`
	Store     StoreConfig     `koanf:"store"`
	Models    []ModelLimits   `koanf:"models"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Exporter string `koanf:"exporter"` // stdout, otlp
	Endpoint string `koanf:"endpoint"`
}

type RunnerConfig struct {
	MaxTurns       int     `koanf:"max_turns"`
	PruneThreshold float64 `koanf:"prune_threshold"` // fraction of tpm kept as history budget
	TokenRatio     int     `koanf:"token_ratio"`     // chars per estimated token
	MaxTaskBytes   int     `koanf:"max_task_bytes"`
	MaxSpawnDepth  int     `koanf:"max_spawn_depth"`
	SafeMode       bool    `koanf:"safe_mode"`
}

type GovernorConfig struct {
	MaxRetries     int `koanf:"max_retries"`
	PenaltySeconds int `koanf:"penalty_seconds"`
}

type OversightConfig struct {
	AutoApprove    bool                `koanf:"auto_approve"`
	LedgerCap      int                 `koanf:"ledger_cap"`
	GlobalSafe     []string            `koanf:"global_safe"`
	DepartmentSafe map[string][]string `koanf:"department_safe"`
}

type StoreConfig struct {
	Path string `koanf:"path"` // sqlite file; empty disables persistence
}

// ModelLimits declares per-model rate limits applied to agents that do not
// carry their own.
type ModelLimits struct {
	Model string `koanf:"model"`
	RPM   int    `koanf:"rpm"`
	TPM   int    `koanf:"tpm"`
	RPD   int    `koanf:"rpd"`
	TPD   int    `koanf:"tpd"`
}

// Global k instance
var k = koanf.New(".")

func Load(path string) (*Config, error) {
	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")

	k.Set("runner.max_turns", 12)
	k.Set("runner.prune_threshold", 0.70)
	k.Set("runner.token_ratio", 4)
	k.Set("runner.max_task_bytes", 32*1024)
	k.Set("runner.max_spawn_depth", 5)
	k.Set("runner.safe_mode", false)

	k.Set("governor.max_retries", 10)
	k.Set("governor.penalty_seconds", 30)

	k.Set("oversight.auto_approve", true)
	k.Set("oversight.ledger_cap", 1000)

	k.Set("store.path", "")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (AEGIS_RUNNER_MAX_TURNS -> runner.max_turns).
	// Only the first underscore separates the section, so multi-word keys
	// keep their underscores.
	if err := k.Load(env.Provider("AEGIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AEGIS_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LimitsFor returns the configured limits for a model id, or false when the
// model has no entry.
func (c *Config) LimitsFor(model string) (ModelLimits, bool) {
	for _, m := range c.Models {
		if m.Model == model {
			return m, true
		}
	}
	return ModelLimits{}, false
}
