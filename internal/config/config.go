// Package config loads tutorctl settings from an optional YAML file and
// TUTOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// #region config

// Config is everything a tutorctl command needs to wire a server or a tool.
type Config struct {
	DB       string `yaml:"db"`        // sqlite path or postgres URL
	DBDriver string `yaml:"db_driver"` // sqlite | postgres
	Graph    string `yaml:"graph"`     // concept graph YAML/JSON
	LogMode  string `yaml:"log_mode"`  // prod | dev

	// LogDB is the SQLite file for decision and strategy logs. Empty reuses
	// the state database under the sqlite driver and disables them under postgres.
	LogDB string `yaml:"log_db"`

	GRPCAddr string `yaml:"grpc_addr"`

	// RedisAddr enables the read-through blob cache when set.
	RedisAddr string        `yaml:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`

	// Seed 0 draws a random seed per process.
	Seed uint64 `yaml:"seed"`

	Tuning Tuning `yaml:"tuning"`
}

// Tuning overrides selected orchestrator tunables. Zero keeps the default.
type Tuning struct {
	PoorStrategyScore float64 `yaml:"poor_strategy_score"`
	MaxQMagnitude     float64 `yaml:"max_q_magnitude"`
	MinTrials         float64 `yaml:"exclusion_min_trials"`
	ExclusionFloor    float64 `yaml:"exclusion_floor"`
	DecayedLimit      int     `yaml:"decayed_limit"`
}

// Default returns the settings used when no file or environment is given.
func Default() Config {
	return Config{
		DB:       "tutor.db",
		DBDriver: DriverSQLite,
		Graph:    "graph.yaml",
		LogMode:  "dev",
		GRPCAddr: "localhost:50061",
		RedisTTL: 10 * time.Minute,
	}
}

// #endregion config

// #region load

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.DB = envOr("TUTOR_DB", cfg.DB)
	cfg.DBDriver = strings.ToLower(envOr("TUTOR_DB_DRIVER", cfg.DBDriver))
	cfg.Graph = envOr("TUTOR_GRAPH", cfg.Graph)
	cfg.LogMode = envOr("TUTOR_LOG_MODE", cfg.LogMode)
	cfg.LogDB = envOr("TUTOR_LOG_DB", cfg.LogDB)
	cfg.GRPCAddr = envOr("TUTOR_GRPC_ADDR", cfg.GRPCAddr)
	cfg.RedisAddr = envOr("TUTOR_REDIS_ADDR", cfg.RedisAddr)
	if s := os.Getenv("TUTOR_SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TUTOR_SEED: %w", err)
		}
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the driver and required fields.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if c.DB == "" {
		return errors.New("db is required")
	}
	if c.RedisTTL < 0 {
		return fmt.Errorf("negative redis ttl %v", c.RedisTTL)
	}
	return nil
}

// Orchestrator applies the tuning overrides to the default core config.
func (c Config) Orchestrator() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	t := c.Tuning
	if t.PoorStrategyScore > 0 {
		oc.PoorStrategyScore = t.PoorStrategyScore
	}
	if t.MaxQMagnitude > 0 {
		oc.Eval.MaxQMagnitude = t.MaxQMagnitude
	}
	if t.MinTrials > 0 {
		oc.Exclusion.MinTrials = t.MinTrials
	}
	if t.ExclusionFloor > 0 {
		oc.Exclusion.Floor = t.ExclusionFloor
	}
	if t.DecayedLimit > 0 {
		oc.DecayedLimit = t.DecayedLimit
	}
	return oc
}

// #endregion load

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
