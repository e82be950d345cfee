package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Hermes   HermesConfig   `yaml:"hermes"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Planner  PlannerConfig  `yaml:"planner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DatabaseConfig selects the store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type CatalogConfig struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type PlannerConfig struct {
	SolveTimeoutMs int    `yaml:"solve_timeout_ms"`
	MaxNodes       int    `yaml:"max_nodes"`
	Mode           string `yaml:"mode"`
	ExclusiveSlots bool   `yaml:"exclusive_slots"`
	HeatVerbsFile  string `yaml:"heat_verbs_file"`
	SolveOnCreate  bool   `yaml:"solve_on_create"`
	// Workers is the number of goroutines serving plan requests from NATS.
	Workers         int `yaml:"workers"`
	StatsIntervalMs int `yaml:"stats_interval_ms"`
	// MaxRecipes caps the candidate dishes of one plan.
	MaxRecipes int `yaml:"max_recipes"`
	// MaxTableCells caps the factor table cells of one model; 0 disables
	// the cap.
	MaxTableCells int `yaml:"max_table_cells"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) SolveTimeout() time.Duration {
	return time.Duration(c.Planner.SolveTimeoutMs) * time.Millisecond
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Planner.StatsIntervalMs) * time.Millisecond
}

func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
			RateLimit:   20,
			RateBurst:   40,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Catalog: CatalogConfig{
			TimeoutMs: 10000,
		},
		Planner: PlannerConfig{
			SolveTimeoutMs:  30000,
			MaxNodes:        2000000,
			Mode:            "best",
			SolveOnCreate:   true,
			Workers:         2,
			StatsIntervalMs: 60000,
			MaxRecipes:      200,
			MaxTableCells:   5000000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LARDER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("LARDER_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("LARDER_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("LARDER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("LARDER_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LARDER_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("LARDER_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	if v := os.Getenv("LARDER_SOLVE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Planner.SolveTimeoutMs = n
		}
	}
	if v := os.Getenv("LARDER_MAX_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Planner.MaxNodes = n
		}
	}
	if v := os.Getenv("LARDER_SEARCH_MODE"); v != "" {
		cfg.Planner.Mode = v
	}
	if v := os.Getenv("LARDER_EXCLUSIVE_SLOTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Planner.ExclusiveSlots = b
		}
	}
	if v := os.Getenv("LARDER_HEAT_VERBS_FILE"); v != "" {
		cfg.Planner.HeatVerbsFile = v
	}
	if v := os.Getenv("LARDER_SOLVE_ON_CREATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Planner.SolveOnCreate = b
		}
	}
	if v := os.Getenv("LARDER_PLANNER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Planner.Workers = n
		}
	}
	if v := os.Getenv("LARDER_PLANNER_MAX_RECIPES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Planner.MaxRecipes = n
		}
	}
	if v := os.Getenv("LARDER_PLANNER_MAX_TABLE_CELLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Planner.MaxTableCells = n
		}
	}
	if v := os.Getenv("LARDER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LARDER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
