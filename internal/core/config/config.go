package config

import (
	"strings"
	"time"
)

type Config struct {
	Version       int           `toml:"version" validate:"min=1,max=1"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	WatchPaths    []string      `toml:"watch_paths"`
	Watch         Watch         `toml:"watch"`
	Exclude       Exclude       `toml:"exclude"`
	Simulation    Simulation    `toml:"simulation"`
	Scenarios     Scenarios     `toml:"scenarios"`
	Observability Observability `toml:"observability"`
	Alerts        Alerts        `toml:"alerts"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	DatabaseDir string `toml:"database_dir"`
	OutputDir   string `toml:"output_dir"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Driver      string        `toml:"driver" validate:"oneof=sqlite"`
	Path        string        `toml:"path" validate:"required"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
	// KeepRuns caps stored runs per network; 0 keeps everything.
	KeepRuns int `toml:"keep_runs" validate:"gte=0"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	// Include globs select the network files that trigger a rerun.
	Include []string `toml:"include"`
	// RerunInterval and RerunBurst shape the rerun token bucket.
	RerunInterval time.Duration `toml:"rerun_interval"`
	RerunBurst    int           `toml:"rerun_burst" validate:"gte=1"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Simulation struct {
	Quality bool `toml:"quality"`
	// SaveResults keeps a copy of each run's binary results file in
	// paths.output_dir.
	SaveResults bool          `toml:"save_results"`
	Timeout     time.Duration `toml:"timeout"`
	// Nodes and Links name the ids shown in summaries; empty shows all.
	Nodes []string `toml:"nodes"`
	Links []string `toml:"links"`
}

type Scenarios struct {
	Workers int `toml:"workers" validate:"gte=0,lte=1024"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port" validate:"omitempty,min=1,max=65535"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

type Alerts struct {
	Beep     bool `toml:"beep"`
	Terminal bool `toml:"terminal"`
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = "data/database"
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		cfg.Paths.OutputDir = "data/results"
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Watch.Include) == 0 {
		cfg.Watch.Include = []string{"*.inp"}
	}
	if cfg.Watch.RerunInterval <= 0 {
		cfg.Watch.RerunInterval = 2 * time.Second
	}
	if cfg.Watch.RerunBurst == 0 {
		cfg.Watch.RerunBurst = 3
	}
	if len(cfg.WatchPaths) == 0 {
		cfg.WatchPaths = []string{"."}
	}

	if cfg.Simulation.Timeout <= 0 {
		cfg.Simulation.Timeout = 5 * time.Minute
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{DB: Database{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}
