package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: AQUANET_[SECTION]_[KEY] (e.g., AQUANET_OBSERVABILITY_PORT).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "AQUANET_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "AQUANET_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.DatabaseDir, "AQUANET_PATHS_DATABASE_DIR")
	setEnvString(&cfg.Paths.OutputDir, "AQUANET_PATHS_OUTPUT_DIR")

	// Database
	setEnvBool(&cfg.DB.Enabled, "AQUANET_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "AQUANET_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "AQUANET_DB_BUSY_TIMEOUT")
	setEnvInt(&cfg.DB.KeepRuns, "AQUANET_DB_KEEP_RUNS")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "AQUANET_WATCH_DEBOUNCE")
	setEnvDuration(&cfg.Watch.RerunInterval, "AQUANET_WATCH_RERUN_INTERVAL")
	setEnvInt(&cfg.Watch.RerunBurst, "AQUANET_WATCH_RERUN_BURST")

	// Simulation
	setEnvBool(&cfg.Simulation.Quality, "AQUANET_SIMULATION_QUALITY")
	setEnvBool(&cfg.Simulation.SaveResults, "AQUANET_SIMULATION_SAVE_RESULTS")
	setEnvDuration(&cfg.Simulation.Timeout, "AQUANET_SIMULATION_TIMEOUT")

	setEnvInt(&cfg.Scenarios.Workers, "AQUANET_SCENARIOS_WORKERS")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "AQUANET_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "AQUANET_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "AQUANET_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "AQUANET_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "AQUANET_OBSERVABILITY_ENABLE_METRICS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
