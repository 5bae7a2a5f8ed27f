package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	coreapp "aquanet/internal/core/app"
	"aquanet/internal/core/config"
	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"
	"aquanet/internal/engine/toolkit"
	"aquanet/internal/shared/observability"
	"aquanet/internal/shared/util"
)

func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Printf("aquanet v%s\n", versionString)
		return 0
	}

	cleanupLogs := configureLogging(opts.ui, opts.verbose)
	defer cleanupLogs()

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	if err := applyModeOptions(&opts, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}

	if opts.save != "" {
		if err := runSave(opts.args[0], opts.save); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		return 0
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.EnableTracing {
		shutdown := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName: "aquanet",
			Version:     versionString,
			Endpoint:    cfg.Observability.OTLPEndpoint,
			Insecure:    true,
			SampleRatio: 1,
		})
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	store, err := openHistoryStore(cfg, paths)
	if err != nil {
		slog.Error("history setup failed", "error", err)
		return 1
	}
	var runs ports.RunHistory
	if store != nil {
		defer store.Close()
		runs = history.NewAdapter(store, cfg.DB.KeepRuns)
	}

	app, svc, err := initializeSimulation(cfg, runs, paths.OutputDir, coreSimulationFactory{})
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	defer svc.Close()

	if opts.scenarios != "" {
		batch, err := svc.RunScenarios(ctx, opts.scenarios)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		if err := printEnvelope(os.Stdout, batch); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		return 0
	}

	if cfg.Observability.Enabled {
		server := NewObservabilityServer(fmt.Sprintf(":%d", cfg.Observability.Port), cfg.Observability.EnableMetrics, coreapp.NewHealthService(app))
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	update, err := svc.SimulateAll(ctx)
	if err != nil {
		slog.Error("initial simulation failed", "error", err)
		return 1
	}

	if opts.verbose && opts.once && len(update.Networks) == 1 {
		if err := printDetail(ctx, os.Stdout, update.Networks[0].Path, cfg.Simulation.Quality, cfg.Simulation.Links); err != nil {
			slog.Error("failed to print result tables", "error", err)
		}
	}

	window, err := runHistoryMode(ctx, opts, svc, update)
	if err != nil {
		slog.Error("history mode failed", "error", err)
		return 1
	}

	failed := 0
	if !opts.ui {
		failed = printSummary(os.Stdout, update)
	}

	if opts.once {
		if failed > 0 {
			return 1
		}
		return 0
	}

	if cfgPath != "" {
		cfgWatcher := config.NewWatcher(cfgPath, func(next *config.Config) {
			next.WatchPaths = cfg.WatchPaths
			next.Simulation.Quality = next.Simulation.Quality || opts.quality
			app.Reload(next)
		})
		if err := cfgWatcher.Start(ctx); err != nil {
			slog.Warn("config hot reload unavailable", "error", err)
		}
		defer cfgWatcher.Stop()
	}

	watch := svc.WatchService()
	if err := watch.Start(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return 1
	}

	if opts.ui {
		if err := runUI(svc, window); err != nil {
			slog.Error("failed to run UI", "error", err)
			return 1
		}
		return 0
	}

	if err := watch.Subscribe(ctx, func(update ports.WatchUpdate) {
		printSummary(os.Stdout, update)
	}); err != nil {
		slog.Error("failed to subscribe to updates", "error", err)
		return 1
	}
	<-ctx.Done()
	slog.Info("shutting down")
	return 0
}

func runSave(input, output string) error {
	p, err := toolkit.Open(input)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.SaveInputFile(output); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d nodes, %d links)\n", output, p.NodeCount(), p.LinkCount())
	return nil
}

// loadConfig falls back to built-in defaults when the default path is in use
// and no config file exists. The returned path is empty in that case.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}

	for _, candidate := range candidates {
		cfg, loadErr := config.Load(candidate)
		if loadErr == nil {
			return cfg, candidate, nil
		}
		if os.IsNotExist(loadErr) {
			continue
		}
		return nil, "", loadErr
	}

	slog.Debug("no config file found, using defaults")
	cfg := config.Default()
	config.ApplyEnvOverrides(cfg)
	return cfg, "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, "data/config/aquanet.toml")),
		filepath.Clean(filepath.Join(cwd, "aquanet.toml")),
	}, nil
}

func applyModeOptions(opts *cliOptions, cfg *config.Config) error {
	modeCount := 0
	if opts.save != "" {
		modeCount++
	}
	if opts.scenarios != "" {
		modeCount++
	}
	if opts.ui {
		modeCount++
	}
	if modeCount > 1 {
		return fmt.Errorf("--save, --scenarios, and --ui cannot be combined")
	}
	if opts.ui && opts.once {
		return fmt.Errorf("--ui requires watch mode and cannot be combined with --once")
	}

	if opts.save != "" && len(opts.args) != 1 {
		return fmt.Errorf("save mode requires one network argument: aquanet --save <out.inp> <network.inp>")
	}
	if len(opts.args) > 1 {
		return fmt.Errorf("expected at most one network path, got %d", len(opts.args))
	}
	if len(opts.args) > 0 {
		cfg.WatchPaths = []string{opts.args[0]}
	}
	if opts.quality {
		cfg.Simulation.Quality = true
	}

	if opts.historyJSON != "" && !opts.history {
		return fmt.Errorf("--history-json requires --history")
	}
	if opts.history {
		if _, err := parseSince(opts.since); err != nil {
			return err
		}
		if _, err := parseHistoryWindow(opts.historyWindow); err != nil {
			return err
		}
	}
	return nil
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}

	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("--since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func parseHistoryWindow(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--history-window must be a Go duration (example: 24h), got %q", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--history-window must be > 0, got %q", value)
	}
	return d, nil
}

// runHistoryMode prints a trend line per network and optionally writes every
// report as one JSON array. It returns the trend window for the dashboard.
func runHistoryMode(ctx context.Context, opts cliOptions, svc ports.SimulationService, update ports.WatchUpdate) (time.Duration, error) {
	window, err := parseHistoryWindow(opts.historyWindow)
	if err != nil {
		return 0, err
	}
	if !opts.history {
		return window, nil
	}
	since, err := parseSince(opts.since)
	if err != nil {
		return 0, err
	}

	reports := make([]history.TrendReport, 0, len(update.Networks))
	for _, n := range update.Networks {
		report, err := svc.Trend(ctx, ports.TrendRequest{Network: n.Path, Since: since, Window: window})
		if err != nil {
			return 0, err
		}
		reports = append(reports, report)

		latest := report.Points[len(report.Points)-1]
		fmt.Printf("History %s: %d runs from %s to %s, min pressure %.2f (%+.2f), energy %.2f (%+.2f), %d failures in window\n",
			filepath.Base(n.Path),
			report.RunCount,
			report.Since.Format("2006-01-02 15:04:05"),
			report.Until.Format("2006-01-02 15:04:05"),
			latest.MinPressure,
			latest.DeltaMinPressure,
			latest.EnergyCost,
			latest.DeltaEnergyCost,
			latest.FailuresInWindow,
		)
	}

	if opts.historyJSON != "" {
		raw, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return 0, fmt.Errorf("render trend JSON: %w", err)
		}
		if err := util.WriteFileWithDirs(opts.historyJSON, append(raw, '\n'), 0o644); err != nil {
			return 0, fmt.Errorf("write trend JSON %q: %w", opts.historyJSON, err)
		}
	}
	return window, nil
}

func openHistoryStore(cfg *config.Config, paths config.ResolvedPaths) (*history.Store, error) {
	if !cfg.DB.Enabled {
		return nil, nil
	}
	store, err := history.Open(paths.DBPath, history.WithBusyTimeout(cfg.DB.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func configureLogging(uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stderr
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "aquanet", "aquanet.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "aquanet", "aquanet.log")
	}

	return "aquanet.log"
}
