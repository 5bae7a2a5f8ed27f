package ports

import (
	"context"
	"time"

	"aquanet/internal/core/errors"
	"aquanet/internal/data/history"
	"aquanet/internal/engine/scenario"
)

// RunHistory abstracts run persistence for watch and one-shot modes.
type RunHistory interface {
	SaveRun(ctx context.Context, run history.Run) (string, error)
	LoadRuns(network string, since time.Time) ([]history.Run, error)
}

// NetworkResult summarizes the latest simulation of one network file.
type NetworkResult struct {
	Path      string
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Nodes     int
	Links     int
	Periods   int
	Warning   errors.EngineCode
	Err       string

	MinPressure float64
	MaxPressure float64
	PeakDemand  float64
	EnergyCost  float64
	Extremes    []history.NodeExtreme
}

// Failed reports whether the run ended in an error.
func (r NetworkResult) Failed() bool { return r.Err != "" }

// WatchUpdate contains state emitted to driving adapters during watch-mode updates.
type WatchUpdate struct {
	Networks  []NetworkResult
	Reruns    int
	Throttled int
}

// WatchService exposes watch lifecycle and updates for driving adapters.
type WatchService interface {
	Start(ctx context.Context) error
	CurrentUpdate(ctx context.Context) (WatchUpdate, error)
	Subscribe(ctx context.Context, handler func(WatchUpdate)) error
}

// TrendRequest selects the runs of one network for a trend report.
type TrendRequest struct {
	Network string
	Since   time.Time
	Window  time.Duration
}

// SimulationService is the driving-port surface over run, scenario and
// history use cases.
type SimulationService interface {
	Discover(ctx context.Context) ([]string, error)
	Simulate(ctx context.Context, path string) (NetworkResult, error)
	SimulateAll(ctx context.Context) (WatchUpdate, error)
	RunScenarios(ctx context.Context, specPath string) (*scenario.Batch, error)
	Trend(ctx context.Context, req TrendRequest) (history.TrendReport, error)
	WatchService() WatchService
	Close() error
}
