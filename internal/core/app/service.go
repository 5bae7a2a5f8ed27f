package app

import (
	"context"
	"fmt"
	"time"

	"aquanet/internal/core/errors"
	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"
	"aquanet/internal/engine/scenario"
	"aquanet/internal/engine/toolkit"
	"aquanet/internal/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type simulationService struct {
	app *App
}

var _ ports.SimulationService = (*simulationService)(nil)

func NewSimulationService(app *App) ports.SimulationService {
	return &simulationService{app: app}
}

func (a *App) SimulationService() ports.SimulationService {
	return NewSimulationService(a)
}

func (s *simulationService) Close() error {
	if s == nil || s.app == nil {
		return nil
	}
	return s.app.Close()
}

func (s *simulationService) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := s.app.config()
	return ScanNetworks(cfg.WatchPaths, cfg.Watch.Include, cfg.Exclude.Dirs, cfg.Exclude.Files)
}

func (s *simulationService) Simulate(ctx context.Context, path string) (ports.NetworkResult, error) {
	return s.app.Simulate(ctx, path)
}

// SimulateAll runs every discovered network once. Individual failures are
// recorded in the update, not returned.
func (s *simulationService) SimulateAll(ctx context.Context) (ports.WatchUpdate, error) {
	ctx, span := observability.Tracer.Start(ctx, "simulationService.SimulateAll")
	defer span.End()

	paths, err := s.Discover(ctx)
	if err != nil {
		return ports.WatchUpdate{}, err
	}
	if len(paths) == 0 {
		return ports.WatchUpdate{}, errors.New(errors.CodeNotFound, "no network files found in watch paths")
	}
	span.SetAttributes(attribute.Int("networks", len(paths)))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return ports.WatchUpdate{}, err
		}
		_, _ = s.app.Simulate(ctx, path)
	}
	return s.app.CurrentUpdate(), nil
}

// RunScenarios loads a scenario file, runs the batch against its network and
// records the pressure envelope as one run.
func (s *simulationService) RunScenarios(ctx context.Context, specPath string) (*scenario.Batch, error) {
	spec, err := scenario.Load(specPath)
	if err != nil {
		return nil, err
	}
	if spec.Workers == 0 {
		spec.Workers = s.app.config().Scenarios.Workers
	}

	base, err := toolkit.Open(spec.Network)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxScenario, spec.Name)
	}
	defer base.Close()

	started := time.Now().UTC()
	batch, err := scenario.Run(ctx, base, *spec)
	if err != nil {
		return nil, err
	}

	res := ports.NetworkResult{
		Path:      spec.Network,
		RunID:     uuid.NewString(),
		StartedAt: started,
		Elapsed:   batch.Elapsed,
		Nodes:     base.NodeCount(),
		Links:     base.LinkCount(),
		Periods:   spec.Samples,
	}
	envelope := batch.PressureEnvelope()
	if len(envelope) > 0 {
		res.MinPressure, res.MaxPressure = envelope[0].Min, envelope[0].Max
	}
	for _, e := range envelope {
		id, err := base.NodeID(e.Node)
		if err != nil {
			return nil, err
		}
		res.MinPressure = min(res.MinPressure, e.Min)
		res.MaxPressure = max(res.MaxPressure, e.Max)
		res.Extremes = append(res.Extremes, history.NodeExtreme{NodeID: id, MinPressure: e.Min, MaxPressure: e.Max})
	}
	s.app.persist(res, "scenario")
	return batch, nil
}

func (s *simulationService) Trend(ctx context.Context, req ports.TrendRequest) (history.TrendReport, error) {
	if err := ctx.Err(); err != nil {
		return history.TrendReport{}, err
	}
	if s.app.history == nil {
		return history.TrendReport{}, errors.New(errors.CodeNotSupported, "run history is disabled")
	}
	s.app.writer.Flush()
	runs, err := s.app.history.LoadRuns(req.Network, req.Since)
	if err != nil {
		return history.TrendReport{}, fmt.Errorf("load runs for %s: %w", req.Network, err)
	}
	return history.BuildTrendReport(req.Network, runs, req.Window)
}

func (s *simulationService) WatchService() ports.WatchService {
	return &watchService{app: s.app}
}
