package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aquanet/internal/core/config"
	"aquanet/internal/core/errors"
	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/timeseries"
	"aquanet/internal/engine/toolkit"
	"aquanet/internal/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Simulate runs one network file to completion, records the result and hands
// it to the history writer. A failed run is recorded too; the error is also
// returned.
func (a *App) Simulate(ctx context.Context, path string) (ports.NetworkResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Simulate")
	defer span.End()
	span.SetAttributes(attribute.String("network", path))

	cfg := a.config()
	if timeout := cfg.Simulation.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := ports.NetworkResult{Path: path, RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	err := a.simulate(ctx, cfg.Simulation, &res)
	res.Elapsed = time.Since(res.StartedAt)
	if err != nil {
		res.Err = err.Error()
		if code := errors.CodeOf(err); code > 0 {
			res.Warning = code
		}
		span.RecordError(err)
		slog.Error("simulation failed", "network", path, "run_id", res.RunID, "error", err)
		err = errors.AddContext(err, errors.CtxNetwork, path)
	} else if res.Warning.IsWarning() {
		slog.Warn("simulation finished with warning", "network", path,
			"code", int(res.Warning), "message", res.Warning.Message())
	} else {
		slog.Info("simulation finished", "network", path, "periods", res.Periods, "elapsed", res.Elapsed)
	}

	a.record(res)
	a.persist(res, "full")
	return res, err
}

func (a *App) simulate(ctx context.Context, sim config.Simulation, res *ports.NetworkResult) error {
	p, err := toolkit.Open(res.Path)
	if err != nil {
		return err
	}
	defer p.Close()

	if !sim.Quality {
		p.Network().Options.Quality = network.QualityNone
	}
	res.Nodes, res.Links = p.NodeCount(), p.LinkCount()

	report, err := timeseries.ComputedTimeSeries(ctx, p)
	if err != nil {
		return err
	}
	res.Warning = report.Warning
	res.Periods = len(report.Time)
	for _, e := range report.Energy {
		res.EnergyCost += float64(e.CostPerDay)
	}

	extremes, err := summarize(p, report, sim.Nodes, res)
	if err != nil {
		return err
	}
	res.Extremes = extremes

	if sim.SaveResults && a.OutputDir != "" {
		if err := os.MkdirAll(a.OutputDir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to create output directory")
		}
		if err := p.SaveResults(resultsPath(a.OutputDir, res.Path, res.RunID)); err != nil {
			return err
		}
	}
	return nil
}

// resultsPath names a saved results file after its network and run.
func resultsPath(dir, network, runID string) string {
	base := strings.TrimSuffix(filepath.Base(network), filepath.Ext(network))
	return filepath.Join(dir, fmt.Sprintf("%s-%s.out", base, runID[:8]))
}

// summarize fills the junction pressure range and peak total demand, and
// returns the pressure extremes of the selected node ids (every junction when
// none are selected).
func summarize(p *toolkit.Project, r *timeseries.Report, selected []string, res *ports.NetworkResult) ([]history.NodeExtreme, error) {
	junctions := make([]int, 0, p.NodeCount())
	for idx := 1; idx <= p.NodeCount(); idx++ {
		kind, err := p.NodeKind(idx)
		if err != nil {
			return nil, err
		}
		if kind == network.Junction {
			junctions = append(junctions, idx)
		}
	}

	want := junctions
	if len(selected) > 0 {
		want = make([]int, 0, len(selected))
		for _, id := range selected {
			idx, err := p.NodeIndex(id)
			if err != nil {
				return nil, err
			}
			want = append(want, idx)
		}
	}

	res.MinPressure, res.MaxPressure = math.Inf(1), math.Inf(-1)
	for i := range r.Time {
		var total float64
		for _, idx := range junctions {
			pr := r.NodePressure[i][idx-1]
			res.MinPressure = math.Min(res.MinPressure, pr)
			res.MaxPressure = math.Max(res.MaxPressure, pr)
			total += r.NodeDemand[i][idx-1]
		}
		res.PeakDemand = math.Max(res.PeakDemand, total)
	}
	if len(r.Time) == 0 || len(junctions) == 0 {
		res.MinPressure, res.MaxPressure = 0, 0
	}

	out := make([]history.NodeExtreme, 0, len(want))
	for _, idx := range want {
		id, err := p.NodeID(idx)
		if err != nil {
			return nil, err
		}
		ext := history.NodeExtreme{NodeID: id, MinPressure: math.Inf(1), MaxPressure: math.Inf(-1)}
		for i := range r.Time {
			ext.MinPressure = math.Min(ext.MinPressure, r.NodePressure[i][idx-1])
			ext.MaxPressure = math.Max(ext.MaxPressure, r.NodePressure[i][idx-1])
		}
		if len(r.Time) == 0 {
			ext.MinPressure, ext.MaxPressure = 0, 0
		}
		out = append(out, ext)
	}
	return out, nil
}

func (a *App) persist(res ports.NetworkResult, kind string) {
	if a.writer == nil {
		return
	}
	run := history.Run{
		ID:          res.RunID,
		Network:     res.Path,
		Kind:        kind,
		StartedAt:   res.StartedAt,
		Elapsed:     res.Elapsed,
		Status:      history.StatusOK,
		Warning:     int(res.Warning),
		Error:       res.Err,
		Periods:     res.Periods,
		MinPressure: res.MinPressure,
		MaxPressure: res.MaxPressure,
		PeakDemand:  res.PeakDemand,
		EnergyCost:  res.EnergyCost,
		Nodes:       res.Extremes,
	}
	if res.Failed() {
		run.Status = history.StatusFailed
	}
	a.writer.Enqueue(run)
}
