package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"aquanet/internal/core/ports"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/scenario"
	"aquanet/internal/engine/timeseries"
	"aquanet/internal/engine/toolkit"
)

// printSummary writes one styled line per network and returns the number of
// failed runs.
func printSummary(w io.Writer, update ports.WatchUpdate) int {
	failed := 0
	for _, n := range update.Networks {
		name := filepath.Base(n.Path)
		switch {
		case n.Failed():
			failed++
			fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render("FAIL"), name, n.Err)
		case n.Warning.IsWarning():
			fmt.Fprintf(w, "%s %s: %s\n", warnStyle.Render("WARN"), name, describeResult(n))
		default:
			fmt.Fprintf(w, "%s %s: %s\n", successStyle.Render(" OK "), name, describeResult(n))
		}
	}
	fmt.Fprintln(w, statusStyle.Render(fmt.Sprintf("%d networks, %d failed", len(update.Networks), failed)))
	return failed
}

// printEnvelope lists the pressure range of each node across the batch.
func printEnvelope(w io.Writer, batch *scenario.Batch) error {
	p, err := toolkit.Open(batch.Spec.Network)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintf(w, "%s: %d samples, eta %.3f, seed %d, %s\n",
		titleStyle(batch.Spec.Name), len(batch.Samples), batch.Spec.Eta, batch.Spec.Seed, batch.Elapsed)
	for _, e := range batch.PressureEnvelope() {
		id, err := p.NodeID(e.Node)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  node %-12s pressure %10.2f .. %10.2f (spread %.2f)\n", id, e.Min, e.Max, e.Max-e.Min)
	}
	return nil
}

// printDetail reruns one network and writes the shape and range of every
// result table, plus the peak flow of the selected links.
func printDetail(ctx context.Context, w io.Writer, path string, quality bool, links []string) error {
	p, err := toolkit.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()
	if !quality {
		p.Network().Options.Quality = network.QualityNone
	}

	report, err := timeseries.ComputedTimeSeries(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, titleStyle(filepath.Base(path)))
	if err := timeseries.Disp(w, report); err != nil {
		return err
	}
	for _, id := range links {
		idx, err := p.LinkIndex(id)
		if err != nil {
			return err
		}
		var peak float64
		for _, row := range report.LinkFlow {
			peak = max(peak, math.Abs(row[idx-1]))
		}
		fmt.Fprintf(w, "  link %-12s peak flow %10.2f\n", id, peak)
	}
	return nil
}
