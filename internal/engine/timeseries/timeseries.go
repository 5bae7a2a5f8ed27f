// Package timeseries drives a project's analysis to completion and collects
// the results into [time step][entity] tables.
package timeseries

import (
	"context"
	"fmt"
	"io"
	"math"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/engine/toolkit"
	"aquanet/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Table is one result quantity; Rows[i][j] is entity j+1 at Time[i].
type Table struct {
	Name string
	Rows [][]float64
}

// Tabler is implemented by every series so Disp can summarize it.
type Tabler interface {
	Tables() []Table
}

// Hydraulic holds one row per hydraulic solution.
type Hydraulic struct {
	Time     []int64
	Warnings []errors.EngineCode

	Pressure      [][]float64
	Head          [][]float64
	Demand        [][]float64
	DemandDeficit [][]float64
	TankVolume    [][]float64

	Flow     [][]float64
	Velocity [][]float64
	HeadLoss [][]float64
	Status   [][]float64
	Setting  [][]float64
}

func (h *Hydraulic) Tables() []Table {
	return []Table{
		{"pressure", h.Pressure}, {"head", h.Head}, {"demand", h.Demand},
		{"demand_deficit", h.DemandDeficit}, {"tank_volume", h.TankVolume},
		{"flow", h.Flow}, {"velocity", h.Velocity}, {"headloss", h.HeadLoss},
		{"status", h.Status}, {"setting", h.Setting},
	}
}

type nodeColumn struct {
	prop network.NodeProperty
	dst  *[][]float64
}

// ComputedHydraulicTimeSeries runs the stepwise hydraulic protocol over the
// whole horizon. The project must not have a hydraulic session open.
func ComputedHydraulicTimeSeries(ctx context.Context, p *toolkit.Project) (*Hydraulic, error) {
	ctx, span := observability.Tracer.Start(ctx, "timeseries.Hydraulic")
	defer span.End()

	hs, err := p.OpenHydraulics()
	if err != nil {
		return nil, err
	}
	defer hs.Close()
	if err := hs.Init(false); err != nil {
		return nil, err
	}

	h := &Hydraulic{}
	nodeCols := []nodeColumn{
		{network.NodePressure, &h.Pressure},
		{network.NodeHead, &h.Head},
		{network.NodeDemand, &h.Demand},
		{network.NodeDemandDeficit, &h.DemandDeficit},
		{network.NodeTankVolume, &h.TankVolume},
	}
	linkCols := map[network.LinkProperty]*[][]float64{
		network.LinkFlow:      &h.Flow,
		network.LinkVelocity:  &h.Velocity,
		network.LinkHeadLoss:  &h.HeadLoss,
		network.LinkStatusNow: &h.Status,
		network.LinkSetting:   &h.Setting,
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step, err := hs.RunStep()
		if err != nil {
			return nil, err
		}
		h.Time = append(h.Time, step.Time)
		h.Warnings = append(h.Warnings, step.Warning())
		for _, c := range nodeCols {
			row, err := step.NodeValues(c.prop)
			if err != nil {
				return nil, err
			}
			*c.dst = append(*c.dst, row)
		}
		for prop, dst := range linkCols {
			row, err := step.LinkValues(prop)
			if err != nil {
				return nil, err
			}
			*dst = append(*dst, row)
		}
		dt, err := hs.NextStep()
		if err != nil {
			return nil, err
		}
		if dt == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("steps", len(h.Time)))
	return h, nil
}

// Quality holds one row per quality RunStep, at each hydraulic time.
type Quality struct {
	Time        []int64
	NodeQuality [][]float64
	LinkQuality [][]float64
}

func (q *Quality) Tables() []Table {
	return []Table{{"node_quality", q.NodeQuality}, {"link_quality", q.LinkQuality}}
}

// ComputedQualityTimeSeries solves and saves the hydraulics, then replays
// them through the quality protocol.
func ComputedQualityTimeSeries(ctx context.Context, p *toolkit.Project) (*Quality, error) {
	ctx, span := observability.Tracer.Start(ctx, "timeseries.Quality")
	defer span.End()

	if err := p.SolveCompleteHydraulics(ctx); err != nil {
		return nil, err
	}
	qs, err := p.OpenQuality()
	if err != nil {
		return nil, err
	}
	defer qs.Close()
	if err := qs.Init(false); err != nil {
		return nil, err
	}

	q := &Quality{}
	nodes, links := p.NodeCount(), p.LinkCount()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step, err := qs.RunStep()
		if err != nil {
			return nil, err
		}
		nrow := make([]float64, nodes)
		for i := range nrow {
			if nrow[i], err = step.NodeQuality(i + 1); err != nil {
				return nil, err
			}
		}
		lrow := make([]float64, links)
		for k := range lrow {
			if lrow[k], err = step.LinkQuality(k + 1); err != nil {
				return nil, err
			}
		}
		q.Time = append(q.Time, step.Time)
		q.NodeQuality = append(q.NodeQuality, nrow)
		q.LinkQuality = append(q.LinkQuality, lrow)

		dt, err := qs.NextStep()
		if err != nil {
			return nil, err
		}
		if dt == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("steps", len(q.Time)))
	return q, nil
}

// Report holds the reporting periods read back from a binary results file.
type Report struct {
	Time    []int64
	Warning errors.EngineCode
	Energy  []outfile.PumpEnergy

	NodeDemand   [][]float64
	NodeHead     [][]float64
	NodePressure [][]float64
	NodeQuality  [][]float64

	LinkFlow     [][]float64
	LinkVelocity [][]float64
	LinkHeadloss [][]float64
	LinkQuality  [][]float64
	LinkStatus   [][]float64
	LinkSetting  [][]float64
}

func (r *Report) Tables() []Table {
	return []Table{
		{"node_demand", r.NodeDemand}, {"node_head", r.NodeHead},
		{"node_pressure", r.NodePressure}, {"node_quality", r.NodeQuality},
		{"link_flow", r.LinkFlow}, {"link_velocity", r.LinkVelocity},
		{"link_headloss", r.LinkHeadloss}, {"link_quality", r.LinkQuality},
		{"link_status", r.LinkStatus}, {"link_setting", r.LinkSetting},
	}
}

// ComputedTimeSeries runs a complete simulation into the project's binary
// results file and parses it back at the reporting steps.
func ComputedTimeSeries(ctx context.Context, p *toolkit.Project) (*Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "timeseries.Report")
	defer span.End()

	if err := p.SolveCompleteHydraulics(ctx); err != nil {
		return nil, err
	}
	if err := p.SolveCompleteQuality(ctx); err != nil {
		return nil, err
	}
	res, err := p.OpenResults()
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return ReadReport(res)
}

// ReadReport loads every period of an open results file.
func ReadReport(res *outfile.Results) (*Report, error) {
	r := &Report{
		Warning: errors.EngineCode(res.Warning),
		Energy:  res.Energy,
	}
	for i := 0; i < res.Periods; i++ {
		period, err := res.Period(i)
		if err != nil {
			return nil, err
		}
		r.Time = append(r.Time, res.Time(i))
		r.NodeDemand = append(r.NodeDemand, widen(period.NodeDemand))
		r.NodeHead = append(r.NodeHead, widen(period.NodeHead))
		r.NodePressure = append(r.NodePressure, widen(period.NodePressure))
		r.NodeQuality = append(r.NodeQuality, widen(period.NodeQuality))
		r.LinkFlow = append(r.LinkFlow, widen(period.LinkFlow))
		r.LinkVelocity = append(r.LinkVelocity, widen(period.LinkVelocity))
		r.LinkHeadloss = append(r.LinkHeadloss, widen(period.LinkHeadloss))
		r.LinkQuality = append(r.LinkQuality, widen(period.LinkQuality))
		r.LinkStatus = append(r.LinkStatus, widen(period.LinkStatus))
		r.LinkSetting = append(r.LinkSetting, widen(period.LinkSetting))
	}
	return r, nil
}

func widen(col []float32) []float64 {
	out := make([]float64, len(col))
	for i, v := range col {
		out[i] = float64(v)
	}
	return out
}

// Summary describes one table for display.
type Summary struct {
	Name     string
	Steps    int
	Entities int
	Min, Max float64
}

// Summarize reduces each table of s to its shape and value range.
func Summarize(s Tabler) []Summary {
	var out []Summary
	for _, t := range s.Tables() {
		sum := Summary{Name: t.Name, Steps: len(t.Rows), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, row := range t.Rows {
			sum.Entities = max(sum.Entities, len(row))
			for _, v := range row {
				sum.Min = math.Min(sum.Min, v)
				sum.Max = math.Max(sum.Max, v)
			}
		}
		if sum.Steps == 0 || sum.Entities == 0 {
			sum.Min, sum.Max = 0, 0
		}
		out = append(out, sum)
	}
	return out
}

// Disp writes one line per table: name, shape and value range.
func Disp(w io.Writer, s Tabler) error {
	for _, sum := range Summarize(s) {
		if _, err := fmt.Fprintf(w, "%-15s %4d x %-4d min %12.4f  max %12.4f\n",
			sum.Name, sum.Steps, sum.Entities, sum.Min, sum.Max); err != nil {
			return err
		}
	}
	return nil
}
