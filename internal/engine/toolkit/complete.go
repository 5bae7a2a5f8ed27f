package toolkit

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"time"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SolveCompleteHydraulics runs the hydraulic protocol over the whole horizon
// and keeps every solution in the project's hydraulics file. The context is
// checked between solutions.
func (p *Project) SolveCompleteHydraulics(ctx context.Context) (err error) {
	ctx, span := observability.Tracer.Start(ctx, "toolkit.SolveCompleteHydraulics")
	defer span.End()
	span.SetAttributes(attribute.String("network", p.path), attribute.Int("nodes", p.NodeCount()))
	defer recordRun("hydraulic", time.Now(), &err)

	hs, err := p.OpenHydraulics()
	if err != nil {
		return err
	}
	defer hs.Close()
	if err := hs.Init(true); err != nil {
		return err
	}
	solutions := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := hs.RunStep(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "hydraulic step failed")
			return err
		}
		solutions++
		dt, err := hs.NextStep()
		if err != nil {
			return err
		}
		if dt == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("solutions", solutions))
	slog.Debug("hydraulic run complete", "network", p.path, "solutions", solutions, "warning", int(p.warning))
	return nil
}

// SolveCompleteQuality replays the saved hydraulics through the quality
// protocol and writes the results file. It needs a finished
// SolveCompleteHydraulics (or UseHydraulicsFile) and no open hydraulic
// session.
func (p *Project) SolveCompleteQuality(ctx context.Context) (err error) {
	const op = "toolkit.SolveCompleteQuality"
	ctx, span := observability.Tracer.Start(ctx, op)
	defer span.End()
	defer recordRun("quality", time.Now(), &err)

	if err := p.live(op); err != nil {
		return err
	}
	if p.hyd != nil {
		return errors.Enginef(op, errors.ErrHydFileActive, "close the hydraulic session first")
	}
	if !p.hydReady {
		return errors.Engine(op, errors.ErrNoHydraulics)
	}
	qs, err := p.OpenQuality()
	if err != nil {
		return err
	}
	defer qs.Close()
	if err := qs.Init(true); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := qs.RunStep(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "quality step failed")
			return err
		}
		dt, err := qs.NextStep()
		if err != nil {
			return err
		}
		if dt == 0 {
			return nil
		}
	}
}

// RunFull runs hydraulics and quality to completion and copies the binary
// results file to outPath.
func (p *Project) RunFull(ctx context.Context, outPath string) error {
	ctx, span := observability.Tracer.Start(ctx, "toolkit.RunFull")
	defer span.End()
	if err := p.SolveCompleteHydraulics(ctx); err != nil {
		return err
	}
	if err := p.SolveCompleteQuality(ctx); err != nil {
		return err
	}
	return p.SaveResults(outPath)
}

func recordRun(kind string, start time.Time, err *error) {
	elapsed := time.Since(start)
	observability.RunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if *err != nil {
		slog.Debug("run failed", "kind", kind, "error", *err, "elapsed", elapsed)
	}
}

// SaveHydraulicsFile copies the hydraulics of the last complete saved run.
func (p *Project) SaveHydraulicsFile(path string) error {
	const op = "toolkit.SaveHydraulicsFile"
	if err := p.live(op); err != nil {
		return err
	}
	if !p.hydReady {
		return errors.Engine(op, errors.ErrNoHydraulics)
	}
	if err := copyFile(p.hydFile, path); err != nil {
		return errors.Enginef(op, errors.ErrOpenHydFile, "%v", err)
	}
	return nil
}

// UseHydraulicsFile makes a previously saved hydraulics file the source for
// quality runs. Afterwards the project cannot open a hydraulic session.
func (p *Project) UseHydraulicsFile(path string) error {
	const op = "toolkit.UseHydraulicsFile"
	if err := p.live(op); err != nil {
		return err
	}
	if p.hyd != nil {
		return errors.Engine(op, errors.ErrHydFileActive)
	}
	r, err := outfile.OpenHyd(path, len(p.net.Nodes), len(p.net.Links))
	if err != nil {
		return err
	}
	_, err = r.Next()
	r.Close()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.Enginef(op, errors.ErrReadHydFile, "%s holds no solutions", path)
		}
		return err
	}
	if p.ownsHydFile && p.hydFile != path {
		_ = os.Remove(p.hydFile)
	}
	p.hydFile, p.ownsHydFile = path, false
	p.hydExternal, p.hydReady = true, true
	return nil
}

// SaveResults copies the binary results file of the last complete quality
// run (engine code 106 when there is none).
func (p *Project) SaveResults(path string) error {
	const op = "toolkit.SaveResults"
	if err := p.live(op); err != nil {
		return err
	}
	if !p.outReady {
		return errors.Engine(op, errors.ErrNoResults)
	}
	if err := copyFile(p.outFile, path); err != nil {
		return errors.Enginef(op, errors.ErrSaveResults, "%v", err)
	}
	return nil
}

// OpenResults opens the project's binary results file for reading.
func (p *Project) OpenResults() (*outfile.Results, error) {
	const op = "toolkit.OpenResults"
	if err := p.live(op); err != nil {
		return nil, err
	}
	if !p.outReady {
		return nil, errors.Engine(op, errors.ErrNoResults)
	}
	return outfile.Open(p.outFile)
}

func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
