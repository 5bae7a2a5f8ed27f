// Package scenario runs Monte Carlo demand studies: every sample solves an
// independent clone of a base project with base demands perturbed uniformly
// within ±Eta.
package scenario

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/timeseries"
	"aquanet/internal/engine/toolkit"
	"aquanet/internal/shared/observability"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Spec is one scenario file.
type Spec struct {
	Name    string  `yaml:"name" validate:"required,max=100"`
	Network string  `yaml:"network" validate:"required"`
	Samples int     `yaml:"samples" validate:"required,min=1,max=100000"`
	Eta     float64 `yaml:"eta" validate:"gte=0,lt=1"`
	Seed    uint64  `yaml:"seed"`
	// Workers bounds parallel samples; 0 means one per CPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`
	// Nodes restricts the pressure envelope to these node ids.
	Nodes []string `yaml:"nodes" validate:"omitempty,dive,required"`
}

// Load reads and validates a scenario file. A relative network path is
// resolved against the file's directory.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "failed to read scenario file"), errors.CtxPath, path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Spec
	if err := dec.Decode(&s); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "failed to parse scenario file"), errors.CtxPath, path)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	if !filepath.IsAbs(s.Network) {
		s.Network = filepath.Join(filepath.Dir(path), s.Network)
	}
	return &s, nil
}

func (s *Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(err, errors.CodeValidationError, "invalid scenario")
	}
	return nil
}

// Sample is the outcome of one perturbed run.
type Sample struct {
	Index   int
	Factors []float64 // demand multiplier applied per node, 1 for non-junctions
	Series  *timeseries.Hydraulic
}

// Batch holds the samples of one run, ordered by sample index.
type Batch struct {
	ID       string
	Spec     Spec
	Samples  []Sample
	Elapsed  time.Duration
	nodeIdxs []int
}

// Run solves spec.Samples perturbed clones of base. base is only read, and
// must not be modified while Run is in progress. The first failing sample
// cancels the rest.
func Run(ctx context.Context, base *toolkit.Project, spec Spec) (*Batch, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	batch := &Batch{ID: uuid.NewString(), Spec: spec, Samples: make([]Sample, spec.Samples)}
	for _, id := range spec.Nodes {
		idx, err := base.NodeIndex(id)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxScenario, spec.Name)
		}
		batch.nodeIdxs = append(batch.nodeIdxs, idx)
	}

	ctx, span := observability.Tracer.Start(ctx, "scenario.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch", batch.ID),
		attribute.Int("samples", spec.Samples),
		attribute.Float64("eta", spec.Eta),
	)

	workers := spec.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range spec.Samples {
		g.Go(func() error {
			s, err := runSample(gctx, base, spec, i)
			if err != nil {
				observability.ScenarioSamplesTotal.WithLabelValues("failed").Inc()
				return fmt.Errorf("sample %d: %w", i, err)
			}
			observability.ScenarioSamplesTotal.WithLabelValues("ok").Inc()
			batch.Samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.AddContext(err, errors.CtxScenario, spec.Name)
	}
	batch.Elapsed = time.Since(start)
	slog.Info("scenario batch complete", "batch", batch.ID, "name", spec.Name,
		"samples", spec.Samples, "elapsed", batch.Elapsed)
	return batch, nil
}

// runSample draws from a stream seeded by the batch seed and sample index, so
// results do not depend on worker scheduling.
func runSample(ctx context.Context, base *toolkit.Project, spec Spec, i int) (Sample, error) {
	p, err := base.Clone()
	if err != nil {
		return Sample{}, err
	}
	defer p.Close()

	rng := rand.New(rand.NewPCG(spec.Seed, uint64(i)))
	factors, err := Perturb(p, spec.Eta, rng)
	if err != nil {
		return Sample{}, err
	}
	series, err := timeseries.ComputedHydraulicTimeSeries(ctx, p)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Index: i, Factors: factors, Series: series}, nil
}

// Perturb scales every junction demand category by a factor drawn uniformly
// from [1-eta, 1+eta] and returns the factors by node.
func Perturb(p *toolkit.Project, eta float64, rng *rand.Rand) ([]float64, error) {
	factors := make([]float64, p.NodeCount())
	for i := range factors {
		idx := i + 1
		factors[i] = 1
		kind, err := p.NodeKind(idx)
		if err != nil {
			return nil, err
		}
		if kind != network.Junction {
			continue
		}
		d, err := p.NodeValue(idx, network.NodeBaseDemand)
		if err != nil {
			return nil, err
		}
		factors[i] = 1 + eta*(2*rng.Float64()-1)
		if err := p.SetNodeValue(idx, network.NodeBaseDemand, d*factors[i]); err != nil {
			return nil, err
		}
		extra := p.Network().Node(idx).ExtraDemands
		for k := range extra {
			extra[k].Base *= factors[i]
		}
	}
	return factors, nil
}

// Envelope is the pressure range one node saw across all samples and times.
type Envelope struct {
	Node     int
	Min, Max float64
}

// PressureEnvelope reduces the batch to per-node pressure extremes, for
// Spec.Nodes or every node when none are named.
func (b *Batch) PressureEnvelope() []Envelope {
	if len(b.Samples) == 0 || b.Samples[0].Series == nil || len(b.Samples[0].Series.Pressure) == 0 {
		return nil
	}
	nodes := b.nodeIdxs
	if len(nodes) == 0 {
		for i := range b.Samples[0].Series.Pressure[0] {
			nodes = append(nodes, i+1)
		}
	}
	out := make([]Envelope, len(nodes))
	for j, idx := range nodes {
		env := Envelope{Node: idx, Min: math.Inf(1), Max: math.Inf(-1)}
		for _, s := range b.Samples {
			for _, row := range s.Series.Pressure {
				env.Min = math.Min(env.Min, row[idx-1])
				env.Max = math.Max(env.Max, row[idx-1])
			}
		}
		out[j] = env
	}
	return out
}
