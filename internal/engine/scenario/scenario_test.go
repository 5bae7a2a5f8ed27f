package scenario

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/toolkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func net1(t *testing.T) *toolkit.Project {
	t.Helper()
	path, err := filepath.Abs("../inp/testdata/net1.inp")
	require.NoError(t, err)
	p, err := toolkit.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSpec(t, `
name: demand-uncertainty
network: net1.inp
samples: 8
eta: 0.1
seed: 42
workers: 2
nodes: ["11", "23"]
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demand-uncertainty", s.Name)
	assert.Equal(t, 8, s.Samples)
	assert.Equal(t, 0.1, s.Eta)
	assert.Equal(t, uint64(42), s.Seed)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "net1.inp"), s.Network)
	assert.Equal(t, []string{"11", "23"}, s.Nodes)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing samples", "name: a\nnetwork: n.inp\n"},
		{"eta too large", "name: a\nnetwork: n.inp\nsamples: 1\neta: 1.5\n"},
		{"unknown field", "name: a\nnetwork: n.inp\nsamples: 1\nbogus: true\n"},
		{"negative workers", "name: a\nnetwork: n.inp\nsamples: 1\nworkers: -1\n"},
		{"not yaml", "name: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSpec(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidationError), "%v", err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestPerturbStaysWithinEta(t *testing.T) {
	p := net1(t)
	before := make([]float64, p.NodeCount())
	for i := range before {
		before[i], _ = p.NodeValue(i+1, network.NodeBaseDemand)
	}

	factors, err := Perturb(p, 0.2, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, factors, p.NodeCount())

	for i, f := range factors {
		kind, err := p.NodeKind(i + 1)
		require.NoError(t, err)
		if kind != network.Junction {
			assert.Equal(t, 1.0, f)
			continue
		}
		assert.GreaterOrEqual(t, f, 0.8)
		assert.LessOrEqual(t, f, 1.2)
		after, err := p.NodeValue(i+1, network.NodeBaseDemand)
		require.NoError(t, err)
		assert.InDelta(t, before[i]*f, after, 1e-9)
	}
}

func TestRunIsOrderedAndReproducible(t *testing.T) {
	base := net1(t)
	require.NoError(t, base.SetTimeParam(toolkit.TimeDuration, 4*3600))
	spec := Spec{Name: "t", Network: "net1.inp", Samples: 6, Eta: 0.15, Seed: 7, Workers: 3, Nodes: []string{"22"}}

	first, err := Run(context.Background(), base, spec)
	require.NoError(t, err)
	second, err := Run(context.Background(), base, spec)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, first.Samples, 6)
	for i, s := range first.Samples {
		assert.Equal(t, i, s.Index)
		require.NotNil(t, s.Series)
		assert.Equal(t, int64(4*3600), s.Series.Time[len(s.Series.Time)-1])
		assert.Equal(t, s.Factors, second.Samples[i].Factors)
		assert.Equal(t, s.Series.Pressure, second.Samples[i].Series.Pressure)
	}

	env := first.PressureEnvelope()
	require.Len(t, env, 1)
	n22, _ := base.NodeIndex("22")
	assert.Equal(t, n22, env[0].Node)
	assert.LessOrEqual(t, env[0].Min, env[0].Max)

	// the base project is untouched
	d, err := base.NodeValue(n22, network.NodeBaseDemand)
	require.NoError(t, err)
	assert.Equal(t, 200.0, d)
}

func TestRunRejectsUnknownNode(t *testing.T) {
	_, err := Run(context.Background(), net1(t), Spec{Name: "t", Network: "x", Samples: 1, Nodes: []string{"nope"}})
	assert.Equal(t, errors.ErrUndefinedNode, errors.CodeOf(err))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, net1(t), Spec{Name: "t", Network: "x", Samples: 4, Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerturbScalesEveryDemandCategory(t *testing.T) {
	p := net1(t)
	j := 0
	for i := 1; i <= p.NodeCount(); i++ {
		if kind, _ := p.NodeKind(i); kind == network.Junction {
			j = i
			break
		}
	}
	require.NotZero(t, j)
	p.Network().Node(j).AddDemand(network.Demand{Base: 40, Name: "industry"})

	factors, err := Perturb(p, 0.5, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	assert.InDelta(t, 40*factors[j-1], p.Network().Node(j).ExtraDemands[0].Base, 1e-9)
}
