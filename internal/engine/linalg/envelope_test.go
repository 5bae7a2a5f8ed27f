package linalg

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridPairs connects a w x h grid of unknowns.
func gridPairs(w, h int) [][2]int {
	var pairs [][2]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x+1 < w {
				pairs = append(pairs, [2]int{i, i + 1})
			}
			if y+1 < h {
				pairs = append(pairs, [2]int{i, i + w})
			}
		}
	}
	return pairs
}

// assemble stamps a weighted graph Laplacian plus a positive shift, the same
// shape the network solver produces, into both the envelope system and a
// dense copy.
func assemble(t *testing.T, n int, pairs [][2]int, rng *rand.Rand) (*System, [][]float64, []float64) {
	t.Helper()
	sys, err := NewSystem(n, pairs)
	require.NoError(t, err)
	dense := make([][]float64, n)
	for i := range dense {
		dense[i] = make([]float64, n)
	}
	for _, p := range pairs {
		w := 0.5 + rng.Float64()
		sys.AddDiag(p[0], w)
		sys.AddDiag(p[1], w)
		sys.AddOffDiag(p[0], p[1], -w)
		dense[p[0]][p[0]] += w
		dense[p[1]][p[1]] += w
		dense[p[0]][p[1]] -= w
		dense[p[1]][p[0]] -= w
	}
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		shift := 0.1 + rng.Float64()
		sys.AddDiag(i, shift)
		dense[i][i] += shift
		b[i] = rng.Float64()*10 - 5
		sys.AddRHS(i, b[i])
	}
	return sys, dense, b
}

func residual(dense [][]float64, x, b []float64) float64 {
	worst := 0.0
	for i := range dense {
		sum := -b[i]
		for j := range dense[i] {
			sum += dense[i][j] * x[j]
		}
		worst = math.Max(worst, math.Abs(sum))
	}
	return worst
}

func TestSolveMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, dims := range [][2]int{{1, 1}, {3, 1}, {4, 4}, {10, 7}} {
		n := dims[0] * dims[1]
		pairs := gridPairs(dims[0], dims[1])
		sys, dense, b := assemble(t, n, pairs, rng)

		x, err := sys.Solve()
		require.NoError(t, err)
		assert.Less(t, residual(dense, x, b), 1e-9, "grid %v", dims)
	}
}

func TestSolveReusesStructure(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pairs := gridPairs(5, 5)
	sys, _, _ := assemble(t, 25, pairs, rng)
	_, err := sys.Solve()
	require.NoError(t, err)

	sys.Reset()
	dense := make([][]float64, 25)
	for i := range dense {
		dense[i] = make([]float64, 25)
	}
	b := make([]float64, 25)
	for _, p := range pairs {
		sys.AddDiag(p[0], 2)
		sys.AddDiag(p[1], 2)
		sys.AddOffDiag(p[0], p[1], -2)
		dense[p[0]][p[0]] += 2
		dense[p[1]][p[1]] += 2
		dense[p[0]][p[1]] -= 2
		dense[p[1]][p[0]] -= 2
	}
	for i := 0; i < 25; i++ {
		sys.AddDiag(i, 1)
		dense[i][i]++
		b[i] = float64(i)
		sys.AddRHS(i, b[i])
	}
	x, err := sys.Solve()
	require.NoError(t, err)
	assert.Less(t, residual(dense, x, b), 1e-9)
}

func TestDisconnectedComponents(t *testing.T) {
	pairs := [][2]int{{0, 1}, {2, 3}, {3, 4}, {1, 0}, {2, 2}}
	sys, err := NewSystem(6, pairs)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		sys.AddDiag(i, 3)
		sys.AddRHS(i, 3)
	}
	x, err := sys.Solve()
	require.NoError(t, err)
	for _, v := range x {
		assert.InDelta(t, 1.0, v, 1e-12)
	}
}

func TestSingularPivot(t *testing.T) {
	sys, err := NewSystem(3, [][2]int{{0, 1}, {1, 2}})
	require.NoError(t, err)
	sys.AddDiag(0, 1)
	sys.AddDiag(1, 2)
	sys.AddOffDiag(0, 1, -1)
	sys.AddOffDiag(1, 2, -1)
	sys.AddDiag(2, 1)
	sys.AddDiag(0, -1e-3)

	_, err = sys.Solve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPositiveDefinite))
	var se *SingularError
	require.True(t, errors.As(err, &se))
	assert.GreaterOrEqual(t, se.Row, 0)
	assert.Less(t, se.Row, 3)
}

func TestNewSystemRejectsBadInput(t *testing.T) {
	_, err := NewSystem(0, nil)
	assert.Error(t, err)
	_, err = NewSystem(2, [][2]int{{0, 5}})
	assert.Error(t, err)
}

func TestRCMNarrowsPathEnvelope(t *testing.T) {
	// A path numbered in a scrambled order would have a wide envelope
	// without reordering.
	order := []int{0, 9, 3, 7, 1, 5, 8, 2, 6, 4}
	var pairs [][2]int
	for i := 0; i+1 < len(order); i++ {
		pairs = append(pairs, [2]int{order[i], order[i+1]})
	}
	sys, err := NewSystem(10, pairs)
	require.NoError(t, err)
	assert.Equal(t, 9, sys.EnvelopeSize())
}

func TestOffDiagOutsideStructurePanics(t *testing.T) {
	sys, err := NewSystem(3, [][2]int{{0, 1}})
	require.NoError(t, err)
	assert.Panics(t, func() { sys.AddOffDiag(0, 2, 1) })
}
