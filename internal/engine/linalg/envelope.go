// Package linalg solves the sparse symmetric positive definite systems that
// arise when a pipe network is linearised around its current flows.
//
// Unknowns are reordered with reverse Cuthill-McKee to keep the envelope of
// the lower triangle narrow; the factorisation then only touches entries
// inside that envelope.
package linalg

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNotPositiveDefinite is wrapped by SingularError.
var ErrNotPositiveDefinite = errors.New("linalg: matrix is not positive definite")

// SingularError reports the unknown (in caller numbering) whose pivot failed.
type SingularError struct {
	Row int
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("linalg: zero or negative pivot at row %d", e.Row)
}

func (e *SingularError) Unwrap() error { return ErrNotPositiveDefinite }

// System is a symmetric matrix with fixed sparsity plus a right-hand side.
// The structure is computed once; values are reset and re-assembled on each
// Newton iteration.
type System struct {
	n     int
	perm  []int // perm[k] is the caller index stored at position k
	inv   []int // inv[i] is the position of caller index i
	first []int // first column of the envelope in each (permuted) row
	start []int // offset of each row in env
	env   []float64
	diag  []float64
	rhs   []float64
	x     []float64
}

// NewSystem builds the envelope for an n x n matrix whose off-diagonal
// non-zeros are the given index pairs. Duplicate and self pairs are ignored.
func NewSystem(n int, pairs [][2]int) (*System, error) {
	if n <= 0 {
		return nil, fmt.Errorf("linalg: system size must be positive, got %d", n)
	}
	adj := make([][]int, n)
	seen := make(map[[2]int]bool, len(pairs))
	for _, p := range pairs {
		a, b := p[0], p[1]
		if a < 0 || b < 0 || a >= n || b >= n {
			return nil, fmt.Errorf("linalg: pair (%d,%d) out of range for size %d", a, b, n)
		}
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if seen[[2]int{a, b}] {
			continue
		}
		seen[[2]int{a, b}] = true
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	s := &System{n: n}
	s.perm = reverseCuthillMcKee(adj)
	s.inv = make([]int, n)
	for k, i := range s.perm {
		s.inv[i] = k
	}

	s.first = make([]int, n)
	for k := range s.first {
		s.first[k] = k
	}
	for key := range seen {
		a, b := s.inv[key[0]], s.inv[key[1]]
		if a < b {
			a, b = b, a
		}
		if b < s.first[a] {
			s.first[a] = b
		}
	}
	s.start = make([]int, n+1)
	for k := 0; k < n; k++ {
		s.start[k+1] = s.start[k] + (k - s.first[k])
	}
	s.env = make([]float64, s.start[n])
	s.diag = make([]float64, n)
	s.rhs = make([]float64, n)
	s.x = make([]float64, n)
	return s, nil
}

func (s *System) Size() int { return s.n }

// EnvelopeSize is the number of stored off-diagonal entries.
func (s *System) EnvelopeSize() int { return len(s.env) }

// Reset zeroes all values while keeping the structure.
func (s *System) Reset() {
	for i := range s.env {
		s.env[i] = 0
	}
	for i := range s.diag {
		s.diag[i] = 0
		s.rhs[i] = 0
	}
}

func (s *System) AddDiag(i int, v float64) {
	s.diag[s.inv[i]] += v
}

// AddOffDiag adds v to both A[i][j] and A[j][i]. The pair must have been
// declared to NewSystem.
func (s *System) AddOffDiag(i, j int, v float64) {
	a, b := s.inv[i], s.inv[j]
	if a < b {
		a, b = b, a
	}
	if b < s.first[a] || a == b {
		panic(fmt.Sprintf("linalg: entry (%d,%d) outside declared structure", i, j))
	}
	s.env[s.start[a]+b-s.first[a]] += v
}

func (s *System) AddRHS(i int, v float64) {
	s.rhs[s.inv[i]] += v
}

// Solve factors the matrix in place (A = L L^T) and returns the solution in
// caller numbering. The returned slice is reused by the next Solve.
func (s *System) Solve() ([]float64, error) {
	n := s.n
	for i := 0; i < n; i++ {
		fi := s.first[i]
		rowI := s.env[s.start[i] : s.start[i+1]]
		for j := fi; j < i; j++ {
			fj := s.first[j]
			rowJ := s.env[s.start[j]:s.start[j+1]]
			k0 := fi
			if fj > k0 {
				k0 = fj
			}
			sum := rowI[j-fi]
			for k := k0; k < j; k++ {
				sum -= rowI[k-fi] * rowJ[k-fj]
			}
			rowI[j-fi] = sum / s.diag[j]
		}
		d := s.diag[i]
		for _, l := range rowI {
			d -= l * l
		}
		if d <= 0 || math.IsNaN(d) {
			return nil, &SingularError{Row: s.perm[i]}
		}
		s.diag[i] = math.Sqrt(d)
	}

	y := s.rhs
	for i := 0; i < n; i++ {
		fi := s.first[i]
		rowI := s.env[s.start[i]:s.start[i+1]]
		sum := y[i]
		for k, l := range rowI {
			sum -= l * y[fi+k]
		}
		y[i] = sum / s.diag[i]
	}
	for i := n - 1; i >= 0; i-- {
		y[i] /= s.diag[i]
		fi := s.first[i]
		rowI := s.env[s.start[i]:s.start[i+1]]
		for k, l := range rowI {
			y[fi+k] -= l * y[i]
		}
	}
	for k, i := range s.perm {
		s.x[i] = y[k]
	}
	return s.x, nil
}

// reverseCuthillMcKee orders every connected component breadth first from a
// pseudo-peripheral start node, visiting neighbours by increasing degree, and
// reverses the result.
func reverseCuthillMcKee(adj [][]int) []int {
	n := len(adj)
	for _, nb := range adj {
		sort.Slice(nb, func(a, b int) bool {
			if len(adj[nb[a]]) != len(adj[nb[b]]) {
				return len(adj[nb[a]]) < len(adj[nb[b]])
			}
			return nb[a] < nb[b]
		})
	}
	visited := make([]bool, n)
	order := make([]int, 0, n)
	for {
		root := -1
		for i := 0; i < n; i++ {
			if !visited[i] && (root < 0 || len(adj[i]) < len(adj[root])) {
				root = i
			}
		}
		if root < 0 {
			break
		}
		root = peripheral(adj, root)
		visited[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					queue = append(queue, w)
				}
			}
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// peripheral walks to a node of maximal eccentricity within root's component
// (George-Liu heuristic).
func peripheral(adj [][]int, root int) int {
	best, bestDepth := root, -1
	for iter := 0; iter < 8; iter++ {
		last, depth := levels(adj, best)
		if depth <= bestDepth {
			break
		}
		bestDepth = depth
		best = last
	}
	return best
}

// levels returns a minimum-degree node in the deepest BFS level and the depth.
func levels(adj [][]int, root int) (int, int) {
	dist := map[int]int{root: 0}
	frontier := []int{root}
	depth := 0
	for {
		var next []int
		for _, v := range frontier {
			for _, w := range adj[v] {
				if _, ok := dist[w]; !ok {
					dist[w] = depth + 1
					next = append(next, w)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		depth++
		frontier = next
	}
	pick := frontier[0]
	for _, v := range frontier[1:] {
		if len(adj[v]) < len(adj[pick]) {
			pick = v
		}
	}
	return pick, depth
}
