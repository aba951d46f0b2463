// Package assign solves the minimum-cost perfect matching on a square
// real cost matrix (the assignment problem), via the Kuhn-Munkres
// (Hungarian) algorithm.
//
// No library in the example pack implements combinatorial assignment;
// gonum's graph packages solve shortest paths and flows but not
// bipartite minimum-cost matching, so this package is written directly
// against the classical primal-dual algorithm, using gonum's mat.Dense
// for the cost matrix the way the rest of this module represents dense
// numeric tables.
package assign

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotSquare is returned when the cost matrix is not square.
var ErrNotSquare = errors.New("assign: cost matrix is not square")

// Solve finds the permutation perm minimizing
//
//	sum_k cost.At(k, perm[k])
//
// over all permutations of {0,...,n-1}, where cost is an n x n matrix.
// It implements the Jonker-Volgenant-style primal-dual (shortest
// augmenting path with reduced costs) variant of the Hungarian
// algorithm, O(n^3).
func Solve(cost *mat.Dense) ([]int, error) {
	n, m := cost.Dims()
	if n != m {
		return nil, ErrNotSquare
	}
	if n == 0 {
		return nil, nil
	}

	const inf = math.MaxFloat64 / 4

	// u, v are the dual potentials for rows and columns (1-indexed
	// internally, slot 0 unused, to match the textbook formulation of
	// the algorithm cleanly).
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	// p[j] = row currently assigned to column j (1-indexed); way[j]
	// records the predecessor column on the augmenting path.
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minV := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minV {
			minV[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minV[j] {
					minV[j] = cur
					way[j] = j0
				}
				if minV[j] < delta {
					delta = minV[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minV[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	perm := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] == 0 {
			return nil, errors.New("assign: solver failed to produce a valid permutation")
		}
		perm[p[j]-1] = j - 1
	}
	return perm, nil
}
