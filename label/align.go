// Package label implements the online Stephens (2000) label-switching
// correction: build the Stephens cost matrix from the current
// iteration's Q-rows against the running alignment reference, solve it
// with the Hungarian algorithm, and rewrite every deme-labeled tensor
// consistently under the resulting permutation.
package label

import (
	"gonum.org/v1/gonum/mat"

	"github.com/thierrygosselin/MavericK/assign"
	"github.com/thierrygosselin/MavericK/rng"
	"github.com/thierrygosselin/MavericK/sstats"
)

// Align runs one iteration of the alignment step (§4.5). It assumes
// ProduceQMatrix has already populated s.QNew/s.LogQNew for this
// iteration. It permutes s.Group, s.AlleleCounts, s.AlleleCountsTotal,
// s.AdmixCounts and s.LogQNew when the optimal permutation is
// non-identity, then folds the (possibly just-permuted) LogQNew into
// LogQRunning in log-space.
func Align(s *sstats.Store) error {
	cost := buildCostMatrix(s)
	perm, err := assign.Solve(cost)
	if err != nil {
		return err
	}

	order := make([]int, s.K)
	identity := true
	for k, pk := range perm {
		order[pk] = k
		if pk != k {
			identity = false
		}
	}
	if !identity {
		applyPermutation(s, perm, order)
	}

	for g := 0; g < s.G; g++ {
		for k := 0; k < s.K; k++ {
			s.LogQRunning[g][k] = rng.LogSum(s.LogQRunning[g][k], s.LogQNew[g][k])
		}
	}
	return nil
}

// buildCostMatrix assembles C[k1][k2] = sum_g QNew[g][k1] *
// (LogQNew[g][k1] - LogQRunning[g][k2]), the KL-like (but unnormalized
// against a running log-sum rather than a true mean) ordering
// criterion of §4.5.
func buildCostMatrix(s *sstats.Store) *mat.Dense {
	cost := mat.NewDense(s.K, s.K, nil)
	for k1 := 0; k1 < s.K; k1++ {
		for k2 := 0; k2 < s.K; k2++ {
			var c float64
			for g := 0; g < s.G; g++ {
				c += s.QNew[g][k1] * (s.LogQNew[g][k1] - s.LogQRunning[g][k2])
			}
			cost.Set(k1, k2, c)
		}
	}
	return cost
}

// applyPermutation rewrites every deme-labeled tensor under perm/order
// (order is perm's inverse): group[g] <- perm(group[g]), and every
// tensor indexed by the new label k pulls its value from the old
// tensor at index order[k]. QNew and LogQRunning are deliberately not
// touched here — QNew is regenerated next iteration, and LogQRunning
// is the alignment target the permutation was chosen against.
func applyPermutation(s *sstats.Store, perm, order []int) {
	for g := 0; g < s.G; g++ {
		s.Group[g] = perm[s.Group[g]]
	}

	oldAlleleCounts := s.AlleleCounts
	oldAlleleCountsTotal := s.AlleleCountsTotal
	newAlleleCounts := make([][][]int, s.K)
	newAlleleCountsTotal := make([][]int, s.K)
	for k := 0; k < s.K; k++ {
		newAlleleCounts[k] = oldAlleleCounts[order[k]]
		newAlleleCountsTotal[k] = oldAlleleCountsTotal[order[k]]
	}
	s.AlleleCounts = newAlleleCounts
	s.AlleleCountsTotal = newAlleleCountsTotal

	for i := 0; i < s.N; i++ {
		old := s.AdmixCounts[i]
		nw := make([]int, s.K)
		for k := 0; k < s.K; k++ {
			nw[k] = old[order[k]]
		}
		s.AdmixCounts[i] = nw
	}

	for g := 0; g < s.G; g++ {
		old := s.LogQNew[g]
		nw := make([]float64, s.K)
		for k := 0; k < s.K; k++ {
			nw[k] = old[order[k]]
		}
		s.LogQNew[g] = nw
	}
}
