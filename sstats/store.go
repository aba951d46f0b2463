// Package sstats owns the co-maintained sufficient-statistics tensors
// of one admixture chain: the deme assignment of every gene copy, the
// per-deme allele-count tables, the per-individual admixture-count
// tables, and the running/current/accumulated Q-matrices in log space.
//
// The sampler kernel changes the count tensors only through
// Detach/Attach (the decrement-then-increment pair that keeps
// invariants I1-I3 of the chain specification local to one file),
// following the Design Notes' guidance to isolate count-tensor
// mutation behind a small API rather than inlining it at every call
// site. Reset rebuilds them from scratch, and the label-alignment
// module permutes their deme rows directly.
package sstats

import "math"

// geneCopy is one entry of the canonical g -> (individual, locus,
// ploidy-slot) mapping. Computing this once at construction time,
// rather than re-deriving it with nested loop counters on every sweep,
// avoids the desynchronized-index bug the Design Notes call out.
type geneCopy struct {
	Ind, Locus, Slot int
}

// Store holds every mutable tensor of one chain, sized for a fixed
// (N, L, J, K) problem.
type Store struct {
	N, L, K int
	Ploidy  []int
	J       []int
	Data    [][][]int // Data[i][l][p]; 0 means missing

	Lambda float64
	Alpha  float64
	Beta   float64

	G         int
	geneIndex []geneCopy

	Group []int // Group[g] in {0,...,K-1}

	AlleleCounts      [][][]int // [k][l][j], j in {0,...,J[l]-1}
	AlleleCountsTotal [][]int   // [k][l]
	AdmixCounts       [][]int   // [i][k]
	AdmixCountsTotal  []int     // [i]

	AlleleFreqs [][][]float64 // [k][l][j], optional posterior draw
	AdmixFreqs  [][]float64   // [i][k], optional posterior draw

	LogQRunning [][]float64 // [g][k], Stephens alignment reference
	LogQNew     [][]float64 // [g][k], this iteration's Q row
	QNew        [][]float64 // [g][k], normalized probability form of LogQNew
	LogQAccum   [][]float64 // [g][k], post-burn-in running sum

	logTable [][]float64 // logTable[i][j] = log(i + j*Lambda), i<1000
}

const logTableMaxI = 1000

// New allocates a Store for the given problem size. ploidy and J are
// retained by reference; data is retained by reference (callers must
// not mutate it concurrently with chain execution, per the single-
// threaded-per-chain model in §5).
func New(n, l, k int, ploidy []int, j []int, data [][][]int, lambda, alpha, beta float64) *Store {
	s := &Store{
		N: n, L: l, K: k,
		Ploidy: ploidy, J: j, Data: data,
		Lambda: lambda, Alpha: alpha, Beta: beta,
	}

	for i := 0; i < n; i++ {
		for lo := 0; lo < l; lo++ {
			for p := 0; p < ploidy[i]; p++ {
				s.geneIndex = append(s.geneIndex, geneCopy{Ind: i, Locus: lo, Slot: p})
			}
		}
	}
	s.G = len(s.geneIndex)

	s.Group = make([]int, s.G)

	s.AlleleCounts = make([][][]int, k)
	s.AlleleCountsTotal = make([][]int, k)
	for ki := 0; ki < k; ki++ {
		s.AlleleCounts[ki] = make([][]int, l)
		s.AlleleCountsTotal[ki] = make([]int, l)
		for lo := 0; lo < l; lo++ {
			s.AlleleCounts[ki][lo] = make([]int, j[lo])
		}
	}

	s.AdmixCounts = make([][]int, n)
	s.AdmixCountsTotal = make([]int, n)
	for i := 0; i < n; i++ {
		s.AdmixCounts[i] = make([]int, k)
	}

	s.LogQRunning = make([][]float64, s.G)
	s.LogQNew = make([][]float64, s.G)
	s.QNew = make([][]float64, s.G)
	s.LogQAccum = make([][]float64, s.G)
	for g := 0; g < s.G; g++ {
		s.LogQRunning[g] = make([]float64, k)
		s.LogQNew[g] = make([]float64, k)
		s.QNew[g] = make([]float64, k)
		s.LogQAccum[g] = make([]float64, k)
	}

	jMax := 0
	for _, jl := range j {
		if jl > jMax {
			jMax = jl
		}
	}
	s.logTable = make([][]float64, logTableMaxI)
	for i := 0; i < logTableMaxI; i++ {
		s.logTable[i] = make([]float64, jMax+1)
		for jj := 0; jj <= jMax; jj++ {
			s.logTable[i][jj] = math.Log(float64(i) + float64(jj)*lambda)
		}
	}

	return s
}

// GeneIndividual, GeneLocus and GeneSlot expose the canonical
// g -> (i,l,p) mapping to callers outside the package (the sampler
// kernel and the Q-row generator).
func (s *Store) GeneIndividual(g int) int { return s.geneIndex[g].Ind }
func (s *Store) GeneLocus(g int) int      { return s.geneIndex[g].Locus }
func (s *Store) GeneSlot(g int) int       { return s.geneIndex[g].Slot }

// Observation returns the raw allele code at gene copy g (0 = missing).
func (s *Store) Observation(g int) int {
	gc := s.geneIndex[g]
	return s.Data[gc.Ind][gc.Locus][gc.Slot]
}

// LogCount evaluates log(i + j*Lambda) via the precomputed cache when
// i is small enough, falling back to math.Log otherwise. Per the
// Design Notes this cache is a pure optimization: behavior is
// identical whether or not it is consulted. The sampler uses this for
// the log terms of the allele factor in its conditional-posterior
// weight (§4.2).
func (s *Store) LogCount(i, j int) float64 {
	if i >= 0 && i < logTableMaxI && j >= 0 && j < len(s.logTable[0]) {
		return s.logTable[i][j]
	}
	return math.Log(float64(i) + float64(j)*s.Lambda)
}

// Reset re-randomizes the assignment of every gene copy uniformly over
// {0,...,K-1}, rebuilds every count tensor from scratch by a single
// pass over Data, and zeros the accumulators (§4.1). When
// resetQRunning is true, LogQRunning is reset to log(1/K) everywhere,
// making a uniform Q the Stephens alignment reference; a warm restart
// (same chain, e.g. after changing thinning) can pass false to keep
// accumulated alignment history.
func (s *Store) Reset(resetQRunning bool, uniform func() float64) {
	for ki := range s.AlleleCounts {
		for lo := range s.AlleleCounts[ki] {
			for jj := range s.AlleleCounts[ki][lo] {
				s.AlleleCounts[ki][lo][jj] = 0
			}
			s.AlleleCountsTotal[ki][lo] = 0
		}
	}
	for i := range s.AdmixCounts {
		for ki := range s.AdmixCounts[i] {
			s.AdmixCounts[i][ki] = 0
		}
		s.AdmixCountsTotal[i] = 0
	}

	for g := 0; g < s.G; g++ {
		s.Group[g] = int(uniform() * float64(s.K))
		if s.Group[g] >= s.K { // guard the u==1 edge case
			s.Group[g] = s.K - 1
		}
		if obs := s.Observation(g); obs != 0 {
			s.attachUnconditional(g, s.Group[g])
		}
	}

	negLogK := -math.Log(float64(s.K))
	for g := 0; g < s.G; g++ {
		for ki := 0; ki < s.K; ki++ {
			s.LogQNew[g][ki] = 0
			s.QNew[g][ki] = 0
			s.LogQAccum[g][ki] = math.Inf(-1)
			if resetQRunning {
				s.LogQRunning[g][ki] = negLogK
			}
		}
	}
}

// Detach removes gene copy g from the count tensors under its current
// Group[g] assignment. It is a no-op when the observation is missing,
// per §4.2 step 1. Callers resample Group[g] between Detach and the
// matching Attach.
func (s *Store) Detach(g int) {
	if s.Observation(g) == 0 {
		return
	}
	k := s.Group[g]
	i := s.GeneIndividual(g)
	lo := s.GeneLocus(g)
	a := s.Observation(g) - 1
	s.AlleleCounts[k][lo][a]--
	s.AlleleCountsTotal[k][lo]--
	s.AdmixCounts[i][k]--
	s.AdmixCountsTotal[i]--
}

// Attach adds gene copy g into the count tensors under deme k and sets
// Group[g] = k. It is a no-op on the count tensors (but still sets
// Group[g]) when the observation is missing.
func (s *Store) Attach(g, k int) {
	s.Group[g] = k
	if s.Observation(g) == 0 {
		return
	}
	s.attachUnconditional(g, k)
}

// attachUnconditional increments the count tensors for a gene copy
// already known to be non-missing, without touching Group[g] (used by
// Reset, which sets Group[g] itself).
func (s *Store) attachUnconditional(g, k int) {
	i := s.GeneIndividual(g)
	lo := s.GeneLocus(g)
	a := s.Observation(g) - 1
	s.AlleleCounts[k][lo][a]++
	s.AlleleCountsTotal[k][lo]++
	s.AdmixCounts[i][k]++
	s.AdmixCountsTotal[i]++
}
