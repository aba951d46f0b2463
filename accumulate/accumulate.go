// Package accumulate maintains the running Q-matrix, the marginal
// (collapsed) log-likelihood summary statistics, the harmonic-mean
// evidence estimator, and the optional allele/admixture-frequency
// draws and joint log-likelihood of §4.6.
package accumulate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/thierrygosselin/MavericK/rng"
	"github.com/thierrygosselin/MavericK/sstats"
)

// Accumulator owns the post-burn-in running sums for one chain. It
// does not own the Q tensors themselves (those live in sstats.Store,
// since the sampler kernel and label-alignment module write LogQNew
// into them every iteration); it only folds LogQNew into LogQAccum and
// tracks the scalar summaries.
type Accumulator struct {
	S *sstats.Store

	NSamples int

	SumLogLikeGroup   float64
	SumLogLikeGroupSq float64
	h                 float64 // running log(sum exp(-logLikeGroup)), the harmonic-mean accumulator

	SumLogLikeJoint   float64
	SumLogLikeJointSq float64
}

// New creates an Accumulator over store s with all running sums at
// their identity values (H starts at log(0) = -Inf, per §4.6).
func New(s *sstats.Store) *Accumulator {
	return &Accumulator{S: s, h: math.Inf(-1)}
}

// LogLikeGroup computes the collapsed marginal likelihood given the
// current grouping only (§4.6), independent of any allele-frequency
// draw.
func (a *Accumulator) LogLikeGroup() float64 {
	s := a.S
	var total float64
	for k := 0; k < s.K; k++ {
		for l := 0; l < s.L; l++ {
			jLambda := float64(s.J[l]) * s.Lambda
			total += rng.LogGamma(jLambda) - rng.LogGamma(jLambda+float64(s.AlleleCountsTotal[k][l]))
			for _, c := range s.AlleleCounts[k][l] {
				total += rng.LogGamma(s.Lambda+float64(c)) - rng.LogGamma(s.Lambda)
			}
		}
	}
	return total
}

// AccumulateLikelihood folds one post-burn-in iteration's
// logLikeGroup into the running sums and harmonic-mean accumulator
// (the driver's final "if rep>=burnin: update running sums" step).
func (a *Accumulator) AccumulateLikelihood(logLikeGroup float64) {
	a.SumLogLikeGroup += logLikeGroup
	a.SumLogLikeGroupSq += logLikeGroup * logLikeGroup
	a.h = rng.LogSum(a.h, -logLikeGroup)
	a.NSamples++
}

// FoldQ folds LogQNew into LogQAccum in log-space (the driver's
// "if rep>=burnin: logQaccum += logQnew" step, run only when label
// alignment is enabled since LogQNew is only meaningful once aligned).
func (a *Accumulator) FoldQ() {
	s := a.S
	for g := 0; g < s.G; g++ {
		for k := 0; k < s.K; k++ {
			s.LogQAccum[g][k] = rng.LogSum(s.LogQAccum[g][k], s.LogQNew[g][k])
		}
	}
}

// HarmonicMeanEvidence returns log(samples) - logSumExp(-logLike_s)
// over every accumulated sample (§4.6, law L3).
func (a *Accumulator) HarmonicMeanEvidence() float64 {
	return math.Log(float64(a.NSamples)) - a.h
}

// DrawFreqs draws a fresh posterior sample of AlleleFreqs and
// AdmixFreqs via independent gamma-then-normalize (§4.6): allele
// frequencies at deme k, locus l have shape AlleleCounts[k][l][j]+
// Lambda; admixture proportions for individual i have shape
// AdmixCounts[i][k]+Alpha. Both use rate 1, so normalizing the drawn
// gamma vector yields a Dirichlet draw.
func (a *Accumulator) DrawFreqs(stream *rng.Stream) {
	s := a.S
	if s.AlleleFreqs == nil {
		s.AlleleFreqs = make([][][]float64, s.K)
		for k := range s.AlleleFreqs {
			s.AlleleFreqs[k] = make([][]float64, s.L)
			for l := range s.AlleleFreqs[k] {
				s.AlleleFreqs[k][l] = make([]float64, s.J[l])
			}
		}
	}
	if s.AdmixFreqs == nil {
		s.AdmixFreqs = make([][]float64, s.N)
		for i := range s.AdmixFreqs {
			s.AdmixFreqs[i] = make([]float64, s.K)
		}
	}

	for k := 0; k < s.K; k++ {
		for l := 0; l < s.L; l++ {
			row := s.AlleleFreqs[k][l]
			for j, c := range s.AlleleCounts[k][l] {
				row[j] = stream.Gamma(float64(c) + s.Lambda)
			}
			floats.Scale(1/floats.Sum(row), row)
		}
	}
	for i := 0; i < s.N; i++ {
		row := s.AdmixFreqs[i]
		for k := 0; k < s.K; k++ {
			row[k] = stream.Gamma(float64(s.AdmixCounts[i][k]) + s.Alpha)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
}

// LogLikeJoint computes the joint log-likelihood given the current
// AlleleFreqs/AdmixFreqs draw (§4.6), over every non-missing
// observation.
func (a *Accumulator) LogLikeJoint() float64 {
	s := a.S
	var total float64
	for i := 0; i < s.N; i++ {
		for l := 0; l < s.L; l++ {
			for p := 0; p < s.Ploidy[i]; p++ {
				obs := s.Data[i][l][p]
				if obs == 0 {
					continue
				}
				allele := obs - 1
				var mix float64
				for k := 0; k < s.K; k++ {
					mix += s.AdmixFreqs[i][k] * s.AlleleFreqs[k][l][allele]
				}
				total += math.Log(mix)
			}
		}
	}
	return total
}

// AccumulateJoint folds a post-burn-in joint log-likelihood value into
// its own running sums, mirroring SumLogLikeGroup/SumLogLikeGroupSq.
func (a *Accumulator) AccumulateJoint(logLikeJoint float64) {
	a.SumLogLikeJoint += logLikeJoint
	a.SumLogLikeJointSq += logLikeJoint * logLikeJoint
}

// MeanQGene returns the final gene-copy-level mean Q matrix,
// exp(LogQAccum - log(samples)) (§4.6).
func (a *Accumulator) MeanQGene() [][]float64 {
	s := a.S
	logSamples := math.Log(float64(a.NSamples))
	out := make([][]float64, s.G)
	for g := 0; g < s.G; g++ {
		out[g] = make([]float64, s.K)
		for k := 0; k < s.K; k++ {
			out[g][k] = math.Exp(s.LogQAccum[g][k] - logSamples)
		}
	}
	return out
}

// MeanQIndividual averages MeanQGene's rows over each individual's
// Ploidy[i]*L gene copies.
func (a *Accumulator) MeanQIndividual(meanQGene [][]float64) [][]float64 {
	s := a.S
	out := make([][]float64, s.N)
	for i := range out {
		out[i] = make([]float64, s.K)
	}
	counts := make([]int, s.N)
	for g := 0; g < s.G; g++ {
		i := s.GeneIndividual(g)
		counts[i]++
		for k := 0; k < s.K; k++ {
			out[i][k] += meanQGene[g][k]
		}
	}
	for i := range out {
		if counts[i] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[i]), out[i])
	}
	return out
}

// MeanQPopulation averages MeanQIndividual's rows within each declared
// population, as named by the external data interface's popIndex and
// uniquePops (§6).
func MeanQPopulation(meanQInd [][]float64, k int, popIndex []int, uniquePops []int) [][]float64 {
	popSlot := make(map[int]int, len(uniquePops))
	for slot, pop := range uniquePops {
		popSlot[pop] = slot
	}
	out := make([][]float64, len(uniquePops))
	counts := make([]int, len(uniquePops))
	for slot := range out {
		out[slot] = make([]float64, k)
	}
	for i, row := range meanQInd {
		slot := popSlot[popIndex[i]]
		counts[slot]++
		for kk := 0; kk < k; kk++ {
			out[slot][kk] += row[kk]
		}
	}
	for slot := range out {
		if counts[slot] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[slot]), out[slot])
	}
	return out
}
