// Package sampler implements the collapsed-Gibbs kernel: the per-gene-
// copy conditional resample, the Metropolis update of the admixture
// concentration α, and the β=1 Q-row generator that feeds the
// label-alignment module.
package sampler

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/thierrygosselin/MavericK/rng"
	"github.com/thierrygosselin/MavericK/sstats"
)

// Kernel bundles the mutable statistics store with the RNG stream and
// the Metropolis proposal tuning for one chain. It holds no state of
// its own beyond a reusable weight-vector scratch buffer.
type Kernel struct {
	S      *sstats.Store
	Stream *rng.Stream

	// AlphaPropSD is the standard deviation of the Metropolis proposal
	// N(0, AlphaPropSD^2) for alpha (§4.3). Unused when FixAlpha is true.
	AlphaPropSD float64
	FixAlpha    bool

	weights []float64 // scratch, length K, fully overwritten every draw
}

// NewKernel constructs a Kernel over store s.
func NewKernel(s *sstats.Store, stream *rng.Stream, alphaPropSD float64, fixAlpha bool) *Kernel {
	return &Kernel{
		S:           s,
		Stream:      stream,
		AlphaPropSD: alphaPropSD,
		FixAlpha:    fixAlpha,
		weights:     make([]float64, s.K),
	}
}

// GroupUpdate resamples Group[g] for every gene copy in canonical
// order (§4.2). Each draw's weight vector is computed fresh from the
// current counts immediately before the draw — per the spec's open
// question, the admixture-factor denominator is constant in k within
// one draw and is safely omitted, but the weights themselves must
// never be reused across gene copies.
func (k *Kernel) GroupUpdate() {
	s := k.S
	for g := 0; g < s.G; g++ {
		s.Detach(g)
		k.fillWeights(g)
		newK := k.Stream.Categorical(k.weights)
		s.Attach(g, newK)
	}
}

// fillWeights writes the unnormalized deme weights for gene copy g
// (already detached from the counts) into k.weights, at the chain's
// thermodynamic beta.
func (k *Kernel) fillWeights(g int) {
	k.fillWeightsAtBeta(g, k.S.Beta)
}

// fillWeightsAtBeta is the shared body of GroupUpdate's weight vector
// (beta = s.Beta) and ProduceQMatrix's (beta = 1, i.e. the exponent
// dropped per §4.4): w[k] = (admixCounts[i][k]+alpha) * p_allele^beta,
// or just admixCounts[i][k]+alpha when the observation is missing.
func (k *Kernel) fillWeightsAtBeta(g int, beta float64) {
	s := k.S
	i := s.GeneIndividual(g)
	obs := s.Observation(g)
	if obs == 0 {
		for kk := 0; kk < s.K; kk++ {
			k.weights[kk] = float64(s.AdmixCounts[i][kk]) + s.Alpha
		}
		return
	}
	lo := s.GeneLocus(g)
	a := obs - 1
	jl := s.J[lo]
	for kk := 0; kk < s.K; kk++ {
		logNum := s.LogCount(s.AlleleCounts[kk][lo][a], 1)
		logDenom := s.LogCount(s.AlleleCountsTotal[kk][lo], jl)
		pAlleleBeta := math.Exp(beta * (logNum - logDenom))
		k.weights[kk] = (float64(s.AdmixCounts[i][kk]) + s.Alpha) * pAlleleBeta
	}
}

// ProduceQMatrix computes, for every gene copy, the beta=1 leave-one-
// out conditional probability over demes (§4.4): the same quantity as
// GroupUpdate's weight vector but without the thermodynamic exponent,
// normalized to sum to 1. Group[g] itself is left unchanged — the gene
// copy is detached only to compute the leave-one-out counts and
// reattached to its original deme immediately after.
func (k *Kernel) ProduceQMatrix() {
	s := k.S
	for g := 0; g < s.G; g++ {
		current := s.Group[g]
		s.Detach(g)
		k.fillWeightsAtBeta(g, 1)
		total := floats.Sum(k.weights)
		for kk := 0; kk < s.K; kk++ {
			q := k.weights[kk] / total
			s.QNew[g][kk] = q
			s.LogQNew[g][kk] = math.Log(q)
		}
		s.Attach(g, current)
	}
}

// AlphaUpdate performs one Metropolis step on the admixture
// concentration alpha (§4.3). It is a no-op when FixAlpha is set.
func (k *Kernel) AlphaUpdate() {
	if k.FixAlpha {
		return
	}
	s := k.S
	current := s.Alpha
	proposal := reflectAlpha(current + k.Stream.Normal(k.AlphaPropSD))
	if proposal == 0 {
		proposal = 1e-300
	}

	logRatio := logPAlpha(s, proposal) - logPAlpha(s, current)
	if math.Log(k.Stream.Uniform()) < logRatio {
		s.Alpha = proposal
	}
}

// reflectAlpha implements the two-step boundary reflection of §4.3:
// first a modular wrap into [-10,20] (by repeatedly adding or
// subtracting 20), then a fold of [-10,0) and (10,20] back into [0,10]
// by negation or 20-x.
func reflectAlpha(x float64) float64 {
	for x < -10 {
		x += 20
	}
	for x > 20 {
		x -= 20
	}
	if x < 0 {
		x = -x
	}
	if x > 10 {
		x = 20 - x
	}
	return x
}

// logPAlpha is the Dirichlet-multinomial marginal over admixture
// assignments only (§4.3), the quantity the Metropolis ratio compares
// at the current and proposed alpha.
func logPAlpha(s *sstats.Store, alpha float64) float64 {
	kAlpha := float64(s.K) * alpha
	lgKAlpha := rng.LogGamma(kAlpha)
	lgAlpha := rng.LogGamma(alpha)
	var total float64
	for i := 0; i < s.N; i++ {
		total += lgKAlpha - rng.LogGamma(float64(s.AdmixCountsTotal[i])+kAlpha)
		for k := 0; k < s.K; k++ {
			total += rng.LogGamma(float64(s.AdmixCounts[i][k])+alpha) - lgAlpha
		}
	}
	return total
}
