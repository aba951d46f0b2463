// Package rng provides the single RNG stream and the special functions
// the sampler draws on: uniform, standard-normal, univariate-gamma and
// categorical sampling, plus log-gamma and a numerically stable
// pairwise log-sum-exp.
//
// A Stream wraps a *math/rand.Rand the way gonum's own distuv.Gamma and
// distuv.Binomial wrap a Source *rand.Rand: callers get a struct with
// methods, never a package-level global, so that two chains with
// distinct seeds never share state (§5 of the chain specification).
package rng

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Stream is the one logical RNG a chain owns for its entire lifetime.
// All draws — categorical, normal, uniform, gamma — consume from this
// stream in the order the driver loop dictates, so that two chains
// built with NewStream(sameSeed) produce bit-identical traces.
type Stream struct {
	r *rand.Rand
}

// NewStream seeds a new stream. Two streams built from the same seed
// draw identical sequences.
func NewStream(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// Uniform draws u ~ Uniform(0,1).
func (s *Stream) Uniform() float64 {
	return s.r.Float64()
}

// Normal draws x ~ N(0, sigma^2).
func (s *Stream) Normal(sigma float64) float64 {
	return s.r.NormFloat64() * sigma
}

// Gamma draws x ~ Gamma(shape=alpha, rate=1), i.e. density
// x^(alpha-1) e^(-x) / Gamma(alpha).
//
// Ported from the rejection samplers in the teacher's distuv.Gamma.Rand
// (ratio-of-uniforms on the log scale for alpha<1, Martino-Luengo 2013 squeeze-and-reject for
// alpha>1, plain exponential for alpha==1), specialized to rate=1 since
// every gamma draw the sampler needs (allele and admixture frequency
// posteriors, §4.6) uses rate 1.
func (s *Stream) Gamma(alpha float64) float64 {
	if alpha <= 0 {
		panic("rng: gamma alpha <= 0")
	}
	switch {
	case alpha == 1:
		return s.r.ExpFloat64()
	case alpha < 1:
		umax := math.Pow(alpha/math.E, alpha/2)
		vmin := -2 / math.E
		vmax := 2 * alpha / math.E / (math.E - alpha)
		var t, t1 float64
		for {
			u := umax * s.r.Float64()
			t = (s.r.Float64()*(vmax-vmin) + vmin) / u
			t1 = math.Exp(t / alpha)
			if 2*math.Log(u) <= t-t1 {
				break
			}
		}
		return t1
	default: // alpha > 1
		ap := math.Floor(alpha)
		var bp, lkp float64
		if ap == 1 {
			bp = 1 / alpha
			lkp = (1 - alpha) + (alpha-1)*alpha
		} else {
			bp = (ap - 1) / (alpha - 1)
			lkp = (ap - alpha) + (alpha-ap)*(alpha-1)
		}
		for {
			x := s.r.ExpFloat64()
			for i := 1; i < int(ap); i++ {
				x += s.r.ExpFloat64()
			}
			x /= bp
			lx := math.Log(x)
			lpx := (alpha-1)*lx - x
			lpix := lkp + (ap-1)*lx - bp*x
			if s.r.Float64() < math.Exp(lpx-lpix) {
				return x
			}
		}
	}
}

// Categorical draws an index in [0,len(w)) with probability
// proportional to w[k]. It implements the canonical sampler described
// in §4.2: a cumulative scan against u*sum(w). w must contain at least
// one strictly positive entry; Categorical panics if the total is not
// strictly positive (a weight vector summing to zero is a sampler bug,
// never a legitimate draw, per §7).
func (s *Stream) Categorical(w []float64) int {
	total := floats.Sum(w)
	if !(total > 0) {
		panic("rng: categorical weights sum to non-positive value")
	}
	target := s.r.Float64() * total
	var cum float64
	for k, wk := range w {
		cum += wk
		if target < cum {
			return k
		}
	}
	return len(w) - 1
}

// LogGamma is the natural log of the gamma function, lgamma(x).
func LogGamma(x float64) float64 {
	lg, _ := math.Lgamma(x)
	return lg
}

// LogSum computes log(e^a + e^b) in a numerically stable way, by
// delegating to gonum's floats.LogSumExp over the two-element slice.
func LogSum(a, b float64) float64 {
	return floats.LogSumExp([]float64{a, b})
}
