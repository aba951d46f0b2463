package accumulate

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/thierrygosselin/MavericK/rng"
	"github.com/thierrygosselin/MavericK/sstats"
)

func newStoreForAccum() *sstats.Store {
	ploidy := []int{1, 1}
	j := []int{2}
	data := [][][]int{{{1}}, {{2}}}
	return sstats.New(2, 1, 2, ploidy, j, data, 1.0, 1.0, 1.0)
}

// TestLogLikeGroupMatchesMultivariateBeta checks law L2: the
// collapsed marginal likelihood equals, analytically, the sum of
// log-multivariate-beta differences over each (k,l) count table.
func TestLogLikeGroupMatchesMultivariateBeta(t *testing.T) {
	s := newStoreForAccum()
	// deme 0 gets both genes: allele 0 count=1, allele 1 count=1.
	s.AlleleCounts[0][0][0] = 1
	s.AlleleCounts[0][0][1] = 1
	s.AlleleCountsTotal[0][0] = 2

	a := New(s)
	got := a.LogLikeGroup()

	logMultivariateBeta := func(counts []float64, lambda float64) float64 {
		var sumLg, sumC float64
		for _, c := range counts {
			sumLg += rng.LogGamma(c + lambda)
			sumC += c + lambda
		}
		return sumLg - rng.LogGamma(sumC)
	}
	want := logMultivariateBeta([]float64{1, 1}, 1) - logMultivariateBeta([]float64{0, 0}, 1)
	// deme 1 has zero counts at this locus, contributing
	// logMultivariateBeta({0,0},lambda) - logMultivariateBeta({0,0},lambda) = 0.
	want += logMultivariateBeta([]float64{0, 0}, 1) - logMultivariateBeta([]float64{0, 0}, 1)

	if !scalar.EqualWithinAbsOrRel(got, want, 1e-9, 1e-9) {
		t.Errorf("LogLikeGroup = %v, want %v", got, want)
	}
}

// TestHarmonicMeanMatchesFormula checks law L3 against a deterministic
// sequence of logLikeGroup values.
func TestHarmonicMeanMatchesFormula(t *testing.T) {
	s := newStoreForAccum()
	a := New(s)
	values := []float64{-3.1, -2.5, -4.0, -2.9}
	for _, v := range values {
		a.AccumulateLikelihood(v)
	}
	neg := make([]float64, len(values))
	for i, v := range values {
		neg[i] = -v
	}
	lse := func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs {
			if x > m {
				m = x
			}
		}
		var sum float64
		for _, x := range xs {
			sum += math.Exp(x - m)
		}
		return m + math.Log(sum)
	}
	want := math.Log(float64(len(values))) - lse(neg)
	got := a.HarmonicMeanEvidence()
	if !scalar.EqualWithinAbsOrRel(got, want, 1e-9, 1e-9) {
		t.Errorf("HarmonicMeanEvidence = %v, want %v", got, want)
	}
}

func TestMeanQGeneAfterSingleSample(t *testing.T) {
	s := newStoreForAccum()
	s.Reset(true, rng.NewStream(1).Uniform) // LogQAccum starts at log(0)
	for g := 0; g < s.G; g++ {
		s.LogQNew[g][0] = math.Log(0.75)
		s.LogQNew[g][1] = math.Log(0.25)
	}
	a := New(s)
	a.FoldQ()
	a.AccumulateLikelihood(0) // the logLikeGroup value itself is irrelevant here

	meanQ := a.MeanQGene()
	for g := range meanQ {
		if !scalar.EqualWithinAbsOrRel(meanQ[g][0], 0.75, 1e-9, 1e-9) {
			t.Errorf("meanQ[%d][0] = %v, want 0.75", g, meanQ[g][0])
		}
		if !scalar.EqualWithinAbsOrRel(meanQ[g][1], 0.25, 1e-9, 1e-9) {
			t.Errorf("meanQ[%d][1] = %v, want 0.25", g, meanQ[g][1])
		}
	}
}

func TestMeanQPopulationAveragesIndividuals(t *testing.T) {
	meanQInd := [][]float64{
		{1, 0},
		{0, 1},
		{0.5, 0.5},
	}
	popIndex := []int{7, 7, 9}
	uniquePops := []int{7, 9}
	out := MeanQPopulation(meanQInd, 2, popIndex, uniquePops)
	if !scalar.EqualWithinAbsOrRel(out[0][0], 0.5, 1e-9, 1e-9) {
		t.Errorf("pop 7, deme 0 = %v, want 0.5", out[0][0])
	}
	if !scalar.EqualWithinAbsOrRel(out[1][0], 0.5, 1e-9, 1e-9) {
		t.Errorf("pop 9, deme 0 = %v, want 0.5", out[1][0])
	}
}

func TestDrawFreqsProducesNormalizedRows(t *testing.T) {
	s := newStoreForAccum()
	s.AlleleCounts[0][0][0] = 3
	s.AlleleCounts[0][0][1] = 1
	s.AdmixCounts[0][0] = 2
	s.AdmixCounts[0][1] = 5
	a := New(s)
	stream := rng.NewStream(1)
	a.DrawFreqs(stream)

	for k := 0; k < s.K; k++ {
		for l := 0; l < s.L; l++ {
			var sum float64
			for _, v := range s.AlleleFreqs[k][l] {
				sum += v
			}
			if !scalar.EqualWithinAbsOrRel(sum, 1, 1e-9, 1e-9) {
				t.Errorf("AlleleFreqs[%d][%d] sums to %v, want 1", k, l, sum)
			}
		}
	}
	for i := 0; i < s.N; i++ {
		var sum float64
		for _, v := range s.AdmixFreqs[i] {
			sum += v
		}
		if !scalar.EqualWithinAbsOrRel(sum, 1, 1e-9, 1e-9) {
			t.Errorf("AdmixFreqs[%d] sums to %v, want 1", i, sum)
		}
	}
}
