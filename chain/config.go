package chain

import (
	"errors"
	"fmt"
)

// Sentinel configuration errors, mirroring gonum's own package-level
// sentinel style (mat.ErrSingular and friends) rather than a single
// generic "invalid config" value, so callers can test for the exact
// violated constraint.
var (
	ErrInvalidK           = errors.New("chain: K must be >= 1")
	ErrInvalidLambda      = errors.New("chain: lambda must be > 0")
	ErrInvalidAlpha       = errors.New("chain: alpha must be in (0,10]")
	ErrInvalidAlphaPropSD = errors.New("chain: alphaPropSD must be > 0 unless fixAlpha is set")
	ErrInvalidBeta        = errors.New("chain: beta must be in (0,1]")
	ErrInvalidBurnin      = errors.New("chain: burnin must be >= 0")
	ErrInvalidSamples     = errors.New("chain: samples must be >= 1")
	ErrInvalidThinning    = errors.New("chain: thinning must be >= 1")
	ErrInvalidPloidy      = errors.New("chain: every ploidy[i] must be >= 1")
	ErrInvalidJ           = errors.New("chain: every J[l] must be >= 1")
	ErrDataShape          = errors.New("chain: data does not match N/L/ploidy shape")
)

// Config carries every tunable of one chain (§6/§7 of the chain
// specification). Reading these from a parameter file or the command
// line is an outer concern and out of scope here; Config is the
// boundary an external configuration layer populates.
type Config struct {
	N, L int
	K    int

	Ploidy []int
	J      []int
	Data   [][][]int

	Lambda      float64
	Alpha       float64
	AlphaPropSD float64
	Beta        float64
	FixAlpha    bool

	Burnin   int
	Samples  int
	Thinning int

	FixLabels bool
	DrawFreqs bool

	Seed int64

	MainRep int // 0-based replicate index, written as mainRep+1 in output rows
}

// Validate reports the first configuration-error class violated (§7).
// It never inspects Data for per-element validity (a data error, out
// of scope — the external loader is responsible for well-formed
// inputs); it only checks the shape-consistency a constructor can
// cheaply confirm.
func (c *Config) Validate() error {
	if c.K < 1 {
		return ErrInvalidK
	}
	if c.Lambda <= 0 {
		return ErrInvalidLambda
	}
	if c.Alpha <= 0 || c.Alpha > 10 {
		return ErrInvalidAlpha
	}
	if !c.FixAlpha && c.AlphaPropSD <= 0 {
		return ErrInvalidAlphaPropSD
	}
	if c.Beta <= 0 || c.Beta > 1 {
		return ErrInvalidBeta
	}
	if c.Burnin < 0 {
		return ErrInvalidBurnin
	}
	if c.Samples < 1 {
		return ErrInvalidSamples
	}
	if c.Thinning < 1 {
		return ErrInvalidThinning
	}
	if len(c.Ploidy) != c.N {
		return fmt.Errorf("%w: len(ploidy)=%d, N=%d", ErrDataShape, len(c.Ploidy), c.N)
	}
	for _, p := range c.Ploidy {
		if p < 1 {
			return ErrInvalidPloidy
		}
	}
	if len(c.J) != c.L {
		return fmt.Errorf("%w: len(J)=%d, L=%d", ErrDataShape, len(c.J), c.L)
	}
	for _, j := range c.J {
		if j < 1 {
			return ErrInvalidJ
		}
	}
	if len(c.Data) != c.N {
		return fmt.Errorf("%w: len(data)=%d, N=%d", ErrDataShape, len(c.Data), c.N)
	}
	for i, row := range c.Data {
		if len(row) != c.L {
			return fmt.Errorf("%w: individual %d has %d loci, want %d", ErrDataShape, i, len(row), c.L)
		}
		for l, slots := range row {
			if len(slots) != c.Ploidy[i] {
				return fmt.Errorf("%w: individual %d locus %d has %d slots, want ploidy %d", ErrDataShape, i, l, len(slots), c.Ploidy[i])
			}
		}
	}
	return nil
}
