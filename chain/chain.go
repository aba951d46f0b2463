// Package chain orchestrates one admixture-model chain: burn-in,
// thinning, per-iteration label alignment and accumulation, and the
// two optional CSV output streams (§4.7/§6 of the chain
// specification). It owns nothing that another chain could share —
// each Chain has its own store, RNG stream, and accumulator, so
// sibling chains for different K, β or replicate can run concurrently
// via RunMany.
package chain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/thierrygosselin/MavericK/accumulate"
	"github.com/thierrygosselin/MavericK/label"
	"github.com/thierrygosselin/MavericK/rng"
	"github.com/thierrygosselin/MavericK/sampler"
	"github.com/thierrygosselin/MavericK/sstats"
)

// ErrWeightCollapse is returned (never panicked across this package's
// boundary) when the sampler kernel hits a weight vector summing to a
// non-positive value mid-sweep — the "numeric hazard" class of §7.
var ErrWeightCollapse = errors.New("chain: weight vector collapsed to a non-positive sum")

// Chain bundles one instance's mutable state: the sufficient-
// statistics store, the sampler kernel, the accumulator, the RNG
// stream, and the capability objects (logger, optional CSV writers)
// it writes through. Config is copied in at construction and never
// mutated afterward except for Alpha drift inside Store.
type Chain struct {
	Config Config

	Store  *sstats.Store
	Kernel *sampler.Kernel
	Accum  *accumulate.Accumulator
	Stream *rng.Stream

	Logger zerolog.Logger

	LikelihoodWriter *csv.Writer
	GroupingWriter   *csv.Writer
}

// New validates cfg and builds a Chain ready to Run. logger may be the
// zero zerolog.Logger (writes nowhere); likelihoodW and groupingW are
// optional and independently nil-able, matching §6's "output toggles"
// — a nil writer simply means that stream is disabled for this chain.
func New(cfg Config, logger zerolog.Logger, likelihoodW, groupingW *csv.Writer) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Int("k", cfg.K).Msg("chain configuration rejected")
		return nil, err
	}

	store := sstats.New(cfg.N, cfg.L, cfg.K, cfg.Ploidy, cfg.J, cfg.Data, cfg.Lambda, cfg.Alpha, cfg.Beta)
	stream := rng.NewStream(cfg.Seed)
	kernel := sampler.NewKernel(store, stream, cfg.AlphaPropSD, cfg.FixAlpha)
	accum := accumulate.New(store)

	return &Chain{
		Config:           cfg,
		Store:            store,
		Kernel:           kernel,
		Accum:            accum,
		Stream:           stream,
		Logger:           logger,
		LikelihoodWriter: likelihoodW,
		GroupingWriter:   groupingW,
	}, nil
}

// Run executes the full burn-in/thinning/sampling loop of §4.7 and
// returns once burnin+samples outer iterations have completed, or
// aborts early (returning a non-nil error) on a Hungarian failure or
// a weight-vector collapse. It never panics across the package
// boundary: the sampler kernel's internal panic on a non-positive
// weight sum (a programmer-error-class invariant violation, the same
// convention gonum itself uses) is recovered here and converted to
// ErrWeightCollapse, consistent with §7's "per-iteration numerical
// events ... abort the chain and a diagnostic is emitted" — never the
// whole process.
func (c *Chain) Run() (err error) {
	cfg := c.Config
	s := c.Store

	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error().Interface("panic", r).Int("k", cfg.K).Msg("sampler kernel aborted chain")
			err = fmt.Errorf("%w: %v", ErrWeightCollapse, r)
		}
	}()

	s.Reset(true, c.Stream.Uniform)

	thinSwitch := 1
	total := cfg.Burnin + cfg.Samples
	for rep := 0; rep < total; rep++ {
		for t := 0; t < thinSwitch; t++ {
			c.Kernel.GroupUpdate()
			if !cfg.FixAlpha {
				c.Kernel.AlphaUpdate()
			}
		}
		if rep == cfg.Burnin {
			thinSwitch = cfg.Thinning
		}

		if cfg.FixLabels {
			c.Kernel.ProduceQMatrix()
			if err := label.Align(s); err != nil {
				c.Logger.Error().Err(err).Int("k", cfg.K).Int("rep", rep).Msg("label alignment aborted chain")
				return fmt.Errorf("chain: label alignment at rep %d: %w", rep, err)
			}
			if rep >= cfg.Burnin {
				c.Accum.FoldQ()
			}
		}

		logLikeGroup := c.Accum.LogLikeGroup()
		var logLikeJoint float64
		if cfg.DrawFreqs {
			c.Accum.DrawFreqs(c.Stream)
			logLikeJoint = c.Accum.LogLikeJoint()
		}

		if rep >= cfg.Burnin {
			c.Accum.AccumulateLikelihood(logLikeGroup)
			if cfg.DrawFreqs {
				c.Accum.AccumulateJoint(logLikeJoint)
			}
			if err := c.writeRow(rep, logLikeGroup, logLikeJoint); err != nil {
				return err
			}
		}
	}

	if c.LikelihoodWriter != nil {
		c.LikelihoodWriter.Flush()
	}
	if c.GroupingWriter != nil {
		c.GroupingWriter.Flush()
	}
	return nil
}

// writeRow emits one row to each enabled output stream for a
// post-burn-in iteration, flushing immediately per §6's "all streams
// are flushed after each write to survive crashes of concurrent
// chains". Group labels are converted from this module's internal
// 0-based convention to the CSV boundary's 1-based convention here,
// and nowhere else (§9 Design Notes).
func (c *Chain) writeRow(rep int, logLikeGroup, logLikeJoint float64) error {
	cfg := c.Config
	sampleIdx := rep - cfg.Burnin + 1

	if c.LikelihoodWriter != nil {
		row := []string{
			strconv.Itoa(cfg.K),
			strconv.Itoa(cfg.MainRep + 1),
			strconv.Itoa(sampleIdx),
			strconv.FormatFloat(logLikeGroup, 'g', -1, 64),
			strconv.FormatFloat(logLikeJoint, 'g', -1, 64),
			strconv.FormatFloat(c.Store.Alpha, 'g', -1, 64),
		}
		if err := c.LikelihoodWriter.Write(row); err != nil {
			return fmt.Errorf("chain: writing likelihood row: %w", err)
		}
		c.LikelihoodWriter.Flush()
		if err := c.LikelihoodWriter.Error(); err != nil {
			return fmt.Errorf("chain: flushing likelihood stream: %w", err)
		}
	}

	if c.GroupingWriter != nil {
		row := make([]string, 0, 3+c.Store.G)
		row = append(row, strconv.Itoa(cfg.K), strconv.Itoa(cfg.MainRep+1), strconv.Itoa(sampleIdx))
		for g := 0; g < c.Store.G; g++ {
			row = append(row, strconv.Itoa(c.Store.Group[g]+1))
		}
		if err := c.GroupingWriter.Write(row); err != nil {
			return fmt.Errorf("chain: writing grouping row: %w", err)
		}
		c.GroupingWriter.Flush()
		if err := c.GroupingWriter.Error(); err != nil {
			return fmt.Errorf("chain: flushing grouping stream: %w", err)
		}
	}
	return nil
}

// RunMany runs every chain in chains to completion concurrently (§5's
// "embarrassingly parallel across chains" model — the only
// concurrency surface this package permits) and returns their errors
// in the same order, one slot per chain, nil where a chain succeeded.
func RunMany(chains []*Chain) []error {
	errs := make([]error, len(chains))
	var wg sync.WaitGroup
	wg.Add(len(chains))
	for i, ch := range chains {
		go func(i int, ch *Chain) {
			defer wg.Done()
			errs[i] = ch.Run()
		}(i, ch)
	}
	wg.Wait()
	return errs
}
