package chain

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

func checkCountInvariants(t *testing.T, c *Chain) {
	t.Helper()
	s := c.Store
	for k := 0; k < s.K; k++ {
		for l := 0; l < s.L; l++ {
			sum := 0
			for _, v := range s.AlleleCounts[k][l] {
				sum += v
			}
			if sum != s.AlleleCountsTotal[k][l] {
				t.Errorf("P1 violated at deme %d locus %d: %d != %d", k, l, sum, s.AlleleCountsTotal[k][l])
			}
		}
	}
	for i := 0; i < s.N; i++ {
		sum := 0
		for k := 0; k < s.K; k++ {
			sum += s.AdmixCounts[i][k]
		}
		if sum != s.AdmixCountsTotal[i] {
			t.Errorf("P2 violated at individual %d: %d != %d", i, sum, s.AdmixCountsTotal[i])
		}
	}
}

// TestRunPreservesInvariantsWithLabelAlignment exercises the full
// driver loop (S1-style small inputs, extended across several
// post-burn-in samples and with label alignment enabled) and checks
// P1-P2 hold on the final state.
func TestRunPreservesInvariantsWithLabelAlignment(t *testing.T) {
	cfg := baseConfig()
	cfg.Burnin = 3
	cfg.Samples = 5
	cfg.FixLabels = true

	c, err := New(cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkCountInvariants(t, c)

	if c.Accum.NSamples != cfg.Samples {
		t.Errorf("NSamples = %d, want %d", c.Accum.NSamples, cfg.Samples)
	}
}

// TestRunAllMissingKeepsCountsZero is the S2 scenario: with every
// observation missing, the allele/admixture count tensors stay
// identically zero for the life of the chain.
func TestRunAllMissingKeepsCountsZero(t *testing.T) {
	cfg := Config{
		N: 2, L: 1, K: 3,
		Ploidy: []int{1, 1},
		J:      []int{2},
		Data:   [][][]int{{{0}}, {{0}}},

		Lambda:      1,
		Alpha:       1,
		AlphaPropSD: 0.3,
		Beta:        1,

		Burnin:   2,
		Samples:  10,
		Thinning: 1,

		FixAlpha: true,
		Seed:     7,
	}
	c, err := New(cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := c.Store
	for k := 0; k < s.K; k++ {
		for l := 0; l < s.L; l++ {
			if s.AlleleCountsTotal[k][l] != 0 {
				t.Errorf("AlleleCountsTotal[%d][%d] = %d, want 0", k, l, s.AlleleCountsTotal[k][l])
			}
		}
	}
	for i := 0; i < s.N; i++ {
		if s.AdmixCountsTotal[i] != 0 {
			t.Errorf("AdmixCountsTotal[%d] = %d, want 0", i, s.AdmixCountsTotal[i])
		}
	}
}

// TestTwoChainReplayBitIdentical is the S5 scenario: two chains built
// from identical config and seed must follow identical group traces
// and reach identical final mean-Q / accumulator state, since the
// single RNG stream per chain is the only source of randomness and it
// is seeded identically.
func TestTwoChainReplayBitIdentical(t *testing.T) {
	cfg := baseConfig()
	cfg.Burnin = 2
	cfg.Samples = 4
	cfg.FixLabels = true
	cfg.Seed = 42

	c1, err := New(cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("New c1: %v", err)
	}
	c2, err := New(cfg, zerolog.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("New c2: %v", err)
	}
	if err := c1.Run(); err != nil {
		t.Fatalf("Run c1: %v", err)
	}
	if err := c2.Run(); err != nil {
		t.Fatalf("Run c2: %v", err)
	}

	for g := 0; g < c1.Store.G; g++ {
		if c1.Store.Group[g] != c2.Store.Group[g] {
			t.Errorf("Group[%d]: %d != %d", g, c1.Store.Group[g], c2.Store.Group[g])
		}
	}
	if c1.Accum.SumLogLikeGroup != c2.Accum.SumLogLikeGroup {
		t.Errorf("SumLogLikeGroup: %v != %v", c1.Accum.SumLogLikeGroup, c2.Accum.SumLogLikeGroup)
	}
	if c1.Store.Alpha != c2.Store.Alpha {
		t.Errorf("final Alpha: %v != %v", c1.Store.Alpha, c2.Store.Alpha)
	}

	meanQ1 := c1.Accum.MeanQGene()
	meanQ2 := c2.Accum.MeanQGene()
	for g := range meanQ1 {
		for k := range meanQ1[g] {
			if meanQ1[g][k] != meanQ2[g][k] {
				t.Errorf("meanQ[%d][%d]: %v != %v", g, k, meanQ1[g][k], meanQ2[g][k])
			}
		}
	}
}

// TestRunWritesCSVStreams checks the shape of both output streams:
// one row per post-burn-in iteration, with the grouping stream's
// per-gene-copy columns converted to 1-based labels at the CSV
// boundary.
func TestRunWritesCSVStreams(t *testing.T) {
	cfg := baseConfig()
	cfg.Burnin = 1
	cfg.Samples = 3
	cfg.MainRep = 0

	var likeBuf, groupBuf bytes.Buffer
	likeW := csv.NewWriter(&likeBuf)
	groupW := csv.NewWriter(&groupBuf)

	c, err := New(cfg, zerolog.Nop(), likeW, groupW)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	likeRows, err := csv.NewReader(bytes.NewReader(likeBuf.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("reading likelihood stream: %v", err)
	}
	if len(likeRows) != cfg.Samples {
		t.Fatalf("likelihood stream has %d rows, want %d", len(likeRows), cfg.Samples)
	}
	for i, row := range likeRows {
		if len(row) != 6 {
			t.Fatalf("row %d has %d fields, want 6", i, len(row))
		}
		if row[2] != strconv.Itoa(i+1) {
			t.Errorf("row %d sample index = %q, want %q", i, row[2], strconv.Itoa(i+1))
		}
	}

	groupRows, err := csv.NewReader(bytes.NewReader(groupBuf.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("reading grouping stream: %v", err)
	}
	if len(groupRows) != cfg.Samples {
		t.Fatalf("grouping stream has %d rows, want %d", len(groupRows), cfg.Samples)
	}
	for _, row := range groupRows {
		if len(row) != 3+c.Store.G {
			t.Fatalf("grouping row has %d fields, want %d", len(row), 3+c.Store.G)
		}
		for _, field := range row[3:] {
			if field != "1" && field != "2" {
				t.Errorf("group label %q outside {1,2} (1-based conversion)", field)
			}
		}
	}
}

// TestRunManyRunsAllChainsConcurrently checks RunMany returns one nil
// error per successfully completed chain and that each chain's state
// reflects a full run having occurred.
func TestRunManyRunsAllChainsConcurrently(t *testing.T) {
	var chains []*Chain
	for seed := int64(1); seed <= 3; seed++ {
		cfg := baseConfig()
		cfg.Seed = seed
		c, err := New(cfg, zerolog.Nop(), nil, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		chains = append(chains, c)
	}

	errs := RunMany(chains)
	for i, err := range errs {
		if err != nil {
			t.Errorf("chain %d: %v", i, err)
		}
	}
	for i, c := range chains {
		if c.Accum.NSamples != chains[i].Config.Samples {
			t.Errorf("chain %d: NSamples = %d, want %d", i, c.Accum.NSamples, chains[i].Config.Samples)
		}
	}
}
