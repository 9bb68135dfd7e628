package infer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	pr "github.com/jsdoublel/duploss/internal/prep"
	sc "github.com/jsdoublel/duploss/internal/score"
)

func parseGenes(t *testing.T, nwks ...string) []*gr.GeneTree {
	t.Helper()
	genes := make([]*gr.GeneTree, len(nwks))
	for i, nwk := range nwks {
		tre, err := newick.NewParser(strings.NewReader(nwk)).Parse()
		if err != nil {
			t.Fatalf("invalid newick tree %s; test is written wrong", nwk)
		}
		genes[i], err = gr.GeneFromTree(tre, false, 1, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatal(err)
		}
	}
	return genes
}

func parseSpecies(t *testing.T, nwk string, genes []*gr.GeneTree) *gr.SpeciesTree {
	t.Helper()
	tre, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("invalid newick tree %s; test is written wrong", nwk)
	}
	s, err := gr.SpeciesFromTree(tre, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := pr.MapLeaves(s, genes); err != nil {
		t.Fatal(err)
	}
	return s
}

func totalCost(t *testing.T, s *gr.SpeciesTree, genes []*gr.GeneTree) float64 {
	t.Helper()
	costs, err := sc.GeneTreeCosts(s, genes)
	if err != nil {
		t.Fatal(err)
	}
	return sc.Total(costs)
}

// the optimal tree needs a second sweep only to check rerootings it has not
// tried yet
func TestSearchOnOptimalTree(t *testing.T) {
	testCases := []struct {
		name     string
		mode     sc.RerootMode
		unrooted bool
		sweeps   int
	}{
		{name: "opt rooted", mode: sc.RerootOpt, sweeps: 1},
		{name: "all rooted", mode: sc.RerootAll, sweeps: 1},
		{name: "all unrooted", mode: sc.RerootAll, unrooted: true, sweeps: 1},
		{name: "opt unrooted", mode: sc.RerootOpt, unrooted: true, sweeps: 2},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			nwk := "(((A,B),C),(D,(E,F)));"
			genes := parseGenes(t, nwk, nwk, nwk)
			genes[2].Unrooted = test.unrooted
			s := parseSpecies(t, nwk, genes)
			res, err := Infer(context.Background(), s, genes, InferOptions{Reroot: test.mode, Rng: rand.New(rand.NewSource(1))})
			if err != nil {
				t.Fatal(err)
			}
			if res.Sweeps != test.sweeps || len(res.Trace) != 1 || res.Cost != 0 {
				t.Errorf("got %d sweeps, %d trace entries and cost %f, expected %d, 1 and 0",
					res.Sweeps, len(res.Trace), res.Cost, test.sweeps)
			}
		})
	}
}

// an unrooted gene tree given at a poor rooting matches the species tree once
// rerooted; rerooting must not be mistaken for an SPR move
func TestSearchBadRooting(t *testing.T) {
	testCases := []struct {
		name   string
		mode   sc.RerootMode
		sweeps int
	}{
		{name: "opt", mode: sc.RerootOpt, sweeps: 2},
		{name: "all", mode: sc.RerootAll, sweeps: 1},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			nwk := "(((A,B),C),(D,(E,F)));"
			genes := parseGenes(t, nwk, nwk, "(A,(B,(C,(D,(E,F)))));")
			genes[2].Unrooted = true
			s := parseSpecies(t, nwk, genes)
			clusters := s.Clusters()
			res, err := Infer(context.Background(), s, genes, InferOptions{Reroot: test.mode, Rng: rand.New(rand.NewSource(1))})
			if err != nil {
				t.Fatal(err)
			}
			if res.Sweeps != test.sweeps || len(res.Trace) != 1 || res.Cost != 0 {
				t.Errorf("got %d sweeps, %d trace entries and cost %f, expected %d, 1 and 0",
					res.Sweeps, len(res.Trace), res.Cost, test.sweeps)
			}
			if got := res.Species.Clusters(); !slices.Equal(got, clusters) {
				t.Errorf("species tree changed from %v to %v", clusters, got)
			}
		})
	}
}

func TestSearchImproves(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := range 5 {
		labels := []string{"A", "B", "C", "D", "E", "F", "G"}
		nwks := make([]string, 4)
		for i := range nwks {
			nwks[i] = randomNewick(rng, labels)
		}
		genes := parseGenes(t, nwks...)
		for _, g := range genes[:2] {
			g.Unrooted = true
		}
		s := parseSpecies(t, randomNewick(rng, labels), genes)
		start := totalCost(t, s.Clone(), cloneGenes(genes))
		res, err := Infer(context.Background(), s, genes, InferOptions{Reroot: sc.RerootOpt, Rng: rng})
		if err != nil {
			t.Fatal(err)
		}
		if res.Trace[0].Cost < start {
			t.Errorf("trial %d: initial trace cost %f below the cost at the input rooting %f", trial, res.Trace[0].Cost, start)
		}
		for i := 1; i < len(res.Trace); i++ {
			if res.Trace[i].Cost > res.Trace[i-1].Cost+1e-9 {
				t.Errorf("trial %d: cost rose from %f to %f at move %d", trial, res.Trace[i-1].Cost, res.Trace[i].Cost, i)
			}
		}
		if final := totalCost(t, res.Species, cloneGenes(genes)); final > res.Cost+1e-9 {
			t.Errorf("trial %d: best rooting cost %f of the result exceeds reported cost %f", trial, final, res.Cost)
		}
		if leaves := res.Species.NLeaves(); leaves != len(labels) {
			t.Errorf("trial %d: result has %d leaves, expected %d", trial, leaves, len(labels))
		}
	}
}

func TestSearchInterrupted(t *testing.T) {
	genes := parseGenes(t, "((A,C),(B,D));")
	s := parseSpecies(t, "((A,B),(C,D));", genes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Infer(ctx, s, genes, InferOptions{Rng: rand.New(rand.NewSource(1))})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Interrupted || res.Sweeps != 0 {
		t.Errorf("got interrupted %t after %d sweeps, expected true after 0", res.Interrupted, res.Sweeps)
	}
}

func TestInferQuartet(t *testing.T) {
	for seed := range int64(10) {
		genes := parseGenes(t, "((A,C),(B,D));")
		res, err := Infer(context.Background(), nil, genes, InferOptions{Rng: rand.New(rand.NewSource(seed))})
		if err != nil {
			t.Fatal(err)
		}
		if res.Cost != 0 {
			t.Errorf("seed %d: got cost %f for %s, expected 0", seed, res.Cost, res.Species.Newick())
		}
		got := res.Species.Clusters()
		if !slices.Contains(got, "{A,C}") || !slices.Contains(got, "{B,D}") {
			t.Errorf("seed %d: got clusters %v, expected A,C and B,D", seed, got)
		}
	}
}

func TestLeafAddConstraints(t *testing.T) {
	testCases := []struct {
		name        string
		constraints [][]string
	}{
		{name: "one group", constraints: [][]string{{"A", "B"}}},
		{name: "two groups", constraints: [][]string{{"A", "D"}, {"B", "C", "E"}}},
		{name: "single taxon", constraints: [][]string{{"F"}}},
	}
	nwks := []string{"((A,C),(B,D));", "(((A,E),C),(F,D));", "((B,(E,F)),(A,(C,D)));"}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			for seed := range int64(10) {
				genes := parseGenes(t, nwks...)
				s, err := LeafAdd(genes, test.constraints, sc.RerootOpt, rand.New(rand.NewSource(seed)))
				if err != nil {
					t.Fatal(err)
				}
				got := s.Clusters()
				for _, c := range test.constraints {
					if len(c) == 1 {
						continue
					}
					group := slices.Clone(c)
					slices.Sort(group)
					if !slices.Contains(got, "{"+strings.Join(group, ",")+"}") {
						t.Errorf("seed %d: group %v is not a clade of %s", seed, group, s.Newick())
					}
				}
				if leaves := s.NLeaves(); leaves != 6 {
					t.Errorf("seed %d: got %d leaves, expected 6", seed, leaves)
				}
				for _, g := range genes {
					for _, l := range g.Leaves {
						if sp := g.Nodes[l].Species; sp == gr.None || s.Nodes[sp].Name != g.Nodes[l].Name {
							t.Errorf("seed %d: gene leaf %s mapped to species node %d", seed, g.Nodes[l].Name, sp)
						}
					}
				}
			}
		})
	}
}

func TestLeafAddRerootAll(t *testing.T) {
	for seed := range int64(10) {
		genes := parseGenes(t, "(A,(C,(B,D)));", "(B,(D,(A,C)));")
		for _, g := range genes {
			g.Unrooted = true
		}
		s, err := LeafAdd(genes, nil, sc.RerootAll, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatal(err)
		}
		if cost := totalCost(t, s, genes); cost != 0 {
			t.Errorf("seed %d: got cost %f for %s, expected 0", seed, cost, s.Newick())
		}
	}
}

func TestLeafAddErrors(t *testing.T) {
	testCases := []struct {
		name        string
		genes       []string
		constraints [][]string
		err         error
	}{
		{name: "two taxa", genes: []string{"(A,B);", "((A,B),A);"}, err: ErrTooFewTaxa},
		{name: "overlapping groups", genes: []string{"((A,C),(B,D));"}, constraints: [][]string{{"A", "B"}, {"B", "C"}}, err: pr.ErrNestedConstraints},
		{name: "unknown taxon", genes: []string{"((A,C),(B,D));"}, constraints: [][]string{{"A", "X"}}, err: pr.ErrMissingSpecies},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := LeafAdd(parseGenes(t, test.genes...), test.constraints, sc.RerootOpt, rand.New(rand.NewSource(1)))
			if !errors.Is(err, test.err) {
				t.Errorf("got error %v, expected %v", err, test.err)
			}
		})
	}
}

// random binary newick string over the given labels
func randomNewick(rng *rand.Rand, labels []string) string {
	parts := slices.Clone(labels)
	for len(parts) > 1 {
		i := rng.Intn(len(parts))
		j := rng.Intn(len(parts) - 1)
		if j >= i {
			j++
		}
		parts[i] = fmt.Sprintf("(%s,%s)", parts[i], parts[j])
		parts = append(parts[:j], parts[j+1:]...)
	}
	return parts[0] + ";"
}

func cloneGenes(genes []*gr.GeneTree) []*gr.GeneTree {
	clones := make([]*gr.GeneTree, len(genes))
	for i, g := range genes {
		clones[i] = g.Clone()
	}
	return clones
}
