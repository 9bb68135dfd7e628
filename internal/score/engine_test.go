package score

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"strings"
	"testing"

	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// cost of the species tree with subtree regrafted above target, computed
// from scratch
func bruteForceRegraft(t *testing.T, s *gr.SpeciesTree, genes []*gr.GeneTree, subtree, target int, reroot bool, opts ...ScoreOptions) float64 {
	t.Helper()
	moved := s.Clone()
	if err := moved.MoveSubtree(subtree, target); err != nil {
		t.Fatalf("moving %d above %d: %s", subtree, target, err)
	}
	clones := cloneGenes(genes)
	for _, g := range clones {
		g.Unrooted = g.Unrooted && reroot
	}
	costs, err := GeneTreeCosts(moved, clones, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return Total(costs)
}

func TestRegraftCostsMatchBruteForce(t *testing.T) {
	testCases := []struct {
		name     string
		nSpecies int
		unrooted bool
		reroot   bool
		limit    bool
		partial  bool
	}{
		{name: "rooted", nSpecies: 6},
		{name: "rooted limited", nSpecies: 6, limit: true},
		{name: "unrooted at current rooting", nSpecies: 6, unrooted: true},
		{name: "unrooted every rooting", nSpecies: 6, unrooted: true, reroot: true},
		{name: "unrooted every rooting limited", nSpecies: 7, unrooted: true, reroot: true, limit: true},
		{name: "partial species tree", nSpecies: 6, partial: true},
	}
	weights := []float64{1, 0.5, 2}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(17))
			names := speciesNames(test.nSpecies)
			opts := []ScoreOptions{WithLimit(test.limit)}
			if test.partial {
				opts = append(opts, WithPartialTrees())
			}
			for trial := range 8 {
				speciesLabels := names
				if test.partial {
					speciesLabels = names[:test.nSpecies-2]
				}
				s := parseSpecies(t, randomNewick(rng, speciesLabels))
				genes := make([]*gr.GeneTree, 3)
				for i := range genes {
					labels := randomGeneLabels(rng, names, 4+rng.Intn(6))
					genes[i] = parseGene(t, s, randomNewick(rng, labels), test.unrooted, weights[i])
				}
				for j := range s.Nodes {
					if j == s.Root {
						continue
					}
					pruned := s.Clone()
					if err := pruned.MoveSubtree(j, pruned.Root); err != nil {
						t.Fatal(err)
					}
					e, err := NewEngine(pruned, cloneGenes(genes), opts...)
					if err != nil {
						t.Fatal(err)
					}
					e.RegraftCosts(j, test.reroot)
					pruned.PostOrderFrom(pruned.Sibling(j), func(x int) {
						got := e.RegraftCost(x)
						want := bruteForceRegraft(t, s, genes, j, x, test.reroot, opts...)
						if math.Abs(got-want) > 1e-9 {
							t.Errorf("trial %d: regrafting %d above %d costs %f, expected %f in %s",
								trial, j, x, got, want, s.Newick())
						}
					})
				}
			}
		})
	}
}

func TestRegraftCostsKeepRooting(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	names := speciesNames(6)
	s := parseSpecies(t, randomNewick(rng, names))
	g := parseGene(t, s, randomNewick(rng, randomGeneLabels(rng, names, 8)), true, 1)
	before := g.Newick()
	j := s.Child(s.Root, 0)
	e, err := NewEngine(s, []*gr.GeneTree{g})
	if err != nil {
		t.Fatal(err)
	}
	e.RegraftCosts(j, true)
	if after := g.Newick(); after != before {
		t.Errorf("scoring every rooting left the gene tree as %s, expected %s", after, before)
	}
}

func TestEngineBestRooting(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	names := speciesNames(6)
	for range 10 {
		s := parseSpecies(t, randomNewick(rng, names))
		genes := make([]*gr.GeneTree, 2)
		for i := range genes {
			genes[i] = parseGene(t, s, randomNewick(rng, randomGeneLabels(rng, names, 7)), true, 1)
		}
		costs, err := GeneTreeCosts(s, cloneGenes(genes))
		if err != nil {
			t.Fatal(err)
		}
		e, err := NewEngine(s, genes)
		if err != nil {
			t.Fatal(err)
		}
		e.BestRooting()
		if got, want := e.Cost(), Total(costs); got != want {
			t.Errorf("cost after rerooting is %f, expected %f", got, want)
		}
	}
}

func TestForEachCandidate(t *testing.T) {
	testCases := []struct {
		name       string
		labeled    []string // nodes (as leaf lists) carrying constraint 1 besides the root
		candidates []string
	}{
		{
			name:       "no constraints",
			candidates: []string{"B", "B,C", "B,D", "C", "D"},
		},
		{
			name:       "constrained clade",
			labeled:    []string{"B,C"},
			candidates: []string{"B", "B,C", "C"},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			s := parseSpecies(t, "(A,((B,C),D));")
			s.EstablishOrder()
			var idx gr.LCAIndex
			idx.Preprocess(s)
			leaves := s.LeafIndex()
			node := func(names string) int {
				n := gr.None
				for _, name := range strings.Split(names, ",") {
					if n == gr.None {
						n = leaves[name]
					} else {
						n = idx.LCA(s, n, leaves[name])
					}
				}
				return n
			}
			names := make(map[int]string)
			for _, c := range []string{"B", "B,C", "B,D", "C", "D"} {
				names[node(c)] = c
			}
			for i := range s.Nodes {
				s.Nodes[i].Constraint = gr.None
			}
			if test.labeled != nil {
				s.Nodes[s.Root].Constraint = 1
				for _, l := range test.labeled {
					s.Nodes[node(l)].Constraint = 1
				}
			}
			g := parseGene(t, s, "((A,B),(C,D));", false, 1)
			e, err := NewEngine(s, []*gr.GeneTree{g})
			if err != nil {
				t.Fatal(err)
			}
			a := leaves["A"]
			e.RegraftCosts(a, false)
			got := make([]string, 0)
			e.ForEachCandidate(a, func(n int, cost float64) {
				got = append(got, names[n])
			})
			slices.Sort(got)
			if !slices.Equal(got, test.candidates) {
				t.Errorf("got candidates %v, expected %v", got, test.candidates)
			}
		})
	}
}

func TestNewEngineErrors(t *testing.T) {
	s := parseSpecies(t, "((A,B),(C,D));")
	g := parseGene(t, s, "((A,E),(C,D));", false, 1)
	if _, err := NewEngine(s, []*gr.GeneTree{g}); !errors.Is(err, ErrUnmappedLeaf) {
		t.Errorf("got error %v, expected %v", err, ErrUnmappedLeaf)
	}
	if _, err := NewEngine(s, []*gr.GeneTree{g}, WithPartialTrees()); err != nil {
		t.Errorf("got error %v in partial mode", err)
	}
}
