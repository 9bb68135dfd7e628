package infer

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"slices"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	pr "github.com/jsdoublel/duploss/internal/prep"
	sc "github.com/jsdoublel/duploss/internal/score"
)

var ErrTooFewTaxa = errors.New("too few taxa")

// Sorted, unique gene leaf names
func TaxonNames(genes []*gr.GeneTree) []string {
	names := make([]string, 0)
	for _, g := range genes {
		for _, l := range g.Leaves {
			names = append(names, g.Nodes[l].Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

type leafAdder struct {
	species  *gr.SpeciesTree
	engine   *sc.Engine
	rng      *rand.Rand
	reroot   bool
	copies   map[string][]geneLeaf // gene leaves of each taxon
	group    map[string]int        // constraint group of each taxon
	present  []bool                // group has a member in the tree
	tieCount int
}

type geneLeaf struct {
	gene *gr.GeneTree
	leaf int
}

// Builds a species tree on all gene leaf names by inserting the taxa in
// random order, each at its cheapest position. Members of a constraint group
// are kept together once the first of them is placed. Gene leaves are
// assigned to the species leaves as they are inserted. Losses are only counted
// below species nodes holding placed taxa. With mode RerootAll unrooted gene
// trees are scored at their best rooting for every position.
func LeafAdd(genes []*gr.GeneTree, constraints [][]string, mode sc.RerootMode, rng *rand.Rand) (*gr.SpeciesTree, error) {
	names := TaxonNames(genes)
	if len(names) < 3 {
		return nil, fmt.Errorf("%w, %d distinct leaf names in the gene trees, at least 3 needed", ErrTooFewTaxa, len(names))
	}
	if err := pr.CheckConstraints(constraints, names); err != nil {
		return nil, err
	}
	la := &leafAdder{
		species: gr.NewSpeciesTree(),
		rng:     rng,
		reroot:  mode == sc.RerootAll,
		copies:  make(map[string][]geneLeaf),
		group:   make(map[string]int),
		present: make([]bool, len(constraints)),
	}
	for _, g := range genes {
		for _, l := range g.Leaves {
			g.Nodes[l].Species = gr.None
			name := g.Nodes[l].Name
			la.copies[name] = append(la.copies[name], geneLeaf{gene: g, leaf: l})
		}
	}
	for _, name := range names {
		la.group[name] = gr.None
	}
	for i, c := range sortBySize(constraints) {
		for _, name := range c {
			la.group[name] = i
		}
	}
	var err error
	la.engine, err = sc.NewEngine(la.species, genes, sc.WithPartialTrees())
	if err != nil {
		return nil, err
	}
	order := rng.Perm(len(names))
	for i, k := range order {
		la.insert(names[k])
		pr.LogEveryNPercent(i, 10, len(names), fmt.Sprintf("placed %d of %d taxa", i+1, len(names)))
	}
	log.Printf("starting tree built with %d taxa, %d placements chosen among ties", len(names), la.tieCount)
	return la.species, nil
}

// smallest groups first, so their labels are stable regardless of file order
func sortBySize(constraints [][]string) [][]string {
	sorted := slices.Clone(constraints)
	slices.SortStableFunc(sorted, func(a, b []string) int { return len(a) - len(b) })
	return sorted
}

func (la *leafAdder) insert(name string) {
	s := la.species
	group := la.group[name]
	current := gr.None
	if group != gr.None && la.present[group] {
		current = group
	}
	leaf := s.AddLeaf(name)
	s.Nodes[leaf].Constraint = group
	for _, c := range la.copies[name] {
		c.gene.Nodes[c.leaf].Species = leaf
	}
	if group != gr.None {
		la.present[group] = true
	}
	if s.Root == gr.None {
		s.Root = leaf
		return
	}
	oldRoot := s.Root
	p := s.Join(leaf, oldRoot)
	if s.Nodes[oldRoot].Constraint == group {
		s.Nodes[p].Constraint = group
	} else {
		s.Nodes[p].Constraint = gr.None
	}
	la.engine.RegraftCosts(leaf, la.reroot)
	best := math.Inf(1)
	ties := make([]int, 0)
	la.engine.ForEachCandidate(leaf, func(n int, cost float64) {
		if s.Nodes[n].Constraint != current && s.Nodes[s.Parent(n)].Constraint != current {
			return
		}
		switch {
		case cost < best:
			best = cost
			ties = append(ties[:0], n)
		case cost == best:
			ties = append(ties, n)
		}
	})
	if len(ties) == 0 {
		// the tree is a single constrained clade; the leaf goes on top
		ties = append(ties, oldRoot)
	}
	if len(ties) > 1 {
		la.tieCount++
	}
	target := ties[la.rng.Intn(len(ties))]
	if err := s.MoveSubtree(leaf, target); err != nil {
		panic(fmt.Sprintf("regraft candidate %d is invalid: %s", target, err))
	}
	if s.Nodes[target].Constraint == group {
		s.Nodes[p].Constraint = group
	} else {
		s.Nodes[p].Constraint = gr.None
	}
}
