// Package scoring species trees by the number of gene duplications and losses
// needed to reconcile a set of gene trees with them
package score

import (
	"fmt"

	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// Per species node state of one scoring round
type nodeState struct {
	score         float64 // duplications when regrafting above this node
	tempScore     float64 // duplications of the best rooting seen so far
	lossScore     float64 // losses when regrafting above this node
	lossScoreTemp float64 // losses of the best rooting seen so far
	diff          int     // loss difference against the initial placement
	counter       [6]int
	lossParent    int // nearest relevant ancestor
	lossChild     [2]int
	gain          int
	lost          [2]int
}

// Incremental regraft scoring. For a subtree pruned to a child of the species
// root, one call to RegraftCosts prices regrafting it above every node of the
// remaining tree.
type Engine struct {
	costModel
	Genes   []*gr.GeneTree
	lcaIdx  gr.LCAIndex
	state   []nodeState
	support []int // gene nodes whose secondary mapping is their primary one
}

func NewEngine(species *gr.SpeciesTree, genes []*gr.GeneTree, opts ...ScoreOptions) (*Engine, error) {
	options, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	for i, g := range genes {
		if err := checkLeaves(g, options.partial); err != nil {
			return nil, fmt.Errorf("gene tree %d: %w", i, err)
		}
	}
	e := &Engine{Genes: genes, support: make([]int, 0)}
	e.costModel = newCostModel(species, &e.lcaIdx, options)
	return e, nil
}

func (e *Engine) Species() *gr.SpeciesTree {
	return e.species
}

// Rebuilds order and LCA index for the current topology
func (e *Engine) prepare() {
	s := e.species
	s.EstablishOrder()
	e.lca.Preprocess(s)
	if len(e.state) < len(s.Nodes) {
		e.state = make([]nodeState, len(s.Nodes))
	}
	e.relevance.resize(len(s.Nodes))
}

// Weighted cost of all gene trees under their current rootings
func (e *Engine) Cost() float64 {
	e.prepare()
	total := 0.0
	for _, g := range e.Genes {
		total += e.cost(g).Total()
	}
	return total
}

// Reroots every unrooted gene tree at its cheapest rooting
func (e *Engine) BestRooting() {
	e.prepare()
	for _, g := range e.Genes {
		if g.Unrooted {
			e.bestRooting(g)
		}
	}
}

// Computes the cost of regrafting subtree above every node of its sibling's
// subtree. subtree must be a child of the species root. With reroot set,
// unrooted gene trees are scored at their best rooting for each candidate,
// otherwise at their current one.
func (e *Engine) RegraftCosts(subtree int, reroot bool) {
	s := e.species
	if s.Parent(subtree) != s.Root {
		panic(fmt.Sprintf("pruned subtree %d is not a child of the species root", subtree))
	}
	e.prepare()
	sibling := s.Sibling(subtree)
	s.PostOrderFrom(sibling, func(n int) { e.state[n].score = 0 })
	for n := range s.Nodes {
		e.state[n].lossScore, e.state[n].lossScoreTemp = 0, 0
	}
	for _, g := range e.Genes {
		if g.Unrooted && reroot {
			e.regraftAllRootings(g, subtree, sibling)
		} else {
			e.regraftRooted(g, subtree, sibling)
		}
	}
}

// Cost of regrafting the last scored subtree above n
func (e *Engine) RegraftCost(n int) float64 {
	return e.state[n].score + e.state[n].lossScore
}

// Calls f for every regraft candidate of the last RegraftCosts call allowed
// by the constraint labels: the target must carry the label of the pruned
// subtree's parent, or its parent must.
func (e *Engine) ForEachCandidate(subtree int, f func(n int, cost float64)) {
	s := e.species
	parent := s.Parent(subtree)
	color := s.Nodes[parent].Constraint
	var walk func(n int)
	walk = func(n int) {
		np := s.Parent(n)
		if color == s.Nodes[n].Constraint || (np != parent && color == s.Nodes[np].Constraint) {
			f(n, e.RegraftCost(n))
		}
		if !s.IsLeaf(n) {
			walk(s.Child(n, 0))
			walk(s.Child(n, 1))
		}
	}
	walk(s.Sibling(subtree))
}

func (e *Engine) regraftRooted(g *gr.GeneTree, subtree, sibling int) {
	w := g.Weight
	e.primaryMapping(g)
	score := w * float64(e.duplications(g))
	e.secondaryMapping(g, subtree)
	e.triple(g)
	e.addDuplications(sibling, score, w)
	e.buildLossTree(g)
	initLoss := w * float64(e.losses(g, e.depth))
	e.species.PostOrderFrom(sibling, func(n int) { e.state[n].lossScore += initLoss })
	if e.relevant[e.species.Root] {
		e.lossCounters(g, subtree)
		e.lossScores(e.lossSibling(subtree), w, addLoss)
	}
	e.removeSecondaryMapping(g)
}

// Scores every rooting of g and keeps, per candidate, the cheapest one. g
// ends up at its original rooting.
func (e *Engine) regraftAllRootings(g *gr.GeneTree, subtree, sibling int) {
	w := g.Weight
	e.primaryMappingUnrooted(g)
	score := w * float64(e.duplications(g))
	e.secondaryMapping(g, subtree)
	e.triple(g)
	e.replaceTempDuplications(sibling, score, w)
	e.buildLossTree(g)
	initLoss := w * float64(e.losses(g, e.depth))
	e.species.PostOrderFrom(sibling, func(n int) { e.state[n].lossScoreTemp = initLoss })
	if e.relevant[e.species.Root] {
		e.lossCounters(g, subtree)
		e.lossScores(e.lossSibling(subtree), w, addTempLoss)
	}
	e.removeSecondaryMapping(g)
	root := g.Nodes[g.Root]
	u, v := root.Adj[1], root.Adj[2]
	e.moveRoot(g, u, subtree, sibling)
	e.moveRoot(g, v, subtree, sibling)
	g.Reroot(u, v)
	e.species.PostOrderFrom(sibling, func(n int) {
		e.state[n].score += e.state[n].tempScore
		e.state[n].lossScore += e.state[n].lossScoreTemp
	})
}

// Walks the root over every edge below p, scoring each rooting
func (e *Engine) moveRoot(g *gr.GeneTree, p, subtree, sibling int) {
	if g.IsLeaf(p) {
		return
	}
	w := g.Weight
	children := [2]int{g.Child(p, 0), g.Child(p, 1)}
	for _, ch := range children {
		e.moveRoot(g, ch, subtree, sibling)
		g.Reroot(ch, p)
		e.secondaryMapping(g, subtree)
		e.triple(g)
		e.buildLossTree(g)
		score := w * float64(e.duplications(g))
		initLoss := w * float64(e.losses(g, e.depth))
		if e.relevant[e.species.Root] {
			e.lossCounters(g, subtree)
			e.lossScores(e.lossSibling(subtree), w, setDiff)
		}
		e.removeSecondaryMapping(g)
		e.minTempDuplications(sibling, score, initLoss, w)
	}
}
