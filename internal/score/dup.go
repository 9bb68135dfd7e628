package score

import (
	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// Maps gene nodes onto the species tree with the pruned subtree removed.
// Only needed when the gene tree spans both sides of the root; otherwise
// every regraft leaves its duplications unchanged.
func (e *Engine) secondaryMapping(g *gr.GeneTree, subtree int) {
	if e.mapping(g, g.Root) != e.species.Root {
		return
	}
	e.secondary(g, g.Root, subtree)
}

func (e *Engine) secondary(g *gr.GeneTree, n, subtree int) int {
	m := e.mapping(g, n)
	sec := gr.None
	switch {
	case m == gr.None:
	case m != e.species.Root:
		if !e.species.InSubtree(m, subtree) {
			sec = m
			e.support = append(e.support, n)
		}
	default:
		sec = e.join(e.secondary(g, g.Child(n, 0), subtree), e.secondary(g, g.Child(n, 1), subtree))
	}
	g.Nodes[n].Sec = sec
	return sec
}

func (e *Engine) removeSecondaryMapping(g *gr.GeneTree) {
	for i := range g.Nodes {
		g.Nodes[i].Sec = gr.None
	}
	e.support = e.support[:0]
}

// Counts, per species node, how the duplications of the gene tree change
// when the pruned subtree moves from above a node into one of its child
// edges
func (e *Engine) triple(g *gr.GeneTree) {
	s := e.species
	for i := range s.Nodes {
		e.state[i].gain, e.state[i].lost = 0, [2]int{}
	}
	for _, n := range e.support {
		sec := g.Nodes[n].Sec
		sibSec := g.Nodes[g.Sibling(n)].Sec
		if sibSec == gr.None {
			e.state[sec].gain++
			continue
		}
		parentSec := g.Nodes[g.Parent(n)].Sec
		u, v, o := s.Nodes[parentSec].No, s.Nodes[sibSec].No, s.Nodes[sec].No
		switch {
		case v < u && u < o:
			e.state[parentSec].lost[0]++
		case o < u && u < v:
			e.state[parentSec].lost[1]++
		}
	}
}

// Threads the duplication count of the initial placement down the species
// tree, adjusting it at every step by the gains and losses of the node left
// behind
func (e *Engine) addDuplications(n int, score, w float64) {
	e.state[n].score += score
	if e.species.IsLeaf(n) {
		return
	}
	st := e.state[n]
	for i := range 2 {
		e.addDuplications(e.species.Child(n, i), score+float64(st.gain-st.lost[i])*w, w)
	}
}

func (e *Engine) replaceTempDuplications(n int, score, w float64) {
	e.state[n].tempScore = score
	if e.species.IsLeaf(n) {
		return
	}
	st := e.state[n]
	for i := range 2 {
		e.replaceTempDuplications(e.species.Child(n, i), score+float64(st.gain-st.lost[i])*w, w)
	}
}

// Keeps, per candidate, the cheaper of the best rooting so far and the
// current one. Loss differences must be stored in diff.
func (e *Engine) minTempDuplications(n int, score, initLoss, w float64) {
	st := &e.state[n]
	loss := initLoss + w*float64(st.diff)
	if score+loss < st.tempScore+st.lossScoreTemp {
		st.tempScore, st.lossScoreTemp = score, loss
	}
	if e.species.IsLeaf(n) {
		return
	}
	gain, lost := st.gain, st.lost
	for i := range 2 {
		e.minTempDuplications(e.species.Child(n, i), score+float64(gain-lost[i])*w, initLoss, w)
	}
}
