package score

import (
	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// Species nodes that take part in loss counting for one gene tree. With
// limited relevance only nodes that separate gene leaves count; otherwise
// every node does.
type relevance struct {
	size     []int // gene leaves below each species node
	relevant []bool
	depth    []int // number of relevant nodes on the path from the root
}

func (r *relevance) resize(n int) {
	if len(r.size) < n {
		r.size = make([]int, n)
		r.relevant = make([]bool, n)
		r.depth = make([]int, n)
	}
}

func (r *relevance) build(s *gr.SpeciesTree, g *gr.GeneTree, limit bool) {
	r.resize(len(s.Nodes))
	for i := range s.Nodes {
		r.size[i], r.relevant[i], r.depth[i] = 0, false, 0
	}
	for _, l := range g.Leaves {
		if sp := g.Nodes[l].Species; sp != gr.None {
			r.size[sp]++
		}
	}
	s.PostOrder(func(n int) {
		if s.IsLeaf(n) {
			r.relevant[n] = r.size[n] > 0 || !limit
			return
		}
		c0, c1 := s.Child(n, 0), s.Child(n, 1)
		r.size[n] = r.size[c0] + r.size[c1]
		r.relevant[n] = (r.size[c0] > 0 && r.size[c1] > 0) || !limit
	})
	s.PreOrder(func(n int) {
		if p := s.Parent(n); p != gr.None {
			r.depth[n] = r.depth[p]
		}
		if r.relevant[n] {
			r.depth[n]++
		}
	})
}
