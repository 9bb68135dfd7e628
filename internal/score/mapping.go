package score

import (
	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// Maps gene tree nodes onto the species tree. Mappings are memoized in the
// gene nodes per direction, so unrooted trees can be rerooted without
// recomputing them.
type mapper struct {
	species *gr.SpeciesTree
	lca     *gr.LCAIndex
	partial bool
}

// LCA where None stands for "no species" and is absorbed by the other side
func (m *mapper) join(u, v int) int {
	switch {
	case u == gr.None:
		return v
	case v == gr.None:
		return u
	}
	return m.lca.LCA(m.species, u, v)
}

// Mapping of the part of the gene tree seen from x when arriving from
// neighbor from (None for the whole tree below the root)
func (m *mapper) directed(g *gr.GeneTree, x, from int) int {
	if g.IsLeaf(x) {
		return g.Nodes[x].Species
	}
	if x == g.Root && from != gr.None {
		// the root only passes through
		other := g.Nodes[x].Adj[1]
		if other == from {
			other = g.Nodes[x].Adj[2]
		}
		return m.directed(g, other, x)
	}
	slot := g.Slot(x, from)
	if mapped := g.Nodes[x].Map[slot]; mapped != gr.Unset {
		return mapped
	}
	var sub [2]int
	k := 0
	for i, a := range g.Nodes[x].Adj {
		if i != slot && a != gr.None {
			sub[k] = m.directed(g, a, x)
			k++
		}
	}
	if k != 2 {
		panic("gene tree node is not binary")
	}
	mapped := m.join(sub[0], sub[1])
	g.Nodes[x].Map[slot] = mapped
	return mapped
}

// Mapping of n under the current rooting, computed on demand
func (m *mapper) mapping(g *gr.GeneTree, n int) int {
	if mapped := g.Mapping(n); mapped != gr.Unset {
		return mapped
	}
	if n == g.Root {
		return m.directed(g, n, gr.None)
	}
	return m.directed(g, n, g.Parent(n))
}

// Maps every node under the current rooting
func (m *mapper) primaryMapping(g *gr.GeneTree) {
	g.ResetMappings()
	m.directed(g, g.Root, gr.None)
}

// Additionally maps every direction so that any rerooting finds its mappings
// memoized
func (m *mapper) primaryMappingUnrooted(g *gr.GeneTree) {
	m.primaryMapping(g)
	for _, l := range g.Leaves {
		m.directed(g, g.Parent(l), l)
	}
}

// Number of duplication nodes under the current rooting
func (m *mapper) duplications(g *gr.GeneTree) int {
	dups := 0
	g.PostOrder(func(n int) {
		if g.IsLeaf(n) {
			return
		}
		mn := m.mapping(g, n)
		l, r := m.mapping(g, g.Child(n, 0)), m.mapping(g, g.Child(n, 1))
		if m.partial && (mn == gr.None || l == gr.None || r == gr.None) {
			return
		}
		if mn == l || mn == r {
			dups++
		}
	})
	return dups
}

// Losses under the current rooting; depth holds the relevant depth of each
// species node
func (m *mapper) losses(g *gr.GeneTree, depth []int) int {
	losses := 0
	g.PostOrder(func(n int) {
		if g.IsLeaf(n) {
			return
		}
		mn := m.mapping(g, n)
		l, r := m.mapping(g, g.Child(n, 0)), m.mapping(g, g.Child(n, 1))
		if m.partial && (mn == gr.None || l == gr.None || r == gr.None) {
			return
		}
		switch {
		case mn == l && mn == r:
		case mn == l:
			losses += depth[r] - depth[mn]
		case mn == r:
			losses += depth[l] - depth[mn]
		default:
			losses += depth[l] + depth[r] - 2*depth[mn] - 2
		}
	})
	return losses
}
