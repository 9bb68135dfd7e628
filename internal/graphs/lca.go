package graphs

import "math/bits"

// Constant time LCA queries over a species tree. The in-order sequence of a
// binary tree places the LCA of two nodes between them as the shallowest node
// on that stretch, so a sparse table of range minima over the in-order depths
// answers each query with two lookups.
type LCAIndex struct {
	tour     []int   // node index at each in-order position
	depth    []int   // depth of the node at each in-order position
	rangeMin [][]int // rangeMin[k][i]: position of the shallowest node in [i, i+2^k)
}

// Rebuilds the index for the current topology of s. EstablishOrder must have
// been called since the last topology change. Buffers are reused between
// calls.
func (idx *LCAIndex) Preprocess(s *SpeciesTree) {
	n := len(s.Nodes)
	idx.tour = resize(idx.tour, n)
	idx.depth = resize(idx.depth, n)
	var walk func(v, d int)
	walk = func(v, d int) {
		node := &s.Nodes[v]
		if node.Child[0] != None {
			walk(node.Child[0], d+1)
		}
		idx.tour[node.No] = v
		idx.depth[node.No] = d
		if node.Child[1] != None {
			walk(node.Child[1], d+1)
		}
	}
	m := 0
	if s.Root != None {
		walk(s.Root, 0)
		m = s.Nodes[s.Root].End + 1
	}
	idx.tour, idx.depth = idx.tour[:m], idx.depth[:m]
	levels := 1
	for 1<<levels <= m {
		levels++
	}
	if cap(idx.rangeMin) < levels {
		idx.rangeMin = make([][]int, levels)
	}
	idx.rangeMin = idx.rangeMin[:levels]
	idx.rangeMin[0] = resize(idx.rangeMin[0], m)
	for i := range m {
		idx.rangeMin[0][i] = i
	}
	for k, w := 1, 2; k < levels; k, w = k+1, w*2 {
		r := resize(idx.rangeMin[k], m-w+1)
		prev := idx.rangeMin[k-1]
		for i := range r {
			a, b := prev[i], prev[i+w/2]
			if idx.depth[b] < idx.depth[a] {
				a = b
			}
			r[i] = a
		}
		idx.rangeMin[k] = r
	}
}

// Releases the index buffers
func (idx *LCAIndex) Postprocess() {
	idx.tour, idx.depth, idx.rangeMin = nil, nil, nil
}

// Takes two species node indices and returns the index of their LCA
func (idx *LCAIndex) LCA(s *SpeciesTree, u, v int) int {
	if u == v {
		return u
	}
	p1, p2 := s.Nodes[u].No, s.Nodes[v].No
	if p1 > p2 {
		p1, p2 = p2, p1
	}
	k := bits.Len(uint(p2-p1+1)) - 1
	a, b := idx.rangeMin[k][p1], idx.rangeMin[k][p2-(1<<k)+1]
	if idx.depth[b] < idx.depth[a] {
		a = b
	}
	return idx.tour[a]
}

func resize(buf []int, n int) []int {
	if cap(buf) < n {
		return make([]int, n)
	}
	return buf[:n]
}
