package graphs

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/evolbioinfo/gotree/tree"
)

var ErrEmptyTree = errors.New("tree has no leaves")

// Get children of node (gotree only stores neighbors)
func GetChildren(node, prev *tree.Node) []*tree.Node {
	children := make([]*tree.Node, 0, len(node.Neigh()))
	for _, u := range node.Neigh() {
		if u != prev {
			children = append(children, u)
		}
	}
	return children
}

// joins the subtrees in idx pairwise at random until two are left
func resolve(idx []int, rng *rand.Rand, join func(a, b int) int) []int {
	for len(idx) > 2 {
		i := rng.Intn(len(idx))
		j := rng.Intn(len(idx) - 1)
		if j >= i {
			j++
		}
		n := join(idx[i], idx[j])
		if i > j {
			i, j = j, i
		}
		idx[i] = n
		idx = append(idx[:j], idx[j+1:]...)
	}
	return idx
}

// Builds a species tree arena from a parsed tree. Multifurcations are resolved
// at random, unary nodes are skipped, and only leaf labels are kept.
func SpeciesFromTree(tre *tree.Tree, rng *rand.Rand) (*SpeciesTree, error) {
	s := NewSpeciesTree()
	var build func(cur, prev *tree.Node) int
	build = func(cur, prev *tree.Node) int {
		children := GetChildren(cur, prev)
		if len(children) == 0 {
			return s.AddLeaf(cur.Name())
		}
		if len(children) == 1 {
			return build(children[0], cur)
		}
		idx := make([]int, len(children))
		for i, c := range children {
			idx[i] = build(c, cur)
		}
		idx = resolve(idx, rng, s.Join)
		return s.Join(idx[0], idx[1])
	}
	if tre.Root() == nil {
		return nil, ErrEmptyTree
	}
	s.Root = build(tre.Root(), nil)
	s.Nodes[s.Root].Parent = None
	return s, nil
}

// Builds a gene tree arena from a parsed tree. A root with more than two
// children (unrooted input) is placed on a random edge of the multifurcation.
func GeneFromTree(tre *tree.Tree, unrooted bool, weight float64, rng *rand.Rand) (*GeneTree, error) {
	g := newGeneTree()
	g.Unrooted, g.Weight = unrooted, weight
	var build func(cur, prev *tree.Node) int
	build = func(cur, prev *tree.Node) int {
		children := GetChildren(cur, prev)
		if len(children) == 0 {
			return g.addLeaf(cur.Name())
		}
		if len(children) == 1 {
			return build(children[0], cur)
		}
		idx := make([]int, len(children))
		for i, c := range children {
			idx[i] = build(c, cur)
		}
		idx = resolve(idx, rng, g.join)
		return g.join(idx[0], idx[1])
	}
	if tre.Root() == nil {
		return nil, ErrEmptyTree
	}
	g.Root = build(tre.Root(), nil)
	if g.IsLeaf(g.Root) {
		return nil, fmt.Errorf("%w, single leaf gene tree %s", ErrEmptyTree, g.Nodes[g.Root].Name)
	}
	return g, nil
}

// Converts the arena back into a gotree tree (leaf labels only)
func (s *SpeciesTree) Tree() *tree.Tree {
	tre := tree.NewTree()
	var build func(n int) *tree.Node
	build = func(n int) *tree.Node {
		node := tre.NewNode()
		if s.IsLeaf(n) {
			node.SetName(s.Nodes[n].Name)
			return node
		}
		for i := range 2 {
			tre.ConnectNodes(node, build(s.Nodes[n].Child[i]))
		}
		return node
	}
	tre.SetRoot(build(s.Root))
	return tre
}

func (s *SpeciesTree) Newick() string {
	return s.Tree().Newick()
}

// Converts the gene tree with its current rooting into a gotree tree
func (g *GeneTree) Tree() *tree.Tree {
	tre := tree.NewTree()
	var build func(n int) *tree.Node
	build = func(n int) *tree.Node {
		node := tre.NewNode()
		if g.IsLeaf(n) {
			node.SetName(g.Nodes[n].Name)
			return node
		}
		for i := range 2 {
			tre.ConnectNodes(node, build(g.Child(n, i)))
		}
		return node
	}
	tre.SetRoot(build(g.Root))
	return tre
}

func (g *GeneTree) Newick() string {
	return g.Tree().Newick()
}
