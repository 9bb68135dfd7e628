// Package containing the tree data structures used by duploss: the species
// tree arena, the gene tree arena, and the LCA index built over the species
// tree.
package graphs

import (
	"errors"
	"fmt"
)

// None marks an absent node reference in both arenas
const None = -1

var (
	ErrDescendant = errors.New("target is a descendant of the moved subtree")
	ErrMoveRoot   = errors.New("cannot move the root")
	ErrNotLeaf    = errors.New("not a leaf")
)

type SpeciesNode struct {
	Parent     int
	Child      [2]int
	Name       string // leaves only
	Constraint int    // constraint group label (None if unconstrained)
	No         int    // in-order index
	Begin      int    // smallest in-order index in subtree
	End        int    // largest in-order index in subtree
}

// Rooted binary species tree stored as an arena; nodes refer to each other by
// index.
type SpeciesTree struct {
	Nodes []SpeciesNode
	Root  int
}

func NewSpeciesTree() *SpeciesTree {
	return &SpeciesTree{Nodes: make([]SpeciesNode, 0), Root: None}
}

// Adds a detached leaf and returns its index
func (s *SpeciesTree) AddLeaf(name string) int {
	s.Nodes = append(s.Nodes, SpeciesNode{
		Parent:     None,
		Child:      [2]int{None, None},
		Name:       name,
		Constraint: None,
	})
	return len(s.Nodes) - 1
}

// Joins two detached subtrees under a new internal node and returns its
// index. If one of the two was the root, the new node becomes the root.
func (s *SpeciesTree) Join(a, b int) int {
	s.Nodes = append(s.Nodes, SpeciesNode{
		Parent:     None,
		Child:      [2]int{a, b},
		Constraint: None,
	})
	n := len(s.Nodes) - 1
	s.Nodes[a].Parent = n
	s.Nodes[b].Parent = n
	if s.Root == a || s.Root == b {
		s.Root = n
	}
	return n
}

func (s *SpeciesTree) Len() int {
	return len(s.Nodes)
}

func (s *SpeciesTree) IsLeaf(n int) bool {
	return s.Nodes[n].Child[0] == None
}

func (s *SpeciesTree) Parent(n int) int {
	return s.Nodes[n].Parent
}

func (s *SpeciesTree) Child(n, i int) int {
	return s.Nodes[n].Child[i]
}

// Index of n in its parent's child slots
func (s *SpeciesTree) Side(n int) int {
	p := s.Nodes[n].Parent
	if p == None {
		panic(fmt.Sprintf("node %d has no parent", n))
	}
	if s.Nodes[p].Child[0] == n {
		return 0
	}
	return 1
}

// Finds node's sibling (None for the root)
func (s *SpeciesTree) Sibling(n int) int {
	p := s.Nodes[n].Parent
	if p == None {
		return None
	}
	return s.Nodes[p].Child[1-s.Side(n)]
}

// n is in the subtree rooted at sub; requires a current EstablishOrder
func (s *SpeciesTree) InSubtree(n, sub int) bool {
	no := s.Nodes[n].No
	return s.Nodes[sub].Begin <= no && no <= s.Nodes[sub].End
}

// Leaf indices in left to right order
func (s *SpeciesTree) Leaves() []int {
	leaves := make([]int, 0, (len(s.Nodes)+1)/2)
	s.PreOrder(func(n int) {
		if s.IsLeaf(n) {
			leaves = append(leaves, n)
		}
	})
	return leaves
}

// Number of leaves reachable from the root
func (s *SpeciesTree) NLeaves() int {
	return len(s.Leaves())
}

// Maps leaf names to leaf indices
func (s *SpeciesTree) LeafIndex() map[string]int {
	idx := make(map[string]int)
	for _, l := range s.Leaves() {
		idx[s.Nodes[l].Name] = l
	}
	return idx
}

// Calls f on every node reachable from the root, parents before children
func (s *SpeciesTree) PreOrder(f func(n int)) {
	if s.Root == None {
		return
	}
	stack := []int{s.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		f(n)
		if !s.IsLeaf(n) {
			stack = append(stack, s.Nodes[n].Child[1], s.Nodes[n].Child[0])
		}
	}
}

// Calls f on every node below (and including) n, children before parents
func (s *SpeciesTree) PostOrderFrom(n int, f func(n int)) {
	if n == None {
		return
	}
	if !s.IsLeaf(n) {
		s.PostOrderFrom(s.Nodes[n].Child[0], f)
		s.PostOrderFrom(s.Nodes[n].Child[1], f)
	}
	f(n)
}

func (s *SpeciesTree) PostOrder(f func(n int)) {
	s.PostOrderFrom(s.Root, f)
}

// Assigns in-order numbers and subtree ranges; must be called after every
// topology change before InSubtree or the LCA index is used.
func (s *SpeciesTree) EstablishOrder() {
	pos := 0
	var order func(n int)
	order = func(n int) {
		node := &s.Nodes[n]
		node.Begin = pos
		if node.Child[0] != None {
			order(node.Child[0])
		}
		node.No = pos
		pos++
		if node.Child[1] != None {
			order(node.Child[1])
		}
		node.End = pos - 1
	}
	if s.Root != None {
		order(s.Root)
	}
}

// Detaches subroot (together with its parent node) and reinserts it as the
// sibling of target. The freed sibling of subroot takes the vacated slot and
// subroot keeps its side under the reused parent node.
func (s *SpeciesTree) MoveSubtree(subroot, target int) error {
	if subroot == s.Root {
		return ErrMoveRoot
	}
	for t := target; t != None; t = s.Nodes[t].Parent {
		if t == subroot {
			return fmt.Errorf("%w, cannot move node %d below node %d", ErrDescendant, subroot, target)
		}
	}
	p := s.Nodes[subroot].Parent
	if target == p {
		return nil
	}
	pi := 1 - s.Side(subroot)
	pc := s.Nodes[p].Child[pi]
	pp := s.Nodes[p].Parent
	s.Nodes[pc].Parent = pp
	if pp != None {
		s.Nodes[pp].Child[s.Side(p)] = pc
	} else {
		s.Root = pc
	}
	s.Nodes[p].Child[pi] = None
	q := s.Nodes[target].Parent
	if q != None {
		s.Nodes[q].Child[s.childSlot(q, target)] = p
	} else {
		s.Root = p
	}
	s.Nodes[p].Parent = q
	s.Nodes[target].Parent = p
	s.Nodes[p].Child[pi] = target
	return nil
}

// slot of c under p, without relying on c's parent link
func (s *SpeciesTree) childSlot(p, c int) int {
	switch c {
	case s.Nodes[p].Child[0]:
		return 0
	case s.Nodes[p].Child[1]:
		return 1
	default:
		panic(fmt.Sprintf("node %d is not a child of %d", c, p))
	}
}

// Removes a leaf and its parent node, splicing the leaf's sibling into the
// grandparent. The arena is compacted afterwards, so node indices held by the
// caller are invalidated.
func (s *SpeciesTree) DeleteLeaf(leaf int) error {
	if !s.IsLeaf(leaf) {
		return fmt.Errorf("node %d is %w", leaf, ErrNotLeaf)
	}
	if leaf == s.Root {
		s.Nodes, s.Root = s.Nodes[:0], None
		return nil
	}
	p := s.Nodes[leaf].Parent
	sib := s.Sibling(leaf)
	pp := s.Nodes[p].Parent
	s.Nodes[sib].Parent = pp
	if pp != None {
		s.Nodes[pp].Child[s.Side(p)] = sib
	} else {
		s.Root = sib
	}
	s.compact()
	return nil
}

// drops every node not reachable from the root and remaps indices
func (s *SpeciesTree) compact() {
	remap := make([]int, len(s.Nodes))
	for i := range remap {
		remap[i] = None
	}
	nodes := make([]SpeciesNode, 0, len(s.Nodes))
	s.PreOrder(func(n int) {
		remap[n] = len(nodes)
		nodes = append(nodes, s.Nodes[n])
	})
	for i := range nodes {
		if nodes[i].Parent != None {
			nodes[i].Parent = remap[nodes[i].Parent]
		}
		for j := range 2 {
			if nodes[i].Child[j] != None {
				nodes[i].Child[j] = remap[nodes[i].Child[j]]
			}
		}
	}
	s.Nodes, s.Root = nodes, remap[s.Root]
}

func (s *SpeciesTree) Clone() *SpeciesTree {
	nodes := make([]SpeciesNode, len(s.Nodes))
	copy(nodes, s.Nodes)
	return &SpeciesTree{Nodes: nodes, Root: s.Root}
}
