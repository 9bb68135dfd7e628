package graphs

import "fmt"

// Mapping slot that has not been computed since the last reset
const Unset = -2

// Gene tree node. Every node keeps three neighbor slots so that an unrooted
// tree can be rerooted in place: Adj[Up] is the parent and the two remaining
// slots are the children. Leaves only use Adj[0].
type GeneNode struct {
	Adj     [3]int
	Up      int
	Map     [3]int // memoized species mapping of the subtree seen when arriving from Adj[i]
	Sec     int    // secondary mapping (None when not computed or not in the gamma tree)
	Species int    // species leaf the gene leaf belongs to (None when absent)
	Name    string
}

// Gene tree arena. The root node always stays at index Root and has no
// parent; rerooting moves it between edges.
type GeneTree struct {
	Nodes    []GeneNode
	Root     int
	Leaves   []int
	Unrooted bool    // tree may be rerooted
	Weight   float64 // multiplier for duplication and loss costs
}

func newGeneTree() *GeneTree {
	return &GeneTree{Nodes: make([]GeneNode, 0), Root: None, Leaves: make([]int, 0), Weight: 1}
}

func (g *GeneTree) addLeaf(name string) int {
	g.Nodes = append(g.Nodes, GeneNode{
		Adj:     [3]int{None, None, None},
		Map:     [3]int{Unset, Unset, Unset},
		Sec:     None,
		Species: None,
		Name:    name,
	})
	n := len(g.Nodes) - 1
	g.Leaves = append(g.Leaves, n)
	return n
}

// joins two parentless nodes; the new node's parent slot is Adj[0]
func (g *GeneTree) join(a, b int) int {
	g.Nodes = append(g.Nodes, GeneNode{
		Adj:     [3]int{None, a, b},
		Map:     [3]int{Unset, Unset, Unset},
		Sec:     None,
		Species: None,
	})
	n := len(g.Nodes) - 1
	g.Nodes[a].Adj[0], g.Nodes[a].Up = n, 0
	g.Nodes[b].Adj[0], g.Nodes[b].Up = n, 0
	return n
}

func (g *GeneTree) Len() int {
	return len(g.Nodes)
}

func (g *GeneTree) IsLeaf(n int) bool {
	return g.Nodes[n].Adj[1] == None
}

func (g *GeneTree) Parent(n int) int {
	return g.Nodes[n].Adj[g.Nodes[n].Up]
}

// i-th child (0 or 1) of an internal node
func (g *GeneTree) Child(n, i int) int {
	node := &g.Nodes[n]
	if i < node.Up {
		return node.Adj[i]
	}
	return node.Adj[i+1]
}

func (g *GeneTree) Sibling(n int) int {
	p := g.Parent(n)
	if c := g.Child(p, 0); c != n {
		return c
	}
	return g.Child(p, 1)
}

// Species node the gene node maps to under the current rooting
func (g *GeneTree) Mapping(n int) int {
	node := &g.Nodes[n]
	if node.Adj[1] == None {
		return node.Species
	}
	return node.Map[node.Up]
}

// Slot of neighbor m in n's adjacency (None selects the root's empty slot)
func (g *GeneTree) Slot(n, m int) int {
	for i, a := range g.Nodes[n].Adj {
		if a == m {
			return i
		}
	}
	panic(fmt.Sprintf("gene node %d is not adjacent to %d", m, n))
}

// Clears every memoized mapping of internal nodes; required after any change
// of the species tree topology or of the leaf to species assignment.
func (g *GeneTree) ResetMappings() {
	for i := range g.Nodes {
		g.Nodes[i].Map = [3]int{Unset, Unset, Unset}
		g.Nodes[i].Sec = None
	}
}

// Internal nodes in post-order under the current rooting
func (g *GeneTree) PostOrder(f func(n int)) {
	var walk func(n int)
	walk = func(n int) {
		if !g.IsLeaf(n) {
			walk(g.Child(n, 0))
			walk(g.Child(n, 1))
		}
		f(n)
	}
	walk(g.Root)
}

// Moves the root onto the edge between adjacent nodes u and v. Memoized
// directed mappings stay valid because the root node only passes through.
func (g *GeneTree) Reroot(u, v int) {
	// an edge touching the root stands for the edge between its children
	r := g.Nodes[g.Root]
	switch g.Root {
	case u:
		u = r.Adj[1] + r.Adj[2] - v
	case v:
		v = r.Adj[1] + r.Adj[2] - u
	}
	g.disconnectRoot()
	g.connectRoot(u, v)
	g.rerootDFS(u, g.Root)
	g.rerootDFS(v, g.Root)
}

// removes the root, joining its two children directly
func (g *GeneTree) disconnectRoot() {
	r := &g.Nodes[g.Root]
	c0, c1 := r.Adj[1], r.Adj[2]
	g.Nodes[c0].Adj[g.Slot(c0, g.Root)] = c1
	g.Nodes[c1].Adj[g.Slot(c1, g.Root)] = c0
}

// inserts the root on the edge (u, v)
func (g *GeneTree) connectRoot(u, v int) {
	r := &g.Nodes[g.Root]
	r.Adj = [3]int{None, u, v}
	r.Up = 0
	g.Nodes[u].Adj[g.Slot(u, v)] = g.Root
	g.Nodes[v].Adj[g.Slot(v, u)] = g.Root
}

// points parent slots toward the root, stopping where they already do
func (g *GeneTree) rerootDFS(n, parent int) {
	node := &g.Nodes[n]
	if node.Adj[node.Up] == parent {
		return
	}
	node.Up = g.Slot(n, parent)
	for _, a := range node.Adj {
		if a != parent && a != None {
			g.rerootDFS(a, n)
		}
	}
}

// Every edge of the tree as (parent, child) pairs under the current rooting,
// with the root's two edges merged into one
func (g *GeneTree) Edges() [][2]int {
	edges := make([][2]int, 0, len(g.Nodes))
	r := g.Nodes[g.Root]
	edges = append(edges, [2]int{r.Adj[1], r.Adj[2]})
	g.PostOrder(func(n int) {
		if n == g.Root || g.IsLeaf(n) {
			return
		}
		for i := range 2 {
			edges = append(edges, [2]int{n, g.Child(n, i)})
		}
	})
	return edges
}

func (g *GeneTree) Clone() *GeneTree {
	nodes := make([]GeneNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	leaves := make([]int, len(g.Leaves))
	copy(leaves, g.Leaves)
	return &GeneTree{Nodes: nodes, Root: g.Root, Leaves: leaves, Unrooted: g.Unrooted, Weight: g.Weight}
}
