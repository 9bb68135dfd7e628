package graphs

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"
)

func parseGene(t *testing.T, nwk string, unrooted bool) *GeneTree {
	t.Helper()
	tre, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("invalid newick tree %s; test is written wrong", nwk)
	}
	g, err := GeneFromTree(tre, unrooted, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func geneLeaf(t *testing.T, g *GeneTree, name string) int {
	t.Helper()
	for _, l := range g.Leaves {
		if g.Nodes[l].Name == name {
			return l
		}
	}
	t.Fatalf("gene leaf %s not found; test is written wrong", name)
	return None
}

// clusters of the gene tree under its current rooting
func geneClusters(t *testing.T, g *GeneTree) []string {
	t.Helper()
	s, err := SpeciesFromTree(g.Tree(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return s.Clusters()
}

// checks that parent and child links agree everywhere
func checkStructure(t *testing.T, g *GeneTree) {
	t.Helper()
	count := 0
	var walk func(n, parent int)
	walk = func(n, parent int) {
		count++
		if n != g.Root && g.Parent(n) != parent {
			t.Fatalf("node %d has parent %d, expected %d", n, g.Parent(n), parent)
		}
		if g.IsLeaf(n) {
			return
		}
		for i := range 2 {
			walk(g.Child(n, i), n)
		}
	}
	walk(g.Root, None)
	if count != g.Len() {
		t.Fatalf("reached %d of %d nodes", count, g.Len())
	}
}

func TestGeneFromTree(t *testing.T) {
	testCases := []struct {
		name     string
		tre      string
		nNodes   int
		nLeaves  int
		clusters []string
	}{
		{
			name:     "rooted",
			tre:      "((A,B),(C,D));",
			nNodes:   7,
			nLeaves:  4,
			clusters: []string{"{A,B}", "{C,D}"},
		},
		{
			name:    "unrooted trifurcation",
			tre:     "(A,B,(C,D));",
			nNodes:  7,
			nLeaves: 4,
		},
		{
			name:     "repeated labels",
			tre:      "((A,A),(B,A));",
			nNodes:   7,
			nLeaves:  4,
			clusters: []string{"{A,B}", "{A}"},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			g := parseGene(t, test.tre, false)
			if g.Len() != test.nNodes || len(g.Leaves) != test.nLeaves {
				t.Errorf("got %d nodes and %d leaves, expected %d and %d", g.Len(), len(g.Leaves), test.nNodes, test.nLeaves)
			}
			checkStructure(t, g)
			if test.clusters != nil {
				if got := geneClusters(t, g); !slices.Equal(got, test.clusters) {
					t.Errorf("got clusters %v, expected %v", got, test.clusters)
				}
			}
		})
	}
}

func TestReroot(t *testing.T) {
	testCases := []struct {
		name     string
		tre      string
		leaf     string // root is moved onto the edge above this leaf
		clusters []string
	}{
		{
			name:     "balanced",
			tre:      "((A,B),(C,D));",
			leaf:     "A",
			clusters: []string{"{B,C,D}", "{C,D}"},
		},
		{
			name:     "caterpillar",
			tre:      "(((A,B),C),D);",
			leaf:     "B",
			clusters: []string{"{A,C,D}", "{C,D}"},
		},
		{
			name:     "already there",
			tre:      "(A,(B,C));",
			leaf:     "A",
			clusters: []string{"{B,C}"},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			g := parseGene(t, test.tre, true)
			before := g.Newick()
			r := g.Nodes[g.Root]
			u, v := r.Adj[1], r.Adj[2]
			l := geneLeaf(t, g, test.leaf)
			g.Reroot(g.Parent(l), l)
			checkStructure(t, g)
			if got := geneClusters(t, g); !slices.Equal(got, test.clusters) {
				t.Errorf("got clusters %v, expected %v", got, test.clusters)
			}
			g.Reroot(u, v)
			checkStructure(t, g)
			if after := g.Newick(); after != before {
				t.Errorf("rerooting back gave %s, expected %s", after, before)
			}
		})
	}
}

func TestRerootAllEdges(t *testing.T) {
	g := parseGene(t, "(((A,B),(C,D)),((E,F),G));", true)
	before := g.Newick()
	r := g.Nodes[g.Root]
	u, v := r.Adj[1], r.Adj[2]
	seen := make(map[string]bool)
	for _, e := range g.Edges() {
		g.Reroot(e[0], e[1])
		checkStructure(t, g)
		seen[strings.Join(geneClusters(t, g), " ")] = true
	}
	g.Reroot(u, v)
	if after := g.Newick(); after != before {
		t.Errorf("rerooting back gave %s, expected %s", after, before)
	}
	// 7 leaves give 2*7-3 edges, every rooting distinct
	if len(seen) != 11 {
		t.Errorf("visited %d distinct rootings, expected 11", len(seen))
	}
}
