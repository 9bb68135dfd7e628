package graphs

import (
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Calculates the leafset for every node reachable from the root (slice index
// = node index). tips assigns each leaf name a bit position.
func (s *SpeciesTree) Leafsets(tips map[string]uint) []*bitset.BitSet {
	leafsets := make([]*bitset.BitSet, len(s.Nodes))
	s.PostOrder(func(n int) {
		if s.IsLeaf(n) {
			leafsets[n] = bitset.New(uint(len(tips)))
			leafsets[n].Set(tips[s.Nodes[n].Name])
		} else {
			leafsets[n] = leafsets[s.Nodes[n].Child[0]].Union(leafsets[s.Nodes[n].Child[1]])
		}
	})
	return leafsets
}

// Assigns bit positions to leaf names in sorted order
func TipIndex(names []string) map[string]uint {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	tips := make(map[string]uint, len(sorted))
	for i, name := range sorted {
		tips[name] = uint(i)
	}
	return tips
}

// Nontrivial clusters of the tree as "{A,B}" strings, sorted. Two rooted
// species trees on the same leaves have the same topology exactly when their
// clusters agree.
func (s *SpeciesTree) Clusters() []string {
	leaves := s.Leaves()
	names := make([]string, len(leaves))
	for i, l := range leaves {
		names[i] = s.Nodes[l].Name
	}
	tips := TipIndex(names)
	sorted := make([]string, len(tips))
	for name, i := range tips {
		sorted[i] = name
	}
	leafsets := s.Leafsets(tips)
	clusters := make([]string, 0, len(leaves))
	s.PreOrder(func(n int) {
		if s.IsLeaf(n) || n == s.Root {
			return
		}
		clusters = append(clusters, leafsetString(leafsets[n], sorted))
	})
	slices.Sort(clusters)
	return clusters
}

// Returns leafset as string for printing/testing
func leafsetString(set *bitset.BitSet, names []string) string {
	members := make([]string, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		members = append(members, names[i])
	}
	return "{" + strings.Join(members, ",") + "}"
}
