// Package used for reading, validating, and writing the data of a duploss run
package prep

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/evolbioinfo/gotree/tree"

	gr "github.com/jsdoublel/duploss/internal/graphs"
)

var (
	ErrMulTree           = errors.New("contains duplicate labels")
	ErrMissingSpecies    = errors.New("species missing from species tree")
	ErrNestedConstraints = errors.New("contradictory or nested constraints")
	ErrTooFewLeaves      = errors.New("too few leaves")
	ErrTypeOutRange      = errors.New("out of type range")
)

// Gene tree weight, must be positive
type Weight float64

func (w *Weight) Set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w, weight %q is not a number", ErrInvalidFormat, s)
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("weight %s is %w", s, ErrTypeOutRange)
	}
	*w = Weight(f)
	return nil
}

func (w Weight) String() string {
	return strconv.FormatFloat(float64(w), 'f', -1, 64)
}

// Converts the parsed trees into arenas, resolving multifurcations with rng.
// If tre is not nil its leaves are mapped to the gene leaves (see MapLeaves);
// otherwise the returned species tree is nil.
func BuildTrees(tre *tree.Tree, genes *GeneTrees, rng *rand.Rand) (*gr.SpeciesTree, []*gr.GeneTree, error) {
	geneTrees := make([]*gr.GeneTree, len(genes.Trees))
	for i, t := range genes.Trees {
		g, err := gr.GeneFromTree(t, genes.Unrooted[i], genes.Weights[i], rng)
		if errors.Is(err, gr.ErrEmptyTree) {
			return nil, nil, fmt.Errorf("gene tree %s has %w, %s", genes.Names[i], ErrTooFewLeaves, err)
		} else if err != nil {
			return nil, nil, err
		}
		geneTrees[i] = g
	}
	if tre == nil {
		return nil, geneTrees, nil
	}
	species, err := gr.SpeciesFromTree(tre, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("species tree: %w", err)
	}
	if err := MapLeaves(species, geneTrees); err != nil {
		return nil, nil, err
	}
	return species, geneTrees, nil
}

// Links every gene leaf to the species leaf with the same name. Species leaves
// that no gene tree uses are deleted from s.
func MapLeaves(s *gr.SpeciesTree, genes []*gr.GeneTree) error {
	idx := make(map[string]int)
	for _, l := range s.Leaves() {
		name := s.Nodes[l].Name
		if _, ok := idx[name]; ok {
			return fmt.Errorf("species tree %w, %s", ErrMulTree, name)
		}
		idx[name] = l
	}
	used := make(map[string]bool)
	for i, g := range genes {
		for _, l := range g.Leaves {
			name := g.Nodes[l].Name
			if _, ok := idx[name]; !ok {
				return fmt.Errorf("%w, %s from gene tree %d", ErrMissingSpecies, name, i+1)
			}
			used[name] = true
		}
	}
	unused := make([]string, 0)
	for name := range idx {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	slices.Sort(unused)
	for _, name := range unused {
		if err := s.DeleteLeaf(s.LeafIndex()[name]); err != nil {
			panic(fmt.Sprintf("could not delete species leaf %s: %s", name, err))
		}
	}
	if len(unused) != 0 {
		log.Printf("WARNING: %d species not found in any gene tree were removed from the species tree: %s",
			len(unused), strings.Join(unused, " "))
	}
	idx = s.LeafIndex()
	for _, g := range genes {
		for _, l := range g.Leaves {
			g.Nodes[l].Species = idx[g.Nodes[l].Name]
		}
	}
	return nil
}

// Checks that every constrained taxon is known and that no taxon belongs to
// two groups
func CheckConstraints(groups [][]string, names []string) error {
	idx := make(map[string]uint)
	for i, name := range names {
		idx[name] = uint(i)
	}
	all := bitset.New(uint(len(names)))
	for i, group := range groups {
		set := bitset.New(uint(len(names)))
		for _, name := range group {
			j, ok := idx[name]
			if !ok {
				return fmt.Errorf("%w, %s from constraint %d", ErrMissingSpecies, name, i+1)
			}
			set.Set(j)
		}
		if all.IntersectionCardinality(set) != 0 {
			return fmt.Errorf("%w, constraint %d shares taxa with an earlier one", ErrNestedConstraints, i+1)
		}
		all.InPlaceUnion(set)
	}
	return nil
}

// Logs msg each time i crosses another n percent of total
func LogEveryNPercent(i, n, total int, msg string) {
	step := total * n / 100
	if step == 0 {
		step = 1
	}
	if (i+1)%step == 0 {
		log.Print(msg)
	}
}
