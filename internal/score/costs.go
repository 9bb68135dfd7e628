package score

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/duploss/internal/graphs"
)

var ErrUnmappedLeaf = errors.New("gene leaf without species")

// Duplications and losses of one gene tree
type Cost struct {
	Dups   int
	Losses int
	Weight float64
}

func (c Cost) Total() float64 {
	return c.Weight * float64(c.Dups+c.Losses)
}

// Weighted sum over all gene trees
func Total(costs []Cost) float64 {
	total := 0.0
	for _, c := range costs {
		total += c.Total()
	}
	return total
}

// Mapping and relevance state needed to cost a whole gene tree
type costModel struct {
	mapper
	relevance
	limit bool
}

func newCostModel(species *gr.SpeciesTree, lca *gr.LCAIndex, options scorerOpts) costModel {
	return costModel{
		mapper: mapper{species: species, lca: lca, partial: options.partial},
		limit:  options.limit || options.partial,
	}
}

// Cost under the current rooting
func (c *costModel) cost(g *gr.GeneTree) Cost {
	c.primaryMapping(g)
	c.build(c.species, g, c.limit)
	return Cost{Dups: c.duplications(g), Losses: c.losses(g, c.depth), Weight: g.Weight}
}

// Tries every rooting of g, leaves g rooted at the cheapest one (first found
// on ties) and returns its cost
func (c *costModel) bestRooting(g *gr.GeneTree) Cost {
	c.primaryMappingUnrooted(g)
	c.build(c.species, g, c.limit)
	best := Cost{Dups: c.duplications(g), Losses: c.losses(g, c.depth), Weight: g.Weight}
	root := g.Nodes[g.Root]
	bestEdge := [2]int{root.Adj[1], root.Adj[2]}
	var moveRoot func(p int)
	moveRoot = func(p int) {
		if g.IsLeaf(p) {
			return
		}
		children := [2]int{g.Child(p, 0), g.Child(p, 1)}
		for _, ch := range children {
			moveRoot(ch)
			g.Reroot(ch, p)
			dups, losses := c.duplications(g), c.losses(g, c.depth)
			if dups+losses < best.Dups+best.Losses {
				best.Dups, best.Losses = dups, losses
				bestEdge = [2]int{ch, p}
			}
		}
	}
	moveRoot(bestEdge[0])
	moveRoot(bestEdge[1])
	g.Reroot(bestEdge[0], bestEdge[1])
	return best
}

func checkLeaves(g *gr.GeneTree, partial bool) error {
	if partial {
		return nil
	}
	for _, l := range g.Leaves {
		if g.Nodes[l].Species == gr.None {
			return fmt.Errorf("%w, %s", ErrUnmappedLeaf, g.Nodes[l].Name)
		}
	}
	return nil
}

// Costs every gene tree against the species tree from scratch. Unrooted gene
// trees are rerooted at their best rooting.
func GeneTreeCosts(species *gr.SpeciesTree, genes []*gr.GeneTree, opts ...ScoreOptions) ([]Cost, error) {
	options, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	species.EstablishOrder()
	var idx gr.LCAIndex
	idx.Preprocess(species)
	defer idx.Postprocess()
	costs := make([]Cost, len(genes))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(options.nprocs)
	for i, gtre := range genes {
		g.Go(func() error {
			if err := checkLeaves(gtre, options.partial); err != nil {
				return fmt.Errorf("gene tree %d: %w", i, err)
			}
			cm := newCostModel(species, &idx, options)
			if gtre.Unrooted {
				costs[i] = cm.bestRooting(gtre)
			} else {
				costs[i] = cm.cost(gtre)
			}
			return nil
		})
	}
	return costs, g.Wait()
}
