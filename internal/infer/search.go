package infer

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	sc "github.com/jsdoublel/duploss/internal/score"
)

// SPR move: prune Subtree and regraft it above Target
type Move struct {
	Subtree int
	Target  int
}

// Total cost after an accepted move
type TraceEntry struct {
	Move   int
	Cost   float64
	Newick string
}

type searchResult struct {
	cost        float64
	sweeps      int
	trace       []TraceEntry
	interrupted bool
}

// relative tolerance for comparing summed weighted costs
const costEpsilon = 1e-9

func improves(cost, best float64) bool {
	return cost < best-costEpsilon*math.Max(1, math.Abs(best))
}

func ties(cost, best float64) bool {
	return math.Abs(cost-best) <= costEpsilon*math.Max(1, math.Abs(best))
}

// Repeatedly sweeps over every prune point of the species tree, collecting the
// cheapest regrafts found after the last improvement, and applies one of them
// at random. Stops when a sweep finds nothing cheaper than the current tree
// and unrooted gene trees have been rerooted, or when ctx is cancelled (the
// current sweep is finished first).
func search(ctx context.Context, e *sc.Engine, mode sc.RerootMode, rng *rand.Rand) searchResult {
	s := e.Species()
	unrooted := false
	for _, g := range e.Genes {
		unrooted = unrooted || g.Unrooted
	}
	rerooting := mode == sc.RerootAll
	if rerooting {
		e.BestRooting()
	}
	best := e.Cost()
	res := searchResult{trace: []TraceEntry{{Move: 0, Cost: best, Newick: s.Newick()}}}
	queue := make([]Move, 0)
	for {
		if ctx.Err() != nil {
			res.interrupted = true
			break
		}
		res.sweeps++
		update := false
		for j := range s.Nodes {
			if j == s.Root {
				continue
			}
			sib := s.Sibling(j)
			mustMove(s, j, s.Root)
			e.RegraftCosts(j, rerooting)
			e.ForEachCandidate(j, func(n int, cost float64) {
				if n == sib {
					return
				}
				switch {
				case improves(cost, best):
					update = true
					best = cost
					queue = append(queue[:0], Move{Subtree: j, Target: n})
				case update && ties(cost, best):
					queue = append(queue, Move{Subtree: j, Target: n})
				}
			})
			mustMove(s, j, sib)
		}
		if !update {
			e.BestRooting()
			best = e.Cost()
			if rerooting || !unrooted {
				break
			}
			rerooting = true
			queue = queue[:0]
			continue
		}
		rerooting = mode == sc.RerootAll
		m := queue[rng.Intn(len(queue))]
		mustMove(s, m.Subtree, m.Target)
		e.BestRooting()
		cost := e.Cost()
		res.trace = append(res.trace, TraceEntry{Move: len(res.trace), Cost: cost, Newick: s.Newick()})
		log.Printf("sweep %d: moved node %d above node %d, cost %g (%d tied moves)", res.sweeps, m.Subtree, m.Target, cost, len(queue))
		best = math.Min(best, cost)
	}
	res.cost = e.Cost()
	return res
}

func mustMove(s *gr.SpeciesTree, subtree, target int) {
	if err := s.MoveSubtree(subtree, target); err != nil {
		panic(fmt.Sprintf("SPR move of %d above %d failed: %s", subtree, target, err))
	}
}
