package infer

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	sc "github.com/jsdoublel/duploss/internal/score"
)

type InferOptions struct {
	Reroot      sc.RerootMode // when unrooted gene trees are rerooted during search
	Limit       bool          // count losses only below nodes separating gene leaves
	Constraints [][]string    // taxon groups kept together by leaf addition
	Rng         *rand.Rand
}

type Result struct {
	Species     *gr.SpeciesTree
	Cost        float64 // weighted duplications plus losses
	Sweeps      int
	Trace       []TraceEntry
	Interrupted bool
}

// Runs the SPR search from species, or from a tree built by leaf addition if
// species is nil. A given species tree must already have its leaves mapped to
// the gene trees. Returns early with Interrupted set if ctx is cancelled.
func Infer(ctx context.Context, species *gr.SpeciesTree, genes []*gr.GeneTree, opts InferOptions) (*Result, error) {
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	if species == nil {
		log.Println("building starting tree by leaf addition")
		var err error
		species, err = LeafAdd(genes, opts.Constraints, opts.Reroot, rng)
		if err != nil {
			return nil, fmt.Errorf("leaf addition error: %w", err)
		}
	} else if len(opts.Constraints) != 0 {
		log.Println("WARNING: constraints are only used when building the starting tree; ignoring them")
	}
	e, err := sc.NewEngine(species, genes, sc.WithLimit(opts.Limit))
	if err != nil {
		return nil, err
	}
	log.Printf("beginning SPR search (rerooting %s)", opts.Reroot)
	res := search(ctx, e, opts.Reroot, rng)
	if res.interrupted {
		log.Println("search interrupted, keeping the best tree so far")
	}
	log.Printf("search finished after %d sweeps and %d moves", res.sweeps, len(res.trace)-1)
	return &Result{
		Species:     species,
		Cost:        res.cost,
		Sweeps:      res.sweeps,
		Trace:       res.trace,
		Interrupted: res.interrupted,
	}, nil
}
