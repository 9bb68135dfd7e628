package prep

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	sc "github.com/jsdoublel/duploss/internal/score"
)

// Everything printed for one scored species tree
type Report struct {
	Species   *gr.SpeciesTree
	Genes     []*gr.GeneTree
	Costs     []sc.Cost
	Weighted  bool // some gene tree has a weight other than 1
	ShowGenes bool
}

func NewReport(species *gr.SpeciesTree, genes []*gr.GeneTree, costs []sc.Cost, showGenes bool) *Report {
	weighted := false
	for _, g := range genes {
		weighted = weighted || g.Weight != 1
	}
	return &Report{Species: species, Genes: genes, Costs: costs, Weighted: weighted, ShowGenes: showGenes}
}

func formatCost(dups, losses int, total float64) string {
	return fmt.Sprintf("[Cost: %d duplications + %d losses = %s]", dups, losses,
		strconv.FormatFloat(total, 'f', -1, 64))
}

// Writes the report in newick or nexus form. Bracketed lines are comments in
// both formats.
func (r *Report) Write(w io.Writer, format Format) (err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); err == nil && ferr != nil {
			err = fmt.Errorf("%w, %s", ErrWritingFile, ferr)
		}
	}()
	dups, losses := 0, 0
	for _, c := range r.Costs {
		dups += c.Dups
		losses += c.Losses
	}
	s := r.Species
	tree := func(name, newick string) string {
		if format == Nexus {
			return fmt.Sprintf("tree %s = %s", name, newick)
		}
		return newick
	}
	lines := make([]string, 0)
	if format == Nexus {
		lines = append(lines, "#nexus", "begin trees;")
	}
	lines = append(lines,
		"[Species tree]",
		fmt.Sprintf("[Size: %d nodes %d leaves]", s.Len(), s.NLeaves()),
		fmt.Sprintf("[Weighted reconciliation cost: %t]", r.Weighted),
		formatCost(dups, losses, sc.Total(r.Costs)),
		tree("speciestree1", s.Newick()),
	)
	if r.ShowGenes {
		for i, g := range r.Genes {
			header := fmt.Sprintf("[Rooted gene tree %d]", i+1)
			if g.Unrooted {
				header = fmt.Sprintf("[Rooted gene tree %d (unrooted in input)]", i+1)
			}
			c := r.Costs[i]
			lines = append(lines,
				header,
				fmt.Sprintf("[Size: %d nodes %d leaves]", g.Len(), len(g.Leaves)),
				formatCost(c.Dups, c.Losses, c.Total()),
				tree(fmt.Sprintf("genetree%d", i+1), g.Newick()),
			)
		}
	}
	if format == Nexus {
		lines = append(lines, "end;")
	}
	for _, l := range lines {
		if _, err = fmt.Fprintln(bw, l); err != nil {
			return fmt.Errorf("%w, %s", ErrWritingFile, err)
		}
	}
	return nil
}
