package prep

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/io/nexus"
	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	ErrInvalidFile   = errors.New("invalid file")
	ErrInvalidFormat = errors.New("invalid format")
	ErrWritingFile   = errors.New("error writing file")

	plotLineColor  = color.RGBA{R: 37, G: 150, B: 190, A: 255}
	plotMarkerShap = draw.SquareGlyph{}
)

type Format int

const (
	Newick Format = iota
	Nexus

	plotH = 4 * vg.Inch
	plotW = 6 * vg.Inch

	maxTicks = 10
)

var ParseFormat = map[string]Format{
	"newick": Newick,
	"nexus":  Nexus,
}

func (f *Format) Set(s string) error {
	if format, ok := ParseFormat[s]; ok {
		*f = format
		return nil
	}
	return fmt.Errorf("%w, \"%s\" is not a valid tree file format", ErrInvalidFormat, s)
}

func (f Format) String() string {
	for s, fr := range ParseFormat {
		if fr == f {
			return s
		}
	}
	panic(fmt.Sprintf("format (%d) does not exist", f))
}

type GeneTrees struct {
	Trees    []*tree.Tree // gene trees
	Names    []string     // gene names
	Unrooted []bool       // rerootable during scoring
	Weights  []float64    // cost multipliers
}

// Reads in and validates species tree and gene tree input files. The species
// tree file is optional; a nil tree is returned when treeFile is empty.
// Returns an error if the newick format is invalid, or the file is invalid for
// some other reason (e.g., more than one species tree)
func ReadInputFiles(treeFile, genetreesFile string, format Format) (*tree.Tree, *GeneTrees, error) {
	flags := log.Flags()
	lout := log.Writer()
	log.SetOutput(io.Discard) // don't log this bit as gotree can be noisy and lead to thousands of log messages
	defer func() {
		log.SetOutput(lout)
		log.SetFlags(flags)
	}()
	var tre *tree.Tree
	if treeFile != "" {
		var err error
		if tre, err = readTreeFile(treeFile); err != nil {
			return nil, nil, err
		}
	}
	genetrees, err := readGeneTreesFile(genetreesFile, format)
	if err != nil {
		return nil, nil, err
	}
	return tre, genetrees, nil
}

// reads and validates species tree file
func readTreeFile(treeFile string) (*tree.Tree, error) {
	treBytes, err := os.ReadFile(treeFile)
	if err != nil {
		return nil, fmt.Errorf("error reading tree file: %w", err)
	}
	treBytes = bytes.TrimSpace(treBytes)
	if bytes.Count(treBytes, []byte{byte('\n')}) != 0 || len(treBytes) == 0 {
		return nil, fmt.Errorf("%w, there should only be exactly one newick tree in tree file %s",
			ErrInvalidFile, treeFile)
	}
	tre, err := newick.NewParser(bytes.NewReader(treBytes)).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w, error parsing tree newick string from %s: %s",
			ErrInvalidFormat, treeFile, err.Error())
	}
	clearAnnotations(tre)
	return tre, nil
}

func clearAnnotations(tre *tree.Tree) {
	tre.ClearLengths(true, true)
	tre.ClearComments()
	tre.ClearSupports()
}

// reads and validates gene tree file
func readGeneTreesFile(genetreesFile string, format Format) (*GeneTrees, error) {
	file, err := os.Open(genetreesFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", genetreesFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", genetreesFile, err))
		}
	}()
	genes := &GeneTrees{
		Trees:    make([]*tree.Tree, 0),
		Names:    make([]string, 0),
		Unrooted: make([]bool, 0),
		Weights:  make([]float64, 0),
	}
	switch format {
	case Newick:
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
		for i := 1; scanner.Scan(); i++ {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rest, info, err := parseTreeInfo(string(line))
			if err != nil {
				return nil, fmt.Errorf("%w, gene tree on line %d in %s: %s", ErrInvalidFormat, i, genetreesFile, err)
			}
			genetree, err := newick.NewParser(strings.NewReader(rest)).Parse()
			if err != nil {
				return nil, fmt.Errorf("%w, error reading gene tree on line %d in %s: %s",
					ErrInvalidFormat, i, genetreesFile, err.Error())
			}
			clearAnnotations(genetree)
			genes.add(genetree, strconv.Itoa(i), info)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w, error reading %s: %s", ErrInvalidFile, genetreesFile, err)
		}
	case Nexus:
		nex, err := nexus.NewParser(file).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w, error reading gene tree nexus file %s: %s",
				ErrInvalidFormat, genetreesFile, err.Error())
		}
		nex.IterateTrees(func(s string, t *tree.Tree) {
			clearAnnotations(t)
			genes.add(t, s, treeInfo{weight: 1})
		})
	default:
		return nil, fmt.Errorf("%w, not a valid file format", ErrInvalidFile)
	}
	if len(genes.Trees) < 1 {
		return nil, fmt.Errorf("%w, empty gene tree file %s", ErrInvalidFile, genetreesFile)
	}
	return genes, nil
}

// Rooting and weight given in the comments preceding a gene tree
type treeInfo struct {
	rooting byte // 'U', 'R', or 0 if not given
	weight  float64
}

// A tree without a rooting comment is unrooted if its root has three children
func (genes *GeneTrees) add(t *tree.Tree, name string, info treeInfo) {
	unrooted := !t.Rooted()
	switch info.rooting {
	case 'U':
		unrooted = true
	case 'R':
		unrooted = false
	}
	genes.Trees = append(genes.Trees, t)
	genes.Names = append(genes.Names, name)
	genes.Unrooted = append(genes.Unrooted, unrooted)
	genes.Weights = append(genes.Weights, info.weight)
}

// Strips leading [&U], [&R] and [&W x] comments from a tree line
func parseTreeInfo(line string) (string, treeInfo, error) {
	info := treeInfo{weight: 1}
	for {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			return line, info, nil
		}
		end := strings.IndexByte(line, ']')
		if end < 0 {
			return "", info, fmt.Errorf("unterminated comment %q", line)
		}
		comment := strings.TrimSpace(line[1:end])
		line = line[end+1:]
		switch {
		case strings.EqualFold(comment, "&U"):
			info.rooting = 'U'
		case strings.EqualFold(comment, "&R"):
			info.rooting = 'R'
		case len(comment) > 2 && strings.EqualFold(comment[:2], "&W"):
			var w Weight
			if err := w.Set(strings.TrimSpace(comment[2:])); err != nil {
				return "", info, err
			}
			info.weight = float64(w)
		default:
			return "", info, fmt.Errorf("unknown tree comment [%s]", comment)
		}
	}
}

// Reads taxon groups, one per line, names separated by whitespace. Blank lines
// and lines starting with # are skipped.
func ReadConstraintsFile(constraintsFile string) ([][]string, error) {
	file, err := os.Open(constraintsFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", constraintsFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", constraintsFile, err))
		}
	}()
	return readConstraints(file)
}

func readConstraints(r io.Reader) ([][]string, error) {
	groups := make([][]string, 0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		groups = append(groups, strings.Fields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w, error reading constraints: %s", ErrInvalidFile, err)
	}
	return groups, nil
}

// Write search trace csv file to writer.
//
// There are three columns: "Move", "Cost", "Newick"
func WriteTraceToCSV(costs []float64, newicks []string, w io.Writer) (err error) {
	if len(newicks) != len(costs) {
		panic(fmt.Sprintf("there should be a tree for every cost, %+v %+v", newicks, costs))
	}
	data := make([][]string, len(costs)+1)
	data[0] = []string{"Move", "Cost", "Newick"}
	for i := range costs {
		data[i+1] = []string{
			strconv.Itoa(i),
			strconv.FormatFloat(costs[i], 'f', -1, 64),
			newicks[i],
		}
	}
	writer := csv.NewWriter(w)
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output csv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}

func WriteTraceLineplot(costs []float64, prefix string) error {
	p := plot.New()
	p.X.Label.Text = "Accepted SPR Moves"
	p.Y.Label.Text = "Reconciliation Cost"
	p.X.Min = 0
	p.X.Max = math.Max(1, float64(len(costs)-1))
	p.X.Tick.Marker = plot.TickerFunc(func(_, max float64) []plot.Tick {
		step := 1
		if int(max) > maxTicks {
			step = int(math.Ceil(max / maxTicks))
		}
		ticks := make([]plot.Tick, 0, int(max)/step+2)
		for i := range int(max) + 1 {
			if i%step == 0 {
				ticks = append(ticks, plot.Tick{Value: float64(i), Label: fmt.Sprintf("%d", i)})
			} else {
				ticks = append(ticks, plot.Tick{Value: float64(i)})
			}
		}
		return ticks
	})
	top := 1.0
	for _, c := range costs {
		top = math.Max(top, c)
	}
	p.Y.Min = 0
	p.Y.Max = top * 1.05
	pts := make(plotter.XYs, len(costs))
	for i, c := range costs {
		pts[i].X = float64(i)
		pts[i].Y = c
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = plotLineColor
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	points.Color = plotLineColor
	points.Shape = plotMarkerShap
	points.Radius = vg.Points(4)
	p.Add(line, points)
	if err := p.Save(plotW, plotH, fmt.Sprintf("%s.png", prefix)); err != nil {
		return fmt.Errorf("%w, %s", ErrWritingFile, err)
	}
	return nil
}
