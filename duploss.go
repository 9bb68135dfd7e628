/*
DupLoss infers species trees from gene family trees by minimizing the number
of gene duplications and losses needed to reconcile them, using a leaf
addition heuristic for a starting tree and SPR local search.

usage: duploss [ -t <tree> | -f <format> | -o <format> | -c <file> | -r <mode> | -l | -g | -s <seed> | -n <int> | -p <prefix> | -config <file> | -q | -h | -v ] <command> <gene_trees>

commands:

	infer		infers a species tree minimizing duplications and losses
	score		reports the duplications and losses of the species tree given with -t

positional arguments:

	<gene_trees>	gene tree file, one tree per line ([&U], [&R], and [&W <weight>] prefixes allowed)

flags:

	-c file
	  	constraints file, one group of taxa per line
	-config file
	  	TOML run configuration; flags given on the command line take precedence
	-f format
	  	gene tree format [ newick | nexus ] (default "newick")
	-g	print gene trees with their costs
	-h	prints this message and exits
	-l	only count losses below species nodes separating gene leaves
	-n int
	  	number of parallel processes for scoring the result
	-o format
	  	output format [ newick | nexus ] (default "newick")
	-p prefix
	  	write search trace to <prefix>.csv and <prefix>.png
	-q	quiet, no log output
	-r mode
	  	rerooting of unrooted gene trees during search [ opt | all ] (default "opt")
	-s seed
	  	random seed (default: time based)
	-t tree
	  	species tree to start from (infer) or to score (score)
	-v	prints version number and exits

examples:

	  infer command example:
		duploss -c groups.txt -p trace infer gene-trees.nwk > species.nwk 2> log.txt

	  score command example:
		duploss -t species.nwk -g score gene-trees.nwk > costs.txt 2> log.txt
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	gr "github.com/jsdoublel/duploss/internal/graphs"
	"github.com/jsdoublel/duploss/internal/infer"
	pr "github.com/jsdoublel/duploss/internal/prep"
	"github.com/jsdoublel/duploss/internal/score"
)

const (
	Version    = "v0.1.0"
	ErrMessage = "DupLoss encountered an error ::"

	Infer Command = iota
	Score
)

type Command int

var parseCommand = map[string]Command{
	"infer": Infer,
	"score": Score,
}

type args struct {
	command         Command   // infer or score
	gtFormat        pr.Format // gene tree file format
	outFormat       pr.Format // report format
	treeFile        string    // starting or scored species tree
	geneTreeFile    string    // gene trees
	constraintsFile string    // taxon groups for leaf addition
	reroot          score.RerootMode
	limit           bool   // limit loss counting to gene leaf sets
	showGenes       bool   // print gene trees in the report
	seed            int64  // random seed
	nprocs          int    // number of parallel processes
	prefix          string // search trace output prefix
}

func setNProcs(nprocs int) int {
	maxProcs := runtime.GOMAXPROCS(0)
	switch {
	case nprocs > maxProcs:
		log.Printf("%d is greater than available processes (%d); limit set to %d\n", nprocs, maxProcs, maxProcs)
		return maxProcs
	case nprocs <= 0:
		log.Printf("number of processes not set; defaulting to %d processes\n", maxProcs)
		return maxProcs
	default:
		return nprocs
	}
}

func parseArgs() args {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"usage: duploss [ -t <tree> | -f <format> | -o <format> | -c <file> | -r <mode> | -l | -g | -s <seed> | -n <int> | -p <prefix> | -config <file> | -q | -h | -v ] <command> <gene_trees>\n",
			"\n",
			"commands:\n\n",
			"  infer\t\tinfers a species tree minimizing duplications and losses\n",
			"  score\t\treports the duplications and losses of the species tree given with -t\n",
			"\n",
			"positional arguments:\n\n",
			"  <gene_trees>\tgene tree file, one tree per line ([&U], [&R], and [&W <weight>] prefixes allowed)\n",
			"\n",
			"flags:\n\n",
		)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr,
			"\n",
			"examples:\n\n",
			"  infer command example:\n",
			"\tduploss -c groups.txt -p trace infer gene-trees.nwk > species.nwk 2> log.txt\n\n",
			"  score command example:\n",
			"\tduploss -t species.nwk -g score gene-trees.nwk > costs.txt 2> log.txt\n",
		)
	}
	format := pr.Newick
	flag.Var(&format, "f", "gene tree `format` [ newick | nexus ] (default \"newick\")")
	outFormat := pr.Newick
	flag.Var(&outFormat, "o", "output `format` [ newick | nexus ] (default \"newick\")")
	reroot := score.RerootOpt
	flag.Var(&reroot, "r", "rerooting `mode` of unrooted gene trees during search [ opt | all ] (default \"opt\")")
	treeFile := flag.String("t", "", "species `tree` to start from (infer) or to score (score)")
	constraintsFile := flag.String("c", "", "constraints `file`, one group of taxa per line")
	limit := flag.Bool("l", false, "only count losses below species nodes separating gene leaves")
	showGenes := flag.Bool("g", false, "print gene trees with their costs")
	seed := flag.Int64("s", 0, "random `seed` (default: time based)")
	nprocs := flag.Int("n", 0, "number of parallel processes for scoring the result")
	prefix := flag.String("p", "", "write search trace to <prefix>.csv and <prefix>.png")
	configFile := flag.String("config", "", "TOML run configuration `file`; flags given on the command line take precedence")
	quiet := flag.Bool("q", false, "quiet, no log output")
	help := flag.Bool("h", false, "prints this message and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("DupLoss version %s\n", Version)
		os.Exit(0)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *configFile != "" {
		cfg, err := pr.ReadConfig(*configFile)
		if err != nil {
			parserError(err.Error())
		}
		for name, value := range cfg.FlagValues() {
			if set[name] {
				continue
			}
			if err := flag.Set(name, value); err != nil {
				parserError(fmt.Sprintf("config file %s: %s", *configFile, err))
			}
			set[name] = true
		}
	}
	if *quiet {
		log.SetOutput(io.Discard)
	}
	if flag.NArg() != 2 {
		parserError("two positional arguments required: <command> <gene_tree_file>")
	}
	cmd, ok := parseCommand[flag.Arg(0)]
	if !ok {
		parserError(fmt.Sprintf("\"%s\" is not a valid command: either \"infer\" or \"score\" required", flag.Arg(0)))
	}
	if cmd == Score && *treeFile == "" {
		parserError("the score command requires a species tree (-t)")
	}
	if !set["s"] {
		*seed = time.Now().UnixNano()
	}
	log.Printf("random seed %d", *seed)
	return args{
		command:         cmd,
		gtFormat:        format,
		outFormat:       outFormat,
		treeFile:        *treeFile,
		geneTreeFile:    flag.Arg(1),
		constraintsFile: *constraintsFile,
		reroot:          reroot,
		limit:           *limit,
		showGenes:       *showGenes,
		seed:            *seed,
		nprocs:          setNProcs(*nprocs),
		prefix:          *prefix,
	}
}

// prints message, usage, and exits (status code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message)
	flag.Usage()
	os.Exit(1)
}

// Cancels the returned context on the first interrupt and exits on the second
func interruptContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch
		log.Println("interrupt received; finishing the current sweep (interrupt again to exit now)")
		cancel()
		<-sigch
		os.Exit(130)
	}()
	return ctx
}

func writeReport(args args, species *gr.SpeciesTree, genes []*gr.GeneTree) {
	costs, err := score.GeneTreeCosts(species, genes, score.WithLimit(args.limit), score.WithNProcs(args.nprocs))
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	log.Printf("total weighted cost %g", score.Total(costs))
	if err := pr.NewReport(species, genes, costs, args.showGenes).Write(os.Stdout, args.outFormat); err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
}

func writeTrace(prefix string, trace []infer.TraceEntry) error {
	costs := make([]float64, len(trace))
	newicks := make([]string, len(trace))
	for i, t := range trace {
		costs[i], newicks[i] = t.Cost, t.Newick
	}
	f, err := os.Create(prefix + ".csv")
	if err != nil {
		return fmt.Errorf("%w, %s", pr.ErrWritingFile, err)
	}
	defer f.Close()
	if err := pr.WriteTraceToCSV(costs, newicks, f); err != nil {
		return err
	}
	return pr.WriteTraceLineplot(costs, prefix)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	args := parseArgs()
	log.Printf("DupLoss version %s", Version)
	tre, geneTrees, err := pr.ReadInputFiles(args.treeFile, args.geneTreeFile, args.gtFormat)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	rng := rand.New(rand.NewSource(args.seed))
	species, genes, err := pr.BuildTrees(tre, geneTrees, rng)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	log.Printf("read %d gene trees", len(genes))
	switch args.command {
	case Infer:
		log.Println("running infer...")
		var constraints [][]string
		if args.constraintsFile != "" {
			if constraints, err = pr.ReadConstraintsFile(args.constraintsFile); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
		}
		res, err := infer.Infer(interruptContext(), species, genes, infer.InferOptions{
			Reroot:      args.reroot,
			Limit:       args.limit,
			Constraints: constraints,
			Rng:         rng,
		})
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		if args.prefix != "" {
			if err := writeTrace(args.prefix, res.Trace); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
		}
		writeReport(args, res.Species, genes)
	case Score:
		log.Println("running score...")
		writeReport(args, species, genes)
	default:
		panic(fmt.Sprintf("invalid command (%d)", args.command))
	}
}
