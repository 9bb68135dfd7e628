package score

import (
	"errors"
	"fmt"
)

var ErrInvalidScorerOption = errors.New("invalid scorer option")

// How often unrooted gene trees are rerooted during the SPR search
type RerootMode int

const (
	RerootOpt RerootMode = iota // only when a sweep finds no move
	RerootAll                   // for every regraft candidate
)

var ParseRerootMode = map[string]RerootMode{
	"opt": RerootOpt,
	"all": RerootAll,
}

func (m *RerootMode) Set(s string) error {
	if mode, ok := ParseRerootMode[s]; ok {
		*m = mode
		return nil
	}
	return fmt.Errorf("%w, \"%s\" is not a valid rerooting mode", ErrInvalidScorerOption, s)
}

func (m RerootMode) String() string {
	for s, mode := range ParseRerootMode {
		if mode == m {
			return s
		}
	}
	panic(fmt.Sprintf("rerooting mode (%d) does not exist", m))
}

type ScoreOptions func(opts *scorerOpts) error

type scorerOpts struct {
	limit   bool
	partial bool
	nprocs  int
}

// Restricts loss relevance to species nodes with a gene leaf below them
func WithLimit(limit bool) ScoreOptions {
	return func(options *scorerOpts) error {
		options.limit = limit
		return nil
	}
}

// The species tree covers only some of the gene leaves; gene leaves without
// a species are ignored and relevance is always limited.
func WithPartialTrees() ScoreOptions {
	return func(options *scorerOpts) error {
		options.partial = true
		return nil
	}
}

func WithNProcs(nprocs int) ScoreOptions {
	return func(options *scorerOpts) error {
		if nprocs <= 0 {
			return fmt.Errorf("%w, number of processes must be positive, but is %d", ErrInvalidScorerOption, nprocs)
		}
		options.nprocs = nprocs
		return nil
	}
}

func applyOptions(opts []ScoreOptions) (scorerOpts, error) {
	options := scorerOpts{nprocs: 1}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return options, err
		}
	}
	return options, nil
}
