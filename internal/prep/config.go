package prep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Run configuration file. Every key corresponds to a command line flag.
type Config struct {
	SpeciesTree string `toml:"species_tree"`
	Format      string `toml:"format"`
	Output      string `toml:"output"`
	Constraints string `toml:"constraints"`
	Reroot      string `toml:"reroot"`
	Limit       bool   `toml:"limit"`
	GeneCosts   bool   `toml:"gene_costs"`
	Seed        int64  `toml:"seed"`
	NProcs      int    `toml:"nprocs"`
	Prefix      string `toml:"prefix"`
	Quiet       bool   `toml:"quiet"`

	md toml.MetaData
}

// toml key -> flag name
var configFlags = []struct{ key, flag string }{
	{"species_tree", "t"},
	{"format", "f"},
	{"output", "o"},
	{"constraints", "c"},
	{"reroot", "r"},
	{"limit", "l"},
	{"gene_costs", "g"},
	{"seed", "s"},
	{"nprocs", "n"},
	{"prefix", "p"},
	{"quiet", "q"},
}

func ReadConfig(configFile string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.DecodeFile(configFile, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w, error parsing config file %s: %s", ErrInvalidFormat, configFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w, unknown keys in config file %s: %s", ErrInvalidFile, configFile, strings.Join(keys, ", "))
	}
	if md.IsDefined("nprocs") && cfg.NProcs <= 0 {
		return nil, fmt.Errorf("nprocs %d is %w", cfg.NProcs, ErrTypeOutRange)
	}
	cfg.md = md
	return cfg, nil
}

// Flag values for the keys present in the file
func (cfg *Config) FlagValues() map[string]string {
	values := map[string]string{
		"t": cfg.SpeciesTree,
		"f": cfg.Format,
		"o": cfg.Output,
		"c": cfg.Constraints,
		"r": cfg.Reroot,
		"l": strconv.FormatBool(cfg.Limit),
		"g": strconv.FormatBool(cfg.GeneCosts),
		"s": strconv.FormatInt(cfg.Seed, 10),
		"n": strconv.Itoa(cfg.NProcs),
		"p": cfg.Prefix,
		"q": strconv.FormatBool(cfg.Quiet),
	}
	defined := make(map[string]string)
	for _, cf := range configFlags {
		if cfg.md.IsDefined(cf.key) {
			defined[cf.flag] = values[cf.flag]
		}
	}
	return defined
}
