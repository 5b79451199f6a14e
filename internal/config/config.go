// Package config loads the CUE run configuration.
package config

import (
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue"
)

const (
	DefaultBaselinePath       = "aegis-baseline.json"
	DefaultOutputFormat       = "json"
	DefaultErrorMode          = "keep-going"
	DefaultProgressIntervalMs = 500
	DefaultScheduleSpec       = "@every 1h"
)

// Config is the parsed configuration. Relative paths are already resolved
// against the directory of the config file.
type Config struct {
	Path          string
	Dir           string
	ConfigVersion string
	Roots         []string
	Exclude       []string
	Discovery     Discovery
	Filter        Filter
	Hash          Hash
	Workers       Workers
	Baseline      Baseline
	Check         Check
	Output        Output
	Errors        Errors
	History       History
	Metrics       Metrics
	Schedule      Schedule
	UI            UI
}

// Discovery holds optional discovery config.
type Discovery struct {
	FollowSymlinks   bool
	MinSize          int64
	RespectGitignore bool
}

// Filter holds the optional Lua predicate.
type Filter struct {
	Inline    string
	TimeoutMs int64
	HasInline bool
}

type Hash struct {
	Algorithm string
}

// Workers is the hashing pool size; zero means the platform default.
type Workers struct {
	Count    int64
	HasCount bool
}

type Baseline struct {
	Path   string
	Format string
}

type Check struct {
	UpdateBaseline bool
	FailOnChange   bool
	MetadataDrift  bool
}

type Output struct {
	Out    string
	Format string
	Pretty bool
}

type Errors struct {
	Mode string
}

// History is enabled when DSN is set: a SQLite file path or a postgres URL.
type History struct {
	DSN string
}

// Metrics is enabled when Textfile is set.
type Metrics struct {
	Textfile string
}

type Schedule struct {
	Spec string
}

type UI struct {
	Progress           bool
	ProgressIntervalMs int64
}

// Load reads, parses, resolves and validates the config at path.
func Load(path string) (Config, error) {
	v, err := compileCUE(path)
	if err != nil {
		return Config{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := parse(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Path = abs
	cfg.Dir = filepath.Dir(abs)
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse parses CUE source with relative paths resolved against dir.
func Parse(data []byte, dir string) (Config, error) {
	v, err := compileBytes(data)
	if err != nil {
		return Config{}, err
	}
	cfg, err := parse(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Dir = dir
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type sectionParser func(v cue.Value, cfg *Config) error

func parse(v cue.Value) (Config, error) {
	if err := requireStringField(v, "configVersion"); err != nil {
		return Config{}, err
	}
	cfg := defaults()
	if _, err := lookupString(v, "configVersion", &cfg.ConfigVersion); err != nil {
		return Config{}, fmt.Errorf("invalid value for configVersion: %v", err)
	}
	if err := checkConfigVersion(cfg.ConfigVersion); err != nil {
		return Config{}, err
	}
	for _, p := range []sectionParser{
		parseRootsSection,
		parseDiscoverySection,
		parseFilterSection,
		parseHashSection,
		parseWorkersSection,
		parseBaselineSection,
		parseCheckSection,
		parseOutputSection,
		parseErrorsSection,
		parseHistorySection,
		parseMetricsSection,
		parseScheduleSection,
		parseUISection,
	} {
		if err := p(v, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Hash:     Hash{Algorithm: "sha256"},
		Baseline: Baseline{Path: DefaultBaselinePath},
		Output:   Output{Out: "-", Format: DefaultOutputFormat},
		Errors:   Errors{Mode: DefaultErrorMode},
		Schedule: Schedule{Spec: DefaultScheduleSpec},
		UI:       UI{ProgressIntervalMs: DefaultProgressIntervalMs},
	}
}

// Resolve returns p joined to the config directory unless already absolute.
func (c Config) Resolve(p string) string {
	if p == "" || p == "-" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Artefacts lists the files aegis itself writes: baseline, report, metrics
// textfile and the SQLite history with its journal files. Discovery never
// yields them.
func (c Config) Artefacts() []string {
	var out []string
	for _, p := range []string{c.Baseline.Path, c.Output.Out, c.Metrics.Textfile} {
		if p != "" && p != "-" {
			out = append(out, p)
		}
	}
	if dsn := c.History.DSN; dsn != "" && !isURL(dsn) && dsn != ":memory:" {
		out = append(out, dsn, dsn+"-journal", dsn+"-wal", dsn+"-shm")
	}
	return out
}

func (c *Config) resolvePaths() {
	for i, r := range c.Roots {
		c.Roots[i] = c.Resolve(r)
	}
	c.Baseline.Path = c.Resolve(c.Baseline.Path)
	c.Output.Out = c.Resolve(c.Output.Out)
	c.Metrics.Textfile = c.Resolve(c.Metrics.Textfile)
	if c.History.DSN != "" && !isURL(c.History.DSN) && c.History.DSN != ":memory:" {
		c.History.DSN = c.Resolve(c.History.DSN)
	}
}
