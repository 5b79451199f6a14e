package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flarebyte/aegis/internal/hasher"
)

var (
	BaselineFormats = []string{"json", "jsonl", "bolt"}
	OutputFormats   = []string{"json", "lines", "yaml", "text", "auto"}
	ErrorModes      = []string{"keep-going", "fail-fast"}
)

func errMissing(name string) error {
	return fmt.Errorf("missing required field: %s", name)
}

func oneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (allowed: %s)", field, v, strings.Join(allowed, "|"))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// Validate checks value ranges and enumerations. Algorithm names are
// normalized in place.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return errors.New("invalid roots: must not be empty")
	}
	for _, r := range c.Roots {
		if strings.TrimSpace(r) == "" {
			return errors.New("invalid roots: empty path")
		}
	}
	if c.Discovery.MinSize < 0 {
		return errors.New("invalid discovery.minSize: must be >= 0")
	}
	if c.Workers.HasCount && c.Workers.Count < 1 {
		return errors.New("invalid workers: must be >= 1")
	}
	algo, err := hasher.Canonical(c.Hash.Algorithm)
	if err != nil {
		return fmt.Errorf("unsupported hash.algorithm: %q (supported: %s)", c.Hash.Algorithm, strings.Join(hasher.Supported(), ", "))
	}
	c.Hash.Algorithm = algo
	if c.Baseline.Path == "" {
		return errors.New("invalid baseline.path: must not be empty")
	}
	if c.Baseline.Format != "" {
		if err := oneOf("baseline.format", c.Baseline.Format, BaselineFormats); err != nil {
			return err
		}
	}
	if err := oneOf("output.format", c.Output.Format, OutputFormats); err != nil {
		return err
	}
	if err := oneOf("errors.mode", c.Errors.Mode, ErrorModes); err != nil {
		return err
	}
	if c.Filter.TimeoutMs < 0 {
		return errors.New("invalid filter.timeoutMs: must be >= 0")
	}
	if c.UI.ProgressIntervalMs <= 0 {
		return errors.New("invalid ui.progressIntervalMs: must be > 0")
	}
	return nil
}
