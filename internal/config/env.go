package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys that override the config file.
const (
	EnvBaseline      = "AEGIS_BASELINE"
	EnvWorkers       = "AEGIS_WORKERS"
	EnvHistoryDSN    = "AEGIS_HISTORY_DSN"
	EnvHashAlgorithm = "AEGIS_HASH_ALGORITHM"
)

// ApplyEnv overlays AEGIS_* variables. Values come from the process
// environment first, then from envFile, or from a .env next to the config
// when envFile is empty. An explicit envFile must exist.
func (c *Config) ApplyEnv(envFile string) error {
	file := map[string]string{}
	switch {
	case envFile != "":
		m, err := godotenv.Read(envFile)
		if err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		file = m
	case c.Dir != "":
		m, err := godotenv.Read(filepath.Join(c.Dir, ".env"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		if m != nil {
			file = m
		}
	}
	get := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(file[key])
	}

	if v := get(EnvBaseline); v != "" {
		c.Baseline.Path = v
	}
	if v := get(EnvHistoryDSN); v != "" {
		c.History.DSN = v
	}
	if v := get(EnvHashAlgorithm); v != "" {
		c.Hash.Algorithm = v
	}
	if v := get(EnvWorkers); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", EnvWorkers, v)
		}
		c.Workers = Workers{Count: n, HasCount: true}
	}
	return c.Validate()
}
