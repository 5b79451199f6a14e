package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/flarebyte/aegis/internal/stage"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

var (
	cfgPath      string
	envFile      string
	quiet        bool
	flagBaseline string

	flagUpdate       bool
	flagFailOnChange bool
	flagDryRun       bool
	flagDumpDir      string
)

// AddGlobalFlags registers the flags shared by every subcommand.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.cue)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file with AEGIS_* overrides")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not log to stderr")
}

func newLogger() *log.Logger {
	if quiet {
		return logex.Discard
	}
	return logex.StandardLogger()
}

func requireConfig() error {
	if cfgPath == "" {
		return errors.New("missing required flag: --config")
	}
	return nil
}

func runAction(action string, overrides *stage.Overrides) error {
	if err := requireConfig(); err != nil {
		return err
	}
	logger := newLogger()
	ctx := osutil.CancelOnInterruptOrTerminate(logex.Prefix("main", logger))
	req := actionRequest{
		action:    action,
		cfgPath:   cfgPath,
		envFile:   envFile,
		overrides: overrides,
		logger:    logger,
		progress:  os.Stderr,
	}
	if flagDumpDir != "" {
		req.observe = dumpStageBoundary
	}
	env, err := executeAction(ctx, req)
	if err != nil {
		return err
	}
	return evaluateRunExit(env)
}

// dumpStageBoundary writes <seq>_<stage>_out.json below --dump-dir.
func dumpStageBoundary(seq int, stageName string, env stage.Envelope) error {
	if err := os.MkdirAll(flagDumpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump dir: %w", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	base := fmt.Sprintf("%03d_%s_out.json", seq, stageName)
	return os.WriteFile(filepath.Join(flagDumpDir, base), b, 0o644)
}

// InitCmd represents `aegis init`.
var InitCmd = &cobra.Command{
	Use:           "init",
	Short:         "Snapshot the configured roots and persist the baseline",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(stage.ActionInit, &stage.Overrides{Baseline: flagBaseline})
	},
}

// CheckCmd represents `aegis check`.
var CheckCmd = &cobra.Command{
	Use:           "check",
	Short:         "Compare a fresh snapshot against the baseline",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(stage.ActionCheck, &stage.Overrides{
			Baseline:     flagBaseline,
			Update:       flagUpdate,
			FailOnChange: flagFailOnChange,
		})
	},
}

// ScanCmd represents `aegis scan`, a diagnostic run that persists nothing.
var ScanCmd = &cobra.Command{
	Use:           "scan",
	Short:         "Print discovered files (--dry-run) or their snapshot records without persisting",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		action := stage.ActionScan
		if flagDryRun {
			action = stage.ActionScanDryRun
		}
		return runAction(action, nil)
	},
}

func init() {
	InitCmd.Flags().StringVar(&flagBaseline, "baseline", "", "Baseline path (overrides config)")
	CheckCmd.Flags().StringVar(&flagBaseline, "baseline", "", "Baseline path (overrides config)")
	CheckCmd.Flags().BoolVar(&flagUpdate, "update", false, "Replace the baseline with the new snapshot")
	CheckCmd.Flags().BoolVar(&flagFailOnChange, "fail-on-change", false, "Exit 2 when changes are detected")
	ScanCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Run discovery only")
	ScanCmd.Flags().StringVar(&flagDumpDir, "dump-dir", "", "Directory to write per-stage envelopes (<seq>_<stage>_out.json)")
}
