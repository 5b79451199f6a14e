package run

import (
	"context"
	"fmt"

	"github.com/flarebyte/aegis/internal/baseline"
	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/report"
	"github.com/flarebyte/aegis/internal/snapshot"
	"github.com/flarebyte/aegis/internal/stage"
	"github.com/spf13/cobra"
)

var (
	flagDiffOut          string
	flagDiffFormat       string
	flagDiffPretty       bool
	flagDiffFailOnChange bool
	flagDiffMetadata     bool
)

func loadBaselineFile(ctx context.Context, path string) (snapshot.Snapshot, error) {
	st, err := baseline.Open(path, "")
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s, found, err := st.Load(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	if !found {
		return snapshot.Snapshot{}, fmt.Errorf("baseline not found: %s", path)
	}
	return s, nil
}

// diffFiles compares two persisted baselines of any supported format.
func diffFiles(ctx context.Context, oldPath, newPath string, metadata bool) (report.Report, error) {
	prev, err := loadBaselineFile(ctx, oldPath)
	if err != nil {
		return report.Report{}, err
	}
	curr, err := loadBaselineFile(ctx, newPath)
	if err != nil {
		return report.Report{}, err
	}
	if prev.Algorithm() != "" && curr.Algorithm() != "" && prev.Algorithm() != curr.Algorithm() {
		return report.Report{}, fmt.Errorf("%w: %s uses %s, %s uses %s",
			stage.ErrAlgorithmMismatch, oldPath, prev.Algorithm(), newPath, curr.Algorithm())
	}
	var opts []integrity.Option
	if metadata {
		opts = append(opts, integrity.WithMetadataDrift())
	}
	res, err := integrity.Diff(prev.Comparables(), curr.Comparables(), opts...)
	if err != nil {
		return report.Report{}, err
	}
	return report.New("diff", curr, res, false, oldPath), nil
}

// DiffCmd represents `aegis diff OLD NEW`.
var DiffCmd = &cobra.Command{
	Use:           "diff OLD NEW",
	Short:         "Compare two persisted baselines",
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := diffFiles(cmd.Context(), args[0], args[1], flagDiffMetadata)
		if err != nil {
			return err
		}
		data, err := report.Render(r, report.ResolveFormat(flagDiffFormat, flagDiffOut), flagDiffPretty)
		if err != nil {
			return err
		}
		if err := report.WriteTo(flagDiffOut, data); err != nil {
			return err
		}
		if flagDiffFailOnChange && r.Changed() {
			return runExitError{code: exitCodeDrift, msg: "drift detected"}
		}
		return nil
	},
}

func init() {
	DiffCmd.Flags().StringVar(&flagDiffOut, "out", "-", "Output path")
	DiffCmd.Flags().StringVar(&flagDiffFormat, "format", "auto", "Output format: json|lines|yaml|text|auto")
	DiffCmd.Flags().BoolVar(&flagDiffPretty, "pretty", false, "Pretty JSON")
	DiffCmd.Flags().BoolVar(&flagDiffFailOnChange, "fail-on-change", false, "Exit 2 when the baselines differ")
	DiffCmd.Flags().BoolVar(&flagDiffMetadata, "metadata", false, "Also report paths whose metadata changed")
}
