package run

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flarebyte/aegis/internal/config"
	"github.com/flarebyte/aegis/internal/history"
	"github.com/flarebyte/aegis/internal/report"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagHistoryLimit  int
	flagHistoryRun    string
	flagHistoryFormat string
)

func renderRuns(runs []history.Run, format string) ([]byte, error) {
	if format != report.FormatText {
		var all bytes.Buffer
		for _, r := range runs {
			b, err := encodeJSONLine(r)
			if err != nil {
				return nil, err
			}
			all.Write(b)
		}
		return all.Bytes(), nil
	}
	var buf bytes.Buffer
	tbl := tablewriter.NewWriter(&buf)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetBorder(false)
	tbl.SetHeader([]string{"ID", "MODE", "STARTED", "OUTCOME", "FILES", "ERRORS", "CREATED", "MODIFIED", "DELETED"})
	for _, r := range runs {
		tbl.Append([]string{
			r.ID,
			r.Mode,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Outcome,
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Errors),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Modified),
			strconv.Itoa(r.Deleted),
		})
	}
	tbl.Render()
	return buf.Bytes(), nil
}

func renderRunChanges(run history.Run, changes []history.Change, format string) ([]byte, error) {
	if format != report.FormatText {
		return encodeJSONLine(struct {
			Run     history.Run      `json:"run"`
			Changes []history.Change `json:"changes"`
		}{run, changes})
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "run %s (%s, %s) outcome=%s\n", run.ID, run.Mode, run.StartedAt.UTC().Format(time.RFC3339), run.Outcome)
	tbl := tablewriter.NewWriter(&buf)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetBorder(false)
	tbl.SetHeader([]string{"CHANGE", "PATH"})
	for _, c := range changes {
		tbl.Append([]string{c.Change, c.Path})
	}
	tbl.Render()
	return buf.Bytes(), nil
}

// HistoryCmd represents `aegis history`.
var HistoryCmd = &cobra.Command{
	Use:           "history",
	Short:         "List recorded runs, or the changes of one run",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(envFile); err != nil {
			return err
		}
		if cfg.History.DSN == "" {
			return errors.New("history is not configured: set history.dsn")
		}
		ctx := cmd.Context()
		store, err := history.Open(ctx, cfg.History.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		format := report.ResolveFormat(flagHistoryFormat, "-")
		var data []byte
		if flagHistoryRun != "" {
			run, err := store.Get(ctx, flagHistoryRun)
			if err != nil {
				return err
			}
			changes, err := store.Changes(ctx, run.ID)
			if err != nil {
				return err
			}
			data, err = renderRunChanges(run, changes, format)
			if err != nil {
				return err
			}
		} else {
			runs, err := store.Recent(ctx, flagHistoryLimit)
			if err != nil {
				return err
			}
			data, err = renderRuns(runs, format)
			if err != nil {
				return err
			}
		}
		return report.WriteTo("-", data)
	},
}

func init() {
	HistoryCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Number of runs to list")
	HistoryCmd.Flags().StringVar(&flagHistoryRun, "run", "", "Show the changes recorded for one run id")
	HistoryCmd.Flags().StringVar(&flagHistoryFormat, "format", "auto", "Output format: json|text|auto")
}
