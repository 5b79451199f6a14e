package root

import (
	"github.com/flarebyte/aegis/cmd/aegis/run"
	"github.com/flarebyte/aegis/cmd/aegis/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for aegis.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aegis",
		Short: "File integrity monitor: baseline a file set, then detect created, modified and deleted files",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	run.AddGlobalFlags(cmd)

	// Subcommands
	cmd.AddCommand(version.VersionCmd)
	cmd.AddCommand(run.InitCmd)
	cmd.AddCommand(run.CheckCmd)
	cmd.AddCommand(run.ScanCmd)
	cmd.AddCommand(run.DiffCmd)
	cmd.AddCommand(run.ScheduleCmd)
	cmd.AddCommand(run.HistoryCmd)

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
