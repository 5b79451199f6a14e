package version

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/flarebyte/aegis/internal/buildinfo"
	"github.com/spf13/cobra"
)

var (
	flagShort bool
	flagJSON  bool
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	BuiltBy string `json:"built_by"`
	Go      string `json:"go"`
	GoOS    string `json:"go_os"`
	GoArch  string `json:"go_arch"`
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aegis version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagShort || !flagJSON {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "aegis %s\n", buildinfo.Summary())
			return err
		}
		v, commit, date := buildinfo.Resolved()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(versionInfo{
			Version: v,
			Commit:  commit,
			Date:    date,
			BuiltBy: buildinfo.BuiltBy,
			Go:      runtime.Version(),
			GoOS:    runtime.GOOS,
			GoArch:  runtime.GOARCH,
		})
	},
}

func init() {
	VersionCmd.Flags().BoolVar(&flagShort, "short", false, "Print only the version line")
	VersionCmd.Flags().BoolVar(&flagJSON, "json", false, "Print detailed JSON version info")
}
