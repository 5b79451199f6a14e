package run

import (
	"fmt"

	"github.com/flarebyte/aegis/internal/stage"
)

// PreparedActionStages returns the deterministic stage order used for an action.
func PreparedActionStages(action string) ([]string, error) {
	switch action {
	case stage.ActionInit:
		return []string{
			"validate-config",
			"discover-files",
			"snapshot-files",
			"write-baseline",
			"record-history",
			"write-metrics",
			"write-output",
		}, nil
	case stage.ActionCheck:
		return []string{
			"validate-config",
			"load-baseline",
			"discover-files",
			"snapshot-files",
			"compute-integrity-diff",
			"write-baseline",
			"record-history",
			"write-metrics",
			"write-output",
		}, nil
	case stage.ActionScan:
		return []string{
			"validate-config",
			"discover-files",
			"snapshot-files",
			"write-output",
		}, nil
	case stage.ActionScanDryRun:
		return []string{
			"validate-config",
			"discover-files",
			"write-output",
		}, nil
	default:
		return nil, fmt.Errorf("invalid action")
	}
}
