// Package report renders the outcome of a check or init run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/snapshot"
	"github.com/mattn/go-isatty"
	"github.com/samber/lo"
)

const (
	FormatJSON  = "json"
	FormatLines = "lines"
	FormatYAML  = "yaml"
	FormatText  = "text"
	FormatAuto  = "auto"
)

// Change kinds as they appear in line and text output.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeMetadata = "metadata"
)

// Summary counts the records of the current snapshot.
type Summary struct {
	Records int   `json:"records"`
	Files   int   `json:"files"`
	Errors  int   `json:"errors"`
	Bytes   int64 `json:"bytes"`
}

// Failure is a path that could not be hashed in the current snapshot.
type Failure struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Change is one line of a lines report.
type Change struct {
	Change string `json:"change"`
	Path   string `json:"path"`
}

// Report is the aggregate result of one run. Field order is the JSON order.
type Report struct {
	Mode            string    `json:"mode"`
	RunID           string    `json:"runId,omitempty"`
	FirstRun        bool      `json:"firstRun"`
	Algorithm       string    `json:"algorithm"`
	Baseline        string    `json:"baseline,omitempty"`
	Summary         Summary   `json:"summary"`
	Created         []string  `json:"created"`
	Modified        []string  `json:"modified"`
	Deleted         []string  `json:"deleted"`
	MetadataChanged []string  `json:"metadataChanged,omitempty"`
	Failures        []Failure `json:"failures,omitempty"`
}

// New builds a report from the current snapshot and its diff result.
func New(mode string, current snapshot.Snapshot, res integrity.Result, firstRun bool, baseline string) Report {
	st := current.Stats()
	failed := lo.Filter(current.Records(), func(r record.Record, _ int) bool {
		return r.Kind == record.KindError
	})
	return Report{
		Mode:            mode,
		FirstRun:        firstRun,
		Algorithm:       current.Algorithm(),
		Baseline:        baseline,
		Summary:         Summary{Records: st.Records, Files: st.Files, Errors: st.Errors, Bytes: st.Bytes},
		Created:         nonNil(res.Created),
		Modified:        nonNil(res.Modified),
		Deleted:         nonNil(res.Deleted),
		MetadataChanged: res.MetadataChanged,
		Failures: lo.Map(failed, func(r record.Record, _ int) Failure {
			msg := ""
			if r.ErrorMessage != nil {
				msg = *r.ErrorMessage
			}
			return Failure{Path: r.Path, Message: msg}
		}),
	}
}

// Changed reports whether any path was created, modified or deleted.
func (r Report) Changed() bool {
	return len(r.Created)+len(r.Modified)+len(r.Deleted) > 0
}

// Changes flattens the report into one entry per changed path, ordered by
// path and then by change kind.
func (r Report) Changes() []Change {
	tag := func(kind string) func(string, int) Change {
		return func(p string, _ int) Change { return Change{Change: kind, Path: p} }
	}
	out := lo.Map(r.Created, tag(ChangeCreated))
	out = append(out, lo.Map(r.Modified, tag(ChangeModified))...)
	out = append(out, lo.Map(r.Deleted, tag(ChangeDeleted))...)
	out = append(out, lo.Map(r.MetadataChanged, tag(ChangeMetadata))...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Change < out[j].Change
	})
	return out
}

// ResolveFormat maps auto to text when writing to a terminal and to json
// otherwise. Other formats are returned unchanged.
func ResolveFormat(format, out string) string {
	if format != FormatAuto && format != "" {
		return format
	}
	if (out == "" || out == "-") && isatty.IsTerminal(os.Stdout.Fd()) {
		return FormatText
	}
	return FormatJSON
}

// Render encodes r in the given format. auto must be resolved first.
func Render(r Report, format string, pretty bool) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		if pretty {
			return encodeJSONPretty(r)
		}
		return encodeJSONCompact(r)
	case FormatLines:
		return renderLines(r)
	case FormatYAML:
		return renderYAML(r)
	case FormatText:
		return renderText(r)
	default:
		return nil, fmt.Errorf("unknown output format: %q", format)
	}
}

// WriteTo writes data to outPath, or stdout for "-".
func WriteTo(outPath string, data []byte) error {
	if outPath == "" || outPath == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(outPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write-output: %v", err)
		}
	}
	return os.WriteFile(outPath, data, 0o644)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
