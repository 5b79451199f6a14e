package stage

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/flarebyte/aegis/internal/baseline"
	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/report"
	"github.com/flarebyte/aegis/internal/snapshot"
)

const writeOutputStage = "write-output"

func getOutputSettings(meta *Meta) (outPath, format string, pretty bool) {
	outPath = "-"
	format = report.FormatJSON
	if meta != nil && meta.Output != nil {
		if meta.Output.Out != "" {
			outPath = meta.Output.Out
		}
		if meta.Output.Format != "" {
			format = meta.Output.Format
		}
		pretty = meta.Output.Pretty
	}
	return outPath, report.ResolveFormat(format, outPath), pretty
}

func encodeJSONCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSONPretty(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// BuildReport turns a finished init or check envelope into a report.
func BuildReport(env Envelope) report.Report {
	cur := snapshot.Empty("")
	if env.Current != nil {
		cur = *env.Current
	}
	var res integrity.Result
	firstRun := false
	path := ""
	runID := ""
	if env.Meta != nil {
		if env.Meta.Diff != nil {
			res = *env.Meta.Diff
		}
		if env.Meta.Run != nil {
			firstRun = env.Meta.Run.FirstRun
			runID = env.Meta.Run.ID
		}
		if env.Meta.Baseline != nil {
			path = env.Meta.Baseline.Path
		}
	}
	r := report.New(env.Action(), cur, res, firstRun, path)
	r.RunID = runID
	return r
}

// renderEnvelope is the scan form: the envelope itself, or one JSON line per
// record (or per candidate for a dry run).
func renderEnvelope(env Envelope, format string, pretty bool) ([]byte, error) {
	if format == report.FormatLines {
		var all bytes.Buffer
		if env.Current != nil {
			if err := baseline.WriteLines(&all, *env.Current); err != nil {
				return nil, err
			}
			return all.Bytes(), nil
		}
		for _, c := range env.Candidates {
			b, err := encodeJSONCompact(c)
			if err != nil {
				return nil, err
			}
			all.Write(b)
		}
		return all.Bytes(), nil
	}
	if env.Meta == nil {
		env.Meta = &Meta{}
	}
	env.Meta.ContractVersion = "1"
	SortEnvelopeErrors(&env)
	if pretty {
		return encodeJSONPretty(env)
	}
	return encodeJSONCompact(env)
}

func writeOutputRunner(_ context.Context, in Envelope, _ Deps) (Envelope, error) {
	outPath, format, pretty := getOutputSettings(in.Meta)
	var data []byte
	var err error
	switch in.Action() {
	case ActionInit, ActionCheck:
		data, err = report.Render(BuildReport(in), format, pretty)
	default:
		data, err = renderEnvelope(in, format, pretty)
	}
	if err != nil {
		return Envelope{}, err
	}
	if err := report.WriteTo(outPath, data); err != nil {
		return Envelope{}, err
	}
	return in, nil
}

func init() { Register(writeOutputStage, writeOutputRunner) }
