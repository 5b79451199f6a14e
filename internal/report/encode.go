package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

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

// renderLines writes one compact JSON object per changed path.
func renderLines(r Report) ([]byte, error) {
	var all bytes.Buffer
	for _, c := range r.Changes() {
		b, err := encodeJSONCompact(c)
		if err != nil {
			return nil, err
		}
		all.Write(b)
	}
	return all.Bytes(), nil
}

// renderYAML goes through the JSON form so keys match the json report, then
// emits canonical YAML with sorted mapping keys.
func renderYAML(r Report) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(canonicalNode(generic)); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	out = append(out, '\n')
	return out, nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func scalarFrom(v any) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(v)
	return n
}

func canonicalNode(v any) *yaml.Node {
	switch x := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case map[string]any:
		return canonicalMapNode(x)
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode}
		if len(x) == 0 {
			n.Style = yaml.FlowStyle
		}
		for _, it := range x {
			n.Content = append(n.Content, canonicalNode(it))
		}
		return n
	default:
		return scalarFrom(x)
	}
}

func canonicalMapNode(m map[string]any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Content = append(n.Content, scalarNode(k), canonicalNode(m[k]))
	}
	return n
}

// renderText is the human form: a CHANGE/PATH table, failures, and a
// one-line summary.
func renderText(r Report) ([]byte, error) {
	var buf bytes.Buffer
	changes := r.Changes()
	if len(changes) > 0 {
		tbl := tablewriter.NewWriter(&buf)
		tbl.SetAutoFormatHeaders(false)
		tbl.SetBorder(false)
		tbl.SetHeader([]string{"CHANGE", "PATH"})
		for _, c := range changes {
			tbl.Append([]string{c.Change, c.Path})
		}
		tbl.Render()
	}
	if len(r.Failures) > 0 {
		tbl := tablewriter.NewWriter(&buf)
		tbl.SetAutoFormatHeaders(false)
		tbl.SetBorder(false)
		tbl.SetHeader([]string{"UNREADABLE", "REASON"})
		for _, f := range r.Failures {
			tbl.Append([]string{f.Path, f.Message})
		}
		tbl.Render()
	}
	switch {
	case r.FirstRun:
		fmt.Fprintf(&buf, "%s: no baseline, recorded %d paths (%d files, %d errors) with %s\n",
			r.Mode, r.Summary.Records, r.Summary.Files, r.Summary.Errors, r.Algorithm)
	case r.Changed():
		fmt.Fprintf(&buf, "%s: %d created, %d modified, %d deleted across %d paths\n",
			r.Mode, len(r.Created), len(r.Modified), len(r.Deleted), r.Summary.Records)
	default:
		fmt.Fprintf(&buf, "%s: no changes across %d paths (%d errors)\n",
			r.Mode, r.Summary.Records, r.Summary.Errors)
	}
	return buf.Bytes(), nil
}
