// Package integrity compares two snapshots by content digest.
package integrity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedInput is returned for inputs that are not path-keyed mappings
// of digest-bearing entries.
var ErrMalformedInput = errors.New("malformed input")

// Comparable is any snapshot entry a digest can be extracted from.
type Comparable interface {
	Digest() (string, bool)
}

// Fingerprinter is implemented by entries that carry stat metadata.
type Fingerprinter interface {
	MetadataFingerprint() string
}

// BareDigest is a legacy entry holding only the digest string.
type BareDigest string

func (d BareDigest) Digest() (string, bool) { return string(d), true }

// StructuredRecord is a decoded JSON object carrying a "hash" or
// "contentHash" key.
type StructuredRecord map[string]any

func (r StructuredRecord) Digest() (string, bool) {
	for _, k := range []string{"contentHash", "hash"} {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Result lists changed paths, each sorted ascending.
type Result struct {
	Created  []string `json:"created"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
	// MetadataChanged is only filled when metadata drift is requested.
	MetadataChanged []string `json:"metadataChanged,omitempty"`
}

// Changed reports whether any created, modified or deleted path exists.
func (r Result) Changed() bool {
	return len(r.Created)+len(r.Modified)+len(r.Deleted) > 0
}

// Total counts created, modified and deleted paths.
func (r Result) Total() int {
	return len(r.Created) + len(r.Modified) + len(r.Deleted)
}

type options struct {
	metadataDrift bool
}

// Option tunes Diff.
type Option func(*options)

// WithMetadataDrift reports paths whose digest is unchanged but whose stat
// metadata differs, in Result.MetadataChanged.
func WithMetadataDrift() Option {
	return func(o *options) { o.metadataDrift = true }
}

// Diff classifies paths as created (new only), deleted (old only) or modified
// (digests differ). Neither input is modified.
func Diff(old, new map[string]Comparable, opts ...Option) (Result, error) {
	if old == nil || new == nil {
		return Result{}, fmt.Errorf("%w: snapshot mapping is nil", ErrMalformedInput)
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := checkEntries("old", old); err != nil {
		return Result{}, err
	}
	if err := checkEntries("new", new); err != nil {
		return Result{}, err
	}

	res := Result{Created: []string{}, Modified: []string{}, Deleted: []string{}}
	if o.metadataDrift {
		res.MetadataChanged = []string{}
	}
	for p, n := range new {
		prev, ok := old[p]
		if !ok {
			res.Created = append(res.Created, p)
			continue
		}
		pd, pok := prev.Digest()
		nd, nok := n.Digest()
		if pok != nok || pd != nd {
			res.Modified = append(res.Modified, p)
			continue
		}
		if o.metadataDrift && metadataDiffers(prev, n) {
			res.MetadataChanged = append(res.MetadataChanged, p)
		}
	}
	for p := range old {
		if _, ok := new[p]; !ok {
			res.Deleted = append(res.Deleted, p)
		}
	}
	sort.Strings(res.Created)
	sort.Strings(res.Modified)
	sort.Strings(res.Deleted)
	sort.Strings(res.MetadataChanged)
	return res, nil
}

func checkEntries(side string, m map[string]Comparable) error {
	for p, c := range m {
		if c == nil {
			return fmt.Errorf("%w: %s snapshot entry %q is nil", ErrMalformedInput, side, p)
		}
	}
	return nil
}

func metadataDiffers(a, b Comparable) bool {
	fa, ok := a.(Fingerprinter)
	if !ok {
		return false
	}
	fb, ok := b.(Fingerprinter)
	if !ok {
		return false
	}
	return fa.MetadataFingerprint() != fb.MetadataFingerprint()
}

// ParseBaselineJSON decodes a flat path-keyed JSON object whose values are
// either digest strings or objects with a "hash"/"contentHash" key.
func ParseBaselineJSON(raw []byte) (map[string]Comparable, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: baseline is not a JSON object", ErrMalformedInput)
	}
	out := make(map[string]Comparable, len(top))
	for p, v := range top {
		c, err := parseEntry(v)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrMalformedInput, p, err)
		}
		out[p] = c
	}
	return out, nil
}

func parseEntry(v json.RawMessage) (Comparable, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 {
		return nil, errors.New("empty value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return BareDigest(s), nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return StructuredRecord(m), nil
	}
	return nil, errors.New("expected a digest string or an object")
}
