package integrity

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type fakeRecord struct {
	digest string
	ok     bool
	meta   string
}

func (f fakeRecord) Digest() (string, bool)      { return f.digest, f.ok }
func (f fakeRecord) MetadataFingerprint() string { return f.meta }

func bare(kv ...string) map[string]Comparable {
	m := map[string]Comparable{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = BareDigest(kv[i+1])
	}
	return m
}

func assertResult(t *testing.T, got Result, created, modified, deleted []string) {
	t.Helper()
	if !reflect.DeepEqual(got.Created, created) {
		t.Fatalf("created mismatch\nwant: %v\n got: %v", created, got.Created)
	}
	if !reflect.DeepEqual(got.Modified, modified) {
		t.Fatalf("modified mismatch\nwant: %v\n got: %v", modified, got.Modified)
	}
	if !reflect.DeepEqual(got.Deleted, deleted) {
		t.Fatalf("deleted mismatch\nwant: %v\n got: %v", deleted, got.Deleted)
	}
}

func TestDiff_ConcreteScenario(t *testing.T) {
	old := bare("/a", "h1", "/b", "h2")
	cur := bare("/a", "h1", "/b", "h3", "/c", "h4")
	got, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, []string{"/c"}, []string{"/b"}, []string{})
	if !got.Changed() || got.Total() != 2 {
		t.Fatalf("unexpected change summary: %+v", got)
	}
}

func TestDiff_EmptyOld(t *testing.T) {
	got, err := Diff(map[string]Comparable{}, bare("/x", "h"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, []string{"/x"}, []string{}, []string{})
}

func TestDiff_Reflexive(t *testing.T) {
	s := map[string]Comparable{
		"/a": BareDigest("h1"),
		"/b": StructuredRecord{"hash": "h2", "size": 3},
		"/c": fakeRecord{ok: false},
	}
	for i := 0; i < 2; i++ {
		got, err := Diff(s, s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, []string{}, []string{}, []string{})
		if got.Changed() {
			t.Fatalf("reflexive diff reported changes")
		}
	}
}

func TestDiff_PartitionsUnion(t *testing.T) {
	old := bare("/keep", "k", "/gone1", "g", "/gone2", "g", "/mod", "m1")
	cur := bare("/keep", "k", "/new1", "n", "/mod", "m2", "/new0", "n")
	got, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, []string{"/new0", "/new1"}, []string{"/mod"}, []string{"/gone1", "/gone2"})

	seen := map[string]int{}
	for _, l := range [][]string{got.Created, got.Modified, got.Deleted} {
		for _, p := range l {
			seen[p]++
		}
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("path %s classified %d times", p, n)
		}
	}
	if len(seen)+1 != 6 {
		t.Fatalf("expected 5 changed paths plus 1 unchanged, got %d changed", len(seen))
	}
}

func TestDiff_MixedShapesCompareDigestOnly(t *testing.T) {
	old := map[string]Comparable{
		"/a": BareDigest("h1"),
		"/b": StructuredRecord{"hash": "h2", "modifiedTime": 1.0, "size": 10},
	}
	cur := map[string]Comparable{
		"/a": StructuredRecord{"contentHash": "h1", "modifiedTime": 99.0},
		"/b": StructuredRecord{"hash": "h2", "modifiedTime": 2.0, "size": 11},
	}
	got, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, []string{}, []string{}, []string{})
}

func TestDiff_MissingDigestAgainstDigestIsModified(t *testing.T) {
	old := map[string]Comparable{"/f": BareDigest("h")}
	cur := map[string]Comparable{"/f": fakeRecord{ok: false}}
	got, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, []string{}, []string{"/f"}, []string{})
}

func TestDiff_MetadataDriftOptIn(t *testing.T) {
	old := map[string]Comparable{"/f": fakeRecord{digest: "h", ok: true, meta: "mtime=1"}}
	cur := map[string]Comparable{"/f": fakeRecord{digest: "h", ok: true, meta: "mtime=2"}}

	got, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Changed() || got.MetadataChanged != nil {
		t.Fatalf("metadata drift must not be reported by default: %+v", got)
	}

	got, err = Diff(old, cur, WithMetadataDrift())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Changed() {
		t.Fatalf("metadata drift must not count as modified: %+v", got)
	}
	if !reflect.DeepEqual(got.MetadataChanged, []string{"/f"}) {
		t.Fatalf("unexpected metadataChanged: %v", got.MetadataChanged)
	}
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	old := bare("/a", "1", "/b", "2")
	cur := bare("/b", "3", "/c", "4")
	if _, err := Diff(old, cur); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(old) != 2 || len(cur) != 2 || old["/a"] != BareDigest("1") || cur["/c"] != BareDigest("4") {
		t.Fatalf("inputs mutated: %v %v", old, cur)
	}
}

func TestDiff_MalformedInput(t *testing.T) {
	if _, err := Diff(nil, bare()); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for nil old, got %v", err)
	}
	if _, err := Diff(bare(), nil); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for nil new, got %v", err)
	}
	withNil := map[string]Comparable{"/x": nil}
	_, err := Diff(withNil, bare())
	if !errors.Is(err, ErrMalformedInput) || !strings.Contains(err.Error(), "/x") {
		t.Fatalf("expected descriptive ErrMalformedInput, got %v", err)
	}
}

func TestParseBaselineJSON(t *testing.T) {
	m, err := ParseBaselineJSON([]byte(`{"/a":"h1","/b":{"hash":"h2","size":4},"/c":{"contentHash":"h3"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for p, want := range map[string]string{"/a": "h1", "/b": "h2", "/c": "h3"} {
		got, ok := m[p].Digest()
		if !ok || got != want {
			t.Fatalf("%s: want %s, got %s", p, want, got)
		}
	}

	for _, raw := range []string{`[]`, `"x"`, `null`, `{"/a": 5}`, `{"/a": ["h"]}`, `{bad`} {
		if _, err := ParseBaselineJSON([]byte(raw)); !errors.Is(err, ErrMalformedInput) {
			t.Fatalf("%s: expected ErrMalformedInput, got %v", raw, err)
		}
	}
}
