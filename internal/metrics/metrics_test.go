package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/snapshot"
)

func testSnapshot(t *testing.T) snapshot.Snapshot {
	t.Helper()
	size := int64(100)
	b := snapshot.NewBuilder("sha256")
	for _, r := range []record.Record{
		record.File("/a", "h", record.Meta{Size: &size}),
		record.File("/b", "h", record.Meta{Size: &size}),
		record.Failed("/c", "permission denied: open /c", record.Meta{}),
		record.Failed("/d", "file vanished since discovery: stat /d", record.Meta{}),
		record.Failed("/e", "permission denied: open /e", record.Meta{}),
	} {
		if err := b.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return b.Build()
}

func TestObserveSnapshotAndDiff(t *testing.T) {
	m := New()
	m.ObserveSnapshot(testSnapshot(t), 1500*time.Millisecond, 4)
	m.ObserveDiff(integrity.Result{Created: []string{"/x"}, Modified: []string{"/a", "/b"}, Deleted: []string{}}, true)
	m.ObserveRun("check", "drift", time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.files); got != 2 {
		t.Fatalf("files: got %v", got)
	}
	if got := testutil.ToFloat64(m.bytes); got != 200 {
		t.Fatalf("bytes: got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("permission denied")); got != 2 {
		t.Fatalf("permission errors: got %v", got)
	}
	if got := testutil.ToFloat64(m.changes.WithLabelValues("modified")); got != 2 {
		t.Fatalf("modified: got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess); got != 1700000000 {
		t.Fatalf("last success: got %v", got)
	}
	m.ObserveRun("check", "error", time.Unix(1800000000, 0))
	if got := testutil.ToFloat64(m.lastSuccess); got != 1700000000 {
		t.Fatalf("failed run must not move last success: %v", got)
	}
}

func TestWriteTextfileAndHandler(t *testing.T) {
	m := New()
	m.ObserveSnapshot(testSnapshot(t), time.Second, 1)
	p := filepath.Join(t.TempDir(), "aegis.prom")
	if err := m.WriteTextfile(p); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"aegis_snapshot_files 2", `aegis_snapshot_errors{class="file vanished since discovery"} 1`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("textfile missing %q:\n%s", want, b)
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "aegis_snapshot_records 5") {
		t.Fatalf("unexpected handler output: %d\n%s", rec.Code, rec.Body.String())
	}
}
