package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flarebyte/aegis/internal/baseline"
	"github.com/flarebyte/aegis/internal/config"
	"github.com/flarebyte/aegis/internal/history"
	"github.com/flarebyte/aegis/internal/metrics"
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/testutil"
)

var (
	initStages  = []string{"validate-config", "discover-files", "snapshot-files", "write-baseline", "record-history", "write-metrics", "write-output"}
	checkStages = []string{"validate-config", "load-baseline", "discover-files", "snapshot-files", "compute-integrity-diff", "write-baseline", "record-history", "write-metrics", "write-output"}
)

type fixture struct {
	dir  string
	root string
	cfg  config.Config
}

func newFixture(t *testing.T, extra string) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "tree")
	testutil.WriteTree(t, root, map[string]string{
		"etc/hosts":     "127.0.0.1 localhost\n",
		"etc/passwd":    "root:x:0:0\n",
		"bin/tool":      "#!/bin/sh\n",
		"cache/tmp.bin": "scratch",
	})
	src := fmt.Sprintf(`
configVersion: "1"
roots: ["tree"]
exclude: ["cache"]
baseline: { path: "state/baseline.json" }
output: { out: "out/report.json" }
%s
`, extra)
	cfg, err := config.Parse([]byte(src), dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return &fixture{dir: dir, root: root, cfg: cfg}
}

func (f *fixture) run(t *testing.T, action string, stages []string, deps Deps) (Envelope, error) {
	t.Helper()
	cfg := f.cfg
	env := Envelope{Config: &cfg, Meta: &Meta{Config: &ConfigMeta{Action: action}}}
	var err error
	for _, name := range stages {
		env, err = Run(context.Background(), name, env, deps)
		if err != nil {
			return Envelope{}, err
		}
	}
	return env, nil
}

func (f *fixture) readReport(t *testing.T) map[string]any {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.dir, "out", "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return m
}

func TestPipeline_InitThenCheckDetectsChanges(t *testing.T) {
	f := newFixture(t, "")
	env, err := f.run(t, ActionInit, initStages, Deps{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if env.Meta.Baseline == nil || !env.Meta.Baseline.Written {
		t.Fatalf("baseline not written: %+v", env.Meta.Baseline)
	}
	if env.Current.Len() != 3 {
		t.Fatalf("expected 3 records (cache excluded), got %v", env.Current.Paths())
	}

	if err := os.WriteFile(filepath.Join(f.root, "etc", "passwd"), []byte("root:x:0:0\nevil:x:0:0\n"), 0o644); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if err := os.Remove(filepath.Join(f.root, "bin", "tool")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "etc", "new.conf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}

	env, err = f.run(t, ActionCheck, checkStages, Deps{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	d := env.Meta.Diff
	want := fmt.Sprint([]string{filepath.Join(f.root, "etc", "new.conf")}, []string{filepath.Join(f.root, "etc", "passwd")}, []string{filepath.Join(f.root, "bin", "tool")})
	if got := fmt.Sprint(d.Created, d.Modified, d.Deleted); got != want {
		t.Fatalf("unexpected diff\nwant: %s\n got: %s", want, got)
	}
	if env.Meta.Run.FirstRun || Outcome(env) != "drift" {
		t.Fatalf("unexpected run meta: %+v outcome=%s", env.Meta.Run, Outcome(env))
	}
	rep := f.readReport(t)
	if rep["mode"] != "check" || len(rep["modified"].([]any)) != 1 {
		t.Fatalf("unexpected report: %v", rep)
	}

	// check without --update leaves the baseline untouched
	again, err := f.run(t, ActionCheck, checkStages, Deps{})
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !again.Meta.Diff.Changed() {
		t.Fatalf("baseline should not have been replaced")
	}
}

func TestPipeline_CheckWithoutBaselineIsFirstRun(t *testing.T) {
	f := newFixture(t, "")
	env, err := f.run(t, ActionCheck, checkStages, Deps{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !env.Meta.Run.FirstRun || env.Meta.Baseline.Found {
		t.Fatalf("expected first run, got %+v %+v", env.Meta.Run, env.Meta.Baseline)
	}
	if len(env.Meta.Diff.Created) != 3 {
		t.Fatalf("every path should be created on first run: %+v", env.Meta.Diff)
	}
	if got := Outcome(env); got != "first-run" {
		t.Fatalf("first run outcome: want first-run, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "state", "baseline.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("check must not create the baseline without update")
	}
	if rep := f.readReport(t); rep["firstRun"] != true {
		t.Fatalf("report should flag first run: %v", rep)
	}
}

func TestPipeline_UpdateReplacesBaseline(t *testing.T) {
	f := newFixture(t, "check: { updateBaseline: true }")
	if _, err := f.run(t, ActionCheck, checkStages, Deps{}); err != nil {
		t.Fatalf("first check: %v", err)
	}
	env, err := f.run(t, ActionCheck, checkStages, Deps{})
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if env.Meta.Diff.Changed() || env.Meta.Run.FirstRun {
		t.Fatalf("expected clean second check: %+v", env.Meta.Diff)
	}
}

func TestPipeline_CorruptBaselineIsFatal(t *testing.T) {
	f := newFixture(t, "")
	p := filepath.Join(f.dir, "state", "baseline.json")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := f.run(t, ActionCheck, checkStages, Deps{})
	if !errors.Is(err, baseline.ErrCorruptBaseline) {
		t.Fatalf("expected ErrCorruptBaseline, got %v", err)
	}
}

func TestPipeline_AlgorithmMismatch(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.run(t, ActionInit, initStages, Deps{}); err != nil {
		t.Fatalf("init: %v", err)
	}
	f.cfg.Hash.Algorithm = "blake3"
	_, err := f.run(t, ActionCheck, checkStages, Deps{})
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("expected ErrAlgorithmMismatch, got %v", err)
	}
}

func TestPipeline_LuaFilterExcludesPaths(t *testing.T) {
	f := newFixture(t, `filter: { inline: "return name ~= 'hosts'" }`)
	env, err := f.run(t, ActionScanDryRun, []string{"validate-config", "discover-files"}, Deps{})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, c := range env.Candidates {
		if strings.HasSuffix(c.Path, "hosts") {
			t.Fatalf("filtered path discovered: %s", c.Path)
		}
	}
	if env.Meta.Discovery.Candidates != 2 || env.Meta.Discovery.Filtered != 1 {
		t.Fatalf("unexpected discovery meta: %+v", env.Meta.Discovery)
	}
}

func TestPipeline_HistoryAndMetrics(t *testing.T) {
	f := newFixture(t, `
history: { dsn: "state/history.db" }
metrics: { textfile: "state/aegis.prom" }
`)
	m := metrics.New()
	env, err := f.run(t, ActionInit, initStages, Deps{Metrics: m})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if env.Meta.Run.ID == "" {
		t.Fatalf("history run id missing")
	}
	store, err := history.Open(context.Background(), filepath.Join(f.dir, "state", "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	got, err := store.Get(context.Background(), env.Meta.Run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Mode != ActionInit || got.Files != 3 || got.Outcome != "ok" {
		t.Fatalf("unexpected run: %+v", got)
	}
	prom, err := os.ReadFile(filepath.Join(f.dir, "state", "aegis.prom"))
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(prom), "aegis_snapshot_files 3") {
		t.Fatalf("unexpected textfile:\n%s", prom)
	}
}

func TestPipeline_FailFastAbortsOnSkip(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read everything")
	}
	f := newFixture(t, `errors: { mode: "fail-fast" }`)
	locked := filepath.Join(f.root, "etc", "locked")
	if err := os.MkdirAll(locked, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(locked, 0o755)
	if _, err := f.run(t, ActionScan, []string{"validate-config", "discover-files"}, Deps{}); err == nil {
		t.Fatalf("expected fail-fast error")
	}
	f.cfg.Errors.Mode = "keep-going"
	env, err := f.run(t, ActionScan, []string{"validate-config", "discover-files"}, Deps{})
	if err != nil {
		t.Fatalf("keep-going: %v", err)
	}
	if len(env.Errors) != 1 || env.Errors[0].Locator != locked {
		t.Fatalf("expected one skip error, got %+v", env.Errors)
	}
}

func TestPipeline_OwnArtefactsUnderRootAreIgnored(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"etc/hosts": "127.0.0.1 localhost\n"})
	cfg, err := config.Parse([]byte(`
configVersion: "1"
roots: ["."]
baseline: { path: "aegis-baseline.json" }
output: { out: "report.json" }
history: { dsn: "history.db" }
metrics: { textfile: "aegis.prom" }
check: { updateBaseline: true }
`), dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	f := &fixture{dir: dir, root: dir, cfg: cfg}
	if _, err := f.run(t, ActionInit, initStages, Deps{}); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 0; i < 2; i++ {
		env, err := f.run(t, ActionCheck, checkStages, Deps{})
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if env.Meta.Diff.Changed() || Outcome(env) != "ok" {
			t.Fatalf("check %d: unchanged tree reported drift: %+v", i, env.Meta.Diff)
		}
		if got := env.Current.Paths(); len(got) != 1 || got[0] != filepath.Join(dir, "etc", "hosts") {
			t.Fatalf("check %d: unexpected snapshot paths %v", i, got)
		}
	}
}

func TestPipeline_ScanLinesAreRecords(t *testing.T) {
	f := newFixture(t, "")
	f.cfg.Output.Out = filepath.Join(f.dir, "out", "records.jsonl")
	f.cfg.Output.Format = "lines"
	if _, err := f.run(t, ActionScan, []string{"validate-config", "discover-files", "snapshot-files", "write-output"}, Deps{}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(f.dir, "out", "records.jsonl"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var r record.Record
	if err := json.Unmarshal([]byte(lines[0]), &r); err != nil || r.Kind != record.KindFile {
		t.Fatalf("unexpected first line %s: %v", lines[0], err)
	}
}

func TestRun_UnknownStage(t *testing.T) {
	_, err := Run(context.Background(), "nope", Envelope{}, Deps{})
	var unknown ErrUnknown
	if !errors.As(err, &unknown) || err.Error() != "unknown stage: nope" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStagesRequirePredecessors(t *testing.T) {
	cfg := newFixture(t, "").cfg
	for name, want := range map[string]error{
		"discover-files":         errNoConfig,
		"snapshot-files":         errNoDiscovery,
		"compute-integrity-diff": errNoSnapshot,
	} {
		env := Envelope{}
		if name != "discover-files" {
			env.Config = &cfg
		}
		if _, err := Run(context.Background(), name, env, Deps{}); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", name, want, err)
		}
	}
	if _, err := Run(context.Background(), "validate-config", Envelope{}, Deps{}); !errors.As(err, &ErrMissingConfigPath{}) {
		t.Fatalf("expected ErrMissingConfigPath, got %v", err)
	}
}

func TestSortEnvelopeErrors_ByStageLocatorMessage(t *testing.T) {
	env := Envelope{
		Errors: []Error{
			{Stage: "z", Locator: "b", Message: "m2"},
			{Stage: "a", Locator: "z", Message: "m2"},
			{Stage: "a", Locator: "a", Message: "m3"},
			{Stage: "a", Locator: "a", Message: "m1"},
		},
	}
	SortEnvelopeErrors(&env)
	want := []Error{
		{Stage: "a", Locator: "a", Message: "m1"},
		{Stage: "a", Locator: "a", Message: "m3"},
		{Stage: "a", Locator: "z", Message: "m2"},
		{Stage: "z", Locator: "b", Message: "m2"},
	}
	for i := range want {
		if env.Errors[i] != want[i] {
			t.Fatalf("index %d mismatch: got=%+v want=%+v", i, env.Errors[i], want[i])
		}
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	if got := sanitizeErrorMessage("  open /x:\n\tpermission   denied "); got != "open /x: permission denied" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := sanitizeErrorMessage(" \n "); got != "error" {
		t.Fatalf("unexpected: %q", got)
	}
}
