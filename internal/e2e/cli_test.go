package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/flarebyte/aegis/internal/testutil"
)

type runResult struct {
	code   int
	stdout []byte
	stderr []byte
}

var (
	buildOnce sync.Once
	builtBin  string
	buildErr  error
)

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
}

// buildAegis compiles ./cmd/aegis once per test binary.
func buildAegis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e: skipped in -short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("e2e: go toolchain not on PATH")
	}
	root := repoRoot(t)
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "aegis-e2e-")
		if err != nil {
			buildErr = err
			return
		}
		builtBin = filepath.Join(dir, "aegis")
		if runtime.GOOS == "windows" {
			builtBin += ".exe"
		}
		cmd := exec.Command(goBin, "build", "-o", builtBin, "./cmd/aegis")
		cmd.Dir = root
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if out, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("build failed: %v\n%s", err, out)
		}
	})
	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}
	return builtBin
}

func runCmd(t *testing.T, bin string, args ...string) runResult {
	t.Helper()
	cmd := exec.Command(bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	return runResult{code: code, stdout: stdout.Bytes(), stderr: stderr.Bytes()}
}

func assertStable(t *testing.T, runs []runResult) {
	t.Helper()
	if len(runs) < 2 {
		t.Fatalf("need >=2 runs")
	}
	a := runs[0]
	for i, r := range runs[1:] {
		if r.code != a.code {
			t.Fatalf("exit code drift at run %d: %d vs %d", i+1, r.code, a.code)
		}
		if !bytes.Equal(r.stdout, a.stdout) {
			t.Fatalf("stdout drift at run %d:\n%s\nvs\n%s", i+1, r.stdout, a.stdout)
		}
	}
}

// newProject lays out a tree and a config writing the report to stdout.
func newProject(t *testing.T, workers int, format string) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{}
	for i := 0; i < 30; i++ {
		files[fmt.Sprintf("tree/d%d/f%02d.txt", i%3, i)] = fmt.Sprintf("payload %d", i)
	}
	files["tree/logs/app.log"] = "noise"
	testutil.WriteTree(t, dir, files)
	cfg = filepath.Join(dir, "aegis.cue")
	src := fmt.Sprintf(`configVersion: "1"
roots: ["tree"]
exclude: ["logs"]
workers: %d
baseline: { path: "baseline.json" }
check: { failOnChange: true }
output: { out: "-", format: "%s" }
`, workers, format)
	if err := os.WriteFile(cfg, []byte(src), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir, cfg
}

func TestCLI_InitCheckDeterministic(t *testing.T) {
	bin := buildAegis(t)
	dir, cfg := newProject(t, 4, "json")

	if r := runCmd(t, bin, "-q", "--config", cfg, "init"); r.code != 0 {
		t.Fatalf("init exit %d: %s", r.code, r.stderr)
	}
	var runs []runResult
	for i := 0; i < 5; i++ {
		runs = append(runs, runCmd(t, bin, "-q", "--config", cfg, "check"))
	}
	assertStable(t, runs)
	if runs[0].code != 0 {
		t.Fatalf("clean check should exit 0, got %d: %s", runs[0].code, runs[0].stderr)
	}

	if err := os.WriteFile(filepath.Join(dir, "tree", "d0", "f00.txt"), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	r := runCmd(t, bin, "-q", "--config", cfg, "check")
	if r.code != 2 {
		t.Fatalf("drift should exit 2, got %d: %s", r.code, r.stderr)
	}
	if strings.TrimSpace(string(r.stderr)) != "drift detected" {
		t.Fatalf("unexpected stderr: %q", r.stderr)
	}
	var rep struct {
		Modified []string `json:"modified"`
	}
	if err := json.Unmarshal(r.stdout, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(rep.Modified) != 1 || !strings.HasSuffix(rep.Modified[0], "f00.txt") {
		t.Fatalf("unexpected modified list: %v", rep.Modified)
	}
}

func TestCLI_WorkersDoNotChangeOutput(t *testing.T) {
	bin := buildAegis(t)
	var runs []runResult
	for _, w := range []int{1, 2, 8} {
		_, cfg := newProject(t, w, "lines")
		r := runCmd(t, bin, "-q", "--config", cfg, "scan")
		if r.code != 0 {
			t.Fatalf("scan exit %d: %s", r.code, r.stderr)
		}
		// paths differ by temp dir; compare the digests only
		var digests []string
		for _, line := range strings.Split(strings.TrimSpace(string(r.stdout)), "\n") {
			var rec struct {
				ContentHash *string `json:"contentHash"`
			}
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				t.Fatalf("decode %q: %v", line, err)
			}
			if rec.ContentHash != nil {
				digests = append(digests, *rec.ContentHash)
			}
		}
		runs = append(runs, runResult{stdout: []byte(strings.Join(digests, "\n"))})
	}
	assertStable(t, runs)
}

func TestCLI_MissingConfigExits1(t *testing.T) {
	bin := buildAegis(t)
	r := runCmd(t, bin, "check")
	if r.code != 1 || strings.TrimSpace(string(r.stderr)) != "missing required flag: --config" {
		t.Fatalf("unexpected result: %d %q", r.code, r.stderr)
	}
}

func TestCLI_Version(t *testing.T) {
	bin := buildAegis(t)
	r := runCmd(t, bin, "version")
	if r.code != 0 || !strings.HasPrefix(string(r.stdout), "aegis ") {
		t.Fatalf("unexpected version output: %d %q", r.code, r.stdout)
	}
}
