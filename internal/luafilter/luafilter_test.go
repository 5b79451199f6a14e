package luafilter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flarebyte/aegis/internal/discovery"
)

func TestEval_Expression(t *testing.T) {
	f, err := Compile(`ext == "conf" and size >= 10`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	cases := []struct {
		c    discovery.Candidate
		want bool
	}{
		{discovery.Candidate{Path: "/etc/app.conf", Size: 20}, true},
		{discovery.Candidate{Path: "/etc/app.conf", Size: 2}, false},
		{discovery.Candidate{Path: "/etc/app.yaml", Size: 20}, false},
	}
	for _, tc := range cases {
		got, err := f.Eval(tc.c)
		if err != nil {
			t.Fatalf("eval %s: %v", tc.c.Path, err)
		}
		if got != tc.want {
			t.Fatalf("%+v: want %v got %v", tc.c, tc.want, got)
		}
	}
}

func TestCompile_ExpressionMentioningReturn(t *testing.T) {
	f, err := Compile(`name ~= "returns.txt" -- skip the return log`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	if ok, _ := f.Eval(discovery.Candidate{Path: "/var/returns.txt"}); ok {
		t.Fatalf("returns.txt should be excluded")
	}
	if ok, _ := f.Eval(discovery.Candidate{Path: "/var/other.txt"}); !ok {
		t.Fatalf("other.txt should be kept")
	}
}

func TestEval_StatementWithStringLib(t *testing.T) {
	f, err := Compile(`
local base = string.lower(name)
if string.find(base, "^secret") then
  return false
end
return true`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	if ok, _ := f.Eval(discovery.Candidate{Path: "/x/SECRET.key"}); ok {
		t.Fatalf("expected secret to be excluded")
	}
	if ok, _ := f.Eval(discovery.Candidate{Path: "/x/public.key"}); !ok {
		t.Fatalf("expected public to be kept")
	}
}

func TestEval_NonBooleanExcludedAndReported(t *testing.T) {
	var reported []string
	f, err := Compile(`return size`, WithErrorHandler(func(path string, err error) {
		if errors.Is(err, ErrNotBoolean) {
			reported = append(reported, path)
		}
	}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	if f.Allow(discovery.Candidate{Path: "/a", Size: 1}) {
		t.Fatalf("non-boolean result must exclude")
	}
	if len(reported) != 1 || reported[0] != "/a" {
		t.Fatalf("error not reported: %v", reported)
	}
}

func TestEval_SandboxBlocksFileAccess(t *testing.T) {
	f, err := Compile(`return dofile("/etc/passwd") ~= nil`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	if _, err := f.Eval(discovery.Candidate{Path: "/a"}); err == nil {
		t.Fatalf("expected dofile to be unavailable")
	}
	g, err := Compile(`return os ~= nil or io ~= nil`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer g.Close()
	if ok, err := g.Eval(discovery.Candidate{Path: "/a"}); err != nil || ok {
		t.Fatalf("os/io must not be loaded: ok=%v err=%v", ok, err)
	}
}

func TestEval_Timeout(t *testing.T) {
	f, err := Compile(`while true do end return true`, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer f.Close()
	_, err = f.Eval(discovery.Candidate{Path: "/a"})
	if err == nil || !strings.Contains(err.Error(), violationTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	if _, err := Compile(`return (`); err == nil {
		t.Fatalf("expected syntax error")
	}
}
