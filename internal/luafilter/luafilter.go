// Package luafilter evaluates a user supplied Lua predicate against
// discovered files.
package luafilter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/flarebyte/aegis/internal/discovery"
)

const (
	DefaultTimeout = 200 * time.Millisecond

	violationTimeout = "sandbox timeout"
)

var ErrNotBoolean = errors.New("filter did not return a boolean")

// Filter is a compiled predicate. It owns one Lua state and is not safe for
// concurrent use.
type Filter struct {
	proto   *lua.FunctionProto
	L       *lua.LState
	timeout time.Duration
	onError func(path string, err error)
}

// Option configures a Filter.
type Option func(*Filter)

// WithTimeout bounds a single evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Filter) { f.timeout = d }
}

// WithErrorHandler receives evaluation failures. The path is excluded either
// way.
func WithErrorHandler(fn func(path string, err error)) Option {
	return func(f *Filter) { f.onError = fn }
}

// Compile parses code once. A bare expression such as "size > 0" is tried
// first as "return (<expr>)"; anything else is parsed as a chunk.
func Compile(code string, opts ...Option) (*Filter, error) {
	code = strings.TrimSpace(code)
	chunk, err := parse.Parse(strings.NewReader("return (\n"+code+"\n)"), "filter")
	if err != nil {
		chunk, err = parse.Parse(strings.NewReader(code), "filter")
	}
	if err != nil {
		return nil, fmt.Errorf("filter.inline: %w", err)
	}
	proto, err := lua.Compile(chunk, "filter")
	if err != nil {
		return nil, fmt.Errorf("filter.inline: %w", err)
	}
	f := &Filter{proto: proto, L: newSandboxState(), timeout: DefaultTimeout}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true, RegistrySize: 256, RegistryMaxSize: 4096})
	openLib := func(name string, fn lua.LGFunction) {
		L.Push(L.NewFunction(fn))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib(lua.BaseLibName, lua.OpenBase)
	openLib(lua.StringLibName, lua.OpenString)
	openLib(lua.TabLibName, lua.OpenTable)
	openLib(lua.MathLibName, lua.OpenMath)
	// base exposes file loaders
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Close releases the Lua state.
func (f *Filter) Close() {
	if f != nil && f.L != nil {
		f.L.Close()
	}
}

// Eval runs the predicate for c.
func (f *Filter) Eval(c discovery.Candidate) (bool, error) {
	L := f.L
	L.SetGlobal("path", lua.LString(c.Path))
	L.SetGlobal("name", lua.LString(filepath.Base(c.Path)))
	L.SetGlobal("ext", lua.LString(strings.TrimPrefix(filepath.Ext(c.Path), ".")))
	L.SetGlobal("size", lua.LNumber(c.Size))

	if f.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	L.Push(L.NewFunctionFromProto(f.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.SetTop(0)
		if isTimeoutError(err) {
			return false, errors.New(violationTimeout)
		}
		return false, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	b, ok := ret.(lua.LBool)
	if !ok {
		return false, fmt.Errorf("%w: got %s", ErrNotBoolean, ret.Type())
	}
	return bool(b), nil
}

// Allow adapts Eval to discovery.Options.Filter: errors exclude the path.
func (f *Filter) Allow(c discovery.Candidate) bool {
	ok, err := f.Eval(c)
	if err != nil {
		if f.onError != nil {
			f.onError(c.Path, err)
		}
		return false
	}
	return ok
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled")
}
