package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// compileCUE loads and compiles a CUE file at the given path.
func compileCUE(path string) (cue.Value, error) {
	if filepath.Ext(path) != ".cue" {
		return cue.Value{}, errors.New("unsupported config format: expected .cue")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	return compileBytes(data)
}

func compileBytes(data []byte) (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("invalid config: %v", err)
	}
	return v, nil
}

func requireStringField(v cue.Value, name string) error {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return fmt.Errorf("missing required field: %s", name)
	}
	if f.Kind() != cue.StringKind {
		return fmt.Errorf("invalid type for field: %s (expected string)", name)
	}
	return nil
}

func typeError(name, want string) error {
	return fmt.Errorf("invalid type for field: %s (expected %s)", name, want)
}

// lookupString decodes an optional string field. A present field of another
// kind is a type error.
func lookupString(v cue.Value, name string, dst *string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	if f.Kind() != cue.StringKind {
		return false, typeError(name, "string")
	}
	return true, f.Decode(dst)
}

func lookupBool(v cue.Value, name string, dst *bool) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	if f.Kind() != cue.BoolKind {
		return false, typeError(name, "bool")
	}
	return true, f.Decode(dst)
}

func lookupInt(v cue.Value, name string, dst *int64) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	if f.Kind() != cue.IntKind {
		return false, typeError(name, "int")
	}
	return true, f.Decode(dst)
}

func lookupStringList(v cue.Value, name string, dst *[]string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	if f.Kind() != cue.ListKind {
		return false, typeError(name, "list of strings")
	}
	if err := f.Decode(dst); err != nil {
		return false, typeError(name, "list of strings")
	}
	return true, nil
}
