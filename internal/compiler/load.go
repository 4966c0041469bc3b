package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/wfsync/internal/engine"
)

// Load builds the CUE package in dir.
func Load(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &CompileError{Kind: KindLoad, Field: "load", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError("load", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError("build", err)
	}
	return value, nil
}

// CompileAll compiles every workflow: <name> entry of v in declaration
// order. Definitions that compile are returned alongside the errors of
// those that do not.
func CompileAll(v cue.Value, ids engine.IDGenerator) ([]*Definition, []error) {
	wv := v.LookupPath(cue.ParsePath("workflow"))
	if !wv.Exists() {
		return nil, []error{&CompileError{Kind: KindEmpty, Field: "workflow", Message: "no workflow definitions found"}}
	}
	iter, err := wv.Fields()
	if err != nil {
		return nil, []error{formatCUEError("workflow", err)}
	}

	var (
		defs []*Definition
		errs []error
	)
	byID := make(map[string]string)
	for iter.Next() {
		name := iter.Label()
		d, err := CompileWorkflow(name, iter.Value(), ids)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if other, dup := byID[d.ID]; dup {
			errs = append(errs, &CompileError{
				Kind:    KindDuplicateWorkflow,
				Field:   name + ".id",
				Message: fmt.Sprintf("workflow id %q already used by %s", d.ID, other),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		byID[d.ID] = name
		defs = append(defs, d)
	}
	return defs, errs
}

// LoadDefinitions loads dir and compiles every workflow in it. All
// compile errors are joined into the returned error.
func LoadDefinitions(dir string, ids engine.IDGenerator) ([]*Definition, error) {
	v, err := Load(dir)
	if err != nil {
		return nil, err
	}
	defs, errs := CompileAll(v, ids)
	return defs, errors.Join(errs...)
}

// Find returns the definition with the given name, or nil.
func Find(defs []*Definition, name string) *Definition {
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}
