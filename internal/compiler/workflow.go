package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/state"
)

//go:embed schema.cue
var schemaSource string

// TaskDef is one task of a compiled workflow definition.
type TaskDef struct {
	ID      string
	Title   string
	Trivial bool   // The simulator skips the analyzing stage
	Fail    string // Injected failure reason; empty means the task succeeds
}

// Definition is a compiled workflow definition, ready to seed a run.
type Definition struct {
	Name  string // Key under workflow: in the CUE source
	ID    string
	Title string
	Tasks []TaskDef
}

// Initial returns the creation-time snapshot for this definition.
func (d *Definition) Initial() (state.WorkflowState, error) {
	specs := make([]state.TaskSpec, len(d.Tasks))
	for i, t := range d.Tasks {
		specs[i] = state.TaskSpec{ID: t.ID, Title: t.Title}
	}
	ws, err := state.New(d.ID, d.Title, specs)
	if err != nil {
		return state.WorkflowState{}, fmt.Errorf("workflow %q: %w", d.Name, err)
	}
	return ws, nil
}

// SimTasks returns the simulator plan for this definition. failures maps a
// task id to an extra failure reason and wins over the definition's own.
func (d *Definition) SimTasks(failures map[string]string) []engine.SimTask {
	out := make([]engine.SimTask, len(d.Tasks))
	for i, t := range d.Tasks {
		fail := t.Fail
		if reason, ok := failures[t.ID]; ok {
			fail = reason
		}
		out[i] = engine.SimTask{Title: t.Title, Trivial: t.Trivial, Fail: fail}
	}
	return out
}

// schema compiles the embedded schema in the same context as v. CUE values
// from different contexts cannot be unified.
func schema(v cue.Value) (cue.Value, error) {
	s := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("embedded schema: %w", err)
	}
	return s.LookupPath(cue.ParsePath("#Workflow")), nil
}

// CompileWorkflow compiles one workflow value (the body under workflow:
// <name>). A missing id is filled from ids; nil means UUIDv7.
func CompileWorkflow(name string, v cue.Value, ids engine.IDGenerator) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}

	def, err := schema(v)
	if err != nil {
		return nil, err
	}
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(name, err)
	}

	d := &Definition{Name: name}

	idVal := unified.LookupPath(cue.ParsePath("id"))
	if idVal.Exists() {
		d.ID, err = idVal.String()
		if err != nil {
			return nil, formatCUEError(name+".id", err)
		}
	} else {
		d.ID = ids.Generate()
	}

	d.Title, err = unified.LookupPath(cue.ParsePath("title")).String()
	if err != nil {
		return nil, formatCUEError(name+".title", err)
	}

	d.Tasks, err = parseTasks(name, unified.LookupPath(cue.ParsePath("tasks")))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseTasks(name string, v cue.Value) ([]TaskDef, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(name+".tasks", err)
	}

	var tasks []TaskDef
	seen := make(map[string]int)
	for i := 0; iter.Next(); i++ {
		tv := iter.Value()
		field := fmt.Sprintf("%s.tasks[%d]", name, i)

		var t TaskDef
		if t.ID, err = tv.LookupPath(cue.ParsePath("id")).String(); err != nil {
			return nil, formatCUEError(field+".id", err)
		}
		if t.Title, err = tv.LookupPath(cue.ParsePath("title")).String(); err != nil {
			return nil, formatCUEError(field+".title", err)
		}
		if tr := tv.LookupPath(cue.ParsePath("trivial")); tr.Exists() {
			if t.Trivial, err = tr.Bool(); err != nil {
				return nil, formatCUEError(field+".trivial", err)
			}
		}
		if f := tv.LookupPath(cue.ParsePath("fail")); f.Exists() {
			if t.Fail, err = f.String(); err != nil {
				return nil, formatCUEError(field+".fail", err)
			}
		}

		if prev, dup := seen[t.ID]; dup {
			return nil, &CompileError{
				Kind:    KindDuplicateTask,
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate task id %q (first used by tasks[%d])", t.ID, prev),
				Pos:     tv.Pos(),
			}
		}
		seen[t.ID] = i
		tasks = append(tasks, t)
	}
	return tasks, nil
}
