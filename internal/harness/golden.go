package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wfsync/internal/ir"
)

// TraceSnapshot renders a trace as canonical JSON for golden comparison.
// Digests are left out: the final state is included in full.
func TraceSnapshot(scenarioName string, r *Result) ([]byte, error) {
	trace := make(ir.Array, len(r.Trace))
	for i, e := range r.Trace {
		ops := make(ir.Array, len(e.Update.Operations))
		for j, op := range e.Update.Operations {
			obj := ir.Object{
				"op":   ir.String(op.Op),
				"path": ir.String(op.Path),
			}
			if op.Value != nil {
				obj["value"] = op.Value
			}
			ops[j] = obj
		}
		trace[i] = ir.Object{
			"seq":         ir.Int(e.Seq),
			"description": ir.String(e.Update.Description),
			"timestamp":   ir.String(e.Update.Timestamp.UTC().Format(time.RFC3339Nano)),
			"operations":  ops,
		}
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario_name": ir.String(scenarioName),
		"workflow_id":   ir.String(r.Final.WorkflowID),
		"trace":         trace,
		"final":         r.Final.Object(),
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
