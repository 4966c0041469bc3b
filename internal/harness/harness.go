package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/wfsync/internal/compiler"
	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/replica"
	"github.com/roach88/wfsync/internal/state"
	"github.com/roach88/wfsync/internal/store"
	"github.com/roach88/wfsync/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and workflow id.
type Harness struct {
	clock  *testutil.StepClock
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Resolve and compile the workflow definition
// 2. Drive the generator over the simulator, following it with a replica
// 3. Optionally journal into a fresh in-memory database and replay it
// 4. Check the convergence properties and evaluate the assertions
//
// The returned error covers setup problems only; a failing run or
// assertion is reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:  testutil.NewStepClock(),
		ids:    testutil.NewFixedIDGenerator(scenario.WorkflowID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	def, err := h.definition(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow: %w", err)
	}
	initial, err := def.Initial()
	if err != nil {
		return nil, err
	}

	gen, err := engine.NewGenerator(initial,
		engine.NewSimulator(def.SimTasks(scenario.Failures)),
		engine.WithNow(h.clock.Now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Initial = initial

	follower, err := newFollower(initial, result, h.logger)
	if err != nil {
		return nil, err
	}
	sinks := []engine.Sink{follower}

	var st *store.Store
	if scenario.Journal {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()

		j, err := store.NewJournal(ctx, st, initial)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, j)
	}

	sum, runErr := engine.Run(ctx, gen, sinks...)
	result.Final = sum.Final
	if runErr != nil {
		result.AddError(fmt.Sprintf("run: %v", runErr))
	}

	if st != nil {
		h.checkReplay(ctx, st, sum.Final, result)
	}

	for _, msg := range CheckProperties(result) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"updates", len(result.Trace),
		"pass", result.Pass)
	return result, nil
}

// definition compiles the scenario's workflow. Inline workflows go through
// the same CUE schema as definition files.
func (h *Harness) definition(s *Scenario) (*compiler.Definition, error) {
	if s.Workflow != nil {
		v := cuecontext.New().Encode(s.Workflow)
		return compiler.CompileWorkflow(s.Name, v, h.ids)
	}

	defs, err := compiler.LoadDefinitions(s.Definitions, h.ids)
	if err != nil {
		return nil, err
	}
	d := compiler.Find(defs, s.Definition)
	if d == nil {
		return nil, fmt.Errorf("workflow %q not found in %s", s.Definition, s.Definitions)
	}
	return d, nil
}

func (h *Harness) checkReplay(ctx context.Context, st *store.Store, final state.WorkflowState, result *Result) {
	rep, err := st.Replay(ctx, final.WorkflowID)
	if err != nil {
		result.AddError(fmt.Sprintf("journal replay: %v", err))
		return
	}
	if !state.Equal(rep.Final, final) {
		result.AddError(fmt.Sprintf("journal replay: final digest %s, producer %s", rep.Final.Digest(), final.Digest()))
	}
	if rep.Updates != len(result.Trace) {
		result.AddError(fmt.Sprintf("journal replay: %d updates, trace has %d", rep.Updates, len(result.Trace)))
	}
}

// follower is the consumer side of a harness run. It folds each emission
// into its own replica and records a prefix-convergence failure whenever
// the replica's digest differs from the producer's.
type follower struct {
	replica *replica.Replica
	result  *Result
}

func newFollower(initial state.WorkflowState, result *Result, logger *slog.Logger) (*follower, error) {
	r := replica.New(replica.WithLogger(logger))
	if err := r.Install(initial); err != nil {
		return nil, err
	}
	return &follower{replica: r, result: result}, nil
}

func (f *follower) Emit(_ context.Context, e engine.Emission) error {
	wire, err := patch.MarshalUpdate(e.Update)
	if err != nil {
		return err
	}
	// Decode from the wire form so the replica sees what a remote
	// observer would.
	u, err := patch.UnmarshalUpdate(wire)
	if err != nil {
		return err
	}
	if err := f.replica.Apply(u); err != nil {
		f.result.AddError(fmt.Sprintf("seq %d (%s): replica rejected update: %v", e.Seq, e.Update.Description, err))
		return nil
	}

	view := f.replica.State()
	if got := view.Digest(); got != e.Digest {
		f.result.AddError(fmt.Sprintf("seq %d (%s): replica digest %s, producer %s", e.Seq, e.Update.Description, got, e.Digest))
	}
	snap, err := state.MarshalSnapshot(view)
	if err != nil {
		return err
	}
	f.result.AddTrace(TraceEntry{
		Seq:           e.Seq,
		Update:        e.Update,
		Digest:        e.Digest,
		UpdateBytes:   len(wire),
		SnapshotBytes: len(snap),
	})
	return nil
}
