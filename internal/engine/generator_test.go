package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ticker returns a wall clock that advances one second per call.
func ticker() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return epoch.Add(time.Duration(n) * time.Second)
	}
}

func workflow(t *testing.T, titles ...string) state.WorkflowState {
	t.Helper()
	specs := make([]state.TaskSpec, len(titles))
	for i, title := range titles {
		specs[i] = state.TaskSpec{ID: string(rune('A' + i)), Title: title}
	}
	ws, err := state.New("wf-1", "Release", specs)
	require.NoError(t, err)
	return ws
}

func simTasks(ws state.WorkflowState) []SimTask {
	out := make([]SimTask, len(ws.Tasks))
	for i, task := range ws.Tasks {
		out[i] = SimTask{Title: task.Title}
	}
	return out
}

func newGen(t *testing.T, ws state.WorkflowState, src EventSource, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithNow(ticker()), WithLogger(quietLogger())}, opts...)
	g, err := NewGenerator(ws, src, opts...)
	require.NoError(t, err)
	return g
}

func collect(t *testing.T, g *Generator) []Emission {
	t.Helper()
	var out []Emission
	for e, err := range g.Emissions(context.Background()) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestGeneratorConvergesOnEveryPrefix(t *testing.T) {
	ws := workflow(t, "Build", "Test", "Ship")
	sim := simTasks(ws)
	sim[1].Trivial = true
	g := newGen(t, ws, NewSimulator(sim))

	emissions := collect(t, g)
	require.NotEmpty(t, emissions)

	replica := g.Initial()
	for i, e := range emissions {
		next, err := patch.Apply(replica, e.Update)
		require.NoError(t, err, "emission %d (%s)", i, e.Update.Description)
		replica = next
		assert.Equal(t, e.Digest, replica.Digest(), "prefix %d diverged", i+1)
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, "wf-1", e.WorkflowID)
	}
	assert.True(t, state.Equal(g.State(), replica))
	assert.True(t, g.Done())
}

func TestGeneratorEmissionProtocol(t *testing.T) {
	ws := workflow(t, "Build")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))

	var descriptions []string
	for u, err := range g.Updates(context.Background()) {
		require.NoError(t, err)
		descriptions = append(descriptions, u.Description)
	}

	assert.Equal(t, []string{
		"Workflow started",
		"Moving to task 1",
		"Analyzing: Build",
		"Executing: Build",
		"Build: 25% complete",
		"Build: 50% complete",
		"Build: 75% complete",
		"Build: 100% complete",
		"Completed: Build",
		"Workflow completed",
	}, descriptions)
}

func TestGeneratorTerminalBatch(t *testing.T) {
	ws := workflow(t, "Build", "Ship")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))

	var terminal []patch.StateUpdate
	for u, err := range g.Updates(context.Background()) {
		require.NoError(t, err)
		if len(u.Operations) > 0 && u.Operations[0].Path == patch.TaskPath(0, patch.FieldStatus) &&
			ir.Equal(u.Operations[0].Value, ir.String(state.StatusCompleted)) {
			terminal = append(terminal, u)
		}
	}
	require.Len(t, terminal, 1)

	paths := make(map[string]ir.Value)
	for _, op := range terminal[0].Operations {
		paths[op.Path] = op.Value
	}
	assert.Equal(t, ir.String("Build completed successfully"), paths["/tasks/0/result"])
	assert.Contains(t, paths, "/tasks/0/completed_at")
	assert.Equal(t, ir.Int(50), paths["/overall_progress"])
}

func TestGeneratorCompletionCoverage(t *testing.T) {
	ws := workflow(t, "One", "Two", "Three")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))

	replica := g.Initial()
	completions := 0
	for u, err := range g.Updates(context.Background()) {
		require.NoError(t, err)
		before := replica.CompletedCount()

		next, err := patch.Apply(replica, u)
		require.NoError(t, err)
		replica = next

		if replica.CompletedCount() > before {
			completions++
			if completions == len(ws.Tasks) {
				assert.Equal(t, int64(100), replica.OverallProgress)
			} else {
				assert.Less(t, replica.OverallProgress, int64(100))
			}
		}
	}
	assert.Equal(t, 3, completions)
	assert.Equal(t, int64(100), replica.OverallProgress)
	require.NotNil(t, replica.StartedAt)
	require.NotNil(t, replica.CompletedAt)
	assert.Equal(t, int64(2), replica.CurrentTaskIndex)
}

func TestGeneratorLargeWorkflowReaches100OnlyAtTheEnd(t *testing.T) {
	specs := make([]state.TaskSpec, 200)
	sim := make([]SimTask, len(specs))
	for i := range specs {
		specs[i] = state.TaskSpec{ID: fmt.Sprintf("t%03d", i), Title: fmt.Sprintf("Step %d", i)}
		sim[i] = SimTask{Title: specs[i].Title, Trivial: true}
	}
	ws, err := state.New("wf-large", "Large", specs)
	require.NoError(t, err)
	g := newGen(t, ws, NewSimulator(sim))

	replica := g.Initial()
	for u, err := range g.Updates(context.Background()) {
		require.NoError(t, err)
		replica, err = patch.Apply(replica, u)
		require.NoError(t, err)
		if replica.CompletedCount() < len(specs) {
			require.Less(t, replica.OverallProgress, int64(100), "after %q", u.Description)
		}
	}
	assert.Equal(t, int64(100), replica.OverallProgress)
}

func TestGeneratorProgressIsMonotonic(t *testing.T) {
	ws := workflow(t, "One", "Two")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))

	last := map[string]int64{}
	for u, err := range g.Updates(context.Background()) {
		require.NoError(t, err)
		for _, op := range u.Operations {
			target, err := patch.ParsePath(op.Path)
			require.NoError(t, err)
			tf, ok := target.(patch.TaskField)
			if !ok || tf.Name != patch.FieldProgress {
				continue
			}
			v := int64(op.Value.(ir.Int))
			assert.GreaterOrEqual(t, v, last[op.Path])
			last[op.Path] = v
		}
	}
	assert.Equal(t, int64(100), last["/tasks/0/progress"])
	assert.Equal(t, int64(100), last["/tasks/1/progress"])
}

func TestGeneratorFailurePath(t *testing.T) {
	ws := workflow(t, "Build", "Deploy")
	sim := simTasks(ws)
	sim[0].Fail = "compiler crashed"
	g := newGen(t, ws, NewSimulator(sim))

	collect(t, g)
	final := g.State()

	failed := final.Tasks[0]
	assert.Equal(t, state.StatusFailed, failed.Status)
	require.NotNil(t, failed.Result)
	assert.Equal(t, "Build failed: compiler crashed", *failed.Result)
	assert.Nil(t, failed.CompletedAt)
	assert.Equal(t, int64(50), failed.Progress)

	// Failed tasks stay in the denominator and never count as progress.
	assert.Equal(t, state.StatusCompleted, final.Tasks[1].Status)
	assert.Equal(t, int64(50), final.OverallProgress)
	require.NotNil(t, final.CompletedAt)
}

func TestGeneratorCallerMayStopEarly(t *testing.T) {
	ws := workflow(t, "Build", "Ship")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))

	var last Emission
	n := 0
	for e, err := range g.Emissions(context.Background()) {
		require.NoError(t, err)
		last = e
		n++
		if n == 5 {
			break
		}
	}

	assert.Equal(t, last.Digest, g.State().Digest())
	assert.False(t, g.Done())

	// The sequence is not restartable.
	var errs []error
	for _, err := range g.Updates(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrGeneratorConsumed)
}

func TestGeneratorPacing(t *testing.T) {
	ws := workflow(t, "Build")
	var slept []time.Duration
	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	g := newGen(t, ws, NewSimulator(simTasks(ws)), WithDelay(time.Second), WithSleeper(sleeper))

	emissions := collect(t, g)

	// Every batch except the final one is followed by a pause.
	require.Len(t, slept, len(emissions)-1)
	assert.Equal(t, time.Second, slept[0])
	assert.Equal(t, 500*time.Millisecond, slept[1])
	assert.Equal(t, 300*time.Millisecond, slept[4])
}

func TestGeneratorCancelDuringPacing(t *testing.T) {
	ws := workflow(t, "Build")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err()
	})
	g := newGen(t, ws, NewSimulator(simTasks(ws)), WithDelay(time.Millisecond), WithSleeper(sleeper))

	var got []Emission
	var finalErr error
	for e, err := range g.Emissions(ctx) {
		if err != nil {
			finalErr = err
			continue
		}
		got = append(got, e)
	}
	assert.Len(t, got, 2)
	assert.ErrorIs(t, finalErr, context.Canceled)
	assert.Equal(t, got[1].Digest, g.State().Digest())
}

func TestTimerSleeperHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, TimerSleeper{}.Sleep(context.Background(), time.Millisecond))
}

func TestGeneratorRejectsBadEvents(t *testing.T) {
	tests := []struct {
		name      string
		events    []TaskEvent
		violation bool
		code      OrderErrorCode
	}{
		{
			name:   "second task first",
			events: []TaskEvent{{TaskIndex: 1, Stage: StageInProgress}},
			code:   ErrCodeOutOfOrder,
		},
		{
			name: "interleaved tasks",
			events: []TaskEvent{
				{TaskIndex: 0, Stage: StageInProgress},
				{TaskIndex: 1, Stage: StageInProgress},
			},
			code: ErrCodeOutOfOrder,
		},
		{
			name:   "index out of range",
			events: []TaskEvent{{TaskIndex: 5, Stage: StageInProgress}},
			code:   ErrCodeOutOfOrder,
		},
		{
			name:   "unknown stage",
			events: []TaskEvent{{TaskIndex: 0, Stage: "paused"}},
			code:   ErrCodeUnknownStage,
		},
		{
			name:   "ends early",
			events: []TaskEvent{{TaskIndex: 0, Stage: StageInProgress}},
			code:   ErrCodeIncomplete,
		},
		{
			name: "status regression",
			events: []TaskEvent{
				{TaskIndex: 0, Stage: StageInProgress},
				{TaskIndex: 0, Stage: StageAnalyzing},
			},
			violation: true,
		},
		{
			name: "progress decrease",
			events: []TaskEvent{
				{TaskIndex: 0, Stage: StageInProgress},
				{TaskIndex: 0, Stage: StageProgress, Progress: 50},
				{TaskIndex: 0, Stage: StageProgress, Progress: 25},
			},
			violation: true,
		},
		{
			name:      "fail before start",
			events:    []TaskEvent{{TaskIndex: 0, Stage: StageFailed}},
			violation: true,
		},
		{
			name:      "progress before start",
			events:    []TaskEvent{{TaskIndex: 0, Stage: StageProgress, Progress: 10}},
			violation: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := workflow(t, "Build", "Ship")
			g := newGen(t, ws, NewSliceSource(tt.events...))

			var finalErr error
			replica := g.Initial()
			for e, err := range g.Emissions(context.Background()) {
				if err != nil {
					finalErr = err
					continue
				}
				replica, err = patch.Apply(replica, e.Update)
				require.NoError(t, err)
			}
			require.Error(t, finalErr)

			if tt.violation {
				assert.True(t, patch.IsInvariantViolation(finalErr), finalErr)
			} else {
				var oe *OrderError
				require.ErrorAs(t, finalErr, &oe)
				assert.Equal(t, tt.code, oe.Code)
			}
			// Whatever was emitted before the error still converges.
			assert.True(t, state.Equal(g.State(), replica))
			assert.False(t, g.Done())
		})
	}
}

func TestGeneratorEventSourceError(t *testing.T) {
	ws := workflow(t, "Build")
	boom := errors.New("agent disconnected")
	src := sourceFunc(func(context.Context) (TaskEvent, error) { return TaskEvent{}, boom })
	g := newGen(t, ws, src)

	var finalErr error
	for _, err := range g.Updates(context.Background()) {
		if err != nil {
			finalErr = err
		}
	}
	assert.ErrorIs(t, finalErr, boom)
}

func TestGeneratorEmptyWorkflow(t *testing.T) {
	ws, err := state.New("wf-empty", "Nothing", nil)
	require.NoError(t, err)
	g := newGen(t, ws, NewSimulator(nil))

	emissions := collect(t, g)
	require.Len(t, emissions, 2)
	assert.Equal(t, "Workflow completed", emissions[1].Update.Description)
	assert.Equal(t, int64(0), g.State().OverallProgress)
}

func TestNewGeneratorRejectsStartedSnapshot(t *testing.T) {
	ws := workflow(t, "Build")
	ws.Tasks[0].Status = state.StatusInProgress
	_, err := NewGenerator(ws, NewSimulator(nil))
	require.Error(t, err)

	ws = workflow(t, "Build")
	now := epoch
	ws.StartedAt = &now
	_, err = NewGenerator(ws, NewSimulator(nil))
	require.Error(t, err)

	_, err = NewGenerator(workflow(t, "Build"), nil)
	require.Error(t, err)
}

func TestGeneratorDoesNotShareState(t *testing.T) {
	ws := workflow(t, "Build")
	g := newGen(t, ws, NewSimulator(simTasks(ws)))
	collect(t, g)

	snap := g.State()
	snap.Tasks[0].Title = "mutated"
	assert.Equal(t, "Build", g.State().Tasks[0].Title)
	assert.Equal(t, state.StatusPending, ws.Tasks[0].Status)
}

type sourceFunc func(ctx context.Context) (TaskEvent, error)

func (f sourceFunc) Next(ctx context.Context) (TaskEvent, error) { return f(ctx) }
