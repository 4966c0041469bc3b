package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/state"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Workflow builds a "wf-1" snapshot with one pending task per title. Task
// ids are t1, t2, ...
func Workflow(t testing.TB, titles ...string) state.WorkflowState {
	t.Helper()
	specs := make([]state.TaskSpec, len(titles))
	for i, title := range titles {
		specs[i] = state.TaskSpec{ID: taskID(i), Title: title}
	}
	ws, err := state.New("wf-1", "Release", specs)
	require.NoError(t, err)
	return ws
}

// SimTasks returns a simulator plan that succeeds on every task.
func SimTasks(ws state.WorkflowState) []engine.SimTask {
	out := make([]engine.SimTask, len(ws.Tasks))
	for i, task := range ws.Tasks {
		out[i] = engine.SimTask{Title: task.Title}
	}
	return out
}

// Generator returns an unpaced generator over the simulator with a step
// clock and a quiet logger. Extra options are applied last.
func Generator(t testing.TB, ws state.WorkflowState, sim []engine.SimTask, opts ...engine.Option) *engine.Generator {
	t.Helper()
	base := []engine.Option{
		engine.WithNow(NewStepClock().Now),
		engine.WithLogger(QuietLogger()),
	}
	g, err := engine.NewGenerator(ws, engine.NewSimulator(sim), append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func taskID(i int) string {
	return "t" + string(rune('1'+i))
}
