package engine

import (
	"context"
	"fmt"
	"io"
)

// SimTask configures how the Simulator plays one task.
type SimTask struct {
	Title   string
	Trivial bool   // Skip the analyzing stage
	Fail    string // When set, the task fails after reaching 50% with this reason
}

// simulatedSteps are the progress checkpoints a simulated task reports.
var simulatedSteps = []int64{25, 50, 75, 100}

// failAfter is the last checkpoint a failing task reaches.
const failAfter = 50

// Simulator is an EventSource standing in for a real agent. For each task in
// order it reports analyzing (unless trivial), in_progress, progress at 25,
// 50, 75 and 100, then completed. A task marked to fail stops after 50% and
// reports failed instead.
//
// Events are produced on demand; the simulator holds only a cursor.
type Simulator struct {
	tasks   []SimTask
	task    int
	pending []TaskEvent
}

// NewSimulator creates a simulator over tasks.
func NewSimulator(tasks []SimTask) *Simulator {
	return &Simulator{tasks: append([]SimTask(nil), tasks...)}
}

// Next returns the next event, or io.EOF after the last task.
func (s *Simulator) Next(ctx context.Context) (TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return TaskEvent{}, err
	}
	for len(s.pending) == 0 {
		if s.task >= len(s.tasks) {
			return TaskEvent{}, io.EOF
		}
		s.pending = plan(s.task, s.tasks[s.task])
		s.task++
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func plan(index int, t SimTask) []TaskEvent {
	var events []TaskEvent
	if !t.Trivial {
		events = append(events, TaskEvent{TaskIndex: index, Stage: StageAnalyzing})
	}
	events = append(events, TaskEvent{TaskIndex: index, Stage: StageInProgress})
	for _, p := range simulatedSteps {
		if t.Fail != "" && p > failAfter {
			break
		}
		events = append(events, TaskEvent{TaskIndex: index, Stage: StageProgress, Progress: p})
	}
	if t.Fail != "" {
		return append(events, TaskEvent{
			TaskIndex: index,
			Stage:     StageFailed,
			Result:    fmt.Sprintf("%s failed: %s", t.Title, t.Fail),
		})
	}
	return append(events, TaskEvent{
		TaskIndex: index,
		Stage:     StageCompleted,
		Result:    fmt.Sprintf("%s completed successfully", t.Title),
	})
}
