package engine

import (
	"context"
	"io"
)

// Stage is a step an agent reports for one task.
type Stage string

const (
	StageAnalyzing  Stage = "analyzing"
	StageInProgress Stage = "in_progress"
	StageProgress   Stage = "progress" // Progress carries the new percentage
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// IsTerminal reports whether the stage ends the task.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// TaskEvent is "task TaskIndex reached Stage".
type TaskEvent struct {
	TaskIndex int
	Stage     Stage
	Progress  int64  // StageProgress only
	Result    string // StageCompleted and StageFailed; a default is used when empty
}

// EventSource yields the agent's task events in task order.
// Next returns io.EOF once the agent has nothing more to report.
type EventSource interface {
	Next(ctx context.Context) (TaskEvent, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []TaskEvent
	pos    int
}

// NewSliceSource creates a source over a copy of events.
func NewSliceSource(events ...TaskEvent) *SliceSource {
	return &SliceSource{events: append([]TaskEvent(nil), events...)}
}

// Next returns the next event, or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return TaskEvent{}, err
	}
	if s.pos >= len(s.events) {
		return TaskEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
