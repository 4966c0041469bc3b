package state

import "fmt"

// TaskStatus is the lifecycle state of a single task.
// The string value is the wire form used in patches and snapshots.
type TaskStatus string

// Task status constants
const (
	StatusPending    TaskStatus = "pending"
	StatusAnalyzing  TaskStatus = "analyzing"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TaskStatus{
	StatusPending,
	StatusAnalyzing,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
}

// ParseStatus converts a wire string to a TaskStatus.
func ParseStatus(s string) (TaskStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Valid reports whether s is one of the defined statuses.
func (s TaskStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further changes may target a task in status s.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Both terminal states share the
// highest rank, so COMPLETED and FAILED are never reachable from each other.
func (s TaskStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAnalyzing:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether a task may move from one status to another.
//
// Forward moves may skip states (a trivial task goes straight from PENDING to
// IN_PROGRESS, or even to COMPLETED). FAILED is only reachable from a task
// that has started. Replacing a status with itself is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return from == StatusAnalyzing || from == StatusInProgress
	}
	return to.Rank() > from.Rank()
}
