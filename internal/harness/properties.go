package harness

import (
	"fmt"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// CheckProperties checks the whole-run properties every trace must have,
// beyond the per-update convergence the follower checks while running.
// It returns one message per violation.
func CheckProperties(r *Result) []string {
	var errs []string
	if msg := checkMonotonicSeq(r.Trace); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkCompletionCoverage(r); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkBandwidth(r.Trace); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

func checkMonotonicSeq(trace []TraceEntry) string {
	for i, e := range trace {
		if e.Seq != int64(i+1) {
			return fmt.Sprintf("seq: entry %d has seq %d, want %d", i, e.Seq, i+1)
		}
	}
	return ""
}

// checkCompletionCoverage applies to runs where every task succeeded: the
// trace holds one completing update per task, and overall progress reaches
// 100 with the last of them and not before.
func checkCompletionCoverage(r *Result) string {
	if !r.Final.AllTerminal() || r.Final.CompletedCount() != len(r.Final.Tasks) || len(r.Final.Tasks) == 0 {
		return ""
	}

	ws := r.Initial.Clone()
	completions := 0
	for _, e := range r.Trace {
		next, err := patch.Apply(ws, e.Update)
		if err != nil {
			return fmt.Sprintf("completion coverage: seq %d does not apply: %v", e.Seq, err)
		}
		ws = next

		if completesTask(e.Update) {
			completions++
		}
		last := completions == len(ws.Tasks)
		if ws.OverallProgress == 100 && !last {
			return fmt.Sprintf("completion coverage: overall progress 100 at seq %d with %d of %d tasks completed",
				e.Seq, completions, len(ws.Tasks))
		}
		if last && ws.OverallProgress != 100 {
			return fmt.Sprintf("completion coverage: all tasks completed at seq %d but overall progress is %d",
				e.Seq, ws.OverallProgress)
		}
	}
	if completions != len(ws.Tasks) {
		return fmt.Sprintf("completion coverage: %d completing updates for %d tasks", completions, len(ws.Tasks))
	}
	return ""
}

// checkBandwidth requires the updates to be cheaper on the wire than
// resending the full state after each of them.
func checkBandwidth(trace []TraceEntry) string {
	if len(trace) < 2 {
		return ""
	}
	var incremental, full int
	for _, e := range trace {
		incremental += e.UpdateBytes
		full += e.SnapshotBytes
	}
	if incremental >= full {
		return fmt.Sprintf("bandwidth: %d bytes of updates, %d bytes of snapshots", incremental, full)
	}
	return ""
}

func completesTask(u patch.StateUpdate) bool {
	return setsTaskStatus(u, state.StatusCompleted)
}

func setsTaskStatus(u patch.StateUpdate, statuses ...state.TaskStatus) bool {
	for _, op := range u.Operations {
		target, err := patch.ParsePath(op.Path)
		if err != nil {
			continue
		}
		tf, ok := target.(patch.TaskField)
		if !ok || tf.Name != patch.FieldStatus {
			continue
		}
		s, ok := op.Value.(ir.String)
		if !ok {
			continue
		}
		for _, want := range statuses {
			if state.TaskStatus(s) == want {
				return true
			}
		}
	}
	return false
}
