// Package state defines the workflow state model that producers and consumers
// keep in sync.
//
// A WorkflowState is created once per workflow run as a full snapshot and is
// afterwards changed only by applying patch batches (see package patch). The
// JSON field names double as patch path segments, so "/tasks/0/status"
// addresses Tasks[0].Status.
//
// Invariants:
//   - len(Tasks) is fixed for the lifetime of a workflow id
//   - OverallProgress and every task Progress lie in 0..100
//   - Result and CompletedAt are only set on terminal tasks
//   - Task status never moves backward (see TaskStatus.Rank)
package state
