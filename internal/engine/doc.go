// Package engine implements the producer side of workflow state sync.
//
// A Generator drives a state.WorkflowState through its lifecycle. It pulls
// task events from an EventSource (the agent doing the work, or the
// Simulator), translates each one into a patch.StateUpdate, applies that
// update to its own canonical copy, and yields it.
//
// ARCHITECTURE:
//
// Pull-Based Sequence:
// Generator.Updates returns an iter.Seq2. Nothing runs until the caller
// ranges over it, and nothing runs after the caller stops. There are no
// goroutines; the only suspension points are the pacing delay between
// batches and EventSource.Next.
//
// Self-Application:
// Every batch goes through patch.Apply against the producer's copy before it
// is yielded. Producer and consumers therefore share one definition of
// "applying an update", and the producer's state after emitting a prefix is
// exactly what a consumer gets by folding that prefix.
//
// Emission protocol (version "1"):
//  1. "Workflow started": /started_at
//  2. per task, in array order:
//     "Moving to task k": /current_task_index
//     one batch per stage event (analyzing, in_progress, progress)
//     one terminal batch: status, result, completed_at (success only), and
//     the recomputed /overall_progress
//  3. "Workflow completed": /completed_at
//
// Run pumps a Generator into Sinks such as the journal, a websocket
// broadcaster or a terminal renderer.
package engine
