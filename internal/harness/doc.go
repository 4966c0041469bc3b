// Package harness runs conformance scenarios against the synchronization
// engine.
//
// A scenario names a workflow (inline or from a CUE definitions
// directory), optional failure injection, and assertions on the final state
// and the update trace. Every run drives the real generator over the
// simulator and, for each emitted update, checks that an independent
// replica folding the same updates reaches the producer's digest. With
// journal enabled the run is also written to an in-memory store and
// replayed from it.
//
// Scenario files are YAML with strict field checking:
//
//	name: release_happy_path
//	description: Both tasks succeed
//	workflow:
//	  id: wf-1
//	  title: Release
//	  tasks:
//	    - {id: build, title: Build}
//	    - {id: ship, title: Ship, trivial: true}
//	journal: true
//	assertions:
//	  - {type: task_status, task: ship, status: completed}
//	  - {type: overall_progress, value: 100}
//	  - {type: terminal_count, count: 2}
//
// Traces can be pinned with RunWithGolden; regenerate with
//
//	go test ./internal/harness -update
package harness
