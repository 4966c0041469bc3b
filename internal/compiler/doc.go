// Package compiler turns CUE workflow definitions into runnable workflows.
//
// A definition file declares one or more workflows:
//
//	workflow: release: {
//	    id:    "wf-release"
//	    title: "Release pipeline"
//	    tasks: [
//	        {id: "build", title: "Build"},
//	        {id: "ship", title: "Ship", trivial: true},
//	    ]
//	}
//
// Each workflow is unified with an embedded closed schema, so unknown
// fields and wrong types are reported with their source position. A
// workflow without an id gets a fresh UUIDv7.
package compiler
