package ir

// Version constants for the synchronization protocol.
const (
	// ProtocolVersion identifies the patch vocabulary and emission granularity.
	// Producers and consumers that disagree on it must resnapshot.
	ProtocolVersion = "1"

	// EngineVersion is the wfsync engine version.
	EngineVersion = "0.1.0"
)
