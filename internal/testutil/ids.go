package testutil

// FixedIDGenerator generates the same workflow id every time.
//
// This enables deterministic test execution and golden trace comparison:
// update ids are derived from the workflow id, so the same scenario with the
// same FixedIDGenerator produces byte-identical traces.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this generator
// never runs out.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed id generator.
//
// If id is empty, Generate() returns "wf-test".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "wf-test"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
