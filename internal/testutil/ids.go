package testutil

// FixedIDGenerator returns the same request ID every time.
//
// This enables golden comparison of request logs: the same scenario with
// the same FixedIDGenerator logs byte-identical requests.
//
// Unlike engine.FixedGenerator which returns IDs in sequence and panics
// when exhausted, this generator never runs out.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// If id is empty, Generate() returns "test-request".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-request"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements engine.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
