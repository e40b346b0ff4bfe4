package testutil

import "fmt"

// FixedRunTokens generates predictable run tokens for testing. Unlike the
// production UUIDv7 generator, tokens follow a fixed sequence so journal
// output and golden files stay stable across runs.
//
// Implements engine.RunTokenGenerator interface.
type FixedRunTokens struct {
	prefix  string
	counter int
}

// NewFixedRunTokens creates a generator producing "<prefix>-001",
// "<prefix>-002", and so on.
func NewFixedRunTokens(prefix string) *FixedRunTokens {
	if prefix == "" {
		prefix = "test-run"
	}
	return &FixedRunTokens{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *FixedRunTokens) Generate() string {
	g.counter++
	return fmt.Sprintf("%s-%03d", g.prefix, g.counter)
}
