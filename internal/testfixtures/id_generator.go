package testfixtures

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces deterministic identifiers for tests.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	uuids   bool
}

// NewIDGenerator yields "<prefix>-<n>" identifiers. An empty prefix uses "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator yields name-based UUIDs derived from seed and a counter,
// so that runs are repeatable while IDs keep the production shape.
func NewUUIDGenerator(seed string) *IDGenerator {
	return &IDGenerator{prefix: seed, uuids: true}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.uuids {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(g.prefix+"/"+strconv.FormatUint(g.counter, 10))).String()
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return uuid.NewString() }
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
