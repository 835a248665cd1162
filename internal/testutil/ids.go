package testutil

import (
	"fmt"
	"sync"
)

// SeqIDs generates sequential record ids ("rec-0001", "rec-0002", …)
// so tests and golden snapshots see stable identifiers instead of
// random UUIDs.
//
// Implements the record-id generator interface; safe for concurrent
// use.
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDs creates a generator with the given prefix. An empty
// prefix defaults to "rec".
func NewSeqIDs(prefix string) *SeqIDs {
	if prefix == "" {
		prefix = "rec"
	}
	return &SeqIDs{prefix: prefix}
}

// Generate returns the next id in sequence.
func (g *SeqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence for test reuse.
func (g *SeqIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
