// Package migrate applies ordered, versioned schema and data
// migrations, tracked in a persistent ledger.
//
// Applied migrations always form a contiguous prefix of the
// registered order: Migrate applies forward from the first pending
// version, Rollback peels from the end, and a gap in the ledger is
// reported as corruption rather than silently skipped.
package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// Env is what a migration step gets to work with.
type Env struct {
	Registry *schema.Registry
	Store    *store.Store
}

// StepFunc is one direction of a migration.
type StepFunc func(ctx context.Context, env Env) error

// Migration pairs an up step with its inverse. A nil Down marks the
// migration irreversible: Rollback refuses to cross it.
type Migration struct {
	// Version orders migrations; lexicographic order must match the
	// intended apply order (timestamps like "20260831093000" do).
	Version string
	Name    string
	Up      StepFunc
	Down    StepFunc
}

// Reversible reports whether the migration declares an inverse.
func (m Migration) Reversible() bool { return m.Down != nil }

// Set is the ordered collection of registered migrations.
type Set struct {
	mu         sync.Mutex
	migrations []Migration
	byVersion  map[string]int
}

// NewSet creates an empty migration set.
func NewSet() *Set {
	return &Set{byVersion: make(map[string]int)}
}

// Register adds a migration. Versions must be unique and registered
// in strictly increasing order; both are programmer errors, reported
// immediately.
func (s *Set) Register(m Migration) error {
	if m.Version == "" {
		return fmt.Errorf("migrate: migration %q has no version", m.Name)
	}
	if m.Up == nil {
		return fmt.Errorf("migrate: migration %s %q has no up step", m.Version, m.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byVersion[m.Version]; dup {
		return fmt.Errorf("migrate: duplicate version %s", m.Version)
	}
	if n := len(s.migrations); n > 0 && s.migrations[n-1].Version >= m.Version {
		return fmt.Errorf("migrate: version %s registered after %s, order must be increasing",
			m.Version, s.migrations[n-1].Version)
	}

	s.byVersion[m.Version] = len(s.migrations)
	s.migrations = append(s.migrations, m)
	return nil
}

// MustRegister is Register for init-time wiring, panicking on misuse.
func (s *Set) MustRegister(m Migration) {
	if err := s.Register(m); err != nil {
		panic(err)
	}
}

// All returns the registered migrations in apply order.
func (s *Set) All() []Migration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Migration, len(s.migrations))
	copy(out, s.migrations)
	return out
}

// Get looks a migration up by version.
func (s *Set) Get(version string) (Migration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byVersion[version]
	if !ok {
		return Migration{}, false
	}
	return s.migrations[i], true
}

// MigrationError wraps a failed step with its identity and direction.
type MigrationError struct {
	Version   string
	Name      string
	Direction string // "up" | "down"
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s %q (%s): %v", e.Version, e.Name, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// LedgerCorruptionError reports applied ledger entries that do not
// form a contiguous prefix of the registered order.
type LedgerCorruptionError struct {
	// Gap is the first pending version that precedes an applied one.
	Gap     string
	Applied string
}

func (e *LedgerCorruptionError) Error() string {
	return fmt.Sprintf("migration ledger corrupt: %s is pending but later version %s is applied", e.Gap, e.Applied)
}

// IrreversibleError is returned by Rollback when the target
// migration declares no down step.
type IrreversibleError struct {
	Version string
	Name    string
}

func (e *IrreversibleError) Error() string {
	return fmt.Sprintf("migration %s %q is irreversible", e.Version, e.Name)
}
