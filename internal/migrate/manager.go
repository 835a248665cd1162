package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// Manager drives migrations against one database.
//
// Two locks guard a run: the in-process schema lock (shared with the
// record store, held for write so no record write overlaps a
// migration) and an optional file lock for the multi-process case.
type Manager struct {
	set      *Set
	registry *schema.Registry
	store    *store.Store
	schemaMu *sync.RWMutex
	filelock *flock.Flock
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSchemaLock shares the record store's schema lock.
func WithSchemaLock(mu *sync.RWMutex) ManagerOption {
	return func(m *Manager) { m.schemaMu = mu }
}

// WithFileLock guards runs with an advisory file lock at path, for
// deployments where several processes share the database file.
func WithFileLock(path string) ManagerOption {
	return func(m *Manager) { m.filelock = flock.New(path) }
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager over a registered set.
func NewManager(set *Set, reg *schema.Registry, st *store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		set:      set,
		registry: reg,
		store:    st,
		schemaMu: &sync.RWMutex{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) env() Env {
	return Env{Registry: m.registry, Store: m.store}
}

// lock acquires both guards; the returned func releases them.
func (m *Manager) lock(ctx context.Context) (func(), error) {
	if m.filelock != nil {
		ok, err := m.filelock.TryLockContext(ctx, 100*time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("acquire migration file lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("migration file lock %s: held by another process", m.filelock.Path())
		}
	}
	m.schemaMu.Lock()
	return func() {
		m.schemaMu.Unlock()
		if m.filelock != nil {
			if err := m.filelock.Unlock(); err != nil {
				slog.Error("release migration file lock failed", "path", m.filelock.Path(), "error", err)
			}
		}
	}, nil
}

// pendingAfterPrefix returns the registered migrations that are not
// yet applied, verifying the applied set is a contiguous prefix.
func (m *Manager) pendingAfterPrefix(ctx context.Context) ([]Migration, error) {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	all := m.set.All()
	var pending []Migration
	var firstGap string
	for _, mig := range all {
		if applied[mig.Version] {
			if firstGap != "" {
				return nil, &LedgerCorruptionError{Gap: firstGap, Applied: mig.Version}
			}
			continue
		}
		if firstGap == "" {
			firstGap = mig.Version
		}
		pending = append(pending, mig)
	}
	return pending, nil
}

func (m *Manager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	entries, err := m.store.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Applied() {
			applied[e.Version] = true
		}
	}
	return applied, nil
}

// Migrate applies every pending migration in version order and
// returns how many ran. A step failure stops the run; the completed
// steps stay applied, so a re-run resumes from the failure point.
func (m *Manager) Migrate(ctx context.Context) (int, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	pending, err := m.pendingAfterPrefix(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, mig := range pending {
		if err := m.store.EnsureLedgerEntry(ctx, mig.Version, mig.Name); err != nil {
			return applied, err
		}
		slog.Info("applying migration", "version", mig.Version, "name", mig.Name)
		if err := mig.Up(ctx, m.env()); err != nil {
			return applied, &MigrationError{Version: mig.Version, Name: mig.Name, Direction: "up", Err: err}
		}
		if err := m.store.MarkApplied(ctx, mig.Version, m.now()); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Rollback reverts the most recently applied migration. Rolling back
// an irreversible migration fails with IrreversibleError and changes
// nothing.
func (m *Manager) Rollback(ctx context.Context) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return m.rollbackLast(ctx)
}

func (m *Manager) rollbackLast(ctx context.Context) error {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	all := m.set.All()
	for i := len(all) - 1; i >= 0; i-- {
		mig := all[i]
		if !applied[mig.Version] {
			continue
		}
		if !mig.Reversible() {
			return &IrreversibleError{Version: mig.Version, Name: mig.Name}
		}
		slog.Info("rolling back migration", "version", mig.Version, "name", mig.Name)
		if err := mig.Down(ctx, m.env()); err != nil {
			return &MigrationError{Version: mig.Version, Name: mig.Name, Direction: "down", Err: err}
		}
		return m.store.MarkPending(ctx, mig.Version)
	}
	return fmt.Errorf("rollback: no applied migrations")
}

// RollbackAll reverts every applied migration, newest first, stopping
// at the first irreversible one.
func (m *Manager) RollbackAll(ctx context.Context) (int, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	reverted := 0
	for {
		applied, err := m.appliedVersions(ctx)
		if err != nil {
			return reverted, err
		}
		if len(applied) == 0 {
			return reverted, nil
		}
		if err := m.rollbackLast(ctx); err != nil {
			return reverted, err
		}
		reverted++
	}
}

// Reset rolls everything back and reapplies from scratch.
func (m *Manager) Reset(ctx context.Context) error {
	if _, err := m.RollbackAll(ctx); err != nil {
		return err
	}
	_, err := m.Migrate(ctx)
	return err
}

// StatusEntry pairs a registered migration with its ledger state.
type StatusEntry struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

// Status reports every registered migration in order, plus any ledger
// rows that no registered migration claims (stale entries from a
// removed migration file).
func (m *Manager) Status(ctx context.Context) ([]StatusEntry, error) {
	entries, err := m.store.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]store.LedgerEntry, len(entries))
	for _, e := range entries {
		byVersion[e.Version] = e
	}

	var out []StatusEntry
	seen := make(map[string]bool)
	for _, mig := range m.set.All() {
		st := StatusEntry{Version: mig.Version, Name: mig.Name}
		if e, ok := byVersion[mig.Version]; ok && e.Applied() {
			st.Applied = true
			st.AppliedAt = e.AppliedAt
		}
		seen[mig.Version] = true
		out = append(out, st)
	}
	for _, e := range entries {
		if seen[e.Version] {
			continue
		}
		out = append(out, StatusEntry{
			Version:   e.Version,
			Name:      e.Name,
			Applied:   e.Applied(),
			AppliedAt: e.AppliedAt,
		})
	}
	return out, nil
}
