package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/basalt/internal/hooks"
	"github.com/hollis-dev/basalt/internal/records"
	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// Env is a fully wired engine over a throwaway database, with
// deterministic ids and timestamps. Cleanup is registered on t.
type Env struct {
	Store    *store.Store
	Registry *schema.Registry
	Rules    *rules.Engine
	Hooks    *hooks.Registry
	Records  *records.Service
	Clock    *FixedClock
	IDs      *SeqIDs
}

// NewEnv opens a temp SQLite database and wires the full stack.
// Extra record-service options are appended after the deterministic
// id and clock wiring.
func NewEnv(t *testing.T, opts ...records.Option) *Env {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "basalt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := NewFixedClock()
	ids := NewSeqIDs("rec")

	reg := schema.NewRegistry(
		schema.WithPersister(st),
		schema.WithDataChecker(st),
		schema.WithDataMigrator(st),
	)
	ruleEngine := rules.NewEngine()
	hookReg := hooks.NewRegistry()

	svcOpts := append([]records.Option{
		records.WithIDGenerator(ids),
		records.WithClock(clock.Now),
	}, opts...)
	svc := records.New(reg, st, ruleEngine, hookReg, svcOpts...)
	t.Cleanup(svc.Close)

	return &Env{
		Store:    st,
		Registry: reg,
		Rules:    ruleEngine,
		Hooks:    hookReg,
		Records:  svc,
		Clock:    clock,
		IDs:      ids,
	}
}

// MustCreateCollection registers a collection definition, failing the
// test on error.
func (e *Env) MustCreateCollection(t *testing.T, def *schema.Collection) *schema.Collection {
	t.Helper()
	col, err := e.Registry.Create(context.Background(), def)
	require.NoError(t, err)
	return col
}

// Public returns a rule pointer for a public operation.
func Public() *string {
	s := ""
	return &s
}

// Rule returns a pointer to a rule expression literal.
func Rule(expr string) *string {
	return &expr
}
