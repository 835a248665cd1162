package cli

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/hooks"
	"github.com/hollis-dev/basalt/internal/migrate"
	"github.com/hollis-dev/basalt/internal/records"
	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
	"github.com/hollis-dev/basalt/migrations"
)

// App is the wired engine stack a command operates on.
type App struct {
	Store    *store.Store
	Registry *schema.Registry
	Records  *records.Service
	Manager  *migrate.Manager
	Flows    *auth.Flows
}

// OpenApp opens the configured database and wires the full stack:
// persisted collections are loaded into the registry, the system
// admin collection is bootstrapped, and the migration manager shares
// the record store's schema lock.
func OpenApp(ctx context.Context) (*App, error) {
	dbPath := viper.GetString("db")
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", dbPath), err)
	}

	reg := schema.NewRegistry(
		schema.WithPersister(st),
		schema.WithDataChecker(st),
		schema.WithDataMigrator(st),
	)
	cols, err := st.LoadCollections(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "load collections", err)
	}
	reg.Load(cols)

	if _, err := reg.Get(schema.AdminCollectionName); err != nil {
		if !schema.IsNotFound(err) {
			st.Close()
			return nil, err
		}
		if _, err := reg.Create(ctx, schema.AdminCollection()); err != nil {
			st.Close()
			return nil, fmt.Errorf("bootstrap admin collection: %w", err)
		}
	}

	svc := records.New(reg, st, rules.NewEngine(), hooks.NewRegistry())

	mgr := migrate.NewManager(migrations.Set, reg, st,
		migrate.WithSchemaLock(svc.SchemaLock()),
		migrate.WithFileLock(viper.GetString("lock_file")),
	)

	flows := auth.NewFlows(svc.AuthOps(), auth.NewArgon2Hasher(),
		auth.NewHMACIssuer([]byte(viper.GetString("secret"))))

	return &App{
		Store:    st,
		Registry: reg,
		Records:  svc,
		Manager:  mgr,
		Flows:    flows,
	}, nil
}

// Close drains the hook dispatcher and closes the database.
func (a *App) Close() {
	a.Records.Close()
	a.Store.Close()
}
