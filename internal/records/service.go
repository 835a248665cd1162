// Package records is the record store: it validates and persists
// records against their collection's schema, gated by the rule engine
// and wrapped by the hook pipeline.
//
// Every write runs the same pipeline: before-hooks, authorization,
// validation, commit, expansion, after-hooks. After-stage work is
// handed to the hook dispatcher and can never fail or stall the
// caller.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/hooks"
	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// Action labels a change notification.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent is the shape published to the external push transport.
type ChangeEvent struct {
	Action     Action         `json:"action"`
	Collection string         `json:"collection"`
	Record     *schema.Record `json:"record"`
}

// Notifier receives change events after a commit. Delivery is
// best-effort and fire-and-forget relative to the writer.
type Notifier interface {
	Notify(ev ChangeEvent)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Service is the record store.
type Service struct {
	registry *schema.Registry
	store    *store.Store
	rules    *rules.Engine
	hooks    *hooks.Registry
	dispatch *hooks.Dispatcher
	notifier Notifier
	ids      schema.IDGenerator
	now      Clock

	// schemaMu serializes writes against schema mutations: CRUD
	// writes hold it for read, migrations hold it for write. Reads
	// never take it.
	schemaMu *sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier attaches the change-notification transport.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithIDGenerator replaces the default UUIDv7 generator (tests).
func WithIDGenerator(g schema.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithClock replaces time.Now (tests).
func WithClock(c Clock) Option {
	return func(s *Service) { s.now = c }
}

// WithSchemaLock shares the schema lock with the migration manager.
func WithSchemaLock(mu *sync.RWMutex) Option {
	return func(s *Service) { s.schemaMu = mu }
}

// New builds a Service. The hook dispatcher is owned by the service;
// call Close to drain it.
func New(reg *schema.Registry, st *store.Store, ruleEngine *rules.Engine, hookReg *hooks.Registry, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		store:    st,
		rules:    ruleEngine,
		hooks:    hookReg,
		dispatch: hooks.NewDispatcher(),
		ids:      schema.UUIDv7Generator{},
		now:      time.Now,
		schemaMu: &sync.RWMutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close drains the after-stage dispatcher.
func (s *Service) Close() {
	s.dispatch.Close()
}

// SchemaLock exposes the shared lock for the migration manager.
func (s *Service) SchemaLock() *sync.RWMutex {
	return s.schemaMu
}

// Registry exposes the schema registry for collaborators.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// OpOption configures a single operation call.
type OpOption func(*opConfig)

type opConfig struct {
	expand []string
	params map[string]any
}

// WithExpand names relation fields to resolve in the response.
func WithExpand(fields ...string) OpOption {
	return func(c *opConfig) { c.expand = append(c.expand, fields...) }
}

// WithParams supplies request query parameters for rule evaluation.
func WithParams(params map[string]any) OpOption {
	return func(c *opConfig) { c.params = params }
}

func applyOpOptions(opts []OpOption) opConfig {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Create validates and persists a new record.
func (s *Service) Create(ctx context.Context, collection string, data map[string]any, actor auth.Context, opts ...OpOption) (*schema.Record, error) {
	cfg := applyOpOptions(opts)
	return s.writeWithRetry(collection, func() (*schema.Record, error) {
		return s.createOnce(ctx, collection, data, actor, cfg)
	})
}

func (s *Service) createOnce(ctx context.Context, collection string, data map[string]any, actor auth.Context, cfg opConfig) (*schema.Record, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	version := s.registry.Version()
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	if col.IsView() {
		return nil, &ValidationError{Collection: col.Name, Reason: "view collections are read-only"}
	}

	working := cloneData(data)
	hctx := &hooks.BeforeContext{
		Collection: col,
		Data:       working,
		Auth:       rules.IdentityEnv(actor.Identity),
		IsAdmin:    actor.IsAdmin,
	}
	if err := s.hooks.RunBefore(hooks.EventCreate, hctx); err != nil {
		return nil, err
	}
	working = hctx.Data

	candidate := &schema.Record{CollectionID: col.ID, Data: working}
	if err := s.authorize(col, version, schema.OpCreate, actor, candidate, cfg.params); err != nil {
		return nil, err
	}

	normalized, err := validateData(col, working)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &schema.Record{
		ID:           s.ids.Generate(),
		CollectionID: col.ID,
		Data:         normalized,
		Created:      now,
		Updated:      now,
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if v := s.registry.Version(); v != version {
			return &SchemaChangedError{Collection: col.Name, SeenVersion: version, NowVersion: v}
		}
		if err := s.checkRelations(ctx, tx, col, normalized); err != nil {
			return err
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		return s.claimUniques(ctx, tx, col, rec)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(hooks.EventCreate, ActionCreate, col, rec, actor)

	if err := s.expandRecord(ctx, col, rec, cfg.expand); err != nil {
		slog.Error("expand after create failed", "collection", col.Name, "record_id", rec.ID, "error", err)
	}
	return rec, nil
}

// Update applies a partial patch to an existing record. A nil value
// in the patch clears the field.
func (s *Service) Update(ctx context.Context, collection, id string, patch map[string]any, actor auth.Context, opts ...OpOption) (*schema.Record, error) {
	cfg := applyOpOptions(opts)
	return s.writeWithRetry(collection, func() (*schema.Record, error) {
		return s.updateOnce(ctx, collection, id, patch, actor, cfg)
	})
}

func (s *Service) updateOnce(ctx context.Context, collection, id string, patch map[string]any, actor auth.Context, cfg opConfig) (*schema.Record, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	version := s.registry.Version()
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	if col.IsView() {
		return nil, &ValidationError{Collection: col.Name, Reason: "view collections are read-only"}
	}

	existing, err := s.loadRecord(ctx, col, id)
	if err != nil {
		return nil, err
	}

	working := cloneData(patch)
	hctx := &hooks.BeforeContext{
		Collection: col,
		Data:       working,
		Record:     existing,
		Auth:       rules.IdentityEnv(actor.Identity),
		IsAdmin:    actor.IsAdmin,
	}
	if err := s.hooks.RunBefore(hooks.EventUpdate, hctx); err != nil {
		return nil, err
	}
	working = hctx.Data

	if err := s.authorize(col, version, schema.OpUpdate, actor, existing, cfg.params); err != nil {
		return nil, err
	}

	merged := existing.Clone().Data
	for k, v := range working {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	normalized, err := validateData(col, merged)
	if err != nil {
		return nil, err
	}

	rec := &schema.Record{
		ID:           existing.ID,
		CollectionID: existing.CollectionID,
		Data:         normalized,
		Created:      existing.Created,
		Updated:      s.now(),
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if v := s.registry.Version(); v != version {
			return &SchemaChangedError{Collection: col.Name, SeenVersion: version, NowVersion: v}
		}
		if _, err := tx.GetRecord(ctx, rec.ID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return &schema.NotFoundError{Kind: "record", ID: rec.ID}
			}
			return err
		}
		if err := s.checkRelations(ctx, tx, col, normalized); err != nil {
			return err
		}
		// Release and re-claim so the record keeps its own values.
		if err := tx.ReleaseUniques(ctx, rec.ID); err != nil {
			return err
		}
		if err := s.claimUniques(ctx, tx, col, rec); err != nil {
			return err
		}
		return tx.UpdateRecord(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(hooks.EventUpdate, ActionUpdate, col, rec, actor)

	if err := s.expandRecord(ctx, col, rec, cfg.expand); err != nil {
		slog.Error("expand after update failed", "collection", col.Name, "record_id", rec.ID, "error", err)
	}
	return rec, nil
}

// Delete removes a record and, depth-first, every transitively
// cascading referencing record. Non-cascading references block the
// delete so no dangling relation values can remain.
func (s *Service) Delete(ctx context.Context, collection, id string, actor auth.Context, opts ...OpOption) error {
	cfg := applyOpOptions(opts)
	_, err := s.writeWithRetry(collection, func() (*schema.Record, error) {
		return nil, s.deleteOnce(ctx, collection, id, actor, cfg)
	})
	return err
}

func (s *Service) deleteOnce(ctx context.Context, collection, id string, actor auth.Context, cfg opConfig) error {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	version := s.registry.Version()
	col, err := s.registry.Get(collection)
	if err != nil {
		return err
	}
	if col.IsView() {
		return &ValidationError{Collection: col.Name, Reason: "view collections are read-only"}
	}

	existing, err := s.loadRecord(ctx, col, id)
	if err != nil {
		return err
	}

	hctx := &hooks.BeforeContext{
		Collection: col,
		Record:     existing,
		Auth:       rules.IdentityEnv(actor.Identity),
		IsAdmin:    actor.IsAdmin,
	}
	if err := s.hooks.RunBefore(hooks.EventDelete, hctx); err != nil {
		return err
	}

	if err := s.authorize(col, version, schema.OpDelete, actor, existing, cfg.params); err != nil {
		return err
	}

	var deleted []*schema.Record
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if v := s.registry.Version(); v != version {
			return &SchemaChangedError{Collection: col.Name, SeenVersion: version, NowVersion: v}
		}
		var err error
		deleted, err = s.cascadeDelete(ctx, tx, existing)
		return err
	})
	if err != nil {
		return err
	}

	s.afterCommit(hooks.EventDelete, ActionDelete, col, existing, actor)
	// Cascaded dependents are announced too; subscribers see every
	// removed record, not just the root of the walk.
	for _, dep := range deleted {
		if dep.ID == existing.ID {
			continue
		}
		s.notifyOnly(ActionDelete, dep)
	}
	return nil
}

// Get reads one record, gated by the collection's view rule.
func (s *Service) Get(ctx context.Context, collection, id string, actor auth.Context, opts ...OpOption) (*schema.Record, error) {
	cfg := applyOpOptions(opts)

	version := s.registry.Version()
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	rec, err := s.loadRecord(ctx, col, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(col, version, schema.OpView, actor, rec, cfg.params); err != nil {
		return nil, err
	}

	if err := s.expandRecord(ctx, col, rec, cfg.expand); err != nil {
		slog.Error("expand failed", "collection", col.Name, "record_id", rec.ID, "error", err)
	}
	return rec, nil
}

// writeWithRetry retries a write exactly once when it raced a schema
// mutation, then surfaces SchemaChangedError.
func (s *Service) writeWithRetry(collection string, attempt func() (*schema.Record, error)) (*schema.Record, error) {
	rec, err := attempt()
	if err == nil {
		return rec, nil
	}
	var sce *SchemaChangedError
	if !errors.As(err, &sce) {
		return nil, err
	}
	slog.Debug("write raced a schema change, retrying once",
		"collection", collection,
		"seen_version", sce.SeenVersion,
		"now_version", sce.NowVersion,
	)
	return attempt()
}

func (s *Service) authorize(col *schema.Collection, version int64, op schema.Operation, actor auth.Context, rec *schema.Record, params map[string]any) error {
	state := rules.AuthState{
		Identity: rules.IdentityEnv(actor.Identity),
		IsAdmin:  actor.IsAdmin,
	}
	decision, err := s.rules.Authorize(col, version, op, state, rec, params)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &ForbiddenError{
			Collection: col.Name,
			Operation:  op,
			Rule:       decision.Rule,
			Reason:     decision.Reason,
		}
	}
	return nil
}

// loadRecord reads a record and verifies it belongs to the collection.
func (s *Service) loadRecord(ctx context.Context, col *schema.Collection, id string) (*schema.Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, &schema.NotFoundError{Kind: "record", ID: id}
		}
		return nil, err
	}
	if rec.CollectionID != col.ID {
		return nil, &schema.NotFoundError{Kind: "record", ID: id}
	}
	return rec, nil
}

// claimUniques inserts a unique-value claim for every unique field
// with a present, non-null value. Runs inside the commit transaction:
// two racing writes on the same value produce exactly one winner.
func (s *Service) claimUniques(ctx context.Context, tx *store.Tx, col *schema.Collection, rec *schema.Record) error {
	for _, f := range col.Fields {
		if !f.Unique {
			continue
		}
		v, ok := rec.Data[f.Name]
		if !ok || v == nil {
			continue
		}
		key, err := schema.CanonicalKey(v)
		if err != nil {
			return fmt.Errorf("canonical key for %q: %w", f.Name, err)
		}
		if err := tx.ClaimUnique(ctx, col.ID, f.Name, key, rec.ID); err != nil {
			if errors.Is(err, store.ErrUniqueTaken) {
				return &UniqueConstraintError{Collection: col.Name, Field: f.Name, Value: v}
			}
			return err
		}
	}
	return nil
}

// checkRelations verifies every referenced record exists and lives in
// the relation's target collection.
func (s *Service) checkRelations(ctx context.Context, tx *store.Tx, col *schema.Collection, data map[string]any) error {
	for _, f := range col.RelationFields() {
		v, ok := data[f.Name]
		if !ok || v == nil {
			continue
		}
		targetID, err := s.registry.ResolveRelationTarget(f.Options.Relation.CollectionID)
		if err != nil {
			return &ValidationError{Collection: col.Name, Field: f.ID, Reason: "relation target collection no longer exists"}
		}
		for _, id := range relationIDs(v) {
			ref, err := tx.GetRecord(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					return &ValidationError{Collection: col.Name, Field: f.ID, Reason: fmt.Sprintf("related record %q does not exist", id)}
				}
				return err
			}
			if ref.CollectionID != targetID {
				return &ValidationError{Collection: col.Name, Field: f.ID, Reason: fmt.Sprintf("record %q is not in the target collection", id)}
			}
		}
	}
	return nil
}

// afterCommit hands after-stage hooks and the change notification to
// the dispatcher. The caller's operation is already complete; nothing
// here can fail it.
func (s *Service) afterCommit(event hooks.Event, action Action, col *schema.Collection, rec *schema.Record, actor auth.Context) {
	colCopy := col.Clone()
	recCopy := rec.Clone()
	authEnv := rules.IdentityEnv(actor.Identity)
	isAdmin := actor.IsAdmin

	s.dispatch.Enqueue(func() {
		s.hooks.RunAfter(event, &hooks.AfterContext{
			Collection: colCopy,
			Record:     recCopy,
			Auth:       authEnv,
			IsAdmin:    isAdmin,
		})
		s.notifyOnly(action, recCopy)
	})
}

func (s *Service) notifyOnly(action Action, rec *schema.Record) {
	if s.notifier == nil {
		return
	}
	col, err := s.registry.Get(rec.CollectionID)
	name := rec.CollectionID
	if err == nil {
		name = col.Name
	}
	s.notifier.Notify(ChangeEvent{Action: action, Collection: name, Record: rec})
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
