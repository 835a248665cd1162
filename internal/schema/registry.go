package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Persister stores collection definitions durably. Implemented by the
// SQLite store; nil means the registry is memory-only (tests).
type Persister interface {
	SaveCollection(ctx context.Context, c *Collection) error
	DeleteCollection(ctx context.Context, id string) error
}

// DataChecker answers questions about live record data. Implemented
// by the record store; the registry consults it before destructive
// mutations.
type DataChecker interface {
	FieldHasData(ctx context.Context, collectionID, fieldName string) (int, error)
	CountRecords(ctx context.Context, collectionID string) (int, error)
}

// DataMigrator rewrites persisted record data when a schema change
// renames or removes fields, so stored keys always match the current
// definition.
type DataMigrator interface {
	RenameFieldData(ctx context.Context, collectionID, oldName, newName string) error
	RemoveFieldData(ctx context.Context, collectionID, fieldName string) error
}

// Registry holds every collection definition and a monotonically
// increasing schema version.
//
// The version is bumped on every successful mutation. The record
// store reads it at the start of validation and re-checks it before
// commit to detect concurrent schema changes.
type Registry struct {
	mu          sync.RWMutex
	byID        map[string]*Collection
	byName      map[string]string // name -> id
	version      int64
	ids          IDGenerator
	persister    Persister
	dataChecker  DataChecker
	dataMigrator DataMigrator
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPersister attaches durable storage for collection definitions.
func WithPersister(p Persister) RegistryOption {
	return func(r *Registry) { r.persister = p }
}

// WithDataChecker attaches the record-data probe used by destructive
// field removal.
func WithDataChecker(d DataChecker) RegistryOption {
	return func(r *Registry) { r.dataChecker = d }
}

// WithDataMigrator attaches the record-data rewriter that keeps
// stored keys in sync with field renames and removals.
func WithDataMigrator(m DataMigrator) RegistryOption {
	return func(r *Registry) { r.dataMigrator = m }
}

// WithIDGenerator replaces the default UUIDv7 generator (tests).
func WithIDGenerator(g IDGenerator) RegistryOption {
	return func(r *Registry) { r.ids = g }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:   make(map[string]*Collection),
		byName: make(map[string]string),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load seeds the registry from persisted definitions without bumping
// the version or writing back. Called once at startup.
func (r *Registry) Load(cols []*Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cols {
		cp := c.Clone()
		r.byID[cp.ID] = cp
		r.byName[cp.Name] = cp.ID
	}
}

// Version returns the current schema version.
func (r *Registry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Get resolves a collection by name or id. Returns a clone.
func (r *Registry) Get(nameOrID string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(nameOrID)
}

func (r *Registry) lookup(nameOrID string) (*Collection, error) {
	if id, ok := r.byName[nameOrID]; ok {
		return r.byID[id].Clone(), nil
	}
	if c, ok := r.byID[nameOrID]; ok {
		return c.Clone(), nil
	}
	return nil, &NotFoundError{Kind: "collection", ID: nameOrID}
}

// List returns every non-system collection, name-sorted by insertion
// into a deterministic order. Pass includeSystem to see the admin
// identity collection too.
func (r *Registry) List(includeSystem bool) []*Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Collection, 0, len(names))
	for _, name := range names {
		c := r.byID[r.byName[name]]
		if c.System && !includeSystem {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// Create registers and persists a new collection definition.
//
// Fails with DuplicateNameError on a name collision, InvalidFieldError
// on malformed or duplicate fields, and DanglingRelationError when a
// relation targets a collection that does not exist.
func (r *Registry) Create(ctx context.Context, def *Collection) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return nil, &InvalidFieldError{Collection: def.Name, Reason: "collection name is required"}
	}
	if _, taken := r.byName[def.Name]; taken {
		return nil, &DuplicateNameError{Name: def.Name}
	}

	c := def.Clone()
	if c.ID == "" {
		c.ID = r.ids.Generate()
	}
	if c.Kind == "" {
		c.Kind = KindBase
	}
	if c.IsAuth() {
		c.Fields = mergeAuthFields(c.Fields)
	}

	if err := r.validateFields(c, c.ID); err != nil {
		return nil, err
	}

	if r.persister != nil {
		if err := r.persister.SaveCollection(ctx, c); err != nil {
			return nil, fmt.Errorf("persist collection %q: %w", c.Name, err)
		}
	}

	r.byID[c.ID] = c
	r.byName[c.Name] = c.ID
	r.version++
	slog.Info("collection created", "collection", c.Name, "kind", c.Kind, "schema_version", r.version)
	return c.Clone(), nil
}

// CollectionPatch describes an update to an existing collection.
// Nil members leave the corresponding part untouched.
type CollectionPatch struct {
	Name         *string
	Rules        *RuleSet
	AddFields    []Field
	RemoveFields []string          // field ids
	RenameFields map[string]string // field id -> new name
	Indexes      *[]string

	// Force acknowledges data loss when removing a field that still
	// has non-null values on persisted records, and allows renaming a
	// collection that already holds records (the migration path).
	Force bool
}

// Update applies a patch to a collection and persists the result.
func (r *Registry) Update(ctx context.Context, nameOrID string, patch CollectionPatch) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.lookup(nameOrID)
	if err != nil {
		return nil, err
	}
	c := cur // lookup already cloned

	if patch.Name != nil && *patch.Name != c.Name {
		if _, taken := r.byName[*patch.Name]; taken {
			return nil, &DuplicateNameError{Name: *patch.Name}
		}
		if !patch.Force && r.dataChecker != nil {
			n, err := r.dataChecker.CountRecords(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("count records of %q: %w", c.Name, err)
			}
			if n > 0 {
				return nil, fmt.Errorf("collection %q holds %d record(s); renaming it requires force", c.Name, n)
			}
		}
		c.Name = *patch.Name
	}
	if patch.Rules != nil {
		c.Rules = cloneRules(*patch.Rules)
	}
	if patch.Indexes != nil {
		c.Indexes = append([]string(nil), (*patch.Indexes)...)
	}

	type dataRename struct {
		oldName, newName string
	}
	var renamedData []dataRename
	for id, newName := range patch.RenameFields {
		f, ok := c.FieldByID(id)
		if !ok {
			return nil, &InvalidFieldError{Collection: c.Name, FieldID: id, Reason: "cannot rename: no such field"}
		}
		if f.System {
			return nil, &InvalidFieldError{Collection: c.Name, FieldID: id, Reason: "cannot rename a system field"}
		}
		if f.Name != newName {
			renamedData = append(renamedData, dataRename{oldName: f.Name, newName: newName})
		}
		for i := range c.Fields {
			if c.Fields[i].ID == id {
				c.Fields[i].Name = newName
			}
		}
	}

	var removedData []string
	for _, id := range patch.RemoveFields {
		f, ok := c.FieldByID(id)
		if !ok {
			return nil, &InvalidFieldError{Collection: c.Name, FieldID: id, Reason: "cannot remove: no such field"}
		}
		if f.System {
			return nil, &InvalidFieldError{Collection: c.Name, FieldID: id, Reason: "cannot remove a system field"}
		}
		if f.Required && !patch.Force && r.dataChecker != nil {
			n, err := r.dataChecker.FieldHasData(ctx, c.ID, f.Name)
			if err != nil {
				return nil, fmt.Errorf("check field data for %q: %w", f.Name, err)
			}
			if n > 0 {
				return nil, &InvalidFieldError{
					Collection: c.Name,
					FieldID:    id,
					Reason:     fmt.Sprintf("required field still has data on %d record(s); pass force to drop it", n),
				}
			}
		}
		removedData = append(removedData, f.Name)
		c.Fields = removeFieldByID(c.Fields, id)
	}

	c.Fields = append(c.Fields, patch.AddFields...)
	if c.IsAuth() {
		c.Fields = mergeAuthFields(c.Fields)
	}

	if err := r.validateFields(c, c.ID); err != nil {
		return nil, err
	}

	// Persisted record data must track the renamed and removed keys,
	// or later validation rejects untouched records as holding
	// unknown fields.
	if r.dataMigrator != nil {
		for _, rn := range renamedData {
			if err := r.dataMigrator.RenameFieldData(ctx, c.ID, rn.oldName, rn.newName); err != nil {
				return nil, fmt.Errorf("migrate data for renamed field %q: %w", rn.oldName, err)
			}
		}
		for _, name := range removedData {
			if err := r.dataMigrator.RemoveFieldData(ctx, c.ID, name); err != nil {
				return nil, fmt.Errorf("drop data for removed field %q: %w", name, err)
			}
		}
	}

	if r.persister != nil {
		if err := r.persister.SaveCollection(ctx, c); err != nil {
			return nil, fmt.Errorf("persist collection %q: %w", c.Name, err)
		}
	}

	if cur := r.byID[c.ID]; cur.Name != c.Name {
		delete(r.byName, cur.Name)
	}
	r.byID[c.ID] = c
	r.byName[c.Name] = c.ID
	r.version++
	slog.Info("collection updated", "collection", c.Name, "schema_version", r.version)
	return c.Clone(), nil
}

// Drop removes a collection definition.
//
// Record-level referential checks (cascade referencing records or
// reject the drop) happen in the record store before this is called;
// the registry only does schema bookkeeping.
func (r *Registry) Drop(ctx context.Context, nameOrID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(nameOrID)
	if err != nil {
		return err
	}
	if c.System {
		return &InvalidFieldError{Collection: c.Name, Reason: "cannot drop a system collection"}
	}

	if r.persister != nil {
		if err := r.persister.DeleteCollection(ctx, c.ID); err != nil {
			return fmt.Errorf("delete collection %q: %w", c.Name, err)
		}
	}

	delete(r.byID, c.ID)
	delete(r.byName, c.Name)
	r.version++
	slog.Info("collection dropped", "collection", c.Name, "schema_version", r.version)
	return nil
}

// validateFields enforces unique field ids and names, per-type option
// constraints, and relation target existence. Relation targets may
// reference the collection being validated (self-relations).
func (r *Registry) validateFields(c *Collection, selfID string) error {
	seenIDs := make(map[string]bool, len(c.Fields))
	seenNames := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if err := f.validate(); err != nil {
			return &InvalidFieldError{Collection: c.Name, FieldID: f.ID, Reason: err.Error()}
		}
		if seenIDs[f.ID] {
			return &InvalidFieldError{Collection: c.Name, FieldID: f.ID, Reason: "duplicate field id"}
		}
		if seenNames[f.Name] {
			return &InvalidFieldError{Collection: c.Name, FieldID: f.ID, Reason: fmt.Sprintf("duplicate field name %q", f.Name)}
		}
		seenIDs[f.ID] = true
		seenNames[f.Name] = true

		if f.Type == FieldRelation {
			target := f.Options.Relation.CollectionID
			if target == selfID {
				continue
			}
			if _, ok := r.byID[target]; !ok {
				if _, ok := r.byName[target]; !ok {
					return &DanglingRelationError{Collection: c.Name, FieldID: f.ID, Target: target}
				}
			}
		}
	}
	return nil
}

// ResolveRelationTarget normalizes a relation target given by name to
// the target collection's id.
func (r *Registry) ResolveRelationTarget(target string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[target]; ok {
		return target, nil
	}
	if id, ok := r.byName[target]; ok {
		return id, nil
	}
	return "", &NotFoundError{Kind: "collection", ID: target}
}

func mergeAuthFields(fields []Field) []Field {
	out := append([]Field(nil), fields...)
	for _, sys := range authSystemFields() {
		found := false
		for _, f := range out {
			if f.Name == sys.Name {
				found = true
				break
			}
		}
		if !found {
			out = append(out, sys)
		}
	}
	return out
}

func removeFieldByID(fields []Field, id string) []Field {
	out := fields[:0]
	for _, f := range fields {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}
