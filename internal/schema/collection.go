package schema

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the three collection flavors.
type Kind string

const (
	// KindBase is a plain record type.
	KindBase Kind = "base"
	// KindAuth records are identities: they gain implicit email,
	// passwordHash and tokenKey fields and a unique email constraint.
	KindAuth Kind = "auth"
	// KindView collections are read-only projections; create, update
	// and delete are rejected regardless of rules.
	KindView Kind = "view"
)

// RuleSet holds one rule expression per operation.
//
// A nil rule means the operation is admin-only. An empty string means
// the operation is public. Anything else is parsed by the rules engine.
type RuleSet struct {
	List   *string `json:"list"`
	View   *string `json:"view"`
	Create *string `json:"create"`
	Update *string `json:"update"`
	Delete *string `json:"delete"`
}

// Operation names one of the five gated CRUD operations.
type Operation string

const (
	OpList   Operation = "list"
	OpView   Operation = "view"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Rule returns the rule expression for the given operation.
func (r RuleSet) Rule(op Operation) *string {
	switch op {
	case OpList:
		return r.List
	case OpView:
		return r.View
	case OpCreate:
		return r.Create
	case OpUpdate:
		return r.Update
	case OpDelete:
		return r.Delete
	}
	return nil
}

// Collection is a user-defined record type: a named schema plus
// per-operation access rules.
type Collection struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Fields  []Field  `json:"fields"`
	Indexes []string `json:"indexes,omitempty"`
	Rules   RuleSet  `json:"rules"`
	// System collections (the admin identity collection) are hidden
	// from listings by default and cannot be dropped.
	System bool `json:"system,omitempty"`
}

// Auth system field names.
const (
	AuthFieldEmail        = "email"
	AuthFieldPasswordHash = "passwordHash"
	AuthFieldTokenKey     = "tokenKey"
)

// Field returns the field with the given name or id, if any.
func (c *Collection) Field(nameOrID string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == nameOrID || f.ID == nameOrID {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByID returns the field with the given id, if any.
func (c *Collection) FieldByID(id string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// RelationFields returns every relation field of the collection.
func (c *Collection) RelationFields() []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Type == FieldRelation {
			out = append(out, f)
		}
	}
	return out
}

// IsAuth reports whether the collection holds identities.
func (c *Collection) IsAuth() bool { return c.Kind == KindAuth }

// IsView reports whether the collection is a read-only projection.
func (c *Collection) IsView() bool { return c.Kind == KindView }

// Clone returns a deep copy. Registry lookups hand out clones so
// callers can never mutate registry state in place.
func (c *Collection) Clone() *Collection {
	cp := *c
	cp.Fields = make([]Field, len(c.Fields))
	copy(cp.Fields, c.Fields)
	cp.Indexes = append([]string(nil), c.Indexes...)
	cp.Rules = cloneRules(c.Rules)
	return &cp
}

func cloneRules(r RuleSet) RuleSet {
	return RuleSet{
		List:   cloneRule(r.List),
		View:   cloneRule(r.View),
		Create: cloneRule(r.Create),
		Update: cloneRule(r.Update),
		Delete: cloneRule(r.Delete),
	}
}

func cloneRule(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// authSystemFields returns the implicit fields every auth collection
// carries. IDs are stable per collection so repeated normalization is
// idempotent.
func authSystemFields() []Field {
	return []Field{
		{ID: "sys_email", Name: AuthFieldEmail, Type: FieldText, Required: true, Unique: true, System: true},
		{ID: "sys_password_hash", Name: AuthFieldPasswordHash, Type: FieldText, Required: true, System: true},
		{ID: "sys_token_key", Name: AuthFieldTokenKey, Type: FieldText, Required: true, System: true},
	}
}

// Record is one row of a collection. Data keys are field names; values
// are the JSON-shaped Go types the validator accepts (string, float64,
// bool, []any, map[string]any, nil).
type Record struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collectionId"`
	Data         map[string]any `json:"data"`
	Created      time.Time      `json:"created"`
	Updated      time.Time      `json:"updated"`

	// Expand holds referenced records resolved for the response when
	// an expand parameter named a relation field. Never persisted.
	Expand map[string]any `json:"expand,omitempty"`
}

// Get returns the value stored under the given field name.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.Data[field]
	return v, ok
}

// Clone returns a copy with a shallowly copied data map.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Data = make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		cp.Data[k] = v
	}
	return &cp
}

// IDGenerator produces record and collection ids.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
