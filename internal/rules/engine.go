package rules

import (
	"fmt"
	"sync"

	"github.com/hollis-dev/basalt/internal/schema"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	// Rule is the expression text that was evaluated, "" for public
	// rules and "<admin-only>" for nil rules.
	Rule string
	// Reason explains a deny in terms the API layer can surface.
	Reason string
}

// Allow is the decision for operations that pass.
func Allow(rule string) Decision {
	return Decision{Allowed: true, Rule: rule}
}

// Deny builds a failing decision with the evaluated rule attached.
func Deny(rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}

// AuthState is the principal an operation runs under, reduced to what
// rule evaluation needs.
type AuthState struct {
	// Identity is the authenticated record's data including its "id"
	// entry, or nil when anonymous.
	Identity map[string]any
	IsAdmin  bool
}

// Engine evaluates collection rules with a parse cache.
//
// Parsed expressions are cached per (collection, operation) and keyed
// by schema version: a schema mutation invalidates every cached rule
// of the mutated collection on the next check. Evaluation itself is
// pure; the cache only avoids re-parsing strings on every check.
type Engine struct {
	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	collectionID string
	op           schema.Operation
}

type cacheEntry struct {
	version int64
	rule    string
	expr    Expr
}

// NewEngine creates an empty rule engine.
func NewEngine() *Engine {
	return &Engine{cache: make(map[cacheKey]cacheEntry)}
}

// Authorize checks the collection's rule for op against the given
// principal and candidate record.
//
// Semantics:
//   - admins always pass, regardless of the rule
//   - a nil rule passes only admins
//   - an empty rule always passes
//   - anything else is parsed (cached) and evaluated
func (e *Engine) Authorize(
	col *schema.Collection,
	schemaVersion int64,
	op schema.Operation,
	auth AuthState,
	record *schema.Record,
	params map[string]any,
) (Decision, error) {
	if auth.IsAdmin {
		return Allow("<admin>"), nil
	}

	rule := col.Rules.Rule(op)
	if rule == nil {
		return Deny("<admin-only>", fmt.Sprintf("%s on %q requires admin", op, col.Name)), nil
	}
	if *rule == "" {
		return Allow(""), nil
	}

	expr, err := e.compiled(col.ID, op, schemaVersion, *rule)
	if err != nil {
		return Decision{}, fmt.Errorf("rule for %s on %q: %w", op, col.Name, err)
	}

	ctx := EvalContext{
		Identity: auth.Identity,
		Params:   params,
	}
	if record != nil {
		ctx.Record = RecordEnv(record)
	}

	if Evaluate(expr, ctx) {
		return Allow(*rule), nil
	}
	return Deny(*rule, fmt.Sprintf("rule %q evaluated to false", *rule)), nil
}

// ParseFilter compiles a list-filter expression. Filters reuse the
// rule grammar but are evaluated per candidate row by the caller.
func (e *Engine) ParseFilter(filter string) (Expr, error) {
	return Parse(filter)
}

// compiled returns the cached AST for (collection, op), re-parsing
// when the schema version moved or the rule text changed.
func (e *Engine) compiled(collectionID string, op schema.Operation, version int64, rule string) (Expr, error) {
	key := cacheKey{collectionID: collectionID, op: op}

	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && entry.version == version && entry.rule == rule {
		return entry.expr, nil
	}

	expr, err := Parse(rule)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = cacheEntry{version: version, rule: rule, expr: expr}
	e.mu.Unlock()
	return expr, nil
}

// RecordEnv builds the evaluation environment for a record: its data
// plus synthetic id and timestamp entries.
func RecordEnv(r *schema.Record) map[string]any {
	env := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		env[k] = v
	}
	env["id"] = r.ID
	env["created"] = r.Created.UTC().Format("2006-01-02 15:04:05.000Z")
	env["updated"] = r.Updated.UTC().Format("2006-01-02 15:04:05.000Z")
	return env
}

// IdentityEnv builds the auth.* environment from an identity record.
// Returns nil for a nil identity so AuthRef resolution denies cleanly.
func IdentityEnv(r *schema.Record) map[string]any {
	if r == nil {
		return nil
	}
	return RecordEnv(r)
}
