// Package hooks is the lifecycle pipeline around record mutations.
//
// The registry is an explicit object owned by the composition root,
// not process-global state: registrations are ordered data, which
// keeps dispatch order deterministic and testable.
package hooks

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hollis-dev/basalt/internal/schema"
)

// Phase says whether a hook runs before or after the commit.
type Phase string

const (
	Before Phase = "before"
	After  Phase = "after"
)

// Event is the mutation kind a hook subscribes to.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Wildcard matches every collection.
const Wildcard = "*"

// BeforeContext is handed to before-stage handlers. Data is mutable:
// handlers may enrich or rewrite it. Returning an error aborts the
// whole operation with no partial commit.
type BeforeContext struct {
	Collection *schema.Collection
	// Data is the incoming payload (create) or patch (update).
	Data map[string]any
	// Record is the current persisted record for update/delete, nil
	// for create.
	Record *schema.Record
	// Auth is the principal's identity record data, nil if anonymous.
	Auth map[string]any
	// IsAdmin mirrors the operation's privilege level.
	IsAdmin bool
}

// AfterContext is handed to after-stage handlers once the commit has
// succeeded. Errors are logged and swallowed; the write stands.
type AfterContext struct {
	Collection *schema.Collection
	Record     *schema.Record
	Auth       map[string]any
	IsAdmin    bool
}

// BeforeFunc observes and may mutate or abort a pending mutation.
type BeforeFunc func(*BeforeContext) error

// AfterFunc observes a committed mutation.
type AfterFunc func(*AfterContext) error

type beforeReg struct {
	matcher string
	fn      BeforeFunc
}

type afterReg struct {
	matcher string
	fn      AfterFunc
}

// Registry holds hook registrations in ordered buckets per
// (phase, event). Within a bucket, handlers run in registration
// order; exact-name handlers run before wildcard handlers.
type Registry struct {
	mu     sync.RWMutex
	before map[Event][]beforeReg
	after  map[Event][]afterReg

	epMu      sync.RWMutex
	endpoints []Endpoint
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{
		before: make(map[Event][]beforeReg),
		after:  make(map[Event][]afterReg),
	}
}

// OnBefore registers a before-stage handler. Matcher is a collection
// name or "*".
func (r *Registry) OnBefore(event Event, matcher string, fn BeforeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before[event] = append(r.before[event], beforeReg{matcher: matcher, fn: fn})
}

// OnAfter registers an after-stage handler.
func (r *Registry) OnAfter(event Event, matcher string, fn AfterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after[event] = append(r.after[event], afterReg{matcher: matcher, fn: fn})
}

// RunBefore dispatches the before-stage for an event: the exact-name
// bucket first, then the wildcard bucket, each in registration order.
// The first handler error aborts and is returned to the caller.
func (r *Registry) RunBefore(event Event, hctx *BeforeContext) error {
	r.mu.RLock()
	regs := append([]beforeReg(nil), r.before[event]...)
	r.mu.RUnlock()

	name := hctx.Collection.Name
	for _, pass := range []string{name, Wildcard} {
		for _, reg := range regs {
			if reg.matcher != pass {
				continue
			}
			if err := reg.fn(hctx); err != nil {
				return fmt.Errorf("before %s hook on %q: %w", event, name, err)
			}
		}
	}
	return nil
}

// RunAfter dispatches the after-stage synchronously. Handler errors
// are logged, never propagated: the commit they describe already
// succeeded. Most callers go through a Dispatcher instead so the
// after-stage cannot block the writer.
func (r *Registry) RunAfter(event Event, hctx *AfterContext) {
	r.mu.RLock()
	regs := append([]afterReg(nil), r.after[event]...)
	r.mu.RUnlock()

	name := hctx.Collection.Name
	for _, pass := range []string{name, Wildcard} {
		for _, reg := range regs {
			if reg.matcher != pass {
				continue
			}
			if err := reg.fn(hctx); err != nil {
				slog.Error("after hook failed",
					"event", event,
					"collection", name,
					"record_id", hctx.Record.ID,
					"error", err,
				)
			}
		}
	}
}
