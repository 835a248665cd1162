// Package auth specializes auth-kind collections: identities are
// records, passwords hash through an external primitive, and tokens
// are issued against each record's tokenKey.
package auth

import (
	"github.com/hollis-dev/basalt/internal/schema"
)

// Context is the principal an operation is evaluated under.
type Context struct {
	// Identity is the authenticated identity record, nil for
	// anonymous requests.
	Identity *schema.Record
	IsAdmin  bool
}

// Anonymous is the unauthenticated, non-admin context.
func Anonymous() Context { return Context{} }

// Admin is a superuser context with no identity record.
func Admin() Context { return Context{IsAdmin: true} }

// AsUser builds a context for an identity record.
func AsUser(identity *schema.Record) Context {
	return Context{Identity: identity}
}

// Authenticated reports whether the context carries an identity or
// admin privilege.
func (c Context) Authenticated() bool {
	return c.IsAdmin || c.Identity != nil
}
