package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hollis-dev/basalt/internal/schema"
)

// RecordOps is the slice of the record store the auth flows need.
// Accepting an interface here keeps auth decoupled from the store's
// concrete type and lets tests substitute a fake.
type RecordOps interface {
	Create(ctx context.Context, collection string, data map[string]any, actor Context) (*schema.Record, error)
	FindByField(ctx context.Context, collection, field string, value any) (*schema.Record, error)
	GetByID(ctx context.Context, collection, id string) (*schema.Record, error)
}

// ErrBadCredentials reports a failed email/password check. It is
// deliberately indistinguishable between unknown email and wrong
// password.
var ErrBadCredentials = errors.New("invalid email or password")

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 14 * 24 * time.Hour

// Flows wires the auth primitives to the record store. Registration
// and authentication go through record-store operations so collection
// rules and hooks apply to identities like any other record.
type Flows struct {
	records RecordOps
	hasher  PasswordHasher
	issuer  TokenIssuer
}

// NewFlows builds the auth flows from their collaborators.
func NewFlows(records RecordOps, hasher PasswordHasher, issuer TokenIssuer) *Flows {
	return &Flows{records: records, hasher: hasher, issuer: issuer}
}

// Register creates an identity record in an auth collection. The
// password is hashed before it enters the record pipeline so hooks
// never observe plaintext.
func (f *Flows) Register(ctx context.Context, collection, email, password string, extra map[string]any) (*schema.Record, error) {
	hash, err := f.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	tokenKey, err := NewTokenKey()
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		data[k] = v
	}
	data[schema.AuthFieldEmail] = email
	data[schema.AuthFieldPasswordHash] = hash
	data[schema.AuthFieldTokenKey] = tokenKey

	// Registration runs as admin: the create rule of an auth
	// collection typically denies anonymous writes, and sign-up is a
	// system operation, not a user-initiated record create.
	rec, err := f.records.Create(ctx, collection, data, Admin())
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Authenticate verifies credentials and returns the identity record
// with a fresh token.
func (f *Flows) Authenticate(ctx context.Context, collection, email, password string) (*schema.Record, string, error) {
	rec, err := f.records.FindByField(ctx, collection, schema.AuthFieldEmail, email)
	if err != nil {
		if schema.IsNotFound(err) {
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}

	hash, _ := rec.Data[schema.AuthFieldPasswordHash].(string)
	if !f.hasher.Verify(password, hash) {
		return nil, "", ErrBadCredentials
	}

	tokenKey, _ := rec.Data[schema.AuthFieldTokenKey].(string)
	token, err := f.issuer.Issue(rec.ID, tokenKey, DefaultTokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return rec, token, nil
}

// Resolve turns a bearer token into an authenticated Context.
func (f *Flows) Resolve(ctx context.Context, collection, token string) (Context, error) {
	recordID, err := f.issuer.Verify(token, func(id string) (string, error) {
		rec, err := f.records.GetByID(ctx, collection, id)
		if err != nil {
			return "", err
		}
		key, _ := rec.Data[schema.AuthFieldTokenKey].(string)
		return key, nil
	})
	if err != nil {
		return Anonymous(), err
	}

	rec, err := f.records.GetByID(ctx, collection, recordID)
	if err != nil {
		return Anonymous(), err
	}
	return AsUser(rec), nil
}
