package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/basalt/internal/schema"
)

func rulePtr(s string) *string { return &s }

func testCollection(updateRule *string) *schema.Collection {
	return &schema.Collection{
		ID:   "col-posts",
		Name: "posts",
		Kind: schema.KindBase,
		Rules: schema.RuleSet{
			Update: updateRule,
		},
	}
}

func TestAuthorize_AdminBypassesEverything(t *testing.T) {
	e := NewEngine()
	col := testCollection(nil) // admin-only

	d, err := e.Authorize(col, 1, schema.OpUpdate, AuthState{IsAdmin: true}, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAuthorize_NilRuleDeniesNonAdmin(t *testing.T) {
	e := NewEngine()
	col := testCollection(nil)

	d, err := e.Authorize(col, 1, schema.OpUpdate, AuthState{}, nil, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "<admin-only>", d.Rule)
}

func TestAuthorize_EmptyRuleIsPublic(t *testing.T) {
	e := NewEngine()
	col := testCollection(rulePtr(""))

	d, err := e.Authorize(col, 1, schema.OpUpdate, AuthState{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAuthorize_OwnerRule(t *testing.T) {
	e := NewEngine()
	col := testCollection(rulePtr("owner = auth.id"))
	rec := &schema.Record{
		ID:           "rec-1",
		CollectionID: col.ID,
		Data:         map[string]any{"owner": "user-1"},
		Created:      time.Now(),
		Updated:      time.Now(),
	}

	owner := AuthState{Identity: map[string]any{"id": "user-1"}}
	d, err := e.Authorize(col, 1, schema.OpUpdate, owner, rec, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	stranger := AuthState{Identity: map[string]any{"id": "user-2"}}
	d, err = e.Authorize(col, 1, schema.OpUpdate, stranger, rec, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "owner = auth.id", d.Rule)

	anon := AuthState{}
	d, err = e.Authorize(col, 1, schema.OpUpdate, anon, rec, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAuthorize_MalformedRuleSurfacesError(t *testing.T) {
	e := NewEngine()
	col := testCollection(rulePtr("owner = "))

	_, err := e.Authorize(col, 1, schema.OpUpdate, AuthState{}, nil, nil)
	require.Error(t, err)
}

func TestAuthorize_CacheInvalidatesOnVersionBump(t *testing.T) {
	e := NewEngine()
	col := testCollection(rulePtr("owner = auth.id"))
	rec := &schema.Record{ID: "rec-1", Data: map[string]any{"owner": "user-1"}}
	owner := AuthState{Identity: map[string]any{"id": "user-1"}}

	d, err := e.Authorize(col, 1, schema.OpUpdate, owner, rec, nil)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Same collection, new schema version, different rule text: the
	// stale cache entry must not be served.
	col.Rules.Update = rulePtr(`owner = "nobody"`)
	d, err = e.Authorize(col, 2, schema.OpUpdate, owner, rec, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRecordEnv_SyntheticFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &schema.Record{
		ID:      "rec-9",
		Data:    map[string]any{"title": "x"},
		Created: created,
		Updated: created,
	}
	env := RecordEnv(rec)
	assert.Equal(t, "rec-9", env["id"])
	assert.Equal(t, "x", env["title"])
	assert.Contains(t, env["created"], "2026-03-01")
}
