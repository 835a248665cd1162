package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(name string, fields ...Field) *Collection {
	return &Collection{Name: name, Kind: KindBase, Fields: fields}
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	created, err := r.Create(ctx, newTestCollection("posts",
		Field{ID: "f_title", Name: "title", Type: FieldText, Required: true},
	))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID, "id is generated when absent")
	assert.Equal(t, KindBase, created.Kind)
	assert.Equal(t, int64(1), r.Version())

	got, err := r.Get("posts")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	byID, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "posts", byID.Name)
}

func TestRegistryCreateDuplicateName(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts"))
	require.NoError(t, err)

	_, err = r.Create(ctx, newTestCollection("posts"))
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "posts", dup.Name)
	assert.Equal(t, int64(1), r.Version(), "failed create does not bump the version")
}

func TestRegistryCreateRejectsBadFields(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	t.Run("duplicate field name", func(t *testing.T) {
		_, err := r.Create(ctx, newTestCollection("a",
			Field{ID: "f1", Name: "x", Type: FieldText},
			Field{ID: "f2", Name: "x", Type: FieldText},
		))
		var inv *InvalidFieldError
		require.ErrorAs(t, err, &inv)
	})

	t.Run("duplicate field id", func(t *testing.T) {
		_, err := r.Create(ctx, newTestCollection("b",
			Field{ID: "f1", Name: "x", Type: FieldText},
			Field{ID: "f1", Name: "y", Type: FieldText},
		))
		var inv *InvalidFieldError
		require.ErrorAs(t, err, &inv)
	})

	t.Run("dangling relation", func(t *testing.T) {
		_, err := r.Create(ctx, newTestCollection("c",
			Field{ID: "f1", Name: "ref", Type: FieldRelation, Options: FieldOptions{
				Relation: &RelationOptions{CollectionID: "nowhere"},
			}},
		))
		var dangling *DanglingRelationError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, "nowhere", dangling.Target)
	})

	t.Run("self relation allowed", func(t *testing.T) {
		_, err := r.Create(ctx, &Collection{
			ID:   "col_tree",
			Name: "tree",
			Kind: KindBase,
			Fields: []Field{
				{ID: "f1", Name: "parent", Type: FieldRelation, Options: FieldOptions{
					Relation: &RelationOptions{CollectionID: "col_tree"},
				}},
			},
		})
		assert.NoError(t, err)
	})
}

func TestRegistryCreateAuthMergesSystemFields(t *testing.T) {
	r := NewRegistry()

	created, err := r.Create(context.Background(), &Collection{
		Name: "users",
		Kind: KindAuth,
		Fields: []Field{
			{ID: "f_name", Name: "name", Type: FieldText},
		},
	})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range created.Fields {
		names[f.Name] = true
	}
	assert.True(t, names["name"])
	assert.True(t, names[AuthFieldEmail])
	assert.True(t, names[AuthFieldPasswordHash])
	assert.True(t, names[AuthFieldTokenKey])

	email, ok := created.Field(AuthFieldEmail)
	require.True(t, ok)
	assert.True(t, email.System)
	assert.True(t, email.Unique)
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	created, err := r.Create(ctx, newTestCollection("posts",
		Field{ID: "f_title", Name: "title", Type: FieldText, Required: true},
		Field{ID: "f_draft", Name: "draft", Type: FieldBool},
	))
	require.NoError(t, err)
	require.Equal(t, int64(1), r.Version())

	t.Run("add and rename fields", func(t *testing.T) {
		updated, err := r.Update(ctx, "posts", CollectionPatch{
			AddFields:    []Field{{ID: "f_body", Name: "body", Type: FieldText}},
			RenameFields: map[string]string{"f_draft": "hidden"},
		})
		require.NoError(t, err)

		_, ok := updated.Field("body")
		assert.True(t, ok)
		renamed, ok := updated.FieldByID("f_draft")
		require.True(t, ok)
		assert.Equal(t, "hidden", renamed.Name)
		assert.Equal(t, int64(2), r.Version())
	})

	t.Run("rename collection", func(t *testing.T) {
		name := "articles"
		updated, err := r.Update(ctx, "posts", CollectionPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "articles", updated.Name)

		_, err = r.Get("posts")
		assert.True(t, IsNotFound(err), "old name no longer resolves")

		byID, err := r.Get(created.ID)
		require.NoError(t, err)
		assert.Equal(t, "articles", byID.Name)
	})

	t.Run("replace rules", func(t *testing.T) {
		rule := "title != ''"
		updated, err := r.Update(ctx, "articles", CollectionPatch{
			Rules: &RuleSet{List: &rule, View: &rule},
		})
		require.NoError(t, err)
		require.NotNil(t, updated.Rules.List)
		assert.Equal(t, rule, *updated.Rules.List)
		assert.Nil(t, updated.Rules.Create, "unset rules stay admin-only")
	})

	t.Run("remove unknown field", func(t *testing.T) {
		_, err := r.Update(ctx, "articles", CollectionPatch{RemoveFields: []string{"f_gone"}})
		var inv *InvalidFieldError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, "f_gone", inv.FieldID)
	})

	t.Run("remove field", func(t *testing.T) {
		updated, err := r.Update(ctx, "articles", CollectionPatch{RemoveFields: []string{"f_body"}})
		require.NoError(t, err)
		_, ok := updated.FieldByID("f_body")
		assert.False(t, ok)
	})
}

type countingChecker struct {
	count   int
	records int
}

func (c countingChecker) FieldHasData(ctx context.Context, collectionID, fieldName string) (int, error) {
	return c.count, nil
}

func (c countingChecker) CountRecords(ctx context.Context, collectionID string) (int, error) {
	return c.records, nil
}

type recordingMigrator struct {
	renames  []string
	removals []string
}

func (m *recordingMigrator) RenameFieldData(ctx context.Context, collectionID, oldName, newName string) error {
	m.renames = append(m.renames, oldName+"->"+newName)
	return nil
}

func (m *recordingMigrator) RemoveFieldData(ctx context.Context, collectionID, fieldName string) error {
	m.removals = append(m.removals, fieldName)
	return nil
}

func TestRegistryUpdateRequiredFieldRemovalNeedsForce(t *testing.T) {
	r := NewRegistry(WithDataChecker(countingChecker{count: 3}))
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts",
		Field{ID: "f_title", Name: "title", Type: FieldText, Required: true},
	))
	require.NoError(t, err)

	_, err = r.Update(ctx, "posts", CollectionPatch{RemoveFields: []string{"f_title"}})
	var inv *InvalidFieldError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, inv.Reason, "3 record(s)")

	updated, err := r.Update(ctx, "posts", CollectionPatch{
		RemoveFields: []string{"f_title"},
		Force:        true,
	})
	require.NoError(t, err)
	_, ok := updated.FieldByID("f_title")
	assert.False(t, ok)
}

func TestRegistryUpdateProtectsSystemFields(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, &Collection{Name: "users", Kind: KindAuth})
	require.NoError(t, err)

	_, err = r.Update(ctx, "users", CollectionPatch{RemoveFields: []string{"sys_email"}})
	var inv *InvalidFieldError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, inv.Reason, "system field")

	_, err = r.Update(ctx, "users", CollectionPatch{RenameFields: map[string]string{"sys_email": "mail"}})
	require.ErrorAs(t, err, &inv)
}

func TestRegistryDrop(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts"))
	require.NoError(t, err)
	require.Equal(t, int64(1), r.Version())

	require.NoError(t, r.Drop(ctx, "posts"))
	assert.Equal(t, int64(2), r.Version())

	_, err = r.Get("posts")
	assert.True(t, IsNotFound(err))

	err = r.Drop(ctx, "posts")
	assert.True(t, IsNotFound(err))
}

func TestRegistryDropRejectsSystemCollection(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, AdminCollection())
	require.NoError(t, err)

	err = r.Drop(ctx, AdminCollectionName)
	var inv *InvalidFieldError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, inv.Reason, "system collection")
}

func TestRegistryListFiltersSystem(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, AdminCollection())
	require.NoError(t, err)
	_, err = r.Create(ctx, newTestCollection("posts"))
	require.NoError(t, err)
	_, err = r.Create(ctx, newTestCollection("authors"))
	require.NoError(t, err)

	visible := r.List(false)
	require.Len(t, visible, 2)
	assert.Equal(t, "authors", visible[0].Name, "list is name-sorted")
	assert.Equal(t, "posts", visible[1].Name)

	all := r.List(true)
	assert.Len(t, all, 3)
	assert.Equal(t, AdminCollectionName, all[0].Name)
}

func TestRegistryLoadDoesNotBumpVersion(t *testing.T) {
	r := NewRegistry()
	r.Load([]*Collection{
		{ID: "col_a", Name: "a", Kind: KindBase},
		{ID: "col_b", Name: "b", Kind: KindBase},
	})
	assert.Equal(t, int64(0), r.Version())

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "col_a", got.ID)
}

func TestRegistryGetReturnsClone(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(context.Background(), newTestCollection("posts",
		Field{ID: "f_title", Name: "title", Type: FieldText},
	))
	require.NoError(t, err)

	a, err := r.Get("posts")
	require.NoError(t, err)
	a.Fields[0].Name = "mutated"

	b, err := r.Get("posts")
	require.NoError(t, err)
	assert.Equal(t, "title", b.Fields[0].Name)
}

func TestRegistryUpdateRenameCollectionWithRecordsNeedsForce(t *testing.T) {
	r := NewRegistry(WithDataChecker(countingChecker{records: 2}))
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts",
		Field{ID: "f_title", Name: "title", Type: FieldText},
	))
	require.NoError(t, err)

	newName := "articles"
	_, err = r.Update(ctx, "posts", CollectionPatch{Name: &newName})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 record(s)")
	assert.Contains(t, err.Error(), "force")

	// The failed rename leaves the registry untouched.
	_, err = r.Get("posts")
	require.NoError(t, err)
	_, err = r.Get("articles")
	assert.True(t, IsNotFound(err))

	updated, err := r.Update(ctx, "posts", CollectionPatch{Name: &newName, Force: true})
	require.NoError(t, err)
	assert.Equal(t, "articles", updated.Name)
}

func TestRegistryUpdateRenameEmptyCollectionNeedsNoForce(t *testing.T) {
	r := NewRegistry(WithDataChecker(countingChecker{records: 0}))
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts"))
	require.NoError(t, err)

	newName := "articles"
	updated, err := r.Update(ctx, "posts", CollectionPatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "articles", updated.Name)
}

func TestRegistryUpdateMigratesFieldData(t *testing.T) {
	mig := &recordingMigrator{}
	r := NewRegistry(WithDataMigrator(mig))
	ctx := context.Background()

	_, err := r.Create(ctx, newTestCollection("posts",
		Field{ID: "f_views", Name: "views", Type: FieldNumber},
		Field{ID: "f_draft", Name: "draft", Type: FieldBool},
	))
	require.NoError(t, err)

	_, err = r.Update(ctx, "posts", CollectionPatch{
		RenameFields: map[string]string{"f_views": "hits"},
		RemoveFields: []string{"f_draft"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"views->hits"}, mig.renames)
	assert.Equal(t, []string{"draft"}, mig.removals)

	// Renaming to the same name is a no-op for record data.
	mig.renames = nil
	_, err = r.Update(ctx, "posts", CollectionPatch{
		RenameFields: map[string]string{"f_views": "hits"},
	})
	require.NoError(t, err)
	assert.Empty(t, mig.renames)
}

func TestResolveRelationTarget(t *testing.T) {
	r := NewRegistry()
	created, err := r.Create(context.Background(), newTestCollection("posts"))
	require.NoError(t, err)

	id, err := r.ResolveRelationTarget("posts")
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	id, err = r.ResolveRelationTarget(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	_, err = r.ResolveRelationTarget("missing")
	assert.True(t, IsNotFound(err))
}
