package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/basalt/internal/schema"
)

const blogCUE = `
collection: posts: {
	kind: "base"
	rules: {
		list:   ""
		view:   ""
		create: "auth.id != null"
		update: "author = auth.id"
	}
	fields: {
		title: { type: "text", required: true }
		slug:  { type: "text", unique: true }
		status: {
			type:   "select"
			values: ["draft", "published"]
		}
		tags: {
			type:      "select"
			values:    ["go", "sql", "cue"]
			maxSelect: 3
		}
		author: {
			type:          "relation"
			target:        "users"
			cascadeDelete: true
		}
		attachment: {
			type:      "file"
			maxSize:   1048576
			mimeTypes: ["image/png", "image/jpeg"]
		}
	}
	indexes: ["slug"]
}

collection: users: {
	kind: "auth"
	fields: {
		name: { type: "text" }
	}
}
`

func TestCompileString(t *testing.T) {
	cols, err := CompileString(blogCUE, "blog.cue")
	require.NoError(t, err)
	require.Len(t, cols, 2)

	posts := cols[0]
	assert.Equal(t, "posts", posts.Name)
	assert.Equal(t, schema.KindBase, posts.Kind)
	assert.Equal(t, []string{"slug"}, posts.Indexes)

	require.NotNil(t, posts.Rules.List)
	assert.Empty(t, *posts.Rules.List, "empty string rule is public")
	require.NotNil(t, posts.Rules.Update)
	assert.Equal(t, "author = auth.id", *posts.Rules.Update)
	assert.Nil(t, posts.Rules.Delete, "omitted rule stays admin-only")

	title, ok := posts.Field("title")
	require.True(t, ok)
	assert.Equal(t, "title", title.ID, "field id defaults to the name")
	assert.True(t, title.Required)

	slug, ok := posts.Field("slug")
	require.True(t, ok)
	assert.True(t, slug.Unique)

	status, ok := posts.Field("status")
	require.True(t, ok)
	require.NotNil(t, status.Options.Select)
	assert.Equal(t, []string{"draft", "published"}, status.Options.Select.Values)
	assert.Equal(t, 1, status.MaxSelect())

	tags, ok := posts.Field("tags")
	require.True(t, ok)
	assert.Equal(t, 3, tags.MaxSelect())
	assert.True(t, tags.MultiValue())

	author, ok := posts.Field("author")
	require.True(t, ok)
	require.NotNil(t, author.Options.Relation)
	assert.Equal(t, "users", author.Options.Relation.CollectionID)
	assert.True(t, author.Options.Relation.CascadeDelete)

	attachment, ok := posts.Field("attachment")
	require.True(t, ok)
	require.NotNil(t, attachment.Options.File)
	assert.Equal(t, int64(1048576), attachment.Options.File.MaxSize)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, attachment.Options.File.MimeTypes)

	users := cols[1]
	assert.Equal(t, schema.KindAuth, users.Kind)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.cue")
	require.NoError(t, os.WriteFile(path, []byte(blogCUE), 0o644))

	cols, err := CompileFile(path)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	_, err = CompileFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	t.Run("no collection struct", func(t *testing.T) {
		_, err := CompileString(`other: {}`, "x.cue")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "collection", ce.Field)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := CompileString(`collection: a: { kind: "blob" }`, "x.cue")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, "blob")
	})

	t.Run("missing field type", func(t *testing.T) {
		_, err := CompileString(`collection: a: { fields: title: { required: true } }`, "x.cue")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "a.title", ce.Field)
		assert.Contains(t, ce.Message, "type is required")
	})

	t.Run("unknown field type", func(t *testing.T) {
		_, err := CompileString(`collection: a: { fields: title: { type: "blob" } }`, "x.cue")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, "unknown field type")
	})

	t.Run("malformed cue", func(t *testing.T) {
		_, err := CompileString(`collection: a: {`, "x.cue")
		assert.Error(t, err)
	})
}

func TestCompileExplicitIDs(t *testing.T) {
	cols, err := CompileString(`
collection: posts: {
	id: "col_posts"
	fields: title: { id: "f_title", type: "text" }
}
`, "x.cue")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "col_posts", cols[0].ID)
	f, ok := cols[0].Field("title")
	require.True(t, ok)
	assert.Equal(t, "f_title", f.ID)
}

func TestValidateRules(t *testing.T) {
	good := &schema.Collection{
		Name: "posts",
		Rules: schema.RuleSet{
			Update: strPtr("author = auth.id && status = 'draft'"),
		},
	}
	assert.NoError(t, ValidateRules(good))

	bad := &schema.Collection{
		Name: "posts",
		Rules: schema.RuleSet{
			Delete: strPtr("author ="),
		},
	}
	err := ValidateRules(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `collection "posts" delete rule`)

	assert.Error(t, ValidateAll([]*schema.Collection{good, bad}))
	assert.NoError(t, ValidateAll([]*schema.Collection{good}))
}

func strPtr(s string) *string { return &s }
