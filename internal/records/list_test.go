package records_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/records"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/testutil"
)

func seedPosts(t *testing.T, env *testutil.Env, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		env.Clock.Tick()
		_, err := env.Records.Create(ctx, "posts", map[string]any{
			"title":  fmt.Sprintf("post %02d", i),
			"views":  float64(i % 3),
			"author": fmt.Sprintf("user-%d", i%2),
		}, auth.Admin())
		require.NoError(t, err)
	}
}

func TestList(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, postsCollection())
	seedPosts(t, env, 5)

	res, err := env.Records.List(context.Background(), "posts", records.ListOptions{}, auth.Anonymous())
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalItems)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, records.DefaultPerPage, res.PerPage)
	assert.Equal(t, 1, res.TotalPages)
	require.Len(t, res.Items, 5)
	assert.Equal(t, "post 00", res.Items[0].Data["title"], "default order is creation time")
}

func TestListPagination(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, postsCollection())
	seedPosts(t, env, 7)
	ctx := context.Background()

	page1, err := env.Records.List(ctx, "posts", records.ListOptions{Page: 1, PerPage: 3}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 7, page1.TotalItems)
	assert.Equal(t, 3, page1.TotalPages)
	require.Len(t, page1.Items, 3)

	page3, err := env.Records.List(ctx, "posts", records.ListOptions{Page: 3, PerPage: 3}, auth.Anonymous())
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	assert.Equal(t, "post 06", page3.Items[0].Data["title"])

	beyond, err := env.Records.List(ctx, "posts", records.ListOptions{Page: 9, PerPage: 3}, auth.Anonymous())
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 7, beyond.TotalItems)
}

func TestListPerPageCap(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, postsCollection())
	seedPosts(t, env, 1)

	res, err := env.Records.List(context.Background(), "posts", records.ListOptions{PerPage: 100000}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, records.MaxPerPage, res.PerPage)
}

func TestListFilter(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, postsCollection())
	seedPosts(t, env, 6)
	ctx := context.Background()

	res, err := env.Records.List(ctx, "posts", records.ListOptions{Filter: "views = 0"}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalItems)

	res, err = env.Records.List(ctx, "posts", records.ListOptions{Filter: `views > 0 && title ~ "post"`}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalItems)

	_, err = env.Records.List(ctx, "posts", records.ListOptions{Filter: "views ="}, auth.Anonymous())
	assert.Error(t, err, "malformed filters fail the query")
}

func TestListSort(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, postsCollection())
	seedPosts(t, env, 4)
	ctx := context.Background()

	res, err := env.Records.List(ctx, "posts", records.ListOptions{Sort: "-title"}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "post 03", res.Items[0].Data["title"])
	assert.Equal(t, "post 00", res.Items[3].Data["title"])

	// Numeric field ascending, then creation order breaks ties.
	res, err = env.Records.List(ctx, "posts", records.ListOptions{Sort: "views,created"}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, float64(0), res.Items[0].Data["views"])
	assert.Equal(t, float64(0), res.Items[1].Data["views"])

	res, err = env.Records.List(ctx, "posts", records.ListOptions{Sort: "-created"}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "post 03", res.Items[0].Data["title"])
}

func TestListNilRuleRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, &schema.Collection{
		Name:   "internal_logs",
		Kind:   schema.KindBase,
		Fields: []schema.Field{{ID: "f_msg", Name: "msg", Type: schema.FieldText}},
	})
	ctx := context.Background()

	_, err := env.Records.List(ctx, "internal_logs", records.ListOptions{}, auth.Anonymous())
	var forbidden *records.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, schema.OpList, forbidden.Operation)

	_, err = env.Records.List(ctx, "internal_logs", records.ListOptions{}, auth.Admin())
	assert.NoError(t, err)
}

func TestListRuleFiltersRows(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustCreateCollection(t, &schema.Collection{
		Name: "notes",
		Kind: schema.KindBase,
		Fields: []schema.Field{
			{ID: "f_owner", Name: "owner", Type: schema.FieldText},
			{ID: "f_text", Name: "text", Type: schema.FieldText},
		},
		Rules: schema.RuleSet{
			List:   testutil.Rule("owner = auth.id"),
			Create: testutil.Public(),
		},
	})
	ctx := context.Background()

	for _, owner := range []string{"user-1", "user-2", "user-1"} {
		_, err := env.Records.Create(ctx, "notes", map[string]any{"owner": owner, "text": "x"}, auth.Admin())
		require.NoError(t, err)
	}

	res, err := env.Records.List(ctx, "notes", records.ListOptions{}, auth.AsUser(identity("user-1")))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalItems, "rows the rule rejects are omitted, not errors")

	res, err = env.Records.List(ctx, "notes", records.ListOptions{}, auth.AsUser(identity("user-3")))
	require.NoError(t, err)
	assert.Zero(t, res.TotalItems)

	res, err = env.Records.List(ctx, "notes", records.ListOptions{}, auth.Admin())
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalItems, "admin sees everything")
}

func TestListUnknownCollection(t *testing.T) {
	env := testutil.NewEnv(t)
	_, err := env.Records.List(context.Background(), "nope", records.ListOptions{}, auth.Admin())
	assert.True(t, schema.IsNotFound(err))
}
