package hooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/basalt/internal/schema"
)

func testCollection(name string) *schema.Collection {
	return &schema.Collection{ID: "col_" + name, Name: name, Kind: schema.KindBase}
}

func TestRunBeforeOrdering(t *testing.T) {
	r := NewRegistry()
	var order []string

	r.OnBefore(EventCreate, Wildcard, func(hctx *BeforeContext) error {
		order = append(order, "wildcard-1")
		return nil
	})
	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		order = append(order, "exact-1")
		return nil
	})
	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		order = append(order, "exact-2")
		return nil
	})
	r.OnBefore(EventCreate, Wildcard, func(hctx *BeforeContext) error {
		order = append(order, "wildcard-2")
		return nil
	})

	err := r.RunBefore(EventCreate, &BeforeContext{Collection: testCollection("posts")})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact-1", "exact-2", "wildcard-1", "wildcard-2"}, order,
		"exact-name handlers run before wildcard, each in registration order")
}

func TestRunBeforeSkipsOtherCollections(t *testing.T) {
	r := NewRegistry()
	called := false
	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		called = true
		return nil
	})

	err := r.RunBefore(EventCreate, &BeforeContext{Collection: testCollection("comments")})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunBeforeSkipsOtherEvents(t *testing.T) {
	r := NewRegistry()
	called := false
	r.OnBefore(EventDelete, "posts", func(hctx *BeforeContext) error {
		called = true
		return nil
	})

	err := r.RunBefore(EventCreate, &BeforeContext{Collection: testCollection("posts")})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunBeforeAbortsOnError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("rejected")
	var ran []string

	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		ran = append(ran, "first")
		return boom
	})
	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		ran = append(ran, "second")
		return nil
	})

	err := r.RunBefore(EventCreate, &BeforeContext{Collection: testCollection("posts")})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, ran, "later handlers do not run after an abort")
}

func TestRunBeforeMutatesData(t *testing.T) {
	r := NewRegistry()
	r.OnBefore(EventCreate, "posts", func(hctx *BeforeContext) error {
		hctx.Data["slug"] = "generated"
		return nil
	})

	hctx := &BeforeContext{
		Collection: testCollection("posts"),
		Data:       map[string]any{"title": "hello"},
	}
	require.NoError(t, r.RunBefore(EventCreate, hctx))
	assert.Equal(t, "generated", hctx.Data["slug"])
}

func TestRunAfterSwallowsErrors(t *testing.T) {
	r := NewRegistry()
	var ran []string

	r.OnAfter(EventCreate, "posts", func(hctx *AfterContext) error {
		ran = append(ran, "failing")
		return errors.New("subscriber down")
	})
	r.OnAfter(EventCreate, Wildcard, func(hctx *AfterContext) error {
		ran = append(ran, "next")
		return nil
	})

	r.RunAfter(EventCreate, &AfterContext{
		Collection: testCollection("posts"),
		Record:     &schema.Record{ID: "rec-1"},
	})
	assert.Equal(t, []string{"failing", "next"}, ran, "an after-hook error never stops dispatch")
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	d := NewDispatcher()
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		d.Enqueue(func() { got = append(got, i) })
	}
	d.Close()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got, "tasks run in order and finish before Close returns")
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher()
	d.Close()

	ran := false
	d.Enqueue(func() { ran = true })
	d.Close()
	assert.False(t, ran)
}

func TestRegisterEndpoint(t *testing.T) {
	r := NewRegistry()
	handler := func(req *EndpointRequest) (any, error) { return nil, nil }

	require.NoError(t, r.RegisterEndpoint(Endpoint{Method: "POST", Path: "/reindex", Handler: handler}))
	require.NoError(t, r.RegisterEndpoint(Endpoint{Method: "GET", Path: "/reindex", Handler: handler}))

	err := r.RegisterEndpoint(Endpoint{Method: "POST", Path: "/reindex", Handler: handler})
	assert.ErrorContains(t, err, "already registered")

	assert.Error(t, r.RegisterEndpoint(Endpoint{Method: "POST", Path: "/x"}), "handler is required")
	assert.Error(t, r.RegisterEndpoint(Endpoint{Path: "/x", Handler: handler}), "method is required")

	eps := r.Endpoints()
	require.Len(t, eps, 2)
	assert.Equal(t, "POST", eps[0].Method)
	assert.Equal(t, "GET", eps[1].Method)
}
