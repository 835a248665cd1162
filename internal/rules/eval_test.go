package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalRule(t *testing.T, rule string, ctx EvalContext) bool {
	t.Helper()
	expr, err := Parse(rule)
	require.NoError(t, err)
	return Evaluate(expr, ctx)
}

func TestEvaluate_OwnerRule(t *testing.T) {
	ctx := EvalContext{
		Record:   map[string]any{"owner": "user-1"},
		Identity: map[string]any{"id": "user-1"},
	}
	assert.True(t, evalRule(t, `owner = auth.id`, ctx))

	ctx.Identity = map[string]any{"id": "user-2"}
	assert.False(t, evalRule(t, `owner = auth.id`, ctx))
}

func TestEvaluate_NilIdentityDenies(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{"owner": "user-1"}}
	assert.False(t, evalRule(t, `owner = auth.id`, ctx))
	// Negated comparisons also fail on missing: absence is never a match.
	assert.False(t, evalRule(t, `owner != auth.id`, ctx))
}

func TestEvaluate_MissingFieldIsFalseNotError(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{}}
	assert.False(t, evalRule(t, `status = "published"`, ctx))
	assert.False(t, evalRule(t, `views > 10`, ctx))
}

func TestEvaluate_BoolAndNull(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{"active": true, "deleted": nil}}
	assert.True(t, evalRule(t, `active = true`, ctx))
	assert.False(t, evalRule(t, `active = false`, ctx))
	assert.True(t, evalRule(t, `deleted = null`, ctx))
	assert.False(t, evalRule(t, `active = null`, ctx))
}

func TestEvaluate_NumericWidening(t *testing.T) {
	// ints stored in records compare against float literals.
	ctx := EvalContext{Record: map[string]any{"views": 100}}
	assert.True(t, evalRule(t, `views = 100`, ctx))
	assert.True(t, evalRule(t, `views >= 100`, ctx))
	assert.True(t, evalRule(t, `views > 99.5`, ctx))
	assert.False(t, evalRule(t, `views < 100`, ctx))
}

func TestEvaluate_Like(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{"title": "Hello World"}}
	assert.True(t, evalRule(t, `title ~ "world"`, ctx))
	assert.True(t, evalRule(t, `title ~ "Hello"`, ctx))
	assert.False(t, evalRule(t, `title ~ "mars"`, ctx))
	assert.True(t, evalRule(t, `title !~ "mars"`, ctx))
}

func TestEvaluate_AnyOperator(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{"tags": []any{"go", "db"}}}
	assert.True(t, evalRule(t, `tags ?= "go"`, ctx))
	assert.False(t, evalRule(t, `tags ?= "rust"`, ctx))

	// Single values widen to one-element lists.
	ctx = EvalContext{Record: map[string]any{"tags": "go"}}
	assert.True(t, evalRule(t, `tags ?= "go"`, ctx))
}

func TestEvaluate_ParamsFallback(t *testing.T) {
	ctx := EvalContext{
		Record: map[string]any{"status": "draft"},
		Params: map[string]any{"preview": "yes"},
	}
	// Record wins when both carry the key; params fill the gaps.
	assert.True(t, evalRule(t, `status = "draft" && preview = "yes"`, ctx))
}

func TestEvaluate_Precedence(t *testing.T) {
	ctx := EvalContext{Record: map[string]any{"a": 1, "b": 0, "c": 0}}
	// a=1 || (b=1 && c=1) — true because of the left arm.
	assert.True(t, evalRule(t, `a = 1 || b = 1 && c = 1`, ctx))
	// (a=1 || b=1) && c=1 — false, c doesn't match.
	assert.False(t, evalRule(t, `(a = 1 || b = 1) && c = 1`, ctx))
}

func TestEvaluate_UnicodeNormalization(t *testing.T) {
	// "é" precomposed vs combining sequence compare equal after NFC.
	ctx := EvalContext{Record: map[string]any{"name": "café"}}
	assert.True(t, evalRule(t, "name = \"café\"", ctx))
}
