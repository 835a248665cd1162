package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestOwnerAccessScenario(t *testing.T) {
	s := loadTestScenario(t, "owner_access.yml")

	result, err := Run(s, t.TempDir(), "testdata")
	require.NoError(t, err)
	assert.True(t, result.Passed(), "failures: %v", result.Failures)
	require.Len(t, result.Trace, len(s.Steps))

	assert.Equal(t, "ok", result.Trace[0].Outcome)
	assert.Equal(t, "forbidden", result.Trace[1].Outcome)
	assert.Equal(t, "anon", result.Trace[2].Actor)
	assert.Equal(t, "published", result.Trace[3].Record["status"])
	require.NotNil(t, result.Trace[5].Count)
	assert.Equal(t, 1, *result.Trace[5].Count)
	require.NotNil(t, result.Trace[6].Count)
	assert.Zero(t, *result.Trace[6].Count)
}

func TestValidationAndIntegrityScenario(t *testing.T) {
	s := loadTestScenario(t, "validation_and_integrity.yml")

	result, err := Run(s, t.TempDir(), "testdata")
	require.NoError(t, err)
	assert.True(t, result.Passed(), "failures: %v", result.Failures)

	outcomes := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		outcomes[i] = ev.Outcome
	}
	assert.Equal(t, []string{
		"validation", "validation", "validation",
		"ok", "unique", "ok", "integrity", "ok", "ok",
	}, outcomes)
}

func TestSmokeScenarioGolden(t *testing.T) {
	RunWithGolden(t, loadTestScenario(t, "smoke.yml"), "testdata")
}

func TestRunRecordsExpectMismatches(t *testing.T) {
	s := loadTestScenario(t, "owner_access.yml")
	// Flip one expectation so the run must report a failure.
	s.Steps[1].Expect = nil

	result, err := Run(s, t.TempDir(), "testdata")
	require.NoError(t, err)
	assert.False(t, result.Passed())
	require.NotEmpty(t, result.Failures)
	assert.Contains(t, result.Failures[0], "steps[1]")
}

func TestRunDeterministicIDs(t *testing.T) {
	s := loadTestScenario(t, "owner_access.yml")

	a, err := Run(s, t.TempDir(), "testdata")
	require.NoError(t, err)
	b, err := Run(s, t.TempDir(), "testdata")
	require.NoError(t, err)

	assert.Equal(t, a.Trace, b.Trace, "same scenario, same trace")
}

func writeScenario(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadScenarioValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing name",
			src:  "steps:\n  - op: list\n    collection: posts\n",
			want: "name is required",
		},
		{
			name: "no steps",
			src:  "name: x\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			src:  "name: x\nsteps:\n  - op: upsert\n    collection: posts\n",
			want: "unknown op",
		},
		{
			name: "create without data",
			src:  "name: x\nsteps:\n  - op: create\n    collection: posts\n",
			want: "create requires data",
		},
		{
			name: "update without record",
			src:  "name: x\nsteps:\n  - op: update\n    collection: posts\n    data: { a: 1 }\n",
			want: "update requires record",
		},
		{
			name: "missing collection",
			src:  "name: x\nsteps:\n  - op: list\n",
			want: "collection is required",
		},
		{
			name: "duplicate ref",
			src: "name: x\nsetup:\n  - collection: posts\n    data: { a: 1 }\n    ref: r\n" +
				"steps:\n  - op: create\n    collection: posts\n    data: { a: 1 }\n    ref: r\n",
			want: "duplicate ref",
		},
		{
			name: "unknown field rejected",
			src:  "name: x\nbogus: true\nsteps:\n  - op: list\n    collection: posts\n",
			want: "bogus",
		},
		{
			name: "bad assertion type",
			src: "name: x\nsteps:\n  - op: list\n    collection: posts\n" +
				"assertions:\n  - type: exists\n    record: r\n",
			want: "unknown assertion type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadScenarioValid(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "owner_access.yml"))
	require.NoError(t, err)
	assert.Equal(t, "owner-access", s.Name)
	assert.Len(t, s.Setup, 3)
	assert.NotEmpty(t, s.Steps)
}

func TestResolveRefs(t *testing.T) {
	refs := map[string]string{"alice": "rec-0001"}

	got := resolveRefs(map[string]any{
		"owner":  "@ref:alice",
		"title":  "plain",
		"nested": map[string]any{"owner": "@ref:alice"},
		"many":   []any{"@ref:alice", "x"},
		"dangle": "@ref:nobody",
	}, refs)

	assert.Equal(t, "rec-0001", got["owner"])
	assert.Equal(t, "plain", got["title"])
	assert.Equal(t, "rec-0001", got["nested"].(map[string]any)["owner"])
	assert.Equal(t, []any{"rec-0001", "x"}, got["many"])
	assert.Equal(t, "@ref:nobody", got["dangle"], "unknown refs pass through untouched")
}
