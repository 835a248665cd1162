package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario, fails the test on expectation or
// assertion mismatches, and compares the trace against the golden
// file testdata/golden/<scenario.Name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, basePath string) {
	t.Helper()

	result, err := Run(scenario, t.TempDir(), basePath)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, failure)
	}

	AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's trace against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	snapshot, err := json.MarshalIndent(struct {
		Scenario string       `json:"scenario"`
		Trace    []TraceEvent `json:"trace"`
	}{Scenario: name, Trace: result.Trace}, "", "  ")
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
}
