package harness

import "fmt"

// TraceEvent is one executed step's outcome, as recorded for golden
// comparison. Record ids come from a sequential test generator and
// timestamps from a fixed clock, so traces are byte-stable.
type TraceEvent struct {
	Step       int            `json:"step"`
	Op         string         `json:"op"`
	Collection string         `json:"collection"`
	Actor      string         `json:"actor"`
	// Outcome is "ok" or the error class that occurred.
	Outcome string `json:"outcome"`
	// Error is the error text when Outcome is not "ok".
	Error string `json:"error,omitempty"`
	// Record is the resulting record data (create/update/get).
	Record map[string]any `json:"record,omitempty"`
	// Count is the item count for list steps.
	Count *int `json:"count,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
	// Failures collects assertion and expectation mismatches; empty
	// means the scenario passed.
	Failures []string `json:"failures,omitempty"`
}

// Passed reports whether every expectation and assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

func (r *Result) addFailure(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}
