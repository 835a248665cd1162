// Package harness runs declarative CRUD conformance scenarios.
//
// A scenario declares collections (CUE), seeds records, executes a
// sequence of gated operations under different actors and asserts on
// outcomes and final state. Each run gets a fresh database,
// sequential record ids and a fixed clock, so the resulting trace is
// deterministic and suitable for golden-file comparison.
package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/compiler"
	"github.com/hollis-dev/basalt/internal/hooks"
	"github.com/hollis-dev/basalt/internal/records"
	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
	"github.com/hollis-dev/basalt/internal/testutil"
)

// Harness executes one scenario against a private engine stack.
type Harness struct {
	store    *store.Store
	registry *schema.Registry
	records  *records.Service
	clock    *testutil.FixedClock

	// refs maps scenario refs to created record ids.
	refs map[string]string
	// refCols maps refs to their collection names.
	refCols map[string]string
}

// Run executes a scenario. dir is a scratch directory for the run's
// database; basePath anchors relative collection paths.
func Run(scenario *Scenario, dir, basePath string) (*Result, error) {
	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFixedClock()
	reg := schema.NewRegistry(
		schema.WithPersister(st),
		schema.WithDataChecker(st),
		schema.WithDataMigrator(st),
	)
	svc := records.New(reg, st, rules.NewEngine(), hooks.NewRegistry(),
		records.WithIDGenerator(testutil.NewSeqIDs("rec")),
		records.WithClock(clock.Now),
	)
	defer svc.Close()

	h := &Harness{
		store:    st,
		registry: reg,
		records:  svc,
		clock:    clock,
		refs:     make(map[string]string),
		refCols:  make(map[string]string),
	}

	ctx := context.Background()
	result := &Result{Scenario: scenario.Name}

	if err := h.declareCollections(ctx, scenario, basePath); err != nil {
		return nil, err
	}
	if err := h.runSetup(ctx, scenario, result); err != nil {
		return nil, err
	}
	h.runSteps(ctx, scenario, result)
	h.checkAssertions(ctx, scenario, result)

	return result, nil
}

func (h *Harness) declareCollections(ctx context.Context, scenario *Scenario, basePath string) error {
	for _, path := range scenario.Collections {
		if !filepath.IsAbs(path) && basePath != "" {
			path = filepath.Join(basePath, path)
		}
		cols, err := compiler.CompileFile(path)
		if err != nil {
			return err
		}
		if err := compiler.ValidateAll(cols); err != nil {
			return err
		}
		for _, col := range cols {
			if _, err := h.registry.Create(ctx, col); err != nil {
				return fmt.Errorf("declare %q: %w", col.Name, err)
			}
		}
	}
	return nil
}

func (h *Harness) runSetup(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, st := range scenario.Setup {
		data := resolveRefs(st.Data, h.refs)
		rec, err := h.records.Create(ctx, st.Collection, data, auth.Admin())
		if err != nil {
			return fmt.Errorf("setup[%d] on %q: %w", i, st.Collection, err)
		}
		h.clock.Tick()
		if st.Ref != "" {
			h.refs[st.Ref] = rec.ID
			h.refCols[st.Ref] = st.Collection
		}
	}
	return nil
}

func (h *Harness) runSteps(ctx context.Context, scenario *Scenario, result *Result) {
	for i, step := range scenario.Steps {
		ev := TraceEvent{
			Step:       i,
			Op:         step.Op,
			Collection: step.Collection,
			Actor:      actorLabel(step.As),
		}

		actor, err := h.actorFor(ctx, step.As)
		if err != nil {
			ev.Outcome = "error"
			ev.Error = err.Error()
			result.Trace = append(result.Trace, ev)
			result.addFailure("steps[%d]: resolve actor: %v", i, err)
			continue
		}

		rec, count, opErr := h.runStep(ctx, step, actor)
		if opErr != nil {
			ev.Outcome = classifyError(opErr)
			ev.Error = opErr.Error()
		} else {
			ev.Outcome = "ok"
			if rec != nil {
				ev.Record = rec.Data
				if step.Ref != "" {
					h.refs[step.Ref] = rec.ID
					h.refCols[step.Ref] = step.Collection
				}
			}
			if count != nil {
				ev.Count = count
			}
		}
		result.Trace = append(result.Trace, ev)

		h.checkExpect(i, step, ev, result)
		h.clock.Tick()
	}
}

func (h *Harness) runStep(ctx context.Context, step Step, actor auth.Context) (*schema.Record, *int, error) {
	var opts []records.OpOption
	if len(step.Expand) > 0 {
		opts = append(opts, records.WithExpand(step.Expand...))
	}

	switch step.Op {
	case OpCreate:
		rec, err := h.records.Create(ctx, step.Collection, resolveRefs(step.Data, h.refs), actor, opts...)
		return rec, nil, err
	case OpUpdate:
		id, err := h.resolveRef(step.Record)
		if err != nil {
			return nil, nil, err
		}
		rec, err := h.records.Update(ctx, step.Collection, id, resolveRefs(step.Data, h.refs), actor, opts...)
		return rec, nil, err
	case OpDelete:
		id, err := h.resolveRef(step.Record)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, h.records.Delete(ctx, step.Collection, id, actor)
	case OpGet:
		id, err := h.resolveRef(step.Record)
		if err != nil {
			return nil, nil, err
		}
		rec, err := h.records.Get(ctx, step.Collection, id, actor, opts...)
		return rec, nil, err
	case OpList:
		res, err := h.records.List(ctx, step.Collection, records.ListOptions{
			Filter: step.Filter,
			Sort:   step.Sort,
			Expand: step.Expand,
		}, actor)
		if err != nil {
			return nil, nil, err
		}
		n := res.TotalItems
		return nil, &n, nil
	}
	return nil, nil, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) checkExpect(i int, step Step, ev TraceEvent, result *Result) {
	want := ""
	var wantCount *int
	if step.Expect != nil {
		want = step.Expect.Error
		wantCount = step.Expect.Count
	}

	if want == "" && ev.Outcome != "ok" {
		result.addFailure("steps[%d]: expected success, got %s: %s", i, ev.Outcome, ev.Error)
		return
	}
	if want != "" && ev.Outcome != want {
		result.addFailure("steps[%d]: expected %s error, got %s", i, want, ev.Outcome)
		return
	}
	if wantCount != nil {
		if ev.Count == nil {
			result.addFailure("steps[%d]: expected count %d, step produced none", i, *wantCount)
		} else if *ev.Count != *wantCount {
			result.addFailure("steps[%d]: expected count %d, got %d", i, *wantCount, *ev.Count)
		}
	}
}

func (h *Harness) checkAssertions(ctx context.Context, scenario *Scenario, result *Result) {
	for i, a := range scenario.Assertions {
		id, ok := h.refs[a.Record]
		if !ok {
			result.addFailure("assertions[%d]: unknown ref %q", i, a.Record)
			continue
		}
		col := h.refCols[a.Record]

		rec, err := h.records.Get(ctx, col, id, auth.Admin())
		switch a.Type {
		case AssertAbsent:
			if err == nil {
				result.addFailure("assertions[%d]: record %q still exists", i, a.Record)
			} else if !schema.IsNotFound(err) {
				result.addFailure("assertions[%d]: %v", i, err)
			}
		case AssertRecord:
			if err != nil {
				result.addFailure("assertions[%d]: %v", i, err)
				continue
			}
			for field, want := range resolveRefs(a.Fields, h.refs) {
				got, present := rec.Data[field]
				if !present {
					result.addFailure("assertions[%d]: record %q missing field %q", i, a.Record, field)
					continue
				}
				if !looseEqual(got, want) {
					result.addFailure("assertions[%d]: record %q field %q = %v, want %v", i, a.Record, field, got, want)
				}
			}
		}
	}
}

// actorFor resolves a step's "as" into an auth context: "admin",
// "anon"/"", or a setup ref whose record becomes the identity.
func (h *Harness) actorFor(ctx context.Context, as string) (auth.Context, error) {
	switch as {
	case "admin":
		return auth.Admin(), nil
	case "", "anon":
		return auth.Anonymous(), nil
	}
	id, ok := h.refs[as]
	if !ok {
		return auth.Anonymous(), fmt.Errorf("unknown actor ref %q", as)
	}
	rec, err := h.records.Get(ctx, h.refCols[as], id, auth.Admin())
	if err != nil {
		return auth.Anonymous(), err
	}
	return auth.AsUser(rec), nil
}

func actorLabel(as string) string {
	if as == "" {
		return "anon"
	}
	return as
}

func (h *Harness) resolveRef(ref string) (string, error) {
	id, ok := h.refs[ref]
	if !ok {
		return "", fmt.Errorf("unknown record ref %q", ref)
	}
	return id, nil
}

// resolveRefs substitutes "@ref:<name>" string values with the
// referenced record's id, so scenarios can wire relations without
// knowing generated ids.
func resolveRefs(data map[string]any, refs map[string]string) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = resolveRefValue(v, refs)
	}
	return out
}

func resolveRefValue(v any, refs map[string]string) any {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "@ref:"); ok {
			if id, found := refs[name]; found {
				return id
			}
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveRefValue(item, refs)
		}
		return out
	case map[string]any:
		return resolveRefs(val, refs)
	}
	return v
}

// classifyError maps engine errors to the scenario error classes.
func classifyError(err error) string {
	switch {
	case records.IsForbidden(err):
		return "forbidden"
	case records.IsUniqueConstraint(err):
		return "unique"
	case records.IsValidation(err):
		return "validation"
	case schema.IsNotFound(err):
		return "not_found"
	}
	var rie *records.ReferentialIntegrityError
	if errors.As(err, &rie) {
		return "integrity"
	}
	return "error"
}

// looseEqual compares scalar values the way YAML sees them: numbers
// compare numerically regardless of int/float representation.
func looseEqual(a, b any) bool {
	if af, aok := toComparableFloat(a); aok {
		if bf, bok := toComparableFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toComparableFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
