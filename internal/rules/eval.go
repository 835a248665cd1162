package rules

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EvalContext carries everything an expression can reference.
//
// Field references resolve against Record first, then Params. Auth
// references resolve against Identity; a nil Identity makes the
// containing comparison false, so anonymous requests are cleanly
// denied by rules like "owner = auth.id".
type EvalContext struct {
	// Record is the candidate record's data plus its synthetic
	// "id", "created" and "updated" entries. Nil for operations with
	// no candidate (create-time rules see the incoming data instead).
	Record map[string]any

	// Identity is the authenticated principal's record data with its
	// synthetic "id" entry, or nil when unauthenticated.
	Identity map[string]any

	// Params are request query parameters, the fallback for field
	// references not present on the record.
	Params map[string]any
}

// missing is the sentinel for an unresolvable operand. Any comparison
// touching it evaluates to false: missing data means "does not
// match", never "invalid rule".
type missingValue struct{}

var missing = missingValue{}

// Evaluate walks the expression tree and returns the boolean outcome.
// It is a pure function: same inputs, same result, no side effects.
func Evaluate(expr Expr, ctx EvalContext) bool {
	switch e := expr.(type) {
	case *AndExpr:
		return Evaluate(e.Left, ctx) && Evaluate(e.Right, ctx)
	case *OrExpr:
		return Evaluate(e.Left, ctx) || Evaluate(e.Right, ctx)
	case *CompareExpr:
		return evalCompare(e, ctx)
	default:
		return false
	}
}

func evalCompare(e *CompareExpr, ctx EvalContext) bool {
	left := resolve(e.Left, ctx)
	right := resolve(e.Right, ctx)
	if left == missing || right == missing {
		return false
	}

	if e.Any {
		for _, elem := range asList(left) {
			if compare(e.Op, elem, right) {
				return true
			}
		}
		return false
	}
	return compare(e.Op, left, right)
}

func resolve(op Operand, ctx EvalContext) any {
	switch o := op.(type) {
	case Literal:
		return o.Value
	case AuthRef:
		if ctx.Identity == nil {
			return missing
		}
		v, ok := ctx.Identity[o.Field]
		if !ok {
			return missing
		}
		return v
	case FieldRef:
		if ctx.Record != nil {
			if v, ok := ctx.Record[o.Name]; ok {
				return v
			}
		}
		if ctx.Params != nil {
			if v, ok := ctx.Params[o.Name]; ok {
				return v
			}
		}
		return missing
	default:
		return missing
	}
}

// asList widens a single value into a one-element list so ?-prefixed
// operators behave sensibly on single-select fields too.
func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func compare(op Op, left, right any) bool {
	switch op {
	case OpEqual:
		return equal(left, right)
	case OpNotEqual:
		return !equal(left, right)
	case OpLike:
		return like(left, right)
	case OpNotLike:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false
		}
		return !containsFold(ls, rs)
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return ordered(op, left, right)
	default:
		return false
	}
}

func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lf, lok := toNumber(left); lok {
		rf, rok := toNumber(right)
		return rok && lf == rf
	}
	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		return rok && norm.NFC.String(ls) == norm.NFC.String(rs)
	}
	if lb, lok := left.(bool); lok {
		rb, rok := right.(bool)
		return rok && lb == rb
	}
	return false
}

func like(left, right any) bool {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false
	}
	return containsFold(ls, rs)
}

// containsFold is a case-insensitive, NFC-normalized substring match.
func containsFold(haystack, needle string) bool {
	h := strings.ToLower(norm.NFC.String(haystack))
	n := strings.ToLower(norm.NFC.String(needle))
	return strings.Contains(h, n)
}

func ordered(op Op, left, right any) bool {
	if lf, lok := toNumber(left); lok {
		rf, rok := toNumber(right)
		if !rok {
			return false
		}
		return orderedResult(op, cmpFloat(lf, rf))
	}
	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return false
		}
		return orderedResult(op, strings.Compare(norm.NFC.String(ls), norm.NFC.String(rs)))
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func orderedResult(op Op, cmp int) bool {
	switch op {
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
