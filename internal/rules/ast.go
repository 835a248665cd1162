// Package rules implements the boolean rule-expression language that
// gates every CRUD operation.
//
// Rule strings are parsed once into a small immutable AST and cached
// per collection and operation, keyed by schema version. Evaluation is
// a pure function of (expression, context): no side effects, no I/O.
package rules

import "fmt"

// Op is a comparison operator.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpGreater      Op = ">"
	OpLess         Op = "<"
	OpGreaterEqual Op = ">="
	OpLessEqual    Op = "<="
	OpLike         Op = "~"
	OpNotLike      Op = "!~"
)

// Expr is the sealed expression node interface. Only AndExpr, OrExpr
// and CompareExpr implement it.
type Expr interface {
	exprNode()
	String() string
}

// AndExpr is a logical conjunction. && binds tighter than ||.
type AndExpr struct {
	Left, Right Expr
}

func (*AndExpr) exprNode() {}

func (e *AndExpr) String() string {
	return fmt.Sprintf("(%s && %s)", e.Left, e.Right)
}

// OrExpr is a logical disjunction.
type OrExpr struct {
	Left, Right Expr
}

func (*OrExpr) exprNode() {}

func (e *OrExpr) String() string {
	return fmt.Sprintf("(%s || %s)", e.Left, e.Right)
}

// CompareExpr is a single comparison. Any marks the ?-prefixed form:
// the left operand is treated as a multi-value field and the
// comparison holds if any element satisfies it.
type CompareExpr struct {
	Op          Op
	Any         bool
	Left, Right Operand
}

func (*CompareExpr) exprNode() {}

func (e *CompareExpr) String() string {
	op := string(e.Op)
	if e.Any {
		op = "?" + op
	}
	return fmt.Sprintf("%s %s %s", e.Left, op, e.Right)
}

// Operand is the sealed operand interface: a field reference, an
// auth.* reference, or a literal.
type Operand interface {
	operandNode()
	String() string
}

// FieldRef resolves against the candidate record first, then the
// request's query parameters.
type FieldRef struct {
	Name string
}

func (FieldRef) operandNode() {}

func (o FieldRef) String() string { return o.Name }

// AuthRef resolves against the authenticated identity record.
// Unauthenticated contexts make the containing comparison false.
type AuthRef struct {
	Field string
}

func (AuthRef) operandNode() {}

func (o AuthRef) String() string { return "auth." + o.Field }

// Literal is a quoted string, a number, true/false, or null.
type Literal struct {
	Value any // string | float64 | bool | nil
}

func (Literal) operandNode() {}

func (o Literal) String() string {
	switch v := o.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
