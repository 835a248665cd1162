package rules

import (
	"strconv"
	"strings"
)

// Parse compiles a rule string into an expression tree.
//
// Grammar (informal, && binds tighter than ||, both left-associative):
//
//	expr    = and { "||" and }
//	and     = cmp { "&&" cmp }
//	cmp     = "(" expr ")" | operand op operand
//	operand = ident | "auth." ident | literal
//
// The empty string is not handled here: callers treat "" as
// always-allow and nil as admin-only before parsing.
func Parse(rule string) (Expr, error) {
	p := &parser{lex: &lexer{input: rule}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, p.lex.errf(p.cur.pos, "unexpected trailing %q", p.cur.text)
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	if p.cur.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.lex.errf(p.cur.pos, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.cur.kind != tokOp {
		return nil, p.lex.errf(p.cur.pos, "expected comparison operator, got %q", p.cur.text)
	}
	opText := p.cur.text
	any := false
	if opText[0] == '?' {
		any = true
		opText = opText[1:]
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return &CompareExpr{Op: Op(opText), Any: any, Left: left, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	switch p.cur.kind {
	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: text}, nil

	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, p.lex.errf(p.cur.pos, "malformed number %q", p.cur.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: f}, nil

	case tokIdent:
		text := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch text {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		case "null":
			return Literal{Value: nil}, nil
		}
		if after, ok := strings.CutPrefix(text, "auth."); ok {
			if after == "" {
				return nil, p.lex.errf(pos, "auth. requires a field name")
			}
			return AuthRef{Field: after}, nil
		}
		return FieldRef{Name: text}, nil

	default:
		return nil, p.lex.errf(p.cur.pos, "expected operand, got %q", p.cur.text)
	}
}
