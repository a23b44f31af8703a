package dsl

import (
	"fmt"
	"math"

	"quantsignal/internal/analysis/indicator"
)

var fields = map[string]bool{"open": true, "high": true, "low": true, "close": true, "volume": true}

// Program is a parsed, type-checked condition.
type Program struct {
	src  string
	root boolNode
}

func (p *Program) Source() string { return p.src }

// String renders the normalised expression.
func (p *Program) String() string { return p.root.String() }

// Parse compiles src into a Program. The top-level expression must be a
// condition (comparison, crossing or boolean combination).
func Parse(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
	root, ok := n.(boolNode)
	if !ok || n.typ() != Bool {
		return nil, &ParseError{Pos: 0, Msg: "expression must be a condition, got a number"}
	}
	return &Program{src: src, root: root}, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && t.text == word {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("expected %s, got %q", what, t.text)}
	}
	return t, nil
}

func asBool(n node, pos int, op string) (boolNode, error) {
	b, ok := n.(boolNode)
	if !ok || n.typ() != Bool {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("%s needs a condition, got a number", op)}
	}
	return b, nil
}

func asNum(n node, pos int, op string) (numNode, error) {
	v, ok := n.(numNode)
	if !ok || n.typ() != Number {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("%s needs a number, got a condition", op)}
	}
	return v, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.peek().pos
		if !p.keyword("or") {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, err := asBool(left, pos, "or")
		if err != nil {
			return nil, err
		}
		r, err := asBool(right, pos, "or")
		if err != nil {
			return nil, err
		}
		left = logical{op: "or", l: l, r: r}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.peek().pos
		if !p.keyword("and") {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l, err := asBool(left, pos, "and")
		if err != nil {
			return nil, err
		}
		r, err := asBool(right, pos, "and")
		if err != nil {
			return nil, err
		}
		left = logical{op: "and", l: l, r: r}
	}
}

func (p *parser) parseNot() (node, error) {
	pos := p.peek().pos
	if p.keyword("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		b, err := asBool(inner, pos, "not")
		if err != nil {
			return nil, err
		}
		return not{x: b}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOp {
		return left, nil
	}
	switch t.text {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return left, nil
	}
	p.next()
	right, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	l, err := asNum(left, t.pos, t.text)
	if err != nil {
		return nil, err
	}
	r, err := asNum(right, t.pos, t.text)
	if err != nil {
		return nil, err
	}
	return compare{op: t.text, l: l, r: r}, nil
}

func (p *parser) parseAdd() (node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		if left, err = binary(t, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseMul() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if left, err = binary(t, left, right); err != nil {
			return nil, err
		}
	}
}

func binary(op token, left, right node) (node, error) {
	l, err := asNum(left, op.pos, op.text)
	if err != nil {
		return nil, err
	}
	r, err := asNum(right, op.pos, op.text)
	if err != nil {
		return nil, err
	}
	return arith{op: op.text, l: l, r: r}, nil
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && t.text == "-" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x, err := asNum(inner, t.pos, "-")
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(numLit); ok {
			return numLit{v: -lit.v}, nil
		}
		return neg{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numLit{v: t.num}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		if fields[t.text] {
			return fieldRef{name: t.text}, nil
		}
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unknown identifier %q", t.text)}
	case tokEOF:
		return nil, &ParseError{Pos: t.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, &ParseError{Pos: name.pos, Msg: fmt.Sprintf("unknown function %q", name.text)}
	}
	p.next() // (
	c := call{fn: fn}
	total := fn.series + fn.ints
	for i := 0; i < total; i++ {
		if i > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		argPos := p.peek().pos
		if i < fn.series {
			arg, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			n, err := asNum(arg, argPos, fn.name)
			if err != nil {
				return nil, err
			}
			c.args = append(c.args, n)
			continue
		}
		lit, err := p.expect(tokNumber, "integer window length")
		if err != nil {
			return nil, err
		}
		if lit.num != math.Trunc(lit.num) || lit.num < 1 || lit.num > indicator.MaxPeriod {
			return nil, &ParseError{Pos: lit.pos, Msg: fmt.Sprintf("%s: window %s must be an integer in [1, %d]", fn.name, lit.text, indicator.MaxPeriod)}
		}
		c.ints = append(c.ints, int(lit.num))
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, fmt.Errorf("%s takes %d arguments: %w", fn.name, total, err)
	}
	return c, nil
}
