package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the static type of an expression.
type Type int

const (
	Number Type = iota
	Bool
)

func (t Type) String() string {
	if t == Bool {
		return "condition"
	}
	return "number"
}

type node interface {
	typ() Type
	String() string
}

type numNode interface {
	node
	evalNum(e *env) []float64
}

type boolNode interface {
	node
	evalBool(e *env) []tri
}

type numLit struct{ v float64 }

func (numLit) typ() Type        { return Number }
func (n numLit) String() string { return strconv.FormatFloat(n.v, 'g', -1, 64) }

type fieldRef struct{ name string }

func (fieldRef) typ() Type        { return Number }
func (f fieldRef) String() string { return f.name }

type arith struct {
	op   string
	l, r numNode
}

func (arith) typ() Type        { return Number }
func (a arith) String() string { return "(" + a.l.String() + " " + a.op + " " + a.r.String() + ")" }

type neg struct{ x numNode }

func (neg) typ() Type        { return Number }
func (n neg) String() string { return "-" + n.x.String() }

type call struct {
	fn   *function
	args []numNode
	ints []int
}

func (c call) typ() Type { return c.fn.ret }

func (c call) String() string {
	parts := make([]string, 0, len(c.args)+len(c.ints))
	for _, a := range c.args {
		parts = append(parts, a.String())
	}
	for _, n := range c.ints {
		parts = append(parts, strconv.Itoa(n))
	}
	return fmt.Sprintf("%s(%s)", c.fn.name, strings.Join(parts, ", "))
}

type compare struct {
	op   string
	l, r numNode
}

func (compare) typ() Type        { return Bool }
func (c compare) String() string { return c.l.String() + " " + c.op + " " + c.r.String() }

type logical struct {
	op   string
	l, r boolNode
}

func (logical) typ() Type        { return Bool }
func (l logical) String() string { return "(" + l.l.String() + " " + l.op + " " + l.r.String() + ")" }

type not struct{ x boolNode }

func (not) typ() Type        { return Bool }
func (n not) String() string { return "not " + n.x.String() }
