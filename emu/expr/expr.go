// Package expr implements the breakpoint condition language.
//
// A condition is a list of comparisons joined by && and ||, && binding
// tighter than ||. Each comparison has the form
//
//	r3==$FF         register r3, op ==, value 0xFF
//	[$80001000]!=0  byte at 0x80001000
//	h[$80001000]<10 halfword at 0x80001000
//	w[$80001000]>=0x8000 word at 0x80001000
//	hitcount>10     number of times the breakpoint was hit
//
// Values are written $hex, 0xhex or decimal.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

//go:generate go tool stringer -type=Source -trimprefix=Source

// Source is the left-hand side kind of a comparison.
type Source uint8

const (
	SourceRegister Source = iota
	SourceMemory
	SourceHitCount
)

type Op uint8

const (
	OpEqual Op = iota
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
)

// operators in matching order: two-char operators come first so that "<="
// isn't read as "<".
var operators = []struct {
	str string
	op  Op
}{
	{"==", OpEqual},
	{"!=", OpNotEqual},
	{"<=", OpLessEqual},
	{">=", OpGreaterEqual},
	{"<", OpLess},
	{">", OpGreater},
}

func (op Op) String() string {
	for _, o := range operators {
		if o.op == op {
			return o.str
		}
	}
	return "?"
}

// Comparison is a single 'lhs op value' term.
type Comparison struct {
	Source Source
	Reg    string // SourceRegister
	Addr   uint32 // SourceMemory
	Width  int    // SourceMemory, in bytes: 1, 2 or 4
	Op     Op
	Value  uint64
}

// Expr is a parsed condition. It is immutable once parsed.
type Expr struct {
	// disjunction of conjunctions
	terms [][]Comparison
	text  string
}

// Env gives access to the machine state a condition is evaluated against.
type Env interface {
	Register(name string) (uint64, bool)
	ReadMemory(addr uint32, width int) (uint64, bool)
	HitCount() uint64
}

// A SyntaxError reports a malformed condition.
type SyntaxError struct {
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid condition %q: %s", e.Text, e.Msg)
}

// Parse parses a condition.
func Parse(text string) (*Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SyntaxError{Text: text, Msg: "empty condition"}
	}

	var terms [][]Comparison
	for _, orPart := range strings.Split(text, "||") {
		var and []Comparison
		for _, andPart := range strings.Split(orPart, "&&") {
			cmp, err := parseComparison(andPart)
			if err != nil {
				return nil, &SyntaxError{Text: text, Msg: err.Error()}
			}
			and = append(and, cmp)
		}
		terms = append(terms, and)
	}

	e := &Expr{terms: terms}
	e.text = e.render()
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func parseComparison(s string) (Comparison, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Comparison{}, fmt.Errorf("missing comparison")
	}

	var (
		cmp   Comparison
		opStr string
		opIdx = -1
	)
	for _, o := range operators {
		if idx := strings.Index(s, o.str); idx >= 0 {
			opStr, opIdx, cmp.Op = o.str, idx, o.op
			break
		}
	}
	if opIdx < 0 {
		return Comparison{}, fmt.Errorf("no operator found in %q (use ==, !=, <, >, <=, >=)", s)
	}

	lhs := strings.TrimSpace(s[:opIdx])
	rhs := strings.TrimSpace(s[opIdx+len(opStr):])

	val, err := parseValue(rhs)
	if err != nil {
		return Comparison{}, fmt.Errorf("invalid value %q", rhs)
	}
	cmp.Value = val

	switch {
	case lhs == "":
		return Comparison{}, fmt.Errorf("missing left operand in %q", s)

	case strings.EqualFold(lhs, "hitcount"):
		cmp.Source = SourceHitCount

	case strings.HasSuffix(lhs, "]"):
		width := 1
		switch lhs[0] {
		case 'h', 'H':
			width, lhs = 2, lhs[1:]
		case 'w', 'W':
			width, lhs = 4, lhs[1:]
		case 'b', 'B':
			lhs = lhs[1:]
		}
		if !strings.HasPrefix(lhs, "[") {
			return Comparison{}, fmt.Errorf("invalid memory operand %q", lhs)
		}
		addr, err := parseValue(strings.TrimSpace(lhs[1 : len(lhs)-1]))
		if err != nil || addr > 0xFFFFFFFF {
			return Comparison{}, fmt.Errorf("invalid memory address %q", lhs)
		}
		cmp.Source = SourceMemory
		cmp.Addr = uint32(addr)
		cmp.Width = width
		if width < 8 && val>>(8*width) != 0 {
			return Comparison{}, fmt.Errorf("value $%X doesn't fit a %d-byte %s operand",
				val, width, strings.ToLower(cmp.Source.String()))
		}

	default:
		if !isIdent(lhs) {
			return Comparison{}, fmt.Errorf("invalid register name %q", lhs)
		}
		cmp.Source = SourceRegister
		cmp.Reg = strings.ToUpper(lhs)
	}

	return cmp, nil
}

func parseValue(s string) (uint64, error) {
	switch {
	case strings.HasPrefix(s, "$"):
		return strconv.ParseUint(s[1:], 16, 64)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// Text returns the normalized text of the condition. Parsing the returned
// text gives back an equivalent condition.
func (e *Expr) Text() string {
	if e == nil {
		return ""
	}
	return e.text
}

func (e *Expr) String() string { return e.Text() }

func (e *Expr) render() string {
	var sb strings.Builder
	for i, and := range e.terms {
		if i > 0 {
			sb.WriteString(" || ")
		}
		for j, cmp := range and {
			if j > 0 {
				sb.WriteString(" && ")
			}
			sb.WriteString(cmp.String())
		}
	}
	return sb.String()
}

func (c Comparison) String() string {
	var lhs string
	switch c.Source {
	case SourceRegister:
		lhs = c.Reg
	case SourceMemory:
		switch c.Width {
		case 2:
			lhs = "h"
		case 4:
			lhs = "w"
		}
		lhs += fmt.Sprintf("[$%X]", c.Addr)
	case SourceHitCount:
		return fmt.Sprintf("hitcount%s%d", c.Op, c.Value)
	}
	return fmt.Sprintf("%s%s$%X", lhs, c.Op, c.Value)
}

// Comparisons returns the condition terms, as a disjunction of conjunctions.
func (e *Expr) Comparisons() [][]Comparison {
	out := make([][]Comparison, len(e.terms))
	for i := range e.terms {
		out[i] = append([]Comparison(nil), e.terms[i]...)
	}
	return out
}

// Eval reports whether the condition holds. A nil condition always holds. A
// comparison on an unknown register or unreadable memory is false.
func (e *Expr) Eval(env Env) bool {
	if e == nil {
		return true
	}
	for _, and := range e.terms {
		ok := true
		for _, cmp := range and {
			if !cmp.eval(env) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (c Comparison) eval(env Env) bool {
	var (
		actual uint64
		ok     bool
	)
	switch c.Source {
	case SourceRegister:
		actual, ok = env.Register(c.Reg)
	case SourceMemory:
		actual, ok = env.ReadMemory(c.Addr, c.Width)
	case SourceHitCount:
		actual, ok = env.HitCount(), true
	}
	if !ok {
		return false
	}

	switch c.Op {
	case OpEqual:
		return actual == c.Value
	case OpNotEqual:
		return actual != c.Value
	case OpLess:
		return actual < c.Value
	case OpGreater:
		return actual > c.Value
	case OpLessEqual:
		return actual <= c.Value
	case OpGreaterEqual:
		return actual >= c.Value
	}
	return false
}
