// Package breakpoints holds the debugger registry of instruction breakpoints
// and memory watchpoints (memchecks).
//
// The registry is edited from a single control goroutine and read
// concurrently by the execution engine. Each collection publishes immutable
// snapshots so that readers only ever see whole records and whole batches.
package breakpoints

import "fmt"

// Condition is an opaque, immutable handle on a parsed condition.
type Condition interface {
	// Text returns the normalized text of the condition.
	Text() string
}

// ConditionParser turns condition text into a Condition.
type ConditionParser interface {
	ParseCondition(text string) (Condition, error)
}

// ParserFunc adapts a function to the ConditionParser interface.
type ParserFunc func(text string) (Condition, error)

func (f ParserFunc) ParseCondition(text string) (Condition, error) { return f(text) }

// ConditionText returns the text of c, or the empty string if c is nil.
func ConditionText(c Condition) string {
	if c == nil {
		return ""
	}
	return c.Text()
}

// A Breakpoint halts and/or logs execution when the program counter reaches
// Address.
type Breakpoint struct {
	Address    uint32
	Enabled    bool
	BreakOnHit bool
	LogOnHit   bool
	Condition  Condition
}

// NewBreakpoint returns an enabled breakpoint at addr, breaking and logging
// on hit.
func NewBreakpoint(addr uint32) Breakpoint {
	return Breakpoint{
		Address:    addr,
		Enabled:    true,
		BreakOnHit: true,
		LogOnHit:   true,
	}
}

func (bp Breakpoint) key() uint32     { return bp.Address }
func (bp Breakpoint) isEnabled() bool { return bp.Enabled }

func (bp Breakpoint) normalized() Breakpoint { return bp }

func (bp Breakpoint) withEnabled(enabled bool) Breakpoint {
	bp.Enabled = enabled
	return bp
}

func (bp Breakpoint) String() string {
	s := fmt.Sprintf("bp %08x enabled=%t break=%t log=%t", bp.Address, bp.Enabled, bp.BreakOnHit, bp.LogOnHit)
	if bp.Condition != nil {
		s += " if " + bp.Condition.Text()
	}
	return s
}
