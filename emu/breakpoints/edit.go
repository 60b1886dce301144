package breakpoints

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bpedit/emu/log"
)

var modEdit = log.NewModule("edit")

// A BreakpointEdit is a change to a single field of a Breakpoint.
type BreakpointEdit interface {
	applyBreakpoint(bp Breakpoint, p ConditionParser) (Breakpoint, error)
}

// A MemCheckEdit is a change to a single field of a MemCheck.
type MemCheckEdit interface {
	applyMemCheck(mc MemCheck, p ConditionParser) (MemCheck, error)
}

type (
	// ToggleEnabled flips the Enabled flag.
	ToggleEnabled struct{}
	// ToggleBreakOnHit flips the BreakOnHit flag.
	ToggleBreakOnHit struct{}
	// ToggleLogOnHit flips the LogOnHit flag.
	ToggleLogOnHit struct{}
	// ToggleOnRead flips the OnRead flag of a memcheck.
	ToggleOnRead struct{}
	// ToggleOnWrite flips the OnWrite flag of a memcheck.
	ToggleOnWrite struct{}

	// SetAddress sets the breakpoint address, or the memcheck start address.
	// It changes the record key.
	SetAddress struct{ Text string }
	// SetEndAddress sets the memcheck end address.
	SetEndAddress struct{ Text string }
	// SetCondition sets the condition. Empty text removes it.
	SetCondition struct{ Text string }
)

func (ToggleEnabled) applyBreakpoint(bp Breakpoint, _ ConditionParser) (Breakpoint, error) {
	bp.Enabled = !bp.Enabled
	return bp, nil
}

func (ToggleEnabled) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	mc.Enabled = !mc.Enabled
	return mc, nil
}

func (ToggleBreakOnHit) applyBreakpoint(bp Breakpoint, _ ConditionParser) (Breakpoint, error) {
	bp.BreakOnHit = !bp.BreakOnHit
	return bp, nil
}

func (ToggleBreakOnHit) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	mc.BreakOnHit = !mc.BreakOnHit
	return mc, nil
}

func (ToggleLogOnHit) applyBreakpoint(bp Breakpoint, _ ConditionParser) (Breakpoint, error) {
	bp.LogOnHit = !bp.LogOnHit
	return bp, nil
}

func (ToggleLogOnHit) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	mc.LogOnHit = !mc.LogOnHit
	return mc, nil
}

func (ToggleOnRead) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	mc.OnRead = !mc.OnRead
	return mc, nil
}

func (ToggleOnWrite) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	mc.OnWrite = !mc.OnWrite
	return mc, nil
}

func (e SetAddress) applyBreakpoint(bp Breakpoint, _ ConditionParser) (Breakpoint, error) {
	addr, err := ParseAddress(e.Text)
	if err != nil {
		return bp, err
	}
	bp.Address = addr
	return bp, nil
}

// The end address is kept as is, so moving the start of a non-ranged
// memcheck turns it into a ranged one.
func (e SetAddress) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	addr, err := ParseAddress(e.Text)
	if err != nil {
		return mc, err
	}
	mc.Start = addr
	return mc, nil
}

func (e SetEndAddress) applyMemCheck(mc MemCheck, _ ConditionParser) (MemCheck, error) {
	addr, err := ParseAddress(e.Text)
	if err != nil {
		return mc, err
	}
	mc.End = addr
	return mc, nil
}

func (e SetCondition) applyBreakpoint(bp Breakpoint, p ConditionParser) (Breakpoint, error) {
	cond, err := e.parse(p)
	if err != nil {
		return bp, err
	}
	bp.Condition = cond
	return bp, nil
}

func (e SetCondition) applyMemCheck(mc MemCheck, p ConditionParser) (MemCheck, error) {
	cond, err := e.parse(p)
	if err != nil {
		return mc, err
	}
	mc.Condition = cond
	return mc, nil
}

var errNoParser = errors.New("no condition parser")

func (e SetCondition) parse(p ConditionParser) (Condition, error) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return nil, nil
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %w", ErrConditionParse, errNoParser)
	}
	cond, err := p.ParseCondition(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConditionParse, err)
	}
	return cond, nil
}

// ParseAddress parses a 32-bit hexadecimal address, with an optional 0x
// prefix.
func ParseAddress(text string) (uint32, error) {
	s := strings.TrimSpace(text)
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	addr, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	return uint32(addr), nil
}

// An Editor applies field-scoped edits to the records of a Registry.
//
// Each edit builds a complete new record from the old one, changing only the
// edited field, and commits it atomically. On error the registry is left
// untouched and no change notification fires. A condition that fails to
// parse rejects the edit, the previous condition is kept.
type Editor struct {
	Registry *Registry
	Parser   ConditionParser
}

// EditBreakpoint applies e to the breakpoint at addr.
func (ed *Editor) EditBreakpoint(addr uint32, e BreakpointEdit) error {
	_, isCond := e.(SetCondition)

	err := ed.Registry.bps.update(addr, func(old Breakpoint) (Breakpoint, error) {
		bp, err := e.applyBreakpoint(old, ed.Parser)
		if err != nil {
			return old, err
		}
		if !isCond {
			bp.Condition = ed.reparse(old.Condition)
		}
		return bp, nil
	})
	if err != nil {
		modEdit.DebugZ("breakpoint edit rejected").Hex32("addr", addr).Stringer("edit", editName{e}).Error("err", err).End()
		return fmt.Errorf("edit breakpoint %08x: %w", addr, err)
	}

	modEdit.DebugZ("breakpoint edited").Hex32("addr", addr).Stringer("edit", editName{e}).End()
	return nil
}

// EditMemCheck applies e to the memcheck starting at start.
func (ed *Editor) EditMemCheck(start uint32, e MemCheckEdit) error {
	_, isCond := e.(SetCondition)

	err := ed.Registry.mcs.update(start, func(old MemCheck) (MemCheck, error) {
		mc, err := e.applyMemCheck(old, ed.Parser)
		if err != nil {
			return old, err
		}
		if !isCond {
			mc.Condition = ed.reparse(old.Condition)
		}
		return mc.normalized(), nil
	})
	if err != nil {
		modEdit.DebugZ("memcheck edit rejected").Hex32("addr", start).Stringer("edit", editName{e}).Error("err", err).End()
		return fmt.Errorf("edit memcheck %08x: %w", start, err)
	}

	modEdit.DebugZ("memcheck edited").Hex32("addr", start).Stringer("edit", editName{e}).End()
	return nil
}

// reparse gives a fresh condition handle, parsed from the rendered text of
// cond. If that fails, cond is kept.
func (ed *Editor) reparse(cond Condition) Condition {
	if cond == nil || ed.Parser == nil {
		return cond
	}
	fresh, err := ed.Parser.ParseCondition(cond.Text())
	if err != nil {
		modEdit.WarnZ("failed to reparse condition").String("cond", cond.Text()).Error("err", err).End()
		return cond
	}
	return fresh
}

type editName struct{ e any }

func (n editName) String() string {
	switch e := n.e.(type) {
	case ToggleEnabled:
		return "enabled"
	case ToggleBreakOnHit:
		return "break"
	case ToggleLogOnHit:
		return "log"
	case ToggleOnRead:
		return "read"
	case ToggleOnWrite:
		return "write"
	case SetAddress:
		return "address=" + e.Text
	case SetEndAddress:
		return "end=" + e.Text
	case SetCondition:
		return "condition=" + e.Text
	}
	return fmt.Sprintf("%T", n.e)
}
