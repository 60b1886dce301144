package breakpoints

import "fmt"

// A MemCheck halts and/or logs execution when memory between Start and End
// (inclusive) is read or written.
//
// Ranged is derived: it is true iff Start != End. Start <= End is not
// enforced, a memcheck with End < Start covers [End, Start].
type MemCheck struct {
	Start      uint32
	End        uint32
	Ranged     bool
	Enabled    bool
	BreakOnHit bool
	LogOnHit   bool
	OnRead     bool
	OnWrite    bool
	Condition  Condition
}

// MemCheckOptions are the user-selectable flags of a new memcheck.
type MemCheckOptions struct {
	OnRead     bool
	OnWrite    bool
	LogOnHit   bool
	BreakOnHit bool
	Condition  Condition
}

// NewMemCheck returns an enabled memcheck on the single address addr.
func NewMemCheck(addr uint32, opts MemCheckOptions) MemCheck {
	return NewRangedMemCheck(addr, addr, opts)
}

// NewRangedMemCheck returns an enabled memcheck covering from..to.
func NewRangedMemCheck(from, to uint32, opts MemCheckOptions) MemCheck {
	mc := MemCheck{
		Start:      from,
		End:        to,
		Enabled:    true,
		BreakOnHit: opts.BreakOnHit,
		LogOnHit:   opts.LogOnHit,
		OnRead:     opts.OnRead,
		OnWrite:    opts.OnWrite,
		Condition:  opts.Condition,
	}
	return mc.normalized()
}

// normalized recomputes the derived fields.
func (mc MemCheck) normalized() MemCheck {
	mc.Ranged = mc.Start != mc.End
	return mc
}

// Covers reports whether addr lies in the memcheck range.
func (mc MemCheck) Covers(addr uint32) bool {
	lo, hi := mc.Start, mc.End
	if hi < lo {
		lo, hi = hi, lo
	}
	return addr >= lo && addr <= hi
}

func (mc MemCheck) key() uint32     { return mc.Start }
func (mc MemCheck) isEnabled() bool { return mc.Enabled }

func (mc MemCheck) withEnabled(enabled bool) MemCheck {
	mc.Enabled = enabled
	return mc
}

func (mc MemCheck) String() string {
	s := fmt.Sprintf("mbp %08x", mc.Start)
	if mc.Ranged {
		s += fmt.Sprintf("-%08x", mc.End)
	}
	s += fmt.Sprintf(" enabled=%t break=%t log=%t read=%t write=%t",
		mc.Enabled, mc.BreakOnHit, mc.LogOnHit, mc.OnRead, mc.OnWrite)
	if mc.Condition != nil {
		s += " if " + mc.Condition.Text()
	}
	return s
}
