// Package session persists the debugger registry in per-game settings files.
//
// A game settings file is a section based text file. Breakpoints live in the
// [BreakPoints] section and memchecks in [MemoryBreakPoints], one record per
// line:
//
//	[BreakPoints]
//	<addr> <enabled> <break> <log> [condition]
//	[MemoryBreakPoints]
//	<start> <end> <enabled> <break> <log> <read> <write> [condition]
//
// Addresses are 8 digit hexadecimal numbers, flags are 0 or 1 and the
// condition is the rest of the line. Other sections belong to other parts of
// the emulator and are preserved as is.
package session

import (
	"errors"
	"fmt"
	"strings"

	"bpedit/emu/breakpoints"
)

// Section names.
const (
	SectionBreakpoints = "BreakPoints"
	SectionMemChecks   = "MemoryBreakPoints"
)

const (
	bpFields = 4
	mcFields = 7
)

// A CorruptLine is a line that couldn't be decoded. Number is the 1-based
// index of the line in its section.
type CorruptLine struct {
	Section string
	Number  int
	Text    string
	Err     error
}

func (cl CorruptLine) Error() string {
	return fmt.Sprintf("[%s] line %d %q: %v", cl.Section, cl.Number, cl.Text, cl.Err)
}

func (cl CorruptLine) Unwrap() error { return cl.Err }

var (
	errFieldCount = errors.New("wrong number of fields")
	errFlag       = errors.New("flag must be 0 or 1")
	errNoParser   = errors.New("no condition parser")
)

// A Codec converts records to and from section lines.
type Codec struct {
	// Parser parses the condition text found at the end of a line. If nil,
	// lines carrying a condition are reported as corrupt.
	Parser breakpoints.ConditionParser

	// UpperHex writes addresses with upper case hexadecimal digits.
	UpperHex bool
}

func (c Codec) hex(v uint32) string {
	if c.UpperHex {
		return fmt.Sprintf("%08X", v)
	}
	return fmt.Sprintf("%08x", v)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func withCondition(line string, cond breakpoints.Condition) string {
	if text := breakpoints.ConditionText(cond); text != "" {
		return line + " " + text
	}
	return line
}

// EncodeBreakpoint returns the section line for bp.
func (c Codec) EncodeBreakpoint(bp breakpoints.Breakpoint) string {
	line := strings.Join([]string{
		c.hex(bp.Address),
		flag(bp.Enabled),
		flag(bp.BreakOnHit),
		flag(bp.LogOnHit),
	}, " ")
	return withCondition(line, bp.Condition)
}

// EncodeMemCheck returns the section line for mc.
func (c Codec) EncodeMemCheck(mc breakpoints.MemCheck) string {
	line := strings.Join([]string{
		c.hex(mc.Start),
		c.hex(mc.End),
		flag(mc.Enabled),
		flag(mc.BreakOnHit),
		flag(mc.LogOnHit),
		flag(mc.OnRead),
		flag(mc.OnWrite),
	}, " ")
	return withCondition(line, mc.Condition)
}

// EncodeBreakpoints returns the [BreakPoints] section lines, in order.
func (c Codec) EncodeBreakpoints(bps []breakpoints.Breakpoint) []string {
	lines := make([]string, 0, len(bps))
	for _, bp := range bps {
		lines = append(lines, c.EncodeBreakpoint(bp))
	}
	return lines
}

// EncodeMemChecks returns the [MemoryBreakPoints] section lines, in order.
func (c Codec) EncodeMemChecks(mcs []breakpoints.MemCheck) []string {
	lines := make([]string, 0, len(mcs))
	for _, mc := range mcs {
		lines = append(lines, c.EncodeMemCheck(mc))
	}
	return lines
}

// DecodeBreakpoint decodes a single [BreakPoints] line.
func (c Codec) DecodeBreakpoint(line string) (breakpoints.Breakpoint, error) {
	fields, rest, err := splitFields(line, bpFields)
	if err != nil {
		return breakpoints.Breakpoint{}, err
	}

	var bp breakpoints.Breakpoint
	if bp.Address, err = breakpoints.ParseAddress(fields[0]); err != nil {
		return breakpoints.Breakpoint{}, err
	}
	flags, err := parseFlags(fields[1:])
	if err != nil {
		return breakpoints.Breakpoint{}, err
	}
	bp.Enabled, bp.BreakOnHit, bp.LogOnHit = flags[0], flags[1], flags[2]

	if bp.Condition, err = c.condition(rest); err != nil {
		return breakpoints.Breakpoint{}, err
	}
	return bp, nil
}

// DecodeMemCheck decodes a single [MemoryBreakPoints] line.
func (c Codec) DecodeMemCheck(line string) (breakpoints.MemCheck, error) {
	fields, rest, err := splitFields(line, mcFields)
	if err != nil {
		return breakpoints.MemCheck{}, err
	}

	start, err := breakpoints.ParseAddress(fields[0])
	if err != nil {
		return breakpoints.MemCheck{}, err
	}
	end, err := breakpoints.ParseAddress(fields[1])
	if err != nil {
		return breakpoints.MemCheck{}, err
	}
	flags, err := parseFlags(fields[2:])
	if err != nil {
		return breakpoints.MemCheck{}, err
	}
	cond, err := c.condition(rest)
	if err != nil {
		return breakpoints.MemCheck{}, err
	}

	mc := breakpoints.NewRangedMemCheck(start, end, breakpoints.MemCheckOptions{
		BreakOnHit: flags[1],
		LogOnHit:   flags[2],
		OnRead:     flags[3],
		OnWrite:    flags[4],
		Condition:  cond,
	})
	mc.Enabled = flags[0]
	return mc, nil
}

// DecodeBreakpoints decodes the lines of a [BreakPoints] section. Blank lines
// are ignored, corrupt ones are skipped and reported.
func (c Codec) DecodeBreakpoints(lines []string) ([]breakpoints.Breakpoint, []CorruptLine) {
	return decodeSection(SectionBreakpoints, lines, c.DecodeBreakpoint)
}

// DecodeMemChecks decodes the lines of a [MemoryBreakPoints] section. Blank
// lines are ignored, corrupt ones are skipped and reported.
func (c Codec) DecodeMemChecks(lines []string) ([]breakpoints.MemCheck, []CorruptLine) {
	return decodeSection(SectionMemChecks, lines, c.DecodeMemCheck)
}

func decodeSection[R any](section string, lines []string, decode func(string) (R, error)) ([]R, []CorruptLine) {
	var (
		recs    []R
		corrupt []CorruptLine
	)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := decode(line)
		if err != nil {
			corrupt = append(corrupt, CorruptLine{
				Section: section,
				Number:  i + 1,
				Text:    line,
				Err:     err,
			})
			continue
		}
		recs = append(recs, r)
	}
	return recs, corrupt
}

func (c Codec) condition(text string) (breakpoints.Condition, error) {
	if text == "" {
		return nil, nil
	}
	if c.Parser == nil {
		return nil, fmt.Errorf("%w: %w", breakpoints.ErrConditionParse, errNoParser)
	}
	cond, err := c.Parser.ParseCondition(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", breakpoints.ErrConditionParse, err)
	}
	return cond, nil
}

// splitFields splits the n first blank separated fields of line and returns
// them along with the trimmed remainder.
func splitFields(line string, n int) (fields []string, rest string, err error) {
	rest = strings.TrimSpace(line)
	fields = make([]string, 0, n)
	for len(fields) < n {
		if rest == "" {
			return nil, "", fmt.Errorf("%w: got %d, want at least %d", errFieldCount, len(fields), n)
		}
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			rest = ""
			continue
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	return fields, rest, nil
}

func parseFlags(fields []string) ([]bool, error) {
	flags := make([]bool, len(fields))
	for i, f := range fields {
		switch f {
		case "0":
		case "1":
			flags[i] = true
		default:
			return nil, fmt.Errorf("%w: %q", errFlag, f)
		}
	}
	return flags, nil
}
