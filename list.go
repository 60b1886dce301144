package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bpedit/emu"
	"bpedit/emu/breakpoints"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// actions returns the hit actions of a record, as in "break,log".
func actions(brk, log bool) string {
	var s []string
	if brk {
		s = append(s, "break")
	}
	if log {
		s = append(s, "log")
	}
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ",")
}

func accesses(mc breakpoints.MemCheck) string {
	switch {
	case mc.OnRead && mc.OnWrite:
		return "rw"
	case mc.OnRead:
		return "r"
	case mc.OnWrite:
		return "w"
	}
	return "-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printRegistry prints the breakpoints and memchecks of sess as tables. With
// header set, each table has a title and column names.
func printRegistry(w io.Writer, sess *emu.Session, header bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if header {
		fmt.Fprintf(tw, "Breakpoints (%d)\n", sess.Registry.Breakpoints().Len())
		fmt.Fprintln(tw, "ADDRESS\tSTATE\tON HIT\tSYMBOL\tCONDITION")
	}
	for bp := range sess.Registry.Breakpoints().All() {
		fmt.Fprintf(tw, "%08x\t%s\t%s\t%s\t%s\n",
			bp.Address,
			onOff(bp.Enabled),
			actions(bp.BreakOnHit, bp.LogOnHit),
			orDash(sess.Symbol(bp.Address)),
			orDash(breakpoints.ConditionText(bp.Condition)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if header {
		fmt.Fprintf(tw, "\nMemchecks (%d)\n", sess.Registry.MemChecks().Len())
		fmt.Fprintln(tw, "RANGE\tSTATE\tACCESS\tON HIT\tSYMBOL\tCONDITION")
	}
	for mc := range sess.Registry.MemChecks().All() {
		rng := fmt.Sprintf("%08x", mc.Start)
		if mc.Ranged {
			rng += fmt.Sprintf("-%08x", mc.End)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rng,
			onOff(mc.Enabled),
			accesses(mc),
			actions(mc.BreakOnHit, mc.LogOnHit),
			orDash(sess.Symbol(mc.Start)),
			orDash(breakpoints.ConditionText(mc.Condition)))
	}
	return tw.Flush()
}
