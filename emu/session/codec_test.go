package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bpedit/emu/breakpoints"
	"bpedit/emu/expr"
)

var testCodec = Codec{Parser: expr.Parser{}}

// compare conditions by rendered text.
var condText = cmp.Comparer(func(a, b breakpoints.Condition) bool {
	return breakpoints.ConditionText(a) == breakpoints.ConditionText(b)
})

func cond(text string) breakpoints.Condition { return expr.MustParse(text) }

func TestDecodeBreakpoints(t *testing.T) {
	lines := []string{
		"80001000 1 1 0",
		"ZZZZZZZZ 1 1 0",
		"80002000 0 0 1",
	}

	bps, corrupt := testCodec.DecodeBreakpoints(lines)

	want := []breakpoints.Breakpoint{
		{Address: 0x80001000, Enabled: true, BreakOnHit: true, LogOnHit: false},
		{Address: 0x80002000, Enabled: false, BreakOnHit: false, LogOnHit: true},
	}
	if diff := cmp.Diff(want, bps, condText); diff != "" {
		t.Errorf("decoded breakpoints mismatch (-want +got):\n%s", diff)
	}

	if len(corrupt) != 1 {
		t.Fatalf("got %d corrupt lines, want 1: %v", len(corrupt), corrupt)
	}
	cl := corrupt[0]
	if cl.Section != SectionBreakpoints || cl.Number != 2 || cl.Text != "ZZZZZZZZ 1 1 0" {
		t.Errorf("corrupt line = %+v", cl)
	}
	if !errors.Is(cl, breakpoints.ErrInvalidAddress) {
		t.Errorf("corrupt line error = %v, want ErrInvalidAddress", cl.Err)
	}
}

func TestDecodeBreakpointCorruptLines(t *testing.T) {
	tests := []struct {
		line    string
		wantErr error
	}{
		{line: "80001000 1 1", wantErr: errFieldCount},
		{line: "80001000", wantErr: errFieldCount},
		{line: "80001000 1 2 0", wantErr: errFlag},
		{line: "80001000 true 1 0", wantErr: errFlag},
		{line: "180001000 1 1 0", wantErr: breakpoints.ErrInvalidAddress},
		{line: "80001000 1 1 0 r1 ==", wantErr: breakpoints.ErrConditionParse},
	}
	for _, tt := range tests {
		_, err := testCodec.DecodeBreakpoint(tt.line)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("DecodeBreakpoint(%q) error = %v, want %v", tt.line, err, tt.wantErr)
		}
	}

	// Without parser, a condition can't be decoded.
	if _, err := (Codec{}).DecodeBreakpoint("80001000 1 1 0 r1==1"); !errors.Is(err, breakpoints.ErrConditionParse) {
		t.Errorf("DecodeBreakpoint without parser error = %v, want ErrConditionParse", err)
	}
}

func TestDecodeIgnoresBlankLines(t *testing.T) {
	bps, corrupt := testCodec.DecodeBreakpoints([]string{"", "   ", "\t", "00000010 1 0 0"})
	if len(bps) != 1 || len(corrupt) != 0 {
		t.Errorf("got %d records and %d corrupt lines, want 1 and 0", len(bps), len(corrupt))
	}
}

func TestDecodeMemChecks(t *testing.T) {
	lines := []string{
		"90000000 90000010 1 0 1 0 1",
		"90000020 90000020 0 1 0 1 0 [$90000020]==$FF",
		"90000030 1 0 1 0 1",
		"  0x90000040  90000040\t1 1 1 1 1   r1 == 1 && pc != $0  ",
	}

	mcs, corrupt := testCodec.DecodeMemChecks(lines)

	want := []breakpoints.MemCheck{
		{
			Start: 0x90000000, End: 0x90000010, Ranged: true,
			Enabled: true, LogOnHit: true, OnWrite: true,
		},
		{
			Start: 0x90000020, End: 0x90000020,
			BreakOnHit: true, OnRead: true,
			Condition: cond("[$90000020]==$FF"),
		},
		{
			Start: 0x90000040, End: 0x90000040,
			Enabled: true, BreakOnHit: true, LogOnHit: true, OnRead: true, OnWrite: true,
			Condition: cond("R1==1 && PC!=0"),
		},
	}
	if diff := cmp.Diff(want, mcs, condText); diff != "" {
		t.Errorf("decoded memchecks mismatch (-want +got):\n%s", diff)
	}
	if len(corrupt) != 1 || corrupt[0].Number != 3 || corrupt[0].Section != SectionMemChecks {
		t.Errorf("corrupt lines = %v, want line 3 of [%s]", corrupt, SectionMemChecks)
	}
}

func TestEncode(t *testing.T) {
	bps := []breakpoints.Breakpoint{
		{Address: 0x80003100, Enabled: true, BreakOnHit: true},
		{Address: 0xabcd, LogOnHit: true, Condition: cond("r3==$1f")},
	}
	mcs := []breakpoints.MemCheck{
		breakpoints.NewRangedMemCheck(0x9000000a, 0x9000001f, breakpoints.MemCheckOptions{OnRead: true, LogOnHit: true}),
	}

	tests := []struct {
		name    string
		codec   Codec
		wantBPs []string
		wantMCs []string
	}{
		{
			name:    "lower",
			codec:   testCodec,
			wantBPs: []string{"80003100 1 1 0", "0000abcd 0 0 1 R3==$1F"},
			wantMCs: []string{"9000000a 9000001f 1 0 1 1 0"},
		},
		{
			name:    "upper",
			codec:   Codec{Parser: expr.Parser{}, UpperHex: true},
			wantBPs: []string{"80003100 1 1 0", "0000ABCD 0 0 1 R3==$1F"},
			wantMCs: []string{"9000000A 9000001F 1 0 1 1 0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.wantBPs, tt.codec.EncodeBreakpoints(bps)); diff != "" {
				t.Errorf("EncodeBreakpoints mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantMCs, tt.codec.EncodeMemChecks(mcs)); diff != "" {
				t.Errorf("EncodeMemChecks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	bps := []breakpoints.Breakpoint{
		breakpoints.NewBreakpoint(0x80003100),
		{Address: 0, Condition: cond("hitcount>=3 || w[$80001000]==0x10")},
		{Address: 0xffffffff, Enabled: true},
	}
	mcs := []breakpoints.MemCheck{
		breakpoints.NewMemCheck(0x90000000, breakpoints.MemCheckOptions{OnWrite: true}),
		breakpoints.NewRangedMemCheck(0x90000020, 0x90000010, breakpoints.MemCheckOptions{
			OnRead: true, BreakOnHit: true, Condition: cond("lr==0"),
		}),
	}

	for _, codec := range []Codec{testCodec, {Parser: expr.Parser{}, UpperHex: true}} {
		gotBPs, corrupt := codec.DecodeBreakpoints(codec.EncodeBreakpoints(bps))
		if len(corrupt) != 0 {
			t.Fatalf("corrupt lines after encoding breakpoints: %v", corrupt)
		}
		if diff := cmp.Diff(bps, gotBPs, condText); diff != "" {
			t.Errorf("breakpoints round trip mismatch (-want +got):\n%s", diff)
		}

		gotMCs, corrupt := codec.DecodeMemChecks(codec.EncodeMemChecks(mcs))
		if len(corrupt) != 0 {
			t.Fatalf("corrupt lines after encoding memchecks: %v", corrupt)
		}
		if diff := cmp.Diff(mcs, gotMCs, condText); diff != "" {
			t.Errorf("memchecks round trip mismatch (-want +got):\n%s", diff)
		}
	}
}
