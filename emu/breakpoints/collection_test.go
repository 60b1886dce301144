package breakpoints

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollectionAdd(t *testing.T) {
	reg := NewRegistry()
	bps := reg.Breakpoints()

	bps.Add(NewBreakpoint(0x80001000))
	bps.Add(NewBreakpoint(0x80000000))
	bps.Add(NewBreakpoint(0x80002000))
	diffKeys(t, []uint32{0x80001000, 0x80000000, 0x80002000}, bpKeys(bps))

	// Replacing keeps the insertion position.
	repl := Breakpoint{Address: 0x80000000, LogOnHit: true}
	bps.Add(repl)
	diffKeys(t, []uint32{0x80001000, 0x80000000, 0x80002000}, bpKeys(bps))

	got, ok := bps.Get(0x80000000)
	if !ok {
		t.Fatalf("Get(80000000) not found")
	}
	if diff := cmp.Diff(repl, got, condText); diff != "" {
		t.Errorf("Get(80000000) mismatch (-want +got):\n%s", diff)
	}
	if bps.Len() != 3 {
		t.Errorf("Len() = %d, want 3", bps.Len())
	}
	if _, ok := bps.Get(0x1234); ok {
		t.Errorf("Get(1234) found a record")
	}
}

func TestCollectionRemove(t *testing.T) {
	reg := NewRegistry()
	mcs := reg.MemChecks()
	mcs.Add(NewMemCheck(0x10, MemCheckOptions{}))
	mcs.Add(NewMemCheck(0x20, MemCheckOptions{}))
	mcs.Add(NewMemCheck(0x30, MemCheckOptions{}))

	if !mcs.Remove(0x20) {
		t.Fatalf("Remove(20) = false, want true")
	}
	if mcs.Remove(0x20) {
		t.Fatalf("second Remove(20) = true, want false")
	}
	diffKeys(t, []uint32{0x10, 0x30}, mcKeys(mcs))
}

func TestCollectionToggle(t *testing.T) {
	reg := NewRegistry()
	bps := reg.Breakpoints()
	bps.Add(Breakpoint{Address: 0x100, Enabled: true, BreakOnHit: true, Condition: cond("R1==1")})

	if err := bps.Toggle(0x100); err != nil {
		t.Fatal(err)
	}
	want := Breakpoint{Address: 0x100, Enabled: false, BreakOnHit: true, Condition: cond("R1==1")}
	got, _ := bps.Get(0x100)
	if diff := cmp.Diff(want, got, condText); diff != "" {
		t.Errorf("toggled breakpoint mismatch (-want +got):\n%s", diff)
	}

	if err := bps.Toggle(0x200); !errors.Is(err, ErrNotFound) {
		t.Errorf("Toggle(200) error = %v, want ErrNotFound", err)
	}
}

func TestCollectionReplaceKey(t *testing.T) {
	setup := func() *Collection[Breakpoint] {
		bps := NewRegistry().Breakpoints()
		bps.Add(NewBreakpoint(0x10))
		bps.Add(NewBreakpoint(0x20))
		bps.Add(NewBreakpoint(0x30))
		return bps
	}

	t.Run("move", func(t *testing.T) {
		bps := setup()
		if err := bps.ReplaceKey(0x20, Breakpoint{Address: 0x40}); err != nil {
			t.Fatal(err)
		}
		diffKeys(t, []uint32{0x10, 0x40, 0x30}, bpKeys(bps))
		if _, ok := bps.Get(0x20); ok {
			t.Errorf("old key still present")
		}
	})

	t.Run("collision", func(t *testing.T) {
		bps := setup()
		moved := Breakpoint{Address: 0x30, LogOnHit: true}
		if err := bps.ReplaceKey(0x10, moved); err != nil {
			t.Fatal(err)
		}
		diffKeys(t, []uint32{0x20, 0x30}, bpKeys(bps))
		got, _ := bps.Get(0x30)
		if diff := cmp.Diff(moved, got, condText); diff != "" {
			t.Errorf("record at 30 mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("same key", func(t *testing.T) {
		bps := setup()
		if err := bps.ReplaceKey(0x20, Breakpoint{Address: 0x20}); err != nil {
			t.Fatal(err)
		}
		diffKeys(t, []uint32{0x10, 0x20, 0x30}, bpKeys(bps))
		if got, _ := bps.Get(0x20); got.Enabled {
			t.Errorf("record at 20 not replaced")
		}
	})

	t.Run("not found", func(t *testing.T) {
		bps := setup()
		if err := bps.ReplaceKey(0x50, Breakpoint{Address: 0x60}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ReplaceKey error = %v, want ErrNotFound", err)
		}
		diffKeys(t, []uint32{0x10, 0x20, 0x30}, bpKeys(bps))
	})
}

func TestCollectionAllIsRestartable(t *testing.T) {
	bps := NewRegistry().Breakpoints()
	bps.Add(NewBreakpoint(1))
	bps.Add(NewBreakpoint(2))

	seq := bps.All()
	bps.Add(NewBreakpoint(3))

	for range 2 {
		var keys []uint32
		for bp := range seq {
			keys = append(keys, bp.Address)
		}
		diffKeys(t, []uint32{1, 2}, keys)
	}

	// Early break.
	n := 0
	for range bps.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d records after break, want 1", n)
	}
}

func TestCollectionSnapshotIsACopy(t *testing.T) {
	bps := NewRegistry().Breakpoints()
	bps.Add(NewBreakpoint(1))

	s := bps.Snapshot()
	s[0].Address = 42
	if _, ok := bps.Get(1); !ok {
		t.Fatalf("modifying a snapshot changed the collection")
	}
}

func TestCollectionReplace(t *testing.T) {
	reg := NewRegistry()
	bps := reg.Breakpoints()
	bps.Add(NewBreakpoint(0x99))

	n := countChanges(t, reg)
	bps.Replace([]Breakpoint{
		{Address: 1},
		{Address: 2},
		{Address: 1, LogOnHit: true},
	})
	checkCount(t, "Replace", n, 1)

	diffKeys(t, []uint32{1, 2}, bpKeys(bps))
	if got, _ := bps.Get(1); !got.LogOnHit {
		t.Errorf("later duplicate didn't win")
	}
	if _, ok := bps.Get(0x99); ok {
		t.Errorf("Replace merged with previous content")
	}
}

func TestCollectionRecomputesRanged(t *testing.T) {
	mcs := NewRegistry().MemChecks()

	mcs.Add(MemCheck{Start: 0x100, End: 0x200, Enabled: true})
	if got, _ := mcs.Get(0x100); !got.Ranged {
		t.Errorf("Add: Ranged = false for %v", got)
	}

	if err := mcs.ReplaceKey(0x100, MemCheck{Start: 0x300, End: 0x400}); err != nil {
		t.Fatal(err)
	}
	if got, _ := mcs.Get(0x300); !got.Ranged {
		t.Errorf("ReplaceKey: Ranged = false for %v", got)
	}

	mcs.Replace([]MemCheck{
		{Start: 0x10, End: 0x20},
		{Start: 0x30, End: 0x30, Ranged: true},
	})
	want := []MemCheck{
		{Start: 0x10, End: 0x20, Ranged: true},
		{Start: 0x30, End: 0x30},
	}
	if diff := cmp.Diff(want, mcs.Snapshot(), condText); diff != "" {
		t.Errorf("Replace mismatch (-want +got):\n%s", diff)
	}
}
