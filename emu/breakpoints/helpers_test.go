package breakpoints

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testCond is a condition handle. Every parse returns a new pointer so tests
// can tell a reparsed handle from a copied one.
type testCond struct{ Src string }

func (c *testCond) Text() string { return c.Src }

var errTestSyntax = errors.New("syntax error")

// testParser accepts any text not containing "bad", normalizing it to upper
// case.
var testParser = ParserFunc(func(text string) (Condition, error) {
	if strings.Contains(text, "bad") {
		return nil, errTestSyntax
	}
	return &testCond{Src: strings.ToUpper(strings.TrimSpace(text))}, nil
})

func cond(text string) Condition { return &testCond{Src: text} }

// compare conditions by text.
var condText = cmp.Comparer(func(a, b Condition) bool {
	return ConditionText(a) == ConditionText(b)
})

// countChanges registers an observer on reg and returns a pointer to the
// number of notifications received.
func countChanges(t *testing.T, reg *Registry) *int {
	t.Helper()
	n := new(int)
	cancel := reg.OnChange(func() { *n++ })
	t.Cleanup(cancel)
	return n
}

func checkCount(t *testing.T, what string, got *int, want int) {
	t.Helper()
	if *got != want {
		t.Errorf("%s: got %d change notifications, want %d", what, *got, want)
	}
}

func bpKeys(c *Collection[Breakpoint]) []uint32 {
	var keys []uint32
	for bp := range c.All() {
		keys = append(keys, bp.Address)
	}
	return keys
}

func mcKeys(c *Collection[MemCheck]) []uint32 {
	var keys []uint32
	for mc := range c.All() {
		keys = append(keys, mc.Start)
	}
	return keys
}

func diffKeys(t *testing.T, want, got []uint32) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}
