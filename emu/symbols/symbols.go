// Package symbols resolves addresses to symbol names for display.
package symbols

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// A Resolver maps an address to the name of the symbol containing it.
type Resolver interface {
	SymbolAt(addr uint32) (string, bool)
}

// None never resolves anything.
var None Resolver = none{}

type none struct{}

func (none) SymbolAt(uint32) (string, bool) { return "", false }

type Symbol struct {
	Addr uint32
	Size uint32 // 0 means the symbol covers a single address
	Name string
}

func (s Symbol) contains(addr uint32) bool {
	if s.Size == 0 {
		return addr == s.Addr
	}
	return addr >= s.Addr && addr-s.Addr < s.Size
}

// Table is an immutable symbol table sorted by address.
type Table struct {
	syms []Symbol
}

func NewTable(syms []Symbol) *Table {
	t := &Table{syms: slices.Clone(syms)}
	slices.SortStableFunc(t.syms, func(a, b Symbol) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		}
		return 0
	})
	return t
}

// SymbolAt returns the symbol whose range contains addr. When ranges overlap
// the symbol starting at the highest address wins.
func (t *Table) SymbolAt(addr uint32) (string, bool) {
	if t == nil {
		return "", false
	}
	i, _ := slices.BinarySearchFunc(t.syms, addr, func(s Symbol, a uint32) int {
		if s.Addr <= a {
			return -1
		}
		return 1
	})
	// syms[:i] all start at or before addr.
	for j := i - 1; j >= 0; j-- {
		if t.syms[j].contains(addr) {
			return t.syms[j].Name, true
		}
	}
	return "", false
}

func (t *Table) Len() int { return len(t.syms) }

// ReadMap reads a symbol map. Each line holds an hexadecimal address, an
// optional hexadecimal size and the symbol name:
//
//	80003100 1c4 main
//	80004000 OSReport
//
// Blank lines and lines starting with '#' are ignored.
func ReadMap(r io.Reader) (*Table, error) {
	var syms []Symbol

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected '<addr> [size] <name>'", lineno)
		}
		addr, err := strconv.ParseUint(fields[0], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q", lineno, fields[0])
		}

		sym := Symbol{Addr: uint32(addr)}
		rest := fields[1:]
		if len(rest) > 1 {
			if size, err := strconv.ParseUint(rest[0], 16, 32); err == nil {
				sym.Size = uint32(size)
				rest = rest[1:]
			}
		}
		sym.Name = strings.Join(rest, " ")
		syms = append(syms, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewTable(syms), nil
}

// LoadMap reads the symbol map at path.
func LoadMap(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
