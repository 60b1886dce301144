package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// An IniFile is a game settings file, kept as ordered sections of raw lines
// so that it can be written back without altering what it doesn't own.
type IniFile struct {
	preamble []string // lines before the first section header
	sections []*iniSection
}

type iniSection struct {
	name  string
	lines []string
}

// ReadIniFile reads a settings file from r.
func ReadIniFile(r io.Reader) (*IniFile, error) {
	f := &IniFile{}

	var cur *iniSection
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimRight(scan.Text(), "\r")
		if name, ok := sectionHeader(line); ok {
			if cur = f.section(name); cur == nil {
				cur = &iniSection{name: name}
				f.sections = append(f.sections, cur)
			}
			continue
		}
		if cur == nil {
			f.preamble = append(f.preamble, line)
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return f, nil
}

func sectionHeader(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

// section returns the section with the given name. Names are case
// insensitive.
func (f *IniFile) section(name string) *iniSection {
	for _, s := range f.sections {
		if strings.EqualFold(s.name, name) {
			return s
		}
	}
	return nil
}

// Sections returns the section names in file order.
func (f *IniFile) Sections() []string {
	names := make([]string, len(f.sections))
	for i, s := range f.sections {
		names[i] = s.name
	}
	return names
}

// Lines returns the lines of a section and whether the section exists.
func (f *IniFile) Lines(name string) ([]string, bool) {
	s := f.section(name)
	if s == nil {
		return nil, false
	}
	return append([]string(nil), s.lines...), true
}

// SetLines replaces the content of a section, appending the section at the
// end of the file if it doesn't exist.
func (f *IniFile) SetLines(name string, lines []string) {
	s := f.section(name)
	if s == nil {
		s = &iniSection{name: name}
		f.sections = append(f.sections, s)
	}
	s.lines = append([]string(nil), lines...)
}

// WriteTo writes the file to w.
func (f *IniFile) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64

	writeLine := func(line string) error {
		nn, err := bw.WriteString(line + "\n")
		n += int64(nn)
		return err
	}

	for _, line := range f.preamble {
		if err := writeLine(line); err != nil {
			return n, err
		}
	}
	for _, s := range f.sections {
		if err := writeLine("[" + s.name + "]"); err != nil {
			return n, err
		}
		for _, line := range s.lines {
			if err := writeLine(line); err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}
