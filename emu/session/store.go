package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bpedit/emu/breakpoints"
	"bpedit/emu/log"
)

var modSession = log.NewModule("session")

// ErrPersistence is returned when a game settings file can't be read or
// written.
var ErrPersistence = errors.New("persistence error")

// A Store loads and saves the registry in per-game settings files.
type Store struct {
	Dir   string // directory holding the <game id>.ini files
	Codec Codec
}

// Path returns the settings file path for a game.
func (s *Store) Path(gameID string) string {
	return filepath.Join(s.Dir, gameID+".ini")
}

// LoadSummary describes the outcome of a Load.
type LoadSummary struct {
	// Number of records loaded. Lines repeating a key count once, the last
	// one wins.
	Breakpoints int
	MemChecks   int

	// Sections that were present in the file. Absent sections leave their
	// collection untouched.
	HasBreakpoints bool
	HasMemChecks   bool

	Corrupt []CorruptLine
}

// Load restores the registry from the settings file of gameID.
//
// Each of the [BreakPoints] and [MemoryBreakPoints] sections present in the
// file replaces the content of its collection. The whole load is a single
// registry batch. Corrupt lines are skipped and reported in the summary.
func (s *Store) Load(reg *breakpoints.Registry, gameID string) (LoadSummary, error) {
	path := s.Path(gameID)
	ini, err := readIniFile(path)
	if err != nil {
		return LoadSummary{}, err
	}

	var (
		sum LoadSummary
		bps []breakpoints.Breakpoint
		mcs []breakpoints.MemCheck
	)

	if lines, ok := ini.Lines(SectionBreakpoints); ok {
		var corrupt []CorruptLine
		bps, corrupt = s.Codec.DecodeBreakpoints(lines)
		sum.HasBreakpoints = true
		sum.Corrupt = append(sum.Corrupt, corrupt...)
	}
	if lines, ok := ini.Lines(SectionMemChecks); ok {
		var corrupt []CorruptLine
		mcs, corrupt = s.Codec.DecodeMemChecks(lines)
		sum.HasMemChecks = true
		sum.Corrupt = append(sum.Corrupt, corrupt...)
	}

	end := reg.BeginBatch()
	if sum.HasBreakpoints {
		reg.Breakpoints().Replace(bps)
		sum.Breakpoints = reg.Breakpoints().Len()
	}
	if sum.HasMemChecks {
		reg.MemChecks().Replace(mcs)
		sum.MemChecks = reg.MemChecks().Len()
	}
	end()

	for _, cl := range sum.Corrupt {
		modSession.WarnZ("skipped corrupt line").
			String("file", path).
			String("section", cl.Section).
			Int("line", cl.Number).
			Error("err", cl.Err).
			End()
	}
	modSession.InfoZ("loaded game settings").
		String("file", path).
		Int("breakpoints", sum.Breakpoints).
		Int("memchecks", sum.MemChecks).
		Int("corrupt", len(sum.Corrupt)).
		End()
	return sum, nil
}

// Save writes the registry to the settings file of gameID. Both sections are
// written, even when empty, and the other sections of an existing file are
// kept. The file is replaced atomically.
func (s *Store) Save(reg *breakpoints.Registry, gameID string) error {
	path := s.Path(gameID)

	ini, err := readIniFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		ini = &IniFile{}
	case err != nil:
		return err
	}

	bps := reg.Breakpoints().Snapshot()
	mcs := reg.MemChecks().Snapshot()
	ini.SetLines(SectionBreakpoints, s.Codec.EncodeBreakpoints(bps))
	ini.SetLines(SectionMemChecks, s.Codec.EncodeMemChecks(mcs))

	if err := writeIniFile(path, ini); err != nil {
		return err
	}

	modSession.InfoZ("saved game settings").
		String("file", path).
		Int("breakpoints", len(bps)).
		Int("memchecks", len(mcs)).
		End()
	return nil
}

func readIniFile(path string) (*IniFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer f.Close()

	ini, err := ReadIniFile(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, path, err)
	}
	return ini, nil
}

// writeIniFile writes ini to a temporary file in the destination directory
// and renames it over path. The file keeps the permissions of the file it
// replaces, new files are created 0644.
func writeIniFile(path string, ini *IniFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	perm := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		perm = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ini-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()

	fail := func(what string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrPersistence, what, err)
	}

	if err := tmp.Chmod(perm); err != nil {
		return fail("setting temp file mode", err)
	}
	if _, err := ini.WriteTo(tmp); err != nil {
		return fail("writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming temp file: %w", ErrPersistence, err)
	}
	return nil
}
