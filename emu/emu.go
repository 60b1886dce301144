package emu

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"bpedit/emu/breakpoints"
	"bpedit/emu/expr"
	"bpedit/emu/log"
	"bpedit/emu/session"
	"bpedit/emu/symbols"
)

// A Session is the debugger registry of a game, along with its editor, its
// settings file and the symbols used to annotate it.
type Session struct {
	GameID   string
	Registry *breakpoints.Registry
	Editor   *breakpoints.Editor
	Store    *session.Store
	Symbols  symbols.Resolver

	// Set on any registry change, cleared on Load and Save. Read from any
	// goroutine.
	dirty   atomic.Bool
	loading atomic.Bool // the change being notified is our own Load
	cancel  func()
}

// Open returns the session of the given game. The registry starts empty,
// call Load to restore it from the game settings file.
func Open(gameID string, cfg Config) (*Session, error) {
	reg := breakpoints.NewRegistry()
	parser := expr.Parser{}

	s := &Session{
		GameID:   gameID,
		Registry: reg,
		Editor:   &breakpoints.Editor{Registry: reg, Parser: parser},
		Store: &session.Store{
			Dir:   cfg.General.GameSettingsDir,
			Codec: session.Codec{Parser: parser, UpperHex: cfg.General.UpperHex},
		},
		Symbols: symbols.None,
	}

	if cfg.General.SymbolMap != "" {
		tbl, err := symbols.LoadMap(cfg.General.SymbolMap)
		if err != nil {
			return nil, err
		}
		log.ModApp.InfoZ("loaded symbol map").String("path", cfg.General.SymbolMap).Int("symbols", tbl.Len()).End()
		s.Symbols = tbl
	}

	s.cancel = reg.OnChange(func() {
		if !s.loading.Load() {
			s.dirty.Store(true)
		}
	})
	return s, nil
}

// Load restores the registry from the game settings file. The session is
// clean by the time observers are notified of the loaded content.
func (s *Session) Load() (session.LoadSummary, error) {
	s.loading.Store(true)
	defer s.loading.Store(false)

	end := s.Registry.BeginBatch()
	defer end()

	sum, err := s.Store.Load(s.Registry, s.GameID)
	if err != nil {
		return sum, err
	}
	s.dirty.Store(false)
	return sum, nil
}

// LoadIfExists is like Load but a missing settings file isn't an error and
// leaves the registry empty.
func (s *Session) LoadIfExists() (session.LoadSummary, error) {
	sum, err := s.Load()
	if errors.Is(err, os.ErrNotExist) {
		log.ModApp.InfoZ("no game settings yet").String("path", s.Store.Path(s.GameID)).End()
		return session.LoadSummary{}, nil
	}
	return sum, err
}

// Save writes the registry to the game settings file.
func (s *Session) Save() error {
	if err := s.Store.Save(s.Registry, s.GameID); err != nil {
		return err
	}
	s.dirty.Store(false)
	return nil
}

// Dirty reports whether the registry changed since the last Load or Save.
func (s *Session) Dirty() bool { return s.dirty.Load() }

// ParseCondition parses condition text. Empty text gives a nil condition.
func (s *Session) ParseCondition(text string) (breakpoints.Condition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	cond, err := s.Editor.Parser.ParseCondition(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", breakpoints.ErrConditionParse, err)
	}
	return cond, nil
}

// AddBreakpoint adds a breakpoint at addr, enabled and breaking and logging
// on hit, replacing any breakpoint already there.
func (s *Session) AddBreakpoint(addr uint32, condition string) error {
	cond, err := s.ParseCondition(condition)
	if err != nil {
		return err
	}
	bp := breakpoints.NewBreakpoint(addr)
	bp.Condition = cond
	s.Registry.Breakpoints().Add(bp)
	return nil
}

// AddMemCheck adds a memcheck covering start..end, replacing any memcheck
// already starting at start. A memcheck triggering on neither reads nor
// writes watches both.
func (s *Session) AddMemCheck(start, end uint32, opts breakpoints.MemCheckOptions, condition string) error {
	cond, err := s.ParseCondition(condition)
	if err != nil {
		return err
	}
	if !opts.OnRead && !opts.OnWrite {
		opts.OnRead, opts.OnWrite = true, true
	}
	opts.Condition = cond
	s.Registry.MemChecks().Add(breakpoints.NewRangedMemCheck(start, end, opts))
	return nil
}

// Symbol returns the name of the symbol containing addr, or "".
func (s *Session) Symbol(addr uint32) string {
	name, _ := s.Symbols.SymbolAt(addr)
	return name
}

// Close detaches the session from its registry.
func (s *Session) Close() {
	s.cancel()
}
