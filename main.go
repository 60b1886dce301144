package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"

	"golang.org/x/term"

	"bpedit/emu"
	"bpedit/emu/breakpoints"
	"bpedit/emu/debugger"
	"bpedit/emu/log"
)

func main() {
	cli := parseArgs(os.Args[1:])

	if cli.mode == versionMode {
		printVersion()
		return
	}

	cfg := loadConfig(&cli)
	switch cli.mode {
	case listMode:
		sess := openSession(cli.List.GameID, cfg)
		defer sess.Close()
		checkf(printRegistry(os.Stdout, sess, term.IsTerminal(int(os.Stdout.Fd()))), "failed to list breakpoints")

	case addMode:
		modify(cli.Add.GameID, cfg, func(sess *emu.Session) error {
			return sess.AddBreakpoint(uint32(cli.Add.Addr), cli.Add.Condition)
		})

	case watchMode:
		modify(cli.Watch.GameID, cfg, func(sess *emu.Session) error {
			return addMemCheck(sess, &cli.Watch)
		})

	case editMode:
		modify(cli.Edit.GameID, cfg, func(sess *emu.Session) error {
			return editRecord(sess, &cli.Edit)
		})

	case toggleMode:
		modify(cli.Toggle.GameID, cfg, func(sess *emu.Session) error {
			addr := uint32(cli.Toggle.Addr)
			if cli.Toggle.MemCheck {
				return sess.Registry.MemChecks().Toggle(addr)
			}
			return sess.Registry.Breakpoints().Toggle(addr)
		})

	case removeMode:
		modify(cli.Remove.GameID, cfg, func(sess *emu.Session) error {
			addr := uint32(cli.Remove.Addr)
			var found bool
			if cli.Remove.MemCheck {
				found = sess.Registry.MemChecks().Remove(addr)
			} else {
				found = sess.Registry.Breakpoints().Remove(addr)
			}
			if !found {
				return fmt.Errorf("%08x: %w", addr, breakpoints.ErrNotFound)
			}
			return nil
		})

	case clearMode:
		modify(cli.Clear.GameID, cfg, func(sess *emu.Session) error {
			sess.Registry.Clear()
			return nil
		})

	case exportMode:
		sess := openSession(cli.Export.GameID, cfg)
		defer sess.Close()

		out := cli.Export.Out
		if out == nil {
			out = &outfile{w: os.Stdout, name: "stdout", close: func() error { return nil }}
		}
		checkf(debugger.WriteRegistry(out, sess), "failed to export breakpoints")
		checkf(out.Close(), "failed to close %s", out.name)

	case serveMode:
		sess := openSession(cli.Serve.GameID, cfg)
		defer sess.Close()

		addr := cfg.Server.Addr
		if cli.Serve.Addr != "" {
			addr = cli.Serve.Addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		srv := debugger.NewServer(sess)
		checkf(srv.ListenAndServe(ctx, addr), "server error")
		if sess.Dirty() {
			log.ModApp.WarnZ("exiting with unsaved changes").String("game", sess.GameID).End()
		}
	}
}

// loadConfig loads the configuration file and applies the command line
// overrides.
func loadConfig(cli *CLI) emu.Config {
	path := cli.Config
	if path == "" {
		path = emu.ConfigPath()
	}
	cfg := emu.LoadConfigOrDefault(path)

	if cli.Dir != "" {
		cfg.General.GameSettingsDir = cli.Dir
	}
	if cli.SymbolMap != "" {
		cfg.General.SymbolMap = cli.SymbolMap
	}
	if cli.UpperHex {
		cfg.General.UpperHex = true
	}

	if !cli.Log.set && cfg.Log.Modules != "" {
		var lm logModMask
		if err := lm.parse(cfg.Log.Modules); err != nil {
			log.ModConfig.WarnZ("invalid log modules in config").String("modules", cfg.Log.Modules).Error("err", err).End()
		} else {
			cli.Log = lm
		}
	}
	cli.Log.apply()
	return cfg
}

// openSession opens the session of a game and loads its settings file, if
// it exists.
func openSession(gameID string, cfg emu.Config) *emu.Session {
	sess, err := emu.Open(gameID, cfg)
	checkf(err, "failed to open session %s", gameID)

	sum, err := sess.LoadIfExists()
	checkf(err, "failed to load breakpoints of %s", gameID)
	for _, cl := range sum.Corrupt {
		fmt.Fprintf(os.Stderr, "warning: skipped %v\n", cl)
	}
	return sess
}

// modify applies fn to the session registry of a game, and saves it.
func modify(gameID string, cfg emu.Config, fn func(*emu.Session) error) {
	sess := openSession(gameID, cfg)
	defer sess.Close()

	checkf(fn(sess), "%s", gameID)
	checkf(sess.Save(), "failed to save breakpoints of %s", gameID)
}

func addMemCheck(sess *emu.Session, w *Watch) error {
	start := uint32(w.Start)
	end := start
	if w.End != "" {
		var err error
		if end, err = breakpoints.ParseAddress(w.End); err != nil {
			return err
		}
	}

	opts := breakpoints.MemCheckOptions{
		OnRead:     w.Read,
		OnWrite:    w.Write,
		LogOnHit:   w.Log,
		BreakOnHit: w.Break,
	}
	return sess.AddMemCheck(start, end, opts, w.Condition)
}

func editRecord(sess *emu.Session, e *Edit) error {
	addr := uint32(e.Addr)
	if e.MemCheck {
		edit, err := breakpoints.ParseMemCheckEdit(e.Field, e.Value)
		if err != nil {
			return err
		}
		return sess.Editor.EditMemCheck(addr, edit)
	}

	edit, err := breakpoints.ParseBreakpointEdit(e.Field, e.Value)
	if err != nil {
		return err
	}
	return sess.Editor.EditBreakpoint(addr, edit)
}

func printVersion() {
	version := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}
	fmt.Println("bpedit", version)
}
