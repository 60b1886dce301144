package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"bpedit/emu/breakpoints"
	"bpedit/emu/log"
)

type mode byte

const (
	listMode    mode = iota // List breakpoints and memchecks
	addMode                 // Add a breakpoint
	watchMode               // Add a memcheck
	editMode                // Edit a record field
	toggleMode              // Enable/disable a record
	removeMode              // Remove a record
	clearMode               // Remove all records
	exportMode              // Write the registry as JSON
	serveMode               // Serve the registry over websocket
	versionMode             // Show bpedit version
)

type (
	CLI struct {
		List    List    `cmd:"" help:"List breakpoints and memchecks of a game."`
		Add     Add     `cmd:"" help:"Add a breakpoint."`
		Watch   Watch   `cmd:"" help:"Add a memcheck."`
		Edit    Edit    `cmd:"" help:"Edit a single field of a breakpoint or memcheck."`
		Toggle  Toggle  `cmd:"" help:"Enable or disable a breakpoint or memcheck."`
		Remove  Remove  `cmd:"" help:"Remove a breakpoint or memcheck."`
		Clear   Clear   `cmd:"" help:"Remove all breakpoints and memchecks of a game."`
		Export  Export  `cmd:"" help:"Write breakpoints and memchecks of a game as JSON."`
		Serve   Serve   `cmd:"" help:"Let a view layer follow and edit the breakpoints of a game."`
		Version Version `cmd:"" help:"Show bpedit version."`

		Config    string     `name:"config" help:"${config_help}" type:"path" placeholder:"FILE"`
		Dir       string     `name:"dir" help:"${dir_help}" type:"path" placeholder:"DIR"`
		SymbolMap string     `name:"symbols" help:"Symbol map used to annotate addresses." type:"existingfile" placeholder:"FILE"`
		UpperHex  bool       `name:"upper-hex" help:"Write addresses with upper case hex digits."`
		Log       logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`

		mode mode
	}

	List struct {
		GameID string `arg:"" name:"game" help:"${game_help}"`
	}

	Add struct {
		GameID    string  `arg:"" name:"game" help:"${game_help}"`
		Addr      hexAddr `arg:"" name:"addr" help:"Breakpoint address."`
		Condition string  `name:"if" help:"${cond_help}" placeholder:"COND"`
	}

	Watch struct {
		GameID    string  `arg:"" name:"game" help:"${game_help}"`
		Start     hexAddr `arg:"" name:"start" help:"First watched address."`
		End       string  `arg:"" name:"end" help:"Last watched address, if watching a range." optional:""`
		Read      bool    `name:"read" help:"Trigger on reads."`
		Write     bool    `name:"write" help:"Trigger on writes."`
		Log       bool    `name:"log-on-hit" help:"Log on hit." negatable:"" default:"true"`
		Break     bool    `name:"break-on-hit" help:"Break on hit." negatable:"" default:"true"`
		Condition string  `name:"if" help:"${cond_help}" placeholder:"COND"`
	}

	Edit struct {
		GameID   string  `arg:"" name:"game" help:"${game_help}"`
		Addr     hexAddr `arg:"" name:"addr" help:"${key_help}"`
		Field    string  `arg:"" name:"field" help:"${field_help}" enum:"enabled,break,log,read,write,address,end,condition"`
		Value    string  `arg:"" name:"value" help:"New address or condition. Toggled fields take no value." optional:""`
		MemCheck bool    `name:"mc" help:"Edit a memcheck instead of a breakpoint."`
	}

	Toggle struct {
		GameID   string  `arg:"" name:"game" help:"${game_help}"`
		Addr     hexAddr `arg:"" name:"addr" help:"${key_help}"`
		MemCheck bool    `name:"mc" help:"Toggle a memcheck instead of a breakpoint."`
	}

	Remove struct {
		GameID   string  `arg:"" name:"game" help:"${game_help}"`
		Addr     hexAddr `arg:"" name:"addr" help:"${key_help}"`
		MemCheck bool    `name:"mc" help:"Remove a memcheck instead of a breakpoint."`
	}

	Clear struct {
		GameID string `arg:"" name:"game" help:"${game_help}"`
	}

	Export struct {
		GameID string   `arg:"" name:"game" help:"${game_help}"`
		Out    *outfile `name:"out" short:"o" help:"Output file." placeholder:"FILE|stdout|stderr"`
	}

	Serve struct {
		GameID string `arg:"" name:"game" help:"${game_help}"`
		Addr   string `name:"addr" help:"Listen address (overrides config)." placeholder:"HOST:PORT"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"config_help": "Config file. (default: user config directory)",
	"dir_help":    "Directory holding the game settings files. (overrides config)",
	"log_help":    "Enable logging for specified modules.",
	"game_help":   "Game identifier, names the <game>.ini settings file.",
	"cond_help":   "Condition, for example 'r3==0 && [$80001000]!=0'.",
	"key_help":    "Breakpoint address, or memcheck start address.",
	"field_help":  "Field to edit: enabled, break, log, read, write, address, end or condition.",
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("bpedit"),
		kong.Description("Breakpoint and watchpoint editor for emulator debugging sessions."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := newParser(&cfg)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	cfg.mode = commandMode(ctx.Command())
	return cfg
}

func commandMode(cmd string) mode {
	name, _, _ := strings.Cut(cmd, " ")
	switch name {
	case "add":
		return addMode
	case "watch":
		return watchMode
	case "edit":
		return editMode
	case "toggle":
		return toggleMode
	case "remove":
		return removeMode
	case "clear":
		return clearMode
	case "export":
		return exportMode
	case "serve":
		return serveMode
	case "version":
		return versionMode
	}
	return listMode
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if ctx.Command() == "" || strings.HasPrefix(ctx.Command(), "serve") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(ctx.Stdout, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask struct {
	mask  log.ModuleMask
	nolog bool
	set   bool
}

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm *logModMask) Decode(ctx *kong.DecodeContext) error {
	var list string
	if err := ctx.Scan.PopValueInto("log modules", &list); err != nil {
		return err
	}
	return lm.parse(list)
}

func (lm *logModMask) parse(list string) error {
	nolog := false
	for _, v := range strings.Split(list, ",") {
		if strings.TrimSpace(v) == "no" {
			nolog = true
		}
	}

	if nolog {
		if strings.TrimSpace(list) != "no" {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		*lm = logModMask{nolog: true, set: true}
		return nil
	}

	mask, err := log.ParseModuleMask(list)
	if err != nil {
		return err
	}
	*lm = logModMask{mask: mask, set: true}
	return nil
}

// apply enables the selected log modules.
func (lm logModMask) apply() {
	switch {
	case lm.nolog:
		log.Disable()
	case lm.mask != 0:
		log.EnableDebugModules(lm.mask)
	}
}

// hexAddr is an address given on the command line, in hexadecimal.
type hexAddr uint32

// Decode implements kong.MapperValue interface.
func (a *hexAddr) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("address", &s); err != nil {
		return err
	}
	addr, err := breakpoints.ParseAddress(s)
	if err != nil {
		return err
	}
	*a = hexAddr(addr)
	return nil
}

type outfile struct {
	w     io.Writer
	name  string
	close func() error
}

// Decode decodes FILE|stdout|stderr into an io.WriteCloser
// that writes to that file.
//
// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	tok := ctx.Scan.Pop()
	f.name = tok.Value.(string)
	f.close = func() error { return nil }

	switch f.name {
	case "stdout":
		f.w = os.Stdout
	case "stderr":
		f.w = os.Stderr
	default:
		fd, err := os.Create(f.name)
		if err != nil {
			return err
		}
		f.w = fd
		f.close = fd.Close
	}
	return nil
}

func (f *outfile) String() string              { return f.name }
func (f *outfile) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f *outfile) Close() error                { return f.close() }

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
