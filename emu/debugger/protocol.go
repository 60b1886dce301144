package debugger

import (
	"fmt"
	"io"

	"github.com/go-faster/jx"

	"bpedit/emu"
	"bpedit/emu/breakpoints"
)

// A view layer follows the registry through a websocket connection, using
// this simple protocol.
//
// Upon connection, and after every change of the registry, the server sends
// the whole registry in a 'breakpoints' event:
//
//	{"event": "breakpoints", "data": {"breakpoints": [...], "memchecks": [...]}}
//
// The view sends requests, each of which gets a 'result' response:
//
//	{"event": "toggle", "data": {"kind": "bp", "addr": "80003100"}}
//	{"event": "result", "data": {"ok": true, "error": ""}}
//
// When a request changes the registry, the 'breakpoints' event is sent
// before the 'result' one.

// Request events.
const (
	evToggle = "toggle"
	evEdit   = "edit"
	evRemove = "remove"
	evAdd    = "add"
	evWatch  = "watch"
	evClear  = "clear"
	evLoad   = "load"
	evSave   = "save"
)

// Server events.
const (
	evBreakpoints = "breakpoints"
	evResult      = "result"
)

// Record kinds.
const (
	kindBreakpoint = "bp"
	kindMemCheck   = "mc"
)

// request is a view->server request.
type request struct {
	Event string
	Data  params
}

// params holds the data of all requests. Each request only uses some of it.
type params struct {
	Kind      string // toggle, edit, remove
	Addr      string // all but clear, load and save
	End       string // watch
	Field     string // edit
	Value     string // edit
	Condition string // add, watch
	Read      bool   // watch
	Write     bool   // watch
	Log       bool   // watch
	Break     bool   // watch
}

func decodeRequest(buf []byte) (request, error) {
	var req request
	err := jx.DecodeBytes(buf).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			s, err := d.Str()
			req.Event = s
			return err
		case "data":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return decodeParams(d, &req.Data)
		}
		return d.Skip()
	})
	if err != nil {
		return request{}, fmt.Errorf("malformed request: %w", err)
	}
	if req.Event == "" {
		return request{}, fmt.Errorf("malformed request: missing event")
	}
	return req, nil
}

func decodeParams(d *jx.Decoder, p *params) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var (
			s   *string
			b   *bool
			err error
		)
		switch key {
		case "kind":
			s = &p.Kind
		case "addr":
			s = &p.Addr
		case "end":
			s = &p.End
		case "field":
			s = &p.Field
		case "value":
			s = &p.Value
		case "condition":
			s = &p.Condition
		case "read":
			b = &p.Read
		case "write":
			b = &p.Write
		case "log":
			b = &p.Log
		case "break":
			b = &p.Break
		default:
			return d.Skip()
		}
		if s != nil {
			*s, err = d.Str()
		} else {
			*b, err = d.Bool()
		}
		if err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		return nil
	})
}

// encodeEvent writes an event whose data is written by data.
func encodeEvent(e *jx.Encoder, event string, data func(e *jx.Encoder)) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(event) })
		e.Field("data", data)
	})
}

func encodeResult(e *jx.Encoder, err error) {
	encodeEvent(e, evResult, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("ok", func(e *jx.Encoder) { e.Bool(err == nil) })
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func encodeRegistryEvent(e *jx.Encoder, sess *emu.Session) {
	encodeEvent(e, evBreakpoints, func(e *jx.Encoder) {
		encodeRegistry(e, sess)
	})
}

func hex(v uint32) string { return fmt.Sprintf("%08x", v) }

// encodeRegistry writes the current content of the session registry.
func encodeRegistry(e *jx.Encoder, sess *emu.Session) {
	str := func(name, val string) {
		e.Field(name, func(e *jx.Encoder) { e.Str(val) })
	}
	boolean := func(name string, val bool) {
		e.Field(name, func(e *jx.Encoder) { e.Bool(val) })
	}

	e.Obj(func(e *jx.Encoder) {
		str("game", sess.GameID)
		boolean("dirty", sess.Dirty())

		e.Field("breakpoints", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for bp := range sess.Registry.Breakpoints().All() {
					e.Obj(func(e *jx.Encoder) {
						str("address", hex(bp.Address))
						str("symbol", sess.Symbol(bp.Address))
						boolean("enabled", bp.Enabled)
						boolean("break", bp.BreakOnHit)
						boolean("log", bp.LogOnHit)
						str("condition", breakpoints.ConditionText(bp.Condition))
					})
				}
			})
		})

		e.Field("memchecks", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for mc := range sess.Registry.MemChecks().All() {
					e.Obj(func(e *jx.Encoder) {
						str("start", hex(mc.Start))
						str("end", hex(mc.End))
						str("symbol", sess.Symbol(mc.Start))
						boolean("ranged", mc.Ranged)
						boolean("enabled", mc.Enabled)
						boolean("break", mc.BreakOnHit)
						boolean("log", mc.LogOnHit)
						boolean("read", mc.OnRead)
						boolean("write", mc.OnWrite)
						str("condition", breakpoints.ConditionText(mc.Condition))
					})
				}
			})
		})
	})
}

// WriteRegistry writes the session registry to w, as JSON.
func WriteRegistry(w io.Writer, sess *emu.Session) error {
	var e jx.Encoder
	e.SetIdent(2)
	encodeRegistry(&e, sess)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}
