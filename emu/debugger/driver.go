package debugger

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bpedit/emu/breakpoints"
)

// A wsdriver handles a single view connection.
type wsdriver struct {
	id  string
	srv *Server
	ws  *websocket.Conn

	wake    chan struct{} // registry changed, capacity 1
	results chan []byte
}

func newWsDriver(srv *Server, ws *websocket.Conn) *wsdriver {
	return &wsdriver{
		id:      uuid.NewString(),
		srv:     srv,
		ws:      ws,
		wake:    make(chan struct{}, 1),
		results: make(chan []byte, 16),
	}
}

// notify schedules sending the registry. Notifications received before the
// registry is sent are coalesced. It never blocks.
func (d *wsdriver) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drive serves the connection until it's closed or ctx is done.
func (d *wsdriver) drive(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- d.writeLoop(ctx)
		// Unblock the read loop.
		d.ws.Close()
	}()

	d.notify()
	readErr := d.readLoop(ctx)
	cancel()
	if err := <-writeErr; err != nil && readErr == nil {
		return err
	}
	return readErr
}

func (d *wsdriver) readLoop(ctx context.Context) error {
	for {
		_, buf, err := d.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		req, err := decodeRequest(buf)
		if err == nil {
			modDbg.DebugZ("received request").String("client", d.id).String("event", req.Event).End()
			err = d.srv.do(ctx, req)
		}
		if err != nil {
			modDbg.DebugZ("request failed").String("client", d.id).Error("err", err).End()
		}

		var e jx.Encoder
		encodeResult(&e, err)
		select {
		case d.results <- e.Bytes():
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *wsdriver) writeLoop(ctx context.Context) error {
	var e jx.Encoder
	sendRegistry := func() error {
		e.Reset()
		encodeRegistryEvent(&e, d.srv.sess)
		return d.ws.WriteMessage(websocket.TextMessage, e.Bytes())
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-d.wake:
			if err := sendRegistry(); err != nil {
				return err
			}

		case res := <-d.results:
			// A request result always follows the registry it produced.
			select {
			case <-d.wake:
				if err := sendRegistry(); err != nil {
					return err
				}
			default:
			}
			if err := d.ws.WriteMessage(websocket.TextMessage, res); err != nil {
				return err
			}
		}
	}
}

var errUnknownKind = errors.New("unknown record kind")

// apply applies req to the session. It runs on the control goroutine.
func (srv *Server) apply(req request) error {
	p := req.Data
	sess := srv.sess

	switch req.Event {
	case evClear:
		sess.Registry.Clear()
		return nil
	case evLoad:
		_, err := sess.Load()
		return err
	case evSave:
		return sess.Save()
	}

	addr, err := breakpoints.ParseAddress(p.Addr)
	if err != nil {
		return err
	}

	switch req.Event {
	case evAdd:
		return sess.AddBreakpoint(addr, p.Condition)

	case evWatch:
		end := addr
		if p.End != "" {
			if end, err = breakpoints.ParseAddress(p.End); err != nil {
				return err
			}
		}
		opts := breakpoints.MemCheckOptions{
			OnRead:     p.Read,
			OnWrite:    p.Write,
			LogOnHit:   p.Log,
			BreakOnHit: p.Break,
		}
		return sess.AddMemCheck(addr, end, opts, p.Condition)

	case evToggle:
		switch p.Kind {
		case kindBreakpoint:
			return sess.Registry.Breakpoints().Toggle(addr)
		case kindMemCheck:
			return sess.Registry.MemChecks().Toggle(addr)
		}

	case evRemove:
		var found bool
		switch p.Kind {
		case kindBreakpoint:
			found = sess.Registry.Breakpoints().Remove(addr)
		case kindMemCheck:
			found = sess.Registry.MemChecks().Remove(addr)
		default:
			return fmt.Errorf("%w: %q", errUnknownKind, p.Kind)
		}
		if !found {
			return fmt.Errorf("%s %08x: %w", p.Kind, addr, breakpoints.ErrNotFound)
		}
		return nil

	case evEdit:
		switch p.Kind {
		case kindBreakpoint:
			e, err := breakpoints.ParseBreakpointEdit(p.Field, p.Value)
			if err != nil {
				return err
			}
			return sess.Editor.EditBreakpoint(addr, e)
		case kindMemCheck:
			e, err := breakpoints.ParseMemCheckEdit(p.Field, p.Value)
			if err != nil {
				return err
			}
			return sess.Editor.EditMemCheck(addr, e)
		}

	default:
		return fmt.Errorf("unknown event %q", req.Event)
	}

	return fmt.Errorf("%w: %q", errUnknownKind, p.Kind)
}
