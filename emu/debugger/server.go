// Package debugger serves the breakpoint registry of a debugging session to
// an external view layer, over a websocket.
package debugger

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"bpedit/emu"
	"bpedit/emu/log"
)

var modDbg = log.NewModule("debugger")

// command is a request forwarded to the control goroutine.
type command struct {
	req   request
	reply chan error
}

// A Server lets view layers follow and edit the registry of a session.
//
// Connections only read registry snapshots. All mutations are funneled to a
// single control goroutine, started by Serve.
type Server struct {
	sess *emu.Session
	cmds chan command

	mu      sync.Mutex
	drivers map[string]*wsdriver

	cancel func()
}

func NewServer(sess *emu.Session) *Server {
	srv := &Server{
		sess:    sess,
		cmds:    make(chan command),
		drivers: make(map[string]*wsdriver),
	}
	srv.cancel = sess.Registry.OnChange(srv.broadcast)
	return srv
}

// Handler returns the HTTP handler serving the websocket endpoint on /ws.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWebsocket)
	return mux
}

// ListenAndServe listens on addr and serves until ctx is done.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}

// Serve serves connections accepted on ln and runs the control goroutine,
// until ctx is done or either fails.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer srv.cancel()

	httpsrv := &http.Server{
		Handler:     srv.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		modDbg.InfoZ("server listening").String("addr", ln.Addr().String()).End()
		if err := httpsrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Control(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return httpsrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Control runs the control goroutine, applying the requests received from
// all connections one at a time, until ctx is done.
func (srv *Server) Control(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-srv.cmds:
			cmd.reply <- srv.apply(cmd.req)
		}
	}
}

// do forwards req to the control goroutine and waits for the result.
func (srv *Server) do(ctx context.Context, req request) error {
	cmd := command{req: req, reply: make(chan error, 1)}
	select {
	case srv.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// broadcast wakes up all connections so that they send the registry.
func (srv *Server) broadcast() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for _, drv := range srv.drivers {
		drv.notify()
	}
}

func (srv *Server) register(drv *wsdriver) {
	srv.mu.Lock()
	srv.drivers[drv.id] = drv
	srv.mu.Unlock()
}

func (srv *Server) unregister(drv *wsdriver) {
	srv.mu.Lock()
	delete(srv.drivers, drv.id)
	srv.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (srv *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		modDbg.WarnZ("failed to perform websocket handshake").Error("err", err).End()
		return
	}
	defer ws.Close()

	drv := newWsDriver(srv, ws)
	modDbg.DebugZ("websocket handshake success").String("client", drv.id).End()

	srv.register(drv)
	defer srv.unregister(drv)

	if err := drv.drive(r.Context()); err != nil {
		modDbg.InfoZ("connection ended").String("client", drv.id).Error("err", err).End()
	}
}
