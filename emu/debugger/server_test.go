package debugger

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"bpedit/emu"
	"bpedit/emu/breakpoints"
	"bpedit/emu/log"
)

type bpView struct {
	Address   string `json:"address"`
	Symbol    string `json:"symbol"`
	Enabled   bool   `json:"enabled"`
	Break     bool   `json:"break"`
	Log       bool   `json:"log"`
	Condition string `json:"condition"`
}

type mcView struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Symbol    string `json:"symbol"`
	Ranged    bool   `json:"ranged"`
	Enabled   bool   `json:"enabled"`
	Break     bool   `json:"break"`
	Log       bool   `json:"log"`
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Condition string `json:"condition"`
}

type registryView struct {
	Game        string   `json:"game"`
	Dirty       bool     `json:"dirty"`
	Breakpoints []bpView `json:"breakpoints"`
	MemChecks   []mcView `json:"memchecks"`
}

type resultView struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestSession(t *testing.T) *emu.Session {
	t.Helper()
	log.Disable()

	cfg := emu.DefaultConfig()
	cfg.General.GameSettingsDir = t.TempDir()
	sess, err := emu.Open("GALE01", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sess.Close)
	return sess
}

// startServer serves sess on a random port and returns a connected client.
func startServer(t *testing.T, sess *emu.Session) *websocket.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := NewServer(sess)
	go func() { done <- srv.Serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatal(err)
	}

	t.Cleanup(func() {
		ws.Close()
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server didn't stop")
		}
	})
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	return msg
}

func readRegistry(t *testing.T, ws *websocket.Conn) registryView {
	t.Helper()
	msg := readMessage(t, ws)
	if msg.Event != evBreakpoints {
		t.Fatalf("got %q event, want %q: %s", msg.Event, evBreakpoints, msg.Data)
	}
	var view registryView
	if err := json.Unmarshal(msg.Data, &view); err != nil {
		t.Fatal(err)
	}
	return view
}

func readResult(t *testing.T, ws *websocket.Conn) resultView {
	t.Helper()
	msg := readMessage(t, ws)
	if msg.Event != evResult {
		t.Fatalf("got %q event, want %q: %s", msg.Event, evResult, msg.Data)
	}
	var res resultView
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func send(t *testing.T, ws *websocket.Conn, req string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatal(err)
	}
}

func TestServerInitialRegistry(t *testing.T) {
	sess := newTestSession(t)
	sess.Registry.Breakpoints().Add(breakpoints.Breakpoint{Address: 0x80003100, Enabled: true, BreakOnHit: true})
	sess.AddMemCheck(0x90000000, 0x90000010, breakpoints.MemCheckOptions{OnRead: true}, "r3==1")

	ws := startServer(t, sess)

	want := registryView{
		Game:  "GALE01",
		Dirty: true,
		Breakpoints: []bpView{
			{Address: "80003100", Enabled: true, Break: true},
		},
		MemChecks: []mcView{
			{Start: "90000000", End: "90000010", Ranged: true, Enabled: true, Read: true, Condition: "R3==$1"},
		},
	}
	if diff := cmp.Diff(want, readRegistry(t, ws)); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestServerRequests(t *testing.T) {
	sess := newTestSession(t)
	sess.Registry.Breakpoints().Add(breakpoints.Breakpoint{Address: 0x80003100, Enabled: true, BreakOnHit: true})
	ws := startServer(t, sess)
	readRegistry(t, ws)

	// Each successful request sends the registry, then the result.
	send(t, ws, `{"event": "edit", "data": {"kind": "bp", "addr": "80003100", "field": "log"}}`)
	view := readRegistry(t, ws)
	if res := readResult(t, ws); !res.OK {
		t.Fatalf("edit failed: %s", res.Error)
	}
	if diff := cmp.Diff([]bpView{{Address: "80003100", Enabled: true, Break: true, Log: true}}, view.Breakpoints); diff != "" {
		t.Errorf("breakpoints mismatch (-want +got):\n%s", diff)
	}

	send(t, ws, `{"event": "watch", "data": {"addr": "0x90000000", "end": "90000010", "write": true, "condition": "hitcount>2"}}`)
	view = readRegistry(t, ws)
	if res := readResult(t, ws); !res.OK {
		t.Fatalf("watch failed: %s", res.Error)
	}
	wantMCs := []mcView{{Start: "90000000", End: "90000010", Ranged: true, Enabled: true, Write: true, Condition: "hitcount>2"}}
	if diff := cmp.Diff(wantMCs, view.MemChecks); diff != "" {
		t.Errorf("memchecks mismatch (-want +got):\n%s", diff)
	}

	send(t, ws, `{"event": "toggle", "data": {"kind": "mc", "addr": "90000000"}}`)
	view = readRegistry(t, ws)
	readResult(t, ws)
	if view.MemChecks[0].Enabled {
		t.Errorf("memcheck still enabled after toggle")
	}

	send(t, ws, `{"event": "save"}`)
	readResult(t, ws)
	if sess.Dirty() {
		t.Errorf("session dirty after save")
	}

	send(t, ws, `{"event": "clear", "data": {}}`)
	view = readRegistry(t, ws)
	readResult(t, ws)
	if len(view.Breakpoints) != 0 || len(view.MemChecks) != 0 {
		t.Errorf("registry not empty after clear: %+v", view)
	}

	send(t, ws, `{"event": "load", "data": null}`)
	view = readRegistry(t, ws)
	if res := readResult(t, ws); !res.OK {
		t.Fatalf("load failed: %s", res.Error)
	}
	if len(view.Breakpoints) != 1 || len(view.MemChecks) != 1 {
		t.Errorf("registry not restored by load: %+v", view)
	}
	if view.Dirty {
		t.Errorf("registry sent after load is dirty")
	}
}

func TestServerWatchWithoutAccessType(t *testing.T) {
	sess := newTestSession(t)
	ws := startServer(t, sess)
	readRegistry(t, ws)

	send(t, ws, `{"event": "watch", "data": {"addr": "80400000"}}`)
	view := readRegistry(t, ws)
	if res := readResult(t, ws); !res.OK {
		t.Fatalf("watch failed: %s", res.Error)
	}
	want := []mcView{{Start: "80400000", End: "80400000", Enabled: true, Read: true, Write: true}}
	if diff := cmp.Diff(want, view.MemChecks); diff != "" {
		t.Errorf("memchecks mismatch (-want +got):\n%s", diff)
	}
}

func TestServerFailedRequests(t *testing.T) {
	sess := newTestSession(t)
	sess.Registry.Breakpoints().Add(breakpoints.NewBreakpoint(0x80003100))
	ws := startServer(t, sess)
	readRegistry(t, ws)

	tests := []struct {
		req     string
		wantErr string
	}{
		{req: `not json`, wantErr: "malformed request"},
		{req: `{"data": {}}`, wantErr: "missing event"},
		{req: `{"event": "jump"}`, wantErr: "invalid address"},
		{req: `{"event": "jump", "data": {"addr": "0"}}`, wantErr: "unknown event"},
		{req: `{"event": "toggle", "data": {"kind": "bp", "addr": "1234"}}`, wantErr: "not found"},
		{req: `{"event": "remove", "data": {"kind": "mc", "addr": "80003100"}}`, wantErr: "not found"},
		{req: `{"event": "toggle", "data": {"kind": "zz", "addr": "80003100"}}`, wantErr: "unknown record kind"},
		{req: `{"event": "edit", "data": {"kind": "bp", "addr": "80003100", "field": "end", "value": "0"}}`, wantErr: "unknown field"},
		{req: `{"event": "edit", "data": {"kind": "bp", "addr": "80003100", "field": "address", "value": "zz"}}`, wantErr: "invalid address"},
		{req: `{"event": "edit", "data": {"kind": "bp", "addr": "80003100", "field": "condition", "value": "r1=="}}`, wantErr: "condition"},
		{req: `{"event": "add", "data": {"addr": "80003200", "condition": "&&"}}`, wantErr: "condition"},
		{req: `{"event": "load"}`, wantErr: "persistence"},
	}
	for _, tt := range tests {
		send(t, ws, tt.req)
		// Failed requests don't change the registry: the result comes first.
		res := readResult(t, ws)
		if res.OK || !strings.Contains(res.Error, tt.wantErr) {
			t.Errorf("request %s: result = %+v, want error containing %q", tt.req, res, tt.wantErr)
		}
	}

	if n := sess.Registry.Breakpoints().Len(); n != 1 {
		t.Errorf("got %d breakpoints after failed requests, want 1", n)
	}
}

func TestServerBroadcast(t *testing.T) {
	sess := newTestSession(t)
	ws := startServer(t, sess)
	readRegistry(t, ws)

	// Changes made outside of the connection are sent too.
	sess.Registry.Breakpoints().Add(breakpoints.NewBreakpoint(0x80000000))
	view := readRegistry(t, ws)
	if len(view.Breakpoints) != 1 || view.Breakpoints[0].Address != "80000000" {
		t.Errorf("breakpoints = %+v", view.Breakpoints)
	}
}

func TestWriteRegistry(t *testing.T) {
	sess := newTestSession(t)
	sess.AddBreakpoint(0xabcd, "pc==0")

	var buf bytes.Buffer
	if err := WriteRegistry(&buf, sess); err != nil {
		t.Fatal(err)
	}
	var view registryView
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	want := registryView{
		Game:        "GALE01",
		Dirty:       true,
		Breakpoints: []bpView{{Address: "0000abcd", Enabled: true, Break: true, Log: true, Condition: "PC==$0"}},
		MemChecks:   []mcView{},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest([]byte(`{"event":"watch","extra":[1,2],"data":{"addr":"10","end":"20","read":true,"log":true,"unknown":{"a":1}}}`))
	if err != nil {
		t.Fatal(err)
	}
	want := request{
		Event: evWatch,
		Data:  params{Addr: "10", End: "20", Read: true, Log: true},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if _, err := decodeRequest([]byte(`{"event":"watch","data":{"read":"yes"}}`)); err == nil {
		t.Errorf("decodeRequest accepted a string flag")
	}
}
