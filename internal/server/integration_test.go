package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub and Authority and
// returns the server and its WebSocket URL.
func startTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	authority := NewAuthority(AuthorityOptions{SyncRate: 50})
	hub := NewHub(authority, HubOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := SetupRoutes(hub, RouteOptions{PublicURL: "http://lobby.test/"})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		authority.Shutdown()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads messages until a JSON envelope of type want arrives.
// Replication frames in between are checked to decode and skipped.
func readEnvelope(t *testing.T, conn *websocket.Conn, want string) protocol.InEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for %s: %v", want, err)
		}
		if msgType == websocket.BinaryMessage {
			if _, err := netsync.DecodeFrame(raw); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			continue
		}
		var env protocol.InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.T == want {
			return env
		}
	}
}

// readFrame reads messages until a binary replication frame arrives.
func readFrame(t *testing.T, conn *websocket.Conn) *netsync.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for a frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		f, err := netsync.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return f
	}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := protocol.Encode(msgType, data)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func getStatus(t *testing.T, srv *httptest.Server) Status {
	t.Helper()
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

// ---------- tests ----------

func TestWelcomeThenSnapshot(t *testing.T) {
	_, wsURL := startTestServer(t)
	conn := dialWS(t, wsURL)

	env := readEnvelope(t, conn, protocol.MsgWelcome)
	var w protocol.WelcomeMsg
	json.Unmarshal(env.D, &w)
	if w.Conn == 0 || w.Player == 0 {
		t.Fatalf("welcome should carry ids, got %+v", w)
	}

	f := readFrame(t, conn)
	if !f.Forced {
		t.Error("first frame should be the forced snapshot")
	}
	found := false
	for _, s := range f.Spawns {
		if s.ID == netsync.NetID(w.Player) {
			found = true
		}
	}
	if !found {
		t.Error("snapshot should include the client's own player")
	}
}

func TestMatchFlow(t *testing.T) {
	srv, wsURL := startTestServer(t)

	owner := dialWS(t, wsURL)
	readEnvelope(t, owner, protocol.MsgWelcome)
	guest := dialWS(t, wsURL)
	readEnvelope(t, guest, protocol.MsgWelcome)

	sendMsg(t, guest, protocol.MsgStartGame, nil)
	env := readEnvelope(t, guest, protocol.MsgRejected)
	var r protocol.RejectedMsg
	json.Unmarshal(env.D, &r)
	if r.Op != protocol.MsgStartGame {
		t.Errorf("unexpected rejection %+v", r)
	}

	sendMsg(t, owner, protocol.MsgStartGame, nil)
	for _, c := range []*websocket.Conn{owner, guest} {
		env := readEnvelope(t, c, protocol.MsgScene)
		var s protocol.SceneMsg
		json.Unmarshal(env.D, &s)
		if s.Name != "Scene_Map01" {
			t.Errorf("expected battle map, got %q", s.Name)
		}
	}

	st := getStatus(t, srv)
	if !st.InProgress || len(st.Players) != 2 || st.Clients != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	late := dialWS(t, wsURL)
	env = readEnvelope(t, late, protocol.MsgError)
	var e protocol.ErrorMsg
	json.Unmarshal(env.D, &e)
	if e.Msg != "connection refused" {
		t.Errorf("late joiner got %q", e.Msg)
	}
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("refused connection should be closed")
	}
}

func TestAccountsDisabled(t *testing.T) {
	_, wsURL := startTestServer(t)
	conn := dialWS(t, wsURL)
	readEnvelope(t, conn, protocol.MsgWelcome)

	sendMsg(t, conn, protocol.MsgLogin, protocol.LoginMsg{Username: "alice", Password: "secret"})
	env := readEnvelope(t, conn, protocol.MsgError)
	var e protocol.ErrorMsg
	json.Unmarshal(env.D, &e)
	if e.Msg != "accounts disabled" {
		t.Errorf("got %q", e.Msg)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/matches")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("matches without a store should be empty, got %s", body)
	}

	resp, err = http.Get(srv.URL + "/matches?limit=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/invite.png")
	if err != nil {
		t.Fatal(err)
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("invite should be a png, got %q", resp.Header.Get("Content-Type"))
	}

	st := getStatus(t, srv)
	if st.InProgress || st.Scene != "Scene_Lobby" || len(st.Players) != 0 || st.Clients != 0 {
		t.Errorf("fresh server status %+v", st)
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	authority := NewAuthority(AuthorityOptions{})
	t.Cleanup(authority.Shutdown)
	hub := NewHub(authority, HubOptions{MaxConnsPerIP: 1})
	if !hub.CanAccept("1.2.3.4") {
		t.Fatal("first connection should be accepted")
	}
	hub.TrackConnect("1.2.3.4")
	if hub.CanAccept("1.2.3.4") {
		t.Error("second connection from the same ip should be refused")
	}
	if !hub.CanAccept("5.6.7.8") {
		t.Error("other ips are unaffected")
	}
	hub.TrackDisconnect("1.2.3.4")
	if !hub.CanAccept("1.2.3.4") || hub.TotalConns() != 0 {
		t.Error("disconnect should free the slot")
	}
}

func TestCommandFloodKicksClient(t *testing.T) {
	_, wsURL := startTestServer(t)
	conn := dialWS(t, wsURL)
	readEnvelope(t, conn, protocol.MsgWelcome)

	raw, _ := protocol.Encode(protocol.MsgLogin, protocol.LoginMsg{Username: "x", Password: "y"})
	for i := 0; i < commandBurst+10; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			break
		}
	}

	for {
		env := readEnvelope(t, conn, protocol.MsgError)
		var e protocol.ErrorMsg
		json.Unmarshal(env.D, &e)
		if e.Msg == "too many commands" {
			break
		}
		if e.Msg != "accounts disabled" {
			t.Fatalf("unexpected error %q", e.Msg)
		}
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("flooding client should be closed normally, got %v", err)
		}
		break
	}
}
