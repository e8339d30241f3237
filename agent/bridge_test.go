package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/session"
	"github.com/sumanthd032/collabtext/internal/syncclient"
)

type fakeController struct {
	*session.State

	mu      sync.Mutex
	edits   []string
	cursors [][2]int
	joins   []string
	creates int
}

func (f *fakeController) Edit(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
}

func (f *fakeController) MoveCursor(line, column int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, [2]int{line, column})
}

func (f *fakeController) Autocomplete(_ context.Context, cursor int) (int, error) {
	return cursor + 4, nil
}

func (f *fakeController) CreateRoom(context.Context) (rooms.Room, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	f.RoomResolved("new")
	return rooms.Room{RoomID: "new"}, nil
}

func (f *fakeController) JoinRoom(_ context.Context, roomID string) (rooms.Room, error) {
	f.mu.Lock()
	f.joins = append(f.joins, roomID)
	f.mu.Unlock()
	f.RoomResolved(roomID)
	return rooms.Room{RoomID: roomID}, nil
}

func (f *fakeController) calls() (edits []string, cursors [][2]int, joins []string, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(edits, f.edits...), append(cursors, f.cursors...), append(joins, f.joins...), f.creates
}

type bridgeHarness struct {
	bridge *bridge
	ctrl   *fakeController
	hub    *Hub
	url    string
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := newHub(zerolog.Nop())
	b := newBridge(ctx, hub, zerolog.Nop())
	ctrl := &fakeController{State: session.New()}
	b.client = ctrl

	go hub.run(ctx)
	go b.watch(ctx)
	ts := httptest.NewServer(http.HandlerFunc(hub.serveWs))
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &bridgeHarness{bridge: b, ctrl: ctrl, hub: hub, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func (h *bridgeHarness) attach(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m map[string]any
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		m := readJSON(t, ws)
		if m["type"] == typ {
			return m
		}
	}
}

func TestNewViewCatchesUp(t *testing.T) {
	h := newBridgeHarness(t)
	require.Eventually(t, func() bool { return len(h.bridge.snapshot()) == 1 }, time.Second, time.Millisecond, "status recorded")
	h.bridge.SetDocument("print(1)")
	h.bridge.SetPeers(map[string]syncclient.Position{"bob": {Line: 1, Column: 2}})

	ws := h.attach(t)
	status := readUntil(t, ws, "status")
	assert.Equal(t, "idle", status["status"])

	doc := readUntil(t, ws, "code_update")
	assert.Equal(t, map[string]any{"type": "code_update", "code": "print(1)"}, doc)

	peers := readUntil(t, ws, "peers")
	assert.Equal(t, map[string]any{"bob": map[string]any{"line": float64(1), "column": float64(2)}}, peers["peers"])
}

func TestDocumentBroadcastToViews(t *testing.T) {
	h := newBridgeHarness(t)
	a := h.attach(t)
	b := h.attach(t)
	readUntil(t, a, "status")
	readUntil(t, b, "status")

	h.bridge.SetDocument("x = 1")
	assert.Equal(t, "x = 1", readUntil(t, a, "code_update")["code"])
	assert.Equal(t, "x = 1", readUntil(t, b, "code_update")["code"])
}

func TestViewFramesDriveClient(t *testing.T) {
	h := newBridgeHarness(t)
	ws := h.attach(t)
	readUntil(t, ws, "status")

	send := func(s string) { require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(s))) }
	send(`{"type":"code_update","code":"abc"}`)
	send(`{"type":"cursor","clientId":"ignored","lineNumber":2,"column":5}`)
	send(`garbage`)
	send(`{"type":"join","roomId":"r1"}`)

	require.Eventually(t, func() bool {
		_, _, joins, _ := h.ctrl.calls()
		return len(joins) == 1
	}, time.Second, time.Millisecond)
	edits, cursors, joins, _ := h.ctrl.calls()
	assert.Equal(t, []string{"abc"}, edits)
	assert.Equal(t, [][2]int{{2, 5}}, cursors)
	assert.Equal(t, []string{"r1"}, joins)

	status := readUntil(t, ws, "status")
	for status["roomId"] != "r1" {
		status = readUntil(t, ws, "status")
	}
	assert.Equal(t, "connected", status["status"])

	send(`{"type":"create"}`)
	require.Eventually(t, func() bool {
		_, _, _, creates := h.ctrl.calls()
		return creates == 1
	}, time.Second, time.Millisecond)
}

func TestAutocompleteRepliesToRequester(t *testing.T) {
	h := newBridgeHarness(t)
	ws := h.attach(t)
	readUntil(t, ws, "status")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"autocomplete","cursor":2}`)))
	caret := readUntil(t, ws, "caret")
	assert.Equal(t, float64(6), caret["cursor"])
}

func TestHubStopClosesViews(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := newHub(zerolog.Nop())
	hub.onRegister = func() [][]byte { return [][]byte{[]byte(`{"type":"status","status":"idle"}`)} }
	hub.onMessage = func(*peer, []byte) {}
	go hub.run(ctx)
	ts := httptest.NewServer(http.HandlerFunc(hub.serveWs))
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	readUntil(t, ws, "status")

	cancel()
	<-hub.done
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}
