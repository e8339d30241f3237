package syncclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sumanthd032/collabtext/internal/autocomplete"
	"github.com/sumanthd032/collabtext/internal/clock"
	"github.com/sumanthd032/collabtext/internal/protocol"
	"github.com/sumanthd032/collabtext/internal/rooms"
)

var errConnClosed = errors.New("fake conn closed")

type fakeConn struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-f.closed:
		return nil, errConnClosed
	default:
	}
	select {
	case data := <-f.inbox:
		return data, nil
	case <-f.closed:
		return nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	if f.isClosed() {
		return errConnClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) deliver(s string) { f.inbox <- []byte(s) }

func (f *fakeConn) frames(t *testing.T) []protocol.Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Frame, 0, len(f.sent))
	for _, b := range f.sent {
		fr, err := protocol.Decode(b)
		require.NoError(t, err)
		out = append(out, fr)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	rooms []string
	err   error
}

func (d *fakeDialer) Dial(ctx context.Context, roomID string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = append(d.rooms, roomID)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.rooms...)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeRooms struct {
	calls  atomic.Int32
	create func() (rooms.Room, error)
	get    func(roomID string) (rooms.Room, error)
}

func (r *fakeRooms) Create(ctx context.Context) (rooms.Room, error) {
	r.calls.Add(1)
	return r.create()
}

func (r *fakeRooms) Get(ctx context.Context, roomID string) (rooms.Room, error) {
	r.calls.Add(1)
	return r.get(roomID)
}

type fakeSuggester struct {
	suggestion string
	err        error
	got        autocomplete.Request
}

func (s *fakeSuggester) Suggest(ctx context.Context, r autocomplete.Request) (string, error) {
	s.got = r
	return s.suggestion, s.err
}

type recordingView struct {
	mu    sync.Mutex
	docs  []string
	peers map[string]Position
}

func (v *recordingView) SetDocument(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs = append(v.docs, text)
}

func (v *recordingView) SetPeers(peers map[string]Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.peers = peers
}

func (v *recordingView) documents() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.docs...)
}

type harness struct {
	client *Client
	dialer *fakeDialer
	clock  *clock.FakeClock
	view   *recordingView
	rooms  *fakeRooms
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		clock:  clock.Fake(time.Unix(0, 0)),
		view:   &recordingView{},
		rooms: &fakeRooms{
			create: func() (rooms.Room, error) { return rooms.Room{RoomID: "abc123", Code: "print(1)"}, nil },
			get:    func(id string) (rooms.Room, error) { return rooms.Room{RoomID: id, Code: "joined"}, nil },
		},
	}
	nop := zerolog.Nop()
	cfg := Config{
		ClientID: "me",
		Rooms:    h.rooms,
		Dialer:   h.dialer,
		View:     h.view,
		Clock:    h.clock,
		Logger:   &nop,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	h.client = c

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// waitOpen blocks until the n-th dial (1-based) is the live channel.
func (h *harness) waitOpen(t *testing.T, n int) *fakeConn {
	t.Helper()
	require.Eventually(t, func() bool {
		conn := h.dialer.conn(n - 1)
		if conn == nil {
			return false
		}
		open := false
		h.client.do(func() { open = h.client.att != nil && h.client.att.conn == Conn(conn) })
		return open
	}, time.Second, time.Millisecond)
	return h.dialer.conn(n - 1)
}

// settle waits until every event queued so far has been handled.
func (h *harness) settle() { h.client.do(func() {}) }
