package syncclient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthd032/collabtext/internal/protocol"
	"github.com/sumanthd032/collabtext/internal/session"
)

func TestConnectOpensChannel(t *testing.T) {
	h := newHarness(t)
	initial := "seed"
	h.client.Connect("r1", &initial)

	h.waitOpen(t, 1)
	assert.Equal(t, []string{"r1"}, h.dialer.dialed())
	assert.Equal(t, session.Connected, h.client.Session().Status)
	assert.Equal(t, "seed", h.client.Document())
	assert.Equal(t, []string{"seed", "seed"}, h.view.documents(), "seeded on connect and resynced on open")
}

func TestReconnectLeavesOneChannel(t *testing.T) {
	h := newHarness(t)
	h.client.Connect("r1", nil)
	first := h.waitOpen(t, 1)

	h.client.Edit("pending on r1")
	h.settle()

	h.client.Connect("r2", nil)
	second := h.waitOpen(t, 2)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, session.Connected, h.client.Session().Status)

	// The timer armed while r1 was live must not fire into either channel.
	h.clock.Advance(time.Second)
	h.settle()
	assert.Empty(t, first.frames(t))
	assert.Empty(t, second.frames(t))
	assert.Equal(t, "pending on r1", h.client.Document())
}

func TestRepeatedReconnect(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 5; i++ {
		h.client.Connect("room", nil)
		h.waitOpen(t, i)
	}
	for i := 0; i < 4; i++ {
		assert.True(t, h.dialer.conn(i).isClosed(), "conn %d", i)
	}
	assert.False(t, h.dialer.conn(4).isClosed())
}

func TestStaleFramesIgnoredAfterReconnect(t *testing.T) {
	h := newHarness(t)
	h.client.Connect("r1", nil)
	first := h.waitOpen(t, 1)
	h.client.Connect("r2", nil)
	second := h.waitOpen(t, 2)

	// Whatever the old reader still had in flight belongs to a dead
	// generation.
	h.client.post(frameEvent{gen: 1, data: []byte(`{"type":"code_update","code":"old"}`)})
	second.deliver(`{"type":"code_update","code":"new"}`)
	require.Eventually(t, func() bool { return h.client.Document() == "new" }, time.Second, time.Millisecond)
	assert.NotContains(t, h.view.documents(), "old")
	assert.True(t, first.isClosed())
}

func TestDialFailureGoesIdle(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("connection refused")

	h.client.Connect("r1", nil)
	require.Eventually(t, func() bool {
		detached := false
		h.client.do(func() { detached = h.client.gen == 1 && h.client.att == nil })
		return detached
	}, time.Second, time.Millisecond)

	snap := h.client.Session()
	assert.Equal(t, session.Idle, snap.Status)
	assert.Empty(t, snap.Err, "transport errors are not surfaced as session errors")
}

func TestRemoteCloseGoesIdleWithoutReconnect(t *testing.T) {
	h := newHarness(t)
	h.client.Connect("r1", nil)
	conn := h.waitOpen(t, 1)

	_ = conn.Close()
	require.Eventually(t, func() bool { return h.client.Session().Status == session.Idle }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.dialer.dialed(), 1)
}

func TestLocalDisconnect(t *testing.T) {
	h := newHarness(t)
	h.client.Connect("r1", nil)
	conn := h.waitOpen(t, 1)

	h.client.Disconnect()
	h.settle()
	assert.True(t, conn.isClosed())
	assert.Equal(t, session.Idle, h.client.Session().Status)

	h.client.Disconnect()
	h.settle()
}

func TestMalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t)
	initial := "keep"
	h.client.Connect("r1", &initial)
	conn := h.waitOpen(t, 1)
	before := h.client.Session()
	docsBefore := len(h.view.documents())

	conn.deliver(`{not json`)
	conn.deliver(`{"code":"no type"}`)
	conn.deliver(`{"type":"presence","who":"x"}`)
	conn.deliver(`{"type":"code_update","code":"after"}`)

	require.Eventually(t, func() bool { return h.client.Document() == "after" }, time.Second, time.Millisecond)
	assert.Equal(t, before, h.client.Session())
	assert.Equal(t, docsBefore+1, len(h.view.documents()))
	assert.False(t, conn.isClosed(), "channel stays live")
}

type panickyView struct{ recordingView }

func (v *panickyView) SetDocument(text string) {
	if text == "boom" {
		panic("view exploded")
	}
	v.recordingView.SetDocument(text)
}

func TestHandlerPanicDoesNotEscape(t *testing.T) {
	view := &panickyView{}
	h := newHarness(t, func(cfg *Config) { cfg.View = view })
	h.client.Connect("r1", nil)
	conn := h.waitOpen(t, 1)

	conn.deliver(`{"type":"code_update","code":"boom"}`)
	conn.deliver(`{"type":"code_update","code":"fine"}`)

	require.Eventually(t, func() bool { return h.client.Document() == "fine" }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"fine"}, view.documents())
}

func TestNewRequiresDialer(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSendWithoutChannel(t *testing.T) {
	h := newHarness(t)
	var ok bool
	h.client.do(func() { ok = h.client.send(protocol.CodeUpdate{Code: "x"}) })
	assert.False(t, ok)
}
