package syncclient

import (
	"context"
	"fmt"

	"github.com/sumanthd032/collabtext/internal/protocol"
)

// attachment is one connect() call: a dial in flight, then an open
// channel. Events carrying another generation are stale and ignored.
type attachment struct {
	gen     uint64
	roomID  string
	initial *string
	conn    Conn
	cancel  context.CancelFunc
}

func (c *Client) connect(roomID string, initial *string) {
	if c.att != nil {
		c.log.Info().Str("module", "syncclient.manager").Str("room", c.att.roomID).Msg("closing channel before reconnect")
		c.detach()
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.ctx)
	c.att = &attachment{gen: gen, roomID: roomID, initial: initial, cancel: cancel}

	// The dispatcher belongs to the attachment; a fresh one cannot fire
	// a timer armed for the previous channel.
	c.disp.cancel()
	c.disp = c.newDispatcher(c.disp.text)
	if initial != nil {
		c.disp.apply(*initial)
	}

	c.log.Info().Str("module", "syncclient.manager").Str("room", roomID).Uint64("gen", gen).Msg("connecting")
	go func() {
		conn, err := c.dialer.Dial(ctx, roomID)
		if err != nil {
			c.post(closedEvent{gen: gen, err: fmt.Errorf("dial room %s: %w", roomID, err)})
			return
		}
		if !c.post(openedEvent{gen: gen, conn: conn}) {
			_ = conn.Close()
		}
	}()
}

// detach tears down the current attachment without touching session
// state.
func (c *Client) detach() {
	att := c.att
	c.att = nil
	att.cancel()
	if att.conn != nil {
		_ = att.conn.Close()
	}
	c.disp.cancel()
}

func (c *Client) disconnect() {
	if c.att == nil {
		return
	}
	c.log.Info().Str("module", "syncclient.manager").Str("room", c.att.roomID).Msg("disconnecting")
	c.detach()
	c.state.Disconnected()
}

func (c *Client) current(gen uint64) bool {
	return c.att != nil && c.att.gen == gen
}

func (c *Client) opened(ev openedEvent) {
	if !c.current(ev.gen) {
		_ = ev.conn.Close()
		return
	}
	c.att.conn = ev.conn
	c.log.Info().Str("module", "syncclient.manager").Str("room", c.att.roomID).Msg("channel open")
	c.state.Connected()
	if c.att.initial != nil {
		c.disp.apply(*c.att.initial)
	}
	go c.readLoop(ev.gen, ev.conn)
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.post(closedEvent{gen: gen, err: err})
			return
		}
		if !c.post(frameEvent{gen: gen, data: data}) {
			return
		}
	}
}

func (c *Client) closed(ev closedEvent) {
	if !c.current(ev.gen) {
		return
	}
	c.log.Warn().Str("module", "syncclient.manager").Str("room", c.att.roomID).Err(ev.err).Msg("channel closed")
	c.detach()
	c.state.Disconnected()
}

// receive routes one inbound frame. Nothing it does may take the loop
// down: decode errors are dropped and handler panics are recovered.
func (c *Client) receive(ev frameEvent) {
	if !c.current(ev.gen) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("module", "syncclient.manager").Interface("panic", r).Msg("frame handler panicked")
		}
	}()

	f, err := protocol.Decode(ev.data)
	if err != nil {
		c.log.Warn().Str("module", "syncclient.manager").Err(err).Str("payload", truncate(ev.data, 128)).Msg("dropping frame")
		return
	}

	switch f := f.(type) {
	case protocol.Init:
		c.log.Debug().Str("module", "syncclient.manager").Int("len", len(f.Code)).Msg("received init")
		c.disp.apply(f.Code)
	case protocol.CodeUpdate:
		c.log.Debug().Str("module", "syncclient.manager").Int("len", len(f.Code)).Msg("received code_update")
		c.disp.apply(f.Code)
	case protocol.Cursor:
		c.presence.apply(f)
	default:
		c.log.Debug().Str("module", "syncclient.manager").Str("type", string(f.FrameType())).Msg("ignoring frame")
	}
}

// send writes f to the open channel. It reports false, without
// queueing, when there is no open channel.
func (c *Client) send(f protocol.Frame) bool {
	if c.att == nil || c.att.conn == nil {
		return false
	}
	data, err := protocol.Encode(f)
	if err != nil {
		c.log.Error().Str("module", "syncclient.manager").Err(err).Msg("encode frame")
		return false
	}
	if err := c.att.conn.WriteMessage(data); err != nil {
		c.log.Warn().Str("module", "syncclient.manager").Str("room", c.att.roomID).Err(err).Msg("write frame")
		return false
	}
	return true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
