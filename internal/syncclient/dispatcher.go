package syncclient

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sumanthd032/collabtext/internal/clock"
	"github.com/sumanthd032/collabtext/internal/protocol"
)

// dispatcher owns DocumentText and the single pending debounced send.
type dispatcher struct {
	text string

	window  time.Duration
	clock   clock.Clock
	timer   *clock.Timer
	pending uint64 // token of the armed timer, 0 when none

	nextToken func() uint64
	fire      func(token uint64)
	send      func(protocol.Frame) bool
	view      View
	log       zerolog.Logger
}

func (c *Client) newDispatcher(text string) *dispatcher {
	return &dispatcher{
		text:   text,
		window: c.debounce,
		clock:  c.clock,
		nextToken: func() uint64 {
			c.tokens++
			return c.tokens
		},
		fire: func(token uint64) { c.post(flushEvent{token: token}) },
		send: c.send,
		view: c.view,
		log:  c.log.With().Str("module", "syncclient.dispatcher").Logger(),
	}
}

// localEdit takes the editor's text as authoritative and restarts the
// quiescence window.
func (d *dispatcher) localEdit(text string) {
	d.text = text
	d.timer.Stop()
	token := d.nextToken()
	d.pending = token
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(token) })
}

// flush sends the text as it is now. Tokens from cancelled or replaced
// timers are ignored.
func (d *dispatcher) flush(token uint64) {
	if token == 0 || token != d.pending {
		return
	}
	d.pending = 0
	d.timer = nil
	if d.send(protocol.CodeUpdate{Code: d.text}) {
		d.log.Debug().Int("len", len(d.text)).Msg("sent code_update")
		return
	}
	d.log.Debug().Msg("channel not open, skipping send")
}

// apply installs a remote snapshot and pushes it to the view.
func (d *dispatcher) apply(code string) {
	d.text = code
	d.view.SetDocument(code)
}

// replace is a local edit that must go out now, not after the window.
func (d *dispatcher) replace(text string) bool {
	d.cancel()
	d.apply(text)
	return d.send(protocol.CodeUpdate{Code: text})
}

func (d *dispatcher) cancel() {
	d.timer.Stop()
	d.timer = nil
	d.pending = 0
}
