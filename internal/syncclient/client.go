package syncclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sumanthd032/collabtext/internal/autocomplete"
	"github.com/sumanthd032/collabtext/internal/clock"
	"github.com/sumanthd032/collabtext/internal/identity"
	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/session"
)

// DefaultDebounce is the quiescence window for outbound document sends.
const DefaultDebounce = 300 * time.Millisecond

var (
	// ErrBlankRoomID rejects a join before any network call.
	ErrBlankRoomID = errors.New("enter a room ID to join")
	// ErrNoRoom is returned by operations that need a resolved room.
	ErrNoRoom = errors.New("create or join a room first")
	// ErrClosed is returned once Run has exited.
	ErrClosed = errors.New("syncclient: client is not running")
)

// RoomService provisions and looks up rooms. *rooms.Client implements it.
type RoomService interface {
	Create(ctx context.Context) (rooms.Room, error)
	Get(ctx context.Context, roomID string) (rooms.Room, error)
}

// Suggester answers explicit autocomplete requests. *autocomplete.Client
// implements it.
type Suggester interface {
	Suggest(ctx context.Context, r autocomplete.Request) (string, error)
}

// Position is a 1-based caret location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// View is the editor widget's side of the document. Both methods are
// called on the event loop and must not block for long.
type View interface {
	// SetDocument replaces the editor's text.
	SetDocument(text string)
	// SetPeers receives a copy of the peer cursor map after it changes.
	SetPeers(peers map[string]Position)
}

type nopView struct{}

func (nopView) SetDocument(string)            {}
func (nopView) SetPeers(map[string]Position) {}

// Config configures a Client. Dialer is required.
type Config struct {
	// ClientID defaults to identity.ClientID().
	ClientID string

	Rooms     RoomService
	Suggester Suggester
	Dialer    Dialer
	View      View

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Language is sent with autocomplete requests. Defaults to python.
	Language string

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Client is one participant. Create it with New and start Run before
// calling any other method.
type Client struct {
	clientID string
	rooms    RoomService
	suggest  Suggester
	dialer   Dialer
	view     View
	clock    clock.Clock
	debounce time.Duration
	language string
	log      zerolog.Logger
	state    *session.State

	events  chan event
	stopped chan struct{}
	started atomic.Bool

	// loopMu is held while loop-owned state is touched, by the loop or
	// by do running inline before Run starts or after it returns.
	loopMu sync.Mutex

	// Loop-owned from here on.
	ctx      context.Context
	att      *attachment
	gen      uint64
	tokens   uint64
	disp     *dispatcher
	presence *presence
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("syncclient: a Dialer is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = identity.ClientID()
	}
	if cfg.View == nil {
		cfg.View = nopView{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	c := &Client{
		clientID: cfg.ClientID,
		rooms:    cfg.Rooms,
		suggest:  cfg.Suggester,
		dialer:   cfg.Dialer,
		view:     cfg.View,
		clock:    cfg.Clock,
		debounce: cfg.Debounce,
		language: cfg.Language,
		log:      log.With().Str("client", cfg.ClientID).Logger(),
		state:    session.New(),
		events:   make(chan event, 64),
		stopped:  make(chan struct{}),
		ctx:      context.Background(),
	}
	c.disp = c.newDispatcher("")
	c.presence = newPresence(c.clientID, c.send, c.view)
	return c, nil
}

// ClientID returns this participant's identifier.
func (c *Client) ClientID() string { return c.clientID }

// Session returns the current session snapshot.
func (c *Client) Session() session.Snapshot { return c.state.Snapshot() }

// Subscribe follows session transitions. See session.State.Subscribe.
func (c *Client) Subscribe() (<-chan session.Snapshot, func()) { return c.state.Subscribe() }

// Run processes events until ctx is cancelled, then closes the live
// channel. It may be called once.
func (c *Client) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("syncclient: Run called twice")
	}
	defer close(c.stopped)
	defer c.shutdown()

	c.log.Debug().Str("module", "syncclient").Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.loopMu.Lock()
			c.handle(ev)
			c.loopMu.Unlock()
		}
	}
}

func (c *Client) shutdown() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.att != nil {
		c.detach()
		c.state.Disconnected()
	}
	c.disp.cancel()
	c.log.Debug().Str("module", "syncclient").Msg("event loop stopped")
}

// Edit records a local change to the full document text.
func (c *Client) Edit(text string) { c.post(editEvent{text: text}) }

// MoveCursor reports the local caret position.
func (c *Client) MoveCursor(line, column int) { c.post(cursorEvent{line: line, column: column}) }

// Connect attaches to roomID, replacing any live channel. If initial
// is non-nil it becomes the document immediately and again once the
// channel opens.
func (c *Client) Connect(roomID string, initial *string) {
	c.post(connectEvent{roomID: roomID, initial: initial})
}

// Disconnect closes the live channel, if any.
func (c *Client) Disconnect() { c.post(disconnectEvent{}) }

// Document returns the current DocumentText.
func (c *Client) Document() string {
	var text string
	c.do(func() { text = c.disp.text })
	return text
}

// Peers returns a copy of the peer cursor map.
func (c *Client) Peers() map[string]Position {
	var peers map[string]Position
	c.do(func() { peers = c.presence.snapshot() })
	return peers
}

// Forget drops a peer's cursor. Nothing in the protocol calls it; it is
// the hook for an explicit peer-leave signal.
func (c *Client) Forget(clientID string) bool {
	var removed bool
	c.do(func() { removed = c.presence.forget(clientID) })
	return removed
}

type event interface{ isEvent() }

type (
	editEvent       struct{ text string }
	cursorEvent     struct{ line, column int }
	connectEvent    struct {
		roomID  string
		initial *string
	}
	disconnectEvent struct{}
	openedEvent     struct {
		gen  uint64
		conn Conn
	}
	frameEvent struct {
		gen  uint64
		data []byte
	}
	closedEvent struct {
		gen uint64
		err error
	}
	flushEvent struct{ token uint64 }
	callEvent  struct {
		fn   func()
		done chan struct{}
	}
)

func (editEvent) isEvent()       {}
func (cursorEvent) isEvent()     {}
func (connectEvent) isEvent()    {}
func (disconnectEvent) isEvent() {}
func (openedEvent) isEvent()     {}
func (frameEvent) isEvent()      {}
func (closedEvent) isEvent()     {}
func (flushEvent) isEvent()      {}
func (callEvent) isEvent()       {}

func (c *Client) handle(ev event) {
	switch ev := ev.(type) {
	case editEvent:
		c.disp.localEdit(ev.text)
	case cursorEvent:
		c.presence.moveLocal(ev.line, ev.column)
	case connectEvent:
		c.connect(ev.roomID, ev.initial)
	case disconnectEvent:
		c.disconnect()
	case openedEvent:
		c.opened(ev)
	case frameEvent:
		c.receive(ev)
	case closedEvent:
		c.closed(ev)
	case flushEvent:
		c.disp.flush(ev.token)
	case callEvent:
		ev.fn()
		close(ev.done)
	}
}

// post queues ev for the loop. It returns false once the loop is gone.
func (c *Client) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

// do runs fn on the loop and waits for it. Before Run starts and after
// it returns fn runs inline under loopMu.
func (c *Client) do(fn func()) bool {
	if !c.started.Load() {
		c.inline(fn)
		return true
	}
	done := make(chan struct{})
	if !c.post(callEvent{fn: fn, done: done}) {
		c.inline(fn)
		return false
	}
	select {
	case <-done:
		return true
	case <-c.stopped:
		select {
		case <-done:
		default:
			c.inline(fn)
		}
		return false
	}
}

func (c *Client) inline(fn func()) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	fn()
}

func (c *Client) running() bool {
	select {
	case <-c.stopped:
		return false
	default:
		return true
	}
}
