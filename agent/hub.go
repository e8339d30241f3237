package main

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// peer is one local editor view attached to the agent.
type peer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the set of attached views and broadcasts frames to them.
// onRegister supplies the frames a new view needs to catch up;
// onMessage handles frames a view sends.
type Hub struct {
	peers      map[*peer]bool
	broadcast  chan []byte
	register   chan *peer
	unregister chan *peer
	direct     chan directMessage
	done       chan struct{}

	onRegister func() [][]byte
	onMessage  func(p *peer, data []byte)
	log        zerolog.Logger
}

func newHub(log zerolog.Logger) *Hub {
	return &Hub{
		peers:      make(map[*peer]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		onRegister: func() [][]byte { return nil },
		onMessage:  func(*peer, []byte) {},
		log:        log.With().Str("module", "hub").Logger(),
	}
}

type directMessage struct {
	to  *peer
	msg []byte
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for p := range h.peers {
				delete(h.peers, p)
				close(p.send)
			}
			return
		case p := <-h.register:
			h.peers[p] = true
			for _, msg := range h.onRegister() {
				p.send <- msg
			}
			h.log.Info().Int("views", len(h.peers)).Msg("view registered")
		case p := <-h.unregister:
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				close(p.send)
				h.log.Info().Int("views", len(h.peers)).Msg("view unregistered")
			}
		case d := <-h.direct:
			if _, ok := h.peers[d.to]; ok {
				select {
				case d.to.send <- d.msg:
				default:
				}
			}
		case message := <-h.broadcast:
			for p := range h.peers {
				select {
				case p.send <- message:
				default:
					close(p.send)
					delete(h.peers, p)
				}
			}
		}
	}
}

// Broadcast queues msg for every view. It is a no-op once the hub has
// stopped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Send delivers msg to a single view if it is still registered.
func (h *Hub) Send(to *peer, msg []byte) {
	select {
	case h.direct <- directMessage{to: to, msg: msg}:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- p:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go p.writePump()
	go p.readPump(h)
}

func (p *peer) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- p:
		case <-h.done:
		}
		p.conn.Close()
	}()
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			break
		}
		h.onMessage(p, message)
	}
}

// writePump drains send until the hub closes it, then says goodbye.
func (p *peer) writePump() {
	defer p.conn.Close()
	for message := range p.send {
		if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
