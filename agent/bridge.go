package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sumanthd032/collabtext/internal/protocol"
	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/session"
	"github.com/sumanthd032/collabtext/internal/syncclient"
)

// Frames the agent exchanges with local views in addition to the room
// protocol's code_update and cursor.
const (
	typePeers        protocol.Type = "peers"
	typeStatus       protocol.Type = "status"
	typeCaret        protocol.Type = "caret"
	typeAutocomplete protocol.Type = "autocomplete"
	typeCreate       protocol.Type = "create"
	typeJoin         protocol.Type = "join"
)

type peersFrame struct {
	Type  protocol.Type                  `json:"type"`
	Peers map[string]syncclient.Position `json:"peers"`
}

type statusFrame struct {
	Type protocol.Type `json:"type"`
	session.Snapshot
}

type caretFrame struct {
	Type   protocol.Type `json:"type"`
	Cursor int           `json:"cursor"`
}

type requestFrame struct {
	Cursor int    `json:"cursor"`
	RoomID string `json:"roomId"`
}

// Controller is the part of *syncclient.Client the bridge drives.
type Controller interface {
	Edit(text string)
	MoveCursor(line, column int)
	Autocomplete(ctx context.Context, cursor int) (int, error)
	CreateRoom(ctx context.Context) (rooms.Room, error)
	JoinRoom(ctx context.Context, roomID string) (rooms.Room, error)
	Subscribe() (<-chan session.Snapshot, func())
}

// bridge mirrors a sync client onto the hub's views. It is the
// client's View, so SetDocument and SetPeers run on the client's event
// loop.
type bridge struct {
	hub    *Hub
	client Controller
	ctx    context.Context
	log    zerolog.Logger

	mu     sync.Mutex
	doc    []byte
	peers  []byte
	status []byte
}

func newBridge(ctx context.Context, hub *Hub, log zerolog.Logger) *bridge {
	b := &bridge{hub: hub, ctx: ctx, log: log.With().Str("module", "bridge").Logger()}
	hub.onRegister = b.snapshot
	hub.onMessage = b.handle
	return b
}

func (b *bridge) SetDocument(text string) {
	data, err := protocol.Encode(protocol.CodeUpdate{Code: text})
	if err != nil {
		b.log.Error().Err(err).Msg("encode document")
		return
	}
	b.remember(&b.doc, data)
	b.hub.Broadcast(data)
}

func (b *bridge) SetPeers(peers map[string]syncclient.Position) {
	data, err := json.Marshal(peersFrame{Type: typePeers, Peers: peers})
	if err != nil {
		b.log.Error().Err(err).Msg("encode peers")
		return
	}
	b.remember(&b.peers, data)
	b.hub.Broadcast(data)
}

func (b *bridge) setStatus(s session.Snapshot) {
	data, err := json.Marshal(statusFrame{Type: typeStatus, Snapshot: s})
	if err != nil {
		b.log.Error().Err(err).Msg("encode status")
		return
	}
	b.remember(&b.status, data)
	b.hub.Broadcast(data)
}

// watch forwards session transitions until ctx ends.
func (b *bridge) watch(ctx context.Context) {
	updates, cancel := b.client.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			b.setStatus(s)
		}
	}
}

func (b *bridge) remember(slot *[]byte, data []byte) {
	b.mu.Lock()
	*slot = data
	b.mu.Unlock()
}

// snapshot is what a newly attached view needs to catch up.
func (b *bridge) snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, f := range [][]byte{b.status, b.doc, b.peers} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// handle runs on the sending view's read goroutine.
func (b *bridge) handle(p *peer, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		b.log.Warn().Err(err).Msg("dropping view frame")
		return
	}

	switch f := frame.(type) {
	case protocol.CodeUpdate:
		b.client.Edit(f.Code)
	case protocol.Cursor:
		b.client.MoveCursor(f.LineNumber, f.Column)
	case protocol.Unknown:
		var req requestFrame
		if err := json.Unmarshal(f.Raw, &req); err != nil {
			b.log.Warn().Err(err).Str("type", f.Name).Msg("dropping view frame")
			return
		}
		b.request(p, protocol.Type(f.Name), req)
	default:
		b.log.Debug().Str("type", string(frame.FrameType())).Msg("ignoring view frame")
	}
}

func (b *bridge) request(p *peer, t protocol.Type, req requestFrame) {
	switch t {
	case typeAutocomplete:
		caret, err := b.client.Autocomplete(b.ctx, req.Cursor)
		if err != nil {
			b.log.Warn().Err(err).Msg("autocomplete")
		}
		data, _ := json.Marshal(caretFrame{Type: typeCaret, Cursor: caret})
		b.hub.Send(p, data)
	case typeCreate:
		if _, err := b.client.CreateRoom(b.ctx); err != nil {
			b.log.Warn().Err(err).Msg("create room")
		}
	case typeJoin:
		if _, err := b.client.JoinRoom(b.ctx, req.RoomID); err != nil {
			b.log.Warn().Err(err).Str("room", req.RoomID).Msg("join room")
		}
	default:
		b.log.Debug().Str("type", string(t)).Msg("ignoring view frame")
	}
}
