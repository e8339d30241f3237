package syncclient

import "github.com/sumanthd032/collabtext/internal/protocol"

// presence tracks peer carets. Entries are only ever overwritten; a
// peer that leaves keeps its last position until forget is called.
type presence struct {
	self  string
	peers map[string]Position
	send  func(protocol.Frame) bool
	view  View
}

func newPresence(self string, send func(protocol.Frame) bool, view View) *presence {
	return &presence{
		self:  self,
		peers: make(map[string]Position),
		send:  send,
		view:  view,
	}
}

// moveLocal publishes the local caret right away if a channel is open.
func (p *presence) moveLocal(line, column int) bool {
	return p.send(protocol.Cursor{ClientID: p.self, LineNumber: line, Column: column})
}

// apply records a peer's caret. Frames without a client id, and our own
// echoes, are discarded.
func (p *presence) apply(f protocol.Cursor) bool {
	if f.ClientID == "" || f.ClientID == p.self {
		return false
	}
	p.peers[f.ClientID] = Position{Line: f.LineNumber, Column: f.Column}
	p.view.SetPeers(p.snapshot())
	return true
}

func (p *presence) forget(clientID string) bool {
	if _, ok := p.peers[clientID]; !ok {
		return false
	}
	delete(p.peers, clientID)
	p.view.SetPeers(p.snapshot())
	return true
}

func (p *presence) snapshot() map[string]Position {
	out := make(map[string]Position, len(p.peers))
	for id, pos := range p.peers {
		out[id] = pos
	}
	return out
}
