// Package syncclient is the synchronization core of a collabtext
// participant. It turns local editor events and the room's frame stream
// into one shared view of the document and of peer cursors.
//
// # Components
//
// A Client bundles five parts that share one event loop:
//
//   - Room Session Controller (CreateRoom, JoinRoom): resolves a room
//     through the provisioning service and hands it to the manager.
//   - Connection Manager (Connect, Disconnect): owns the single live
//     channel, tags every attachment with a generation, and routes
//     inbound frames.
//   - Sync Dispatcher: holds DocumentText, debounces outbound
//     code_update frames on a trailing edge and applies inbound
//     init/code_update frames wholesale.
//   - Presence Tracker: sends local cursor moves immediately and keeps
//     the last reported position of every peer.
//   - Session State: the observable status, see package session.
//
// # Execution model
//
// Every input (edits, cursor moves, dial results, frames, socket
// closes, timer fires) is posted as an event to one queue and handled
// to completion by Run. Document, peer map, attachment and timer are
// touched only from that goroutine while it runs; before Run starts and
// after it returns, reads run inline under a mutex. Blocking work
// (HTTP, dial, reads) runs elsewhere and reports back by posting.
//
// # Consistency
//
// Conflicts resolve by whole-document last-writer-wins: frames carry no
// sequence numbers or clocks, so two participants typing at once can
// overwrite each other's unsent keystrokes. A participant's own
// broadcast may come back from the relay and is re-applied; this is
// idempotent when nothing was typed in between.
package syncclient
