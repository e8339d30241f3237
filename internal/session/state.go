// Package session holds the observable connection state of a sync
// client: which room it is in, whether its channel is up, and the last
// provisioning error.
//
// State is written only through the named transitions below. Observers
// take snapshots or subscribe; they never mutate.
package session

import "sync"

// Status is the coarse lifecycle of a client.
type Status string

const (
	Idle      Status = "idle"
	Loading   Status = "loading"
	Connected Status = "connected"
	Error     Status = "error"
)

// Snapshot is an immutable copy of the state. Err is non-empty only
// when Status is Error.
type Snapshot struct {
	Status Status `json:"status"`
	RoomID string `json:"roomId,omitempty"`
	Err    string `json:"error,omitempty"`
}

// State is safe for concurrent use.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[chan Snapshot]struct{}
}

// New returns a State in the Idle status with no room.
func New() *State {
	return &State{
		snap: Snapshot{Status: Idle},
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a channel that receives the latest snapshot after
// every transition, starting with the current one. Slow readers only
// ever see the most recent value. Call cancel to release it.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.snap
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// BeginLoading marks a room-acquisition request as in flight.
func (s *State) BeginLoading() {
	s.set(func(snap *Snapshot) {
		snap.Status = Loading
	})
}

// RoomResolved records a successful create or join.
func (s *State) RoomResolved(roomID string) {
	s.set(func(snap *Snapshot) {
		snap.Status = Connected
		snap.RoomID = roomID
	})
}

// Fail records a provisioning failure.
func (s *State) Fail(msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	s.set(func(snap *Snapshot) {
		snap.Status = Error
		snap.Err = msg
	})
}

// Connected marks the channel as open.
func (s *State) Connected() {
	s.set(func(snap *Snapshot) {
		snap.Status = Connected
	})
}

// Disconnected marks the channel as closed. The room id is kept so the
// session can be re-joined.
func (s *State) Disconnected() {
	s.set(func(snap *Snapshot) {
		snap.Status = Idle
	})
}

// set applies fn, clears Err unless the result is Error, and notifies
// subscribers.
func (s *State) set(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.snap)
	if s.snap.Status != Error {
		s.snap.Err = ""
	}

	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}
