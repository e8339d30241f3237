// Package relay is the collaboration backend: room provisioning over
// HTTP, the autocomplete endpoint, and a websocket channel per room
// that relays whole-document updates and cursor positions to every
// member, the sender included.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sumanthd032/collabtext/internal/autocomplete"
	"github.com/sumanthd032/collabtext/internal/protocol"
	"github.com/sumanthd032/collabtext/internal/rooms"
	"github.com/sumanthd032/collabtext/internal/store"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
	maxBodySize  = 1 << 20
)

// Server serves the relay endpoints.
type Server struct {
	store    store.Store
	broker   Broker
	log      zerolog.Logger
	upgrader websocket.Upgrader
	newID    func() string

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// Option customizes a Server.
type Option func(*Server)

// WithIDs replaces the uuid room id generator.
func WithIDs(newID func() string) Option {
	return func(s *Server) { s.newID = newID }
}

func New(st store.Store, broker Broker, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  st,
		broker: broker,
		log:    log.With().Str("module", "relay").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newID: uuid.NewString,
		conns: make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, CORS-enabled HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/", s.health).Methods(http.MethodGet)
	r.HandleFunc("/rooms/", s.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}", s.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/autocomplete/", s.autocomplete).Methods(http.MethodPost)
	r.HandleFunc("/ws/{roomId}", s.serveWs).Methods(http.MethodGet)
	return cors(r)
}

// Close drops every live websocket. http.Server.Shutdown does not
// track hijacked connections.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ws := range s.conns {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend is running"})
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.Create(r.Context(), s.newID())
	if err != nil {
		s.log.Error().Err(err).Msg("create room")
		writeJSON(w, http.StatusInternalServerError, detail("failed to create room"))
		return
	}
	s.log.Info().Str("room", room.ID).Msg("room created")
	writeJSON(w, http.StatusOK, rooms.Room{RoomID: room.ID, Code: room.Code})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["roomId"]
	room, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrRoomNotFound) {
		writeJSON(w, http.StatusNotFound, detail("Room not found"))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("room", id).Msg("get room")
		writeJSON(w, http.StatusInternalServerError, detail("failed to load room"))
		return
	}
	writeJSON(w, http.StatusOK, rooms.Room{RoomID: room.ID, Code: room.Code})
}

func (s *Server) autocomplete(w http.ResponseWriter, r *http.Request) {
	var req autocomplete.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("invalid request body"))
		return
	}
	writeJSON(w, http.StatusOK, autocomplete.Response{
		Suggestion: autocomplete.Suggest(req.Code, req.CursorPosition, req.Language),
	})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	log := s.log.With().Str("room", roomID).Logger()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	if !s.track(ws) {
		closeWith(ws, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before reading the document so nothing published in
	// between is lost.
	sub, err := s.broker.Subscribe(ctx, channelName(roomID))
	if err != nil {
		log.Error().Err(err).Msg("subscribe")
		closeWith(ws, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer sub.Close()

	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, store.ErrRoomNotFound) {
			log.Error().Err(err).Msg("load room")
		}
		closeWith(ws, websocket.CloseNormalClosure, "")
		return
	}

	first, err := protocol.Encode(protocol.Init{Code: room.Code})
	if err != nil {
		log.Error().Err(err).Msg("encode init")
		closeWith(ws, websocket.CloseInternalServerErr, "")
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, first); err != nil {
		log.Debug().Err(err).Msg("write init")
		_ = ws.Close()
		return
	}
	log.Info().Msg("member joined")

	go writePump(ws, sub, log)
	s.readPump(ctx, ws, roomID, log)
	log.Info().Msg("member left")
}

// readPump handles inbound frames until the member disconnects.
func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, roomID string, log zerolog.Logger) {
	defer ws.Close()
	ws.SetReadLimit(maxFrameSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("read")
			}
			return
		}
		s.handleFrame(ctx, roomID, data, log)
	}
}

func (s *Server) handleFrame(ctx context.Context, roomID string, data []byte, log zerolog.Logger) {
	frame, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch f := frame.(type) {
	case protocol.CodeUpdate:
		if err := s.store.SaveCode(ctx, roomID, f.Code); err != nil {
			log.Error().Err(err).Msg("save code")
		}
		s.publish(ctx, roomID, f, log)
	case protocol.Cursor:
		if !f.Complete() {
			return
		}
		s.publish(ctx, roomID, f, log)
	default:
		log.Debug().Str("type", string(frame.FrameType())).Msg("ignoring frame")
	}
}

func (s *Server) publish(ctx context.Context, roomID string, f protocol.Frame, log zerolog.Logger) {
	data, err := protocol.Encode(f)
	if err != nil {
		log.Error().Err(err).Msg("encode frame")
		return
	}
	if err := s.broker.Publish(ctx, channelName(roomID), data); err != nil {
		log.Error().Err(err).Msg("publish")
	}
}

// writePump is the only writer once init has been sent. It ends when
// the subscription closes or a write fails.
func writePump(ws *websocket.Conn, sub Subscription, log zerolog.Logger) {
	defer ws.Close()
	for data := range sub.Messages() {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("write")
			return
		}
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[ws] = struct{}{}
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, ws)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	_ = ws.Close()
}

type errorBody struct {
	Detail string `json:"detail"`
}

func detail(msg string) errorBody { return errorBody{Detail: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
