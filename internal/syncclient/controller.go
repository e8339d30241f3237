package syncclient

import (
	"context"
	"errors"
	"strings"

	"github.com/sumanthd032/collabtext/internal/autocomplete"
	"github.com/sumanthd032/collabtext/internal/rooms"
)

var errNoRoomService = errors.New("syncclient: no room service configured")

// CreateRoom provisions a new room and attaches to it.
func (c *Client) CreateRoom(ctx context.Context) (rooms.Room, error) {
	if !c.running() {
		return rooms.Room{}, ErrClosed
	}
	if c.rooms == nil {
		return rooms.Room{}, errNoRoomService
	}

	c.do(c.state.BeginLoading)
	room, err := c.rooms.Create(ctx)
	if err != nil {
		c.log.Warn().Str("module", "syncclient.controller").Err(err).Msg("create room failed")
		c.do(func() { c.state.Fail(err.Error()) })
		return rooms.Room{}, err
	}

	c.log.Info().Str("module", "syncclient.controller").Str("room", room.RoomID).Msg("created room")
	c.resolved(room)
	return room, nil
}

// JoinRoom attaches to an existing room. A blank id is rejected with
// ErrBlankRoomID before anything else happens.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (rooms.Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return rooms.Room{}, ErrBlankRoomID
	}
	if !c.running() {
		return rooms.Room{}, ErrClosed
	}
	if c.rooms == nil {
		return rooms.Room{}, errNoRoomService
	}

	c.do(c.state.BeginLoading)
	room, err := c.rooms.Get(ctx, roomID)
	if err != nil {
		c.log.Warn().Str("module", "syncclient.controller").Str("room", roomID).Err(err).Msg("join room failed")
		c.do(func() { c.state.Fail(err.Error()) })
		return rooms.Room{}, err
	}

	c.log.Info().Str("module", "syncclient.controller").Str("room", room.RoomID).Msg("joined room")
	c.resolved(room)
	return room, nil
}

func (c *Client) resolved(room rooms.Room) {
	code := room.Code
	c.do(func() {
		c.state.RoomResolved(room.RoomID)
		c.connect(room.RoomID, &code)
	})
}

// Autocomplete asks the suggester for a completion of the word ending
// at cursor (a rune offset into the document). A match replaces the
// word, is broadcast at once, and the new caret offset is returned.
// Without a match the cursor is returned unchanged.
func (c *Client) Autocomplete(ctx context.Context, cursor int) (int, error) {
	if c.suggest == nil {
		return cursor, errors.New("syncclient: autocomplete is not configured")
	}
	if c.state.Snapshot().RoomID == "" {
		return cursor, ErrNoRoom
	}

	text := c.Document()
	suggestion, err := c.suggest.Suggest(ctx, autocomplete.Request{
		Code:           text,
		CursorPosition: cursor,
		Language:       c.language,
	})
	if err != nil {
		c.log.Warn().Str("module", "syncclient.controller").Err(err).Msg("autocomplete failed")
		return cursor, err
	}
	if suggestion == "" {
		return cursor, nil
	}

	updated, caret := autocomplete.Apply(text, cursor, suggestion)
	c.do(func() {
		if c.disp.replace(updated) {
			c.log.Debug().Str("module", "syncclient.controller").Msg("sent code_update after autocomplete")
		}
	})
	return caret, nil
}
