// Package protocol defines the JSON frames exchanged over a room's
// real-time channel. Every frame is an object with a "type"
// discriminator; Decode turns it into one of a closed set of variants.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the value of a frame's "type" field.
type Type string

const (
	TypeInit       Type = "init"        // full snapshot, server to client on connect
	TypeCodeUpdate Type = "code_update" // full document replacement, both directions
	TypeCursor     Type = "cursor"      // peer cursor position, both directions
)

// ErrMissingType is returned by Decode for objects without a string
// "type" field.
var ErrMissingType = errors.New("protocol: frame has no type")

// Frame is one decoded message. The concrete type is one of Init,
// CodeUpdate, Cursor or Unknown.
type Frame interface {
	FrameType() Type
}

// Init carries the room's current document to a newly attached client.
type Init struct {
	Code string
}

// CodeUpdate replaces the whole document.
type CodeUpdate struct {
	Code string
}

// Cursor reports where a participant's caret is. Line and column are
// 1-based.
type Cursor struct {
	ClientID   string
	LineNumber int
	Column     int

	// partial is set when the wire frame lacked lineNumber or column.
	partial bool
}

// Complete reports whether the frame carried a client id and both
// coordinates.
func (c Cursor) Complete() bool { return c.ClientID != "" && !c.partial }

// Unknown is a well-formed frame with an unrecognized type. It is a
// valid outcome, not an error.
type Unknown struct {
	Name string
	Raw  []byte
}

func (Init) FrameType() Type       { return TypeInit }
func (CodeUpdate) FrameType() Type { return TypeCodeUpdate }
func (Cursor) FrameType() Type     { return TypeCursor }
func (u Unknown) FrameType() Type  { return Type(u.Name) }

// envelope is the union of all wire fields.
type envelope struct {
	Type       string  `json:"type"`
	Code       *string `json:"code,omitempty"`
	ClientID   *string `json:"clientId,omitempty"`
	LineNumber *int    `json:"lineNumber,omitempty"`
	Column     *int    `json:"column,omitempty"`
}

// Decode parses a single frame. Non-JSON payloads and objects without
// a type are errors; unrecognized types decode to Unknown.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch Type(env.Type) {
	case TypeInit:
		return Init{Code: deref(env.Code)}, nil
	case TypeCodeUpdate:
		return CodeUpdate{Code: deref(env.Code)}, nil
	case TypeCursor:
		c := Cursor{partial: env.LineNumber == nil || env.Column == nil}
		if env.ClientID != nil {
			c.ClientID = *env.ClientID
		}
		if env.LineNumber != nil {
			c.LineNumber = *env.LineNumber
		}
		if env.Column != nil {
			c.Column = *env.Column
		}
		return c, nil
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return Unknown{Name: env.Type, Raw: raw}, nil
	}
}

// Encode renders a frame in its wire shape.
func Encode(f Frame) ([]byte, error) {
	switch f := f.(type) {
	case Init:
		return json.Marshal(codeFrame{Type: TypeInit, Code: f.Code})
	case CodeUpdate:
		return json.Marshal(codeFrame{Type: TypeCodeUpdate, Code: f.Code})
	case Cursor:
		return json.Marshal(cursorFrame{
			Type:       TypeCursor,
			ClientID:   f.ClientID,
			LineNumber: f.LineNumber,
			Column:     f.Column,
		})
	case Unknown:
		if len(f.Raw) == 0 {
			return nil, fmt.Errorf("protocol: cannot encode empty %q frame", f.Name)
		}
		return f.Raw, nil
	default:
		return nil, fmt.Errorf("protocol: unsupported frame %T", f)
	}
}

type codeFrame struct {
	Type Type   `json:"type"`
	Code string `json:"code"`
}

type cursorFrame struct {
	Type       Type   `json:"type"`
	ClientID   string `json:"clientId"`
	LineNumber int    `json:"lineNumber"`
	Column     int    `json:"column"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
