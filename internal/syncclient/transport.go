package syncclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open channel to a room. ReadMessage is called from a
// single reader goroutine and WriteMessage from the event loop; Close
// may be called from either.
type Conn interface {
	// ReadMessage blocks for the next frame. It returns an error once
	// the channel is closed from either side.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one frame.
	WriteMessage(data []byte) error

	// Close tears the channel down.
	Close() error
}

// Dialer opens channels addressed by room id.
type Dialer interface {
	Dial(ctx context.Context, roomID string) (Conn, error)
}

// WSDialer dials {BaseURL}/ws/{roomId} with gorilla/websocket.
type WSDialer struct {
	// BaseURL is the ws:// or wss:// root of the relay.
	BaseURL string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with the handshake.
	Header http.Header

	// WriteTimeout bounds each frame write. Zero means 10s.
	WriteTimeout time.Duration
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, roomID string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u := strings.TrimRight(d.BaseURL, "/") + "/ws/" + url.PathEscape(roomID)
	ws, resp, err := dialer.DialContext(ctx, u, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &wsConn{ws: ws, writeTimeout: timeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
