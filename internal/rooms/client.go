// Package rooms is the HTTP client for the room provisioning service.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrCreateFailed is returned when the service rejects a create.
	ErrCreateFailed = errors.New("failed to create room")
	// ErrNotFound is returned for any non-2xx answer to a join.
	ErrNotFound = errors.New("room not found")
)

// Room is the provisioning service's view of a room.
type Room struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// Client talks to POST /rooms/ and GET /rooms/{roomId}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client rooted at baseURL (for example
// "http://127.0.0.1:8000"). A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Create provisions a new, empty room.
func (c *Client) Create(ctx context.Context) (Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms/", nil)
	if err != nil {
		return Room{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	room, status, err := c.do(req)
	if err != nil {
		return Room{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	if status/100 != 2 {
		return Room{}, fmt.Errorf("%w: status %d", ErrCreateFailed, status)
	}
	return room, nil
}

// Get fetches an existing room's snapshot.
func (c *Client) Get(ctx context.Context, roomID string) (Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rooms/"+url.PathEscape(roomID), nil)
	if err != nil {
		return Room{}, fmt.Errorf("join room: %w", err)
	}

	room, status, err := c.do(req)
	if err != nil {
		return Room{}, fmt.Errorf("join room: %w", err)
	}
	if status/100 != 2 {
		return Room{}, fmt.Errorf("%w (status %d)", ErrNotFound, status)
	}
	return room, nil
}

func (c *Client) do(req *http.Request) (Room, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Room{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Room{}, resp.StatusCode, nil
	}

	var room Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return Room{}, resp.StatusCode, fmt.Errorf("decode room: %w", err)
	}
	if room.RoomID == "" {
		return Room{}, resp.StatusCode, errors.New("response has no roomId")
	}
	return room, resp.StatusCode, nil
}
