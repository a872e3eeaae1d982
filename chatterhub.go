// Package chatterhub is the Go client for the ChatterHub chat service.
//
// It covers the HTTP room API and the real-time websocket surface: a
// reconnecting connection, local session state, and a durable offline
// queue replayed in order when the connection comes back.
//
// Example:
//
//	client := chatterhub.NewClient("http://localhost:5000")
//	rooms, _ := client.Rooms(ctx)
//
//	rt := client.Realtime(nil)
//	store, _ := chatterhub.OpenStore(dir)
//	session := chatterhub.NewSession(rt, store, store, nil)
//	session.Bind(rt)
//	chatterhub.NewSyncCoordinator(store, rt, session, logger).Bind(rt)
//
//	rt.Connect(ctx)
//	session.SetIdentity(ctx, "alice")
//	session.JoinRoom(ctx, "general")
//	session.ComposeMessage(ctx, "hello")
package chatterhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the ChatterHub HTTP API: room listing, creation and
// private-room key checks. The real-time surface hangs off Realtime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = logger }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Realtime builds the real-time connection for this client's server.
func (c *Client) Realtime(config *RealtimeConfig) *Realtime {
	if config == nil {
		config = &RealtimeConfig{AutoReconnect: true, Logger: c.log}
	}
	return NewRealtime(c.baseURL, config)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Code:    fmt.Sprintf("%d", resp.StatusCode),
			Message: strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Room API
// ============================================================================

// RoomInfo is one entry in the room listing.
type RoomInfo struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

// RoomStatus reports a room's existence, privacy and occupancy.
type RoomStatus struct {
	Exists    bool `json:"exists"`
	Private   bool `json:"private"`
	UserCount int  `json:"user_count"`
}

type roomActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Rooms lists all rooms on the server.
func (c *Client) Rooms(ctx context.Context) ([]RoomInfo, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/rooms", nil)
	if err != nil {
		return nil, err
	}
	var rooms []RoomInfo
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rooms, nil
}

// CheckRoom returns the status of a room by name.
func (c *Client) CheckRoom(ctx context.Context, room string) (*RoomStatus, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/check_room/"+url.PathEscape(room), nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[RoomStatus](data)
}

// CreateRoom creates a room. key is required when isPrivate is set and
// ignored otherwise.
func (c *Client) CreateRoom(ctx context.Context, name string, isPrivate bool, key string) error {
	data, err := c.doRequest(ctx, http.MethodPost, "/create_room", map[string]any{
		"name":      name,
		"isPrivate": isPrivate,
		"key":       key,
	})
	if err != nil {
		return err
	}
	result, err := decodeJSON[roomActionResult](data)
	if err != nil {
		return err
	}
	if !result.Success {
		return &APIError{Code: "create_room_failed", Message: result.Message}
	}
	return nil
}

// JoinPrivate verifies the access key for a private room. A nil error
// means the key was accepted; the websocket join may follow.
func (c *Client) JoinPrivate(ctx context.Context, room, key string) error {
	data, err := c.doRequest(ctx, http.MethodPost, "/join_private", map[string]any{
		"room": room,
		"key":  key,
	})
	if err != nil {
		return err
	}
	result, err := decodeJSON[roomActionResult](data)
	if err != nil {
		return err
	}
	if !result.Success {
		return &APIError{Code: "join_private_failed", Message: result.Message}
	}
	return nil
}
