// Package history is the request/response client for chat backlog and room
// resolution. The session engine consumes it through small interfaces so a
// failing fetch never corrupts engine state.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/session"
	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
	"github.com/DANG-PH/NgocRongOnline/internal/platform/timeouts"
)

// Client calls the gateway chat REST surface with a bearer credential.
type Client struct {
	baseURL    string
	tokens     session.TokenSource
	httpClient *http.Client
}

// NewClient builds a history client for the gateway base URL.
func NewClient(baseURL string, tokens session.TokenSource) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeouts.RESTRequest,
		},
	}, nil
}

type resolveDirectRequest struct {
	FriendID int64 `json:"friendId"`
}

type resolveGroupRequest struct {
	GroupID int64 `json:"groupId"`
}

type resolveResponse struct {
	RoomID string `json:"roomId"`
}

type messagePage struct {
	Message []wire.ChatMessage `json:"message"`
}

// ResolveDirectRoom returns the room id for a two-party conversation,
// creating the room when it does not exist yet.
func (c *Client) ResolveDirectRoom(ctx context.Context, friendID int64) (string, error) {
	return c.resolveRoom(ctx, "/chat/1-1", resolveDirectRequest{FriendID: friendID})
}

// ResolveGroupRoom returns the room id for a group conversation.
func (c *Client) ResolveGroupRoom(ctx context.Context, groupID int64) (string, error) {
	return c.resolveRoom(ctx, "/chat/group", resolveGroupRequest{GroupID: groupID})
}

func (c *Client) resolveRoom(ctx context.Context, path string, payload any) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", errors.New("history client is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal room request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build room request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("resolve room status %d", resp.StatusCode)
	}

	var decoded resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode room response: %w", err)
	}
	roomID := strings.TrimSpace(decoded.RoomID)
	if roomID == "" {
		return "", errors.New("room response has no room id")
	}
	return roomID, nil
}

// FetchPage returns the stored backlog for a room, oldest first. A room
// with no prior messages yields an empty page, and a malformed body is
// treated the same way rather than failing the room switch.
func (c *Client) FetchPage(ctx context.Context, roomID string) ([]wire.ChatMessage, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("history client is not configured")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, errors.New("room id is required")
	}

	endpoint := c.baseURL + "/chat/message?roomId=" + url.QueryEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch history status %d", resp.StatusCode)
	}

	var page messagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		log.Printf("chat history: malformed page for room %s: %v", roomID, err)
		return nil, nil
	}
	return page.Message, nil
}

func (c *Client) authorize(req *http.Request) error {
	token, ok := c.tokens.Token()
	if !ok {
		return errors.New("bearer token is required")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
