// Package directory is the REST client for the social directory: friends,
// friend requests, groups, and user discovery. The chat engine only reads
// identifiers from these listings to pick chat targets; all mutation here
// is plain CRUD glue.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/session"
	"github.com/DANG-PH/NgocRongOnline/internal/platform/timeouts"
)

// Friend is one accepted relationship, described from the caller's side.
type Friend struct {
	FriendID       int64  `json:"friendId"`
	FriendRealname string `json:"friendRealname"`
	AvatarURL      string `json:"avatarUrl"`
	Status         int    `json:"status"`
}

// FriendRequest is one pending relationship, sent or received.
type FriendRequest struct {
	RelationID     int64  `json:"relationId"`
	FriendID       int64  `json:"friendId"`
	FriendRealname string `json:"friendRealname"`
	AvatarURL      string `json:"avatarUrl"`
	Status         int    `json:"status"`
	CreatedAt      string `json:"create_at"`
}

// User is one discoverable account.
type User struct {
	UserID    int64  `json:"userId"`
	Realname  string `json:"realname"`
	AvatarURL string `json:"avatarUrl"`
}

// Group is one group conversation the caller belongs to.
type Group struct {
	GroupID   int64  `json:"groupId"`
	GroupName string `json:"groupName"`
	AvatarURL string `json:"avatarUrl"`
}

type friendListing struct {
	FriendInfo []Friend `json:"friendInfo"`
}

type requestListing struct {
	RelationFriendInfo []FriendRequest `json:"relationFriendInfo"`
}

type userListing struct {
	UserTraVe []User `json:"userTraVe"`
}

type groupListing struct {
	GroupInfo []Group `json:"groupInfo"`
}

// Client calls the directory REST surface with a bearer credential.
type Client struct {
	baseURL    string
	tokens     session.TokenSource
	httpClient *http.Client
}

// NewClient builds a directory client for the backend base URL.
func NewClient(baseURL string, tokens session.TokenSource) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("directory base url is required")
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

// Friends lists accepted relationships.
func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	var listing friendListing
	if err := c.get(ctx, "/social_network/all-friend", &listing); err != nil {
		return nil, err
	}
	return listing.FriendInfo, nil
}

// SentRequests lists pending requests the caller initiated.
func (c *Client) SentRequests(ctx context.Context) ([]FriendRequest, error) {
	var listing requestListing
	if err := c.get(ctx, "/social_network/sent-friend", &listing); err != nil {
		return nil, err
	}
	return listing.RelationFriendInfo, nil
}

// IncomingRequests lists pending requests awaiting the caller's decision.
func (c *Client) IncomingRequests(ctx context.Context) ([]FriendRequest, error) {
	var listing requestListing
	if err := c.get(ctx, "/social_network/incoming-friend", &listing); err != nil {
		return nil, err
	}
	return listing.RelationFriendInfo, nil
}

// Groups lists group conversations the caller belongs to.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var listing groupListing
	if err := c.get(ctx, "/social_network/all-group", &listing); err != nil {
		return nil, err
	}
	return listing.GroupInfo, nil
}

// Users lists all discoverable accounts.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var listing userListing
	if err := c.get(ctx, "/auth/all-user", &listing); err != nil {
		return nil, err
	}
	return listing.UserTraVe, nil
}

// AddFriend sends a friend request.
func (c *Client) AddFriend(ctx context.Context, friendID int64) error {
	return c.mutate(ctx, http.MethodPost, "/social_network/add-friend", map[string]int64{"friendId": friendID})
}

// AcceptFriend accepts a pending incoming request.
func (c *Client) AcceptFriend(ctx context.Context, relationID int64) error {
	return c.mutate(ctx, http.MethodPatch, "/social_network/accept-friend", map[string]int64{"relationId": relationID})
}

// RejectFriend declines a pending incoming request.
func (c *Client) RejectFriend(ctx context.Context, relationID int64) error {
	return c.mutate(ctx, http.MethodDelete, "/social_network/reject-friend", map[string]int64{"relationId": relationID})
}

// Unfriend removes an accepted relationship.
func (c *Client) Unfriend(ctx context.Context, friendID int64) error {
	return c.mutate(ctx, http.MethodDelete, "/social_network/unfriend", map[string]int64{"friendId": friendID})
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	if c == nil || c.httpClient == nil {
		return errors.New("directory client is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call directory: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("directory status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, method string, path string, payload any) error {
	if c == nil || c.httpClient == nil {
		return errors.New("directory client is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal directory request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call directory: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("directory status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	token, ok := c.tokens.Token()
	if !ok {
		return errors.New("bearer token is required")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
