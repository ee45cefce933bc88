// Package session implements the live chat session engine.
//
// The engine owns one websocket connection to the chat gateway, enforces a
// single active room per session, merges fetched history with streamed
// events into one ordered timeline, and survives transport interruption
// through bounded reconnection. Every state transition runs on one event
// loop goroutine so ordering rules hold without external locking.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
)

// Status is the connection lifecycle state of a session.
type Status string

// Connection states reported to observers.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// RoomKind distinguishes two-party from group conversations.
type RoomKind string

// Room kinds.
const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

// Room identifies one conversation channel.
//
// Counterpart fields are populated for direct rooms and used as the display
// fallback when inbound messages carry no sender identity of their own.
type Room struct {
	ID                   string
	Kind                 RoomKind
	CounterpartID        int64
	CounterpartName      string
	CounterpartAvatarURL string
}

// Message is one timeline entry. Own reports whether the session user sent
// it. SenderName and AvatarURL are only meaningful for group rooms; direct
// rooms fall back to the room counterpart identity.
type Message struct {
	SenderID   int64
	Content    string
	SentAt     time.Time
	RoomID     string
	SenderName string
	AvatarURL  string
	Own        bool
}

// Conn is one live gateway connection. ReadFrame blocks until the next
// inbound frame or a transport error.
type Conn interface {
	ReadFrame() (wire.Frame, error)
	WriteFrame(wire.Frame) error
	Close() error
}

// Dialer establishes authenticated gateway connections.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// TokenSource supplies the bearer credential for transport and REST calls.
// A missing token means the engine must not attempt to connect at all; it
// is never treated as a retryable condition.
type TokenSource interface {
	Token() (string, bool)
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func() (string, bool)

// Token implements TokenSource.
func (f TokenFunc) Token() (string, bool) { return f() }

// StaticToken returns a TokenSource for a fixed credential.
func StaticToken(token string) TokenSource {
	return TokenFunc(func() (string, bool) {
		if token == "" {
			return "", false
		}
		return token, true
	})
}

// RoomResolver resolves a chat target into a room identifier.
type RoomResolver interface {
	ResolveDirectRoom(ctx context.Context, friendID int64) (string, error)
	ResolveGroupRoom(ctx context.Context, groupID int64) (string, error)
}

// HistoryFetcher loads the message backlog for a room. An empty page is a
// valid result; an error leaves the current timeline untouched.
type HistoryFetcher interface {
	FetchPage(ctx context.Context, roomID string) ([]wire.ChatMessage, error)
}

// Reconnection defaults observed by the gateway protocol.
const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = time.Second
)

// Config wires the engine to its collaborators.
type Config struct {
	// SelfID is the authenticated user, used to classify message ownership.
	SelfID   int64
	Dialer   Dialer
	Tokens   TokenSource
	Resolver RoomResolver
	History  HistoryFetcher

	// RetryAttempts bounds reconnection attempts before the session fails.
	// Zero means the default of 5.
	RetryAttempts int
	// RetryDelay is the fixed delay between attempts. Zero means 1s.
	RetryDelay time.Duration

	// OnStatus observes connection state transitions.
	OnStatus func(Status)
	// OnTimeline observes the assembled timeline after every change.
	OnTimeline func(Room, []Message)
	// OnNotice observes non-fatal, user-visible failures.
	OnNotice func(string)
}

// Engine is the chat session engine. Construct with New, drive with Run,
// and issue commands from any goroutine; all effects happen on the run
// loop.
type Engine struct {
	cfg Config

	events chan event
	done   chan struct{}

	// State below is owned by the run loop.
	status   Status
	conn     Conn
	connSeq  uint64
	attempts int
	rooms    roomController
	timeline timeline
	openSeq  uint64
}

// New validates collaborators and builds an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("room resolver is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history fetcher is required")
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Engine{
		cfg:    cfg,
		events: make(chan event, 64),
		done:   make(chan struct{}),
		status: StatusDisconnected,
	}, nil
}

// Status events are delivered in transition order; commands submitted after
// Close or after Run returns are dropped.

// Connect establishes the live connection using the configured credential.
func (e *Engine) Connect() {
	e.enqueue(event{kind: evConnect})
}

// OpenDirect activates the direct conversation with a friend. The room is
// resolved and its backlog fetched asynchronously; results for a target
// that is no longer active are discarded.
func (e *Engine) OpenDirect(friendID int64, name string, avatarURL string) {
	e.enqueue(event{kind: evOpenDirect, target: Room{
		Kind:                 RoomDirect,
		CounterpartID:        friendID,
		CounterpartName:      name,
		CounterpartAvatarURL: avatarURL,
	}})
}

// OpenGroup activates a group conversation.
func (e *Engine) OpenGroup(groupID int64, name string) {
	e.enqueue(event{kind: evOpenGroup, target: Room{
		Kind:            RoomGroup,
		CounterpartID:   groupID,
		CounterpartName: name,
	}})
}

// CloseRoom leaves the active room, if any, and discards its timeline.
func (e *Engine) CloseRoom() {
	e.enqueue(event{kind: evCloseRoom})
}

// Send emits a chat message for the active room. Blank input, a missing
// active room, or a connection that is not live make this a silent no-op;
// the message is never appended locally until the gateway echoes it back.
func (e *Engine) Send(text string) {
	e.enqueue(event{kind: evSend, text: text})
}

// Close tears the session down. The underlying connection is closed exactly
// once; closing an already-closed engine is a no-op.
func (e *Engine) Close() {
	e.enqueue(event{kind: evShutdown})
}

func (e *Engine) enqueue(ev event) {
	select {
	case <-e.done:
	case e.events <- ev:
	}
}
