// Package storage defines the persistence contracts for the chat gateway:
// rooms, their message logs, the user directory, and friend relations.
package storage

import "time"

// Room kinds persisted with each room row.
const (
	RoomKindDirect = "direct"
	RoomKindGroup  = "group"
)

// Room is one conversation channel. Key is the deterministic lookup key a
// target resolves to, so resolving the same pair or group twice returns the
// same room.
type Room struct {
	RoomID    string
	Kind      string
	Key       string
	CreatedAt time.Time
}

// Message is one persisted chat message. Seq is assigned by storage in
// insert order per room and never leaves the gateway.
type Message struct {
	Seq        int64
	RoomID     string
	SenderID   int64
	SenderName string
	AvatarURL  string
	Content    string
	SentAt     time.Time
}

// User is one directory account.
type User struct {
	UserID    int64
	Realname  string
	AvatarURL string
}

// Relation statuses for friend rows.
const (
	RelationPending  = 0
	RelationAccepted = 1
)

// Relation is one directed friend edge from UserID to FriendID.
type Relation struct {
	RelationID int64
	UserID     int64
	FriendID   int64
	Status     int
	CreatedAt  time.Time
}

// Group is one group conversation in the directory.
type Group struct {
	GroupID   int64
	GroupName string
	AvatarURL string
}
