// Package sqlite provides the SQLite-backed gateway storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage/sqlite/migrations"
	sqlitemigrate "github.com/DANG-PH/NgocRongOnline/internal/platform/storage/sqlitemigrate"
)

// ErrNotFound reports a missing row for lookups that require one.
var ErrNotFound = errors.New("not found")

// Store persists gateway state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite gateway store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func directRoomKey(a int64, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("d:%d:%d", a, b)
}

func groupRoomKey(groupID int64) string {
	return fmt.Sprintf("g:%d", groupID)
}

// EnsureDirectRoom returns the room for a user pair, creating it on first
// use. Both orderings of the pair resolve to the same room.
func (s *Store) EnsureDirectRoom(ctx context.Context, userID int64, friendID int64) (storage.Room, error) {
	if userID == friendID {
		return storage.Room{}, fmt.Errorf("direct room requires two distinct users")
	}
	return s.ensureRoom(ctx, storage.RoomKindDirect, directRoomKey(userID, friendID))
}

// EnsureGroupRoom returns the room for a group, creating it on first use.
func (s *Store) EnsureGroupRoom(ctx context.Context, groupID int64) (storage.Room, error) {
	return s.ensureRoom(ctx, storage.RoomKindGroup, groupRoomKey(groupID))
}

func (s *Store) ensureRoom(ctx context.Context, kind string, key string) (storage.Room, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Room{}, err
	}

	if room, err := s.roomByKey(ctx, key); err == nil {
		return room, nil
	} else if !errors.Is(err, ErrNotFound) {
		return storage.Room{}, err
	}

	room := storage.Room{
		RoomID:    uuid.NewString(),
		Kind:      kind,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO rooms (room_id, kind, room_key, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(room_key) DO NOTHING`,
		room.RoomID,
		room.Kind,
		room.Key,
		toMillis(room.CreatedAt),
	)
	if err != nil {
		return storage.Room{}, fmt.Errorf("create room: %w", err)
	}
	// Re-read so a concurrent creator's row wins over ours.
	return s.roomByKey(ctx, key)
}

func (s *Store) roomByKey(ctx context.Context, key string) (storage.Room, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT room_id, kind, room_key, created_at FROM rooms WHERE room_key = ?`,
		key,
	)
	return scanRoom(row)
}

// Room returns one room by id.
func (s *Store) Room(ctx context.Context, roomID string) (storage.Room, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Room{}, err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return storage.Room{}, fmt.Errorf("room id is required")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT room_id, kind, room_key, created_at FROM rooms WHERE room_id = ?`,
		roomID,
	)
	return scanRoom(row)
}

func scanRoom(row *sql.Row) (storage.Room, error) {
	var room storage.Room
	var createdAt int64
	err := row.Scan(&room.RoomID, &room.Kind, &room.Key, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Room{}, ErrNotFound
		}
		return storage.Room{}, fmt.Errorf("scan room: %w", err)
	}
	room.CreatedAt = fromMillis(createdAt)
	return room, nil
}

// AppendMessage persists one message and returns it with the assigned
// per-room sequence.
func (s *Store) AppendMessage(ctx context.Context, msg storage.Message) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	msg.RoomID = strings.TrimSpace(msg.RoomID)
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.RoomID == "" {
		return storage.Message{}, fmt.Errorf("room id is required")
	}
	if msg.Content == "" {
		return storage.Message{}, fmt.Errorf("content is required")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (room_id, sender_id, sender_name, avatar_url, content, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.RoomID,
		msg.SenderID,
		msg.SenderName,
		msg.AvatarURL,
		msg.Content,
		toMillis(msg.SentAt),
	)
	if err != nil {
		return storage.Message{}, fmt.Errorf("append message: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		msg.Seq = seq
	}
	return msg, nil
}

// Messages returns a room's log in send order, oldest first.
func (s *Store) Messages(ctx context.Context, roomID string) ([]storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, fmt.Errorf("room id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, room_id, sender_id, sender_name, avatar_url, content, sent_at
		 FROM messages WHERE room_id = ? ORDER BY seq ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []storage.Message
	for rows.Next() {
		var msg storage.Message
		var sentAt int64
		if err := rows.Scan(&msg.Seq, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.AvatarURL, &msg.Content, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SentAt = fromMillis(sentAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// UpsertUser stores or refreshes one directory account.
func (s *Store) UpsertUser(ctx context.Context, user storage.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if user.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (user_id, realname, avatar_url) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET realname = excluded.realname, avatar_url = excluded.avatar_url`,
		user.UserID,
		user.Realname,
		user.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// User returns one directory account.
func (s *Store) User(ctx context.Context, userID int64) (storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return storage.User{}, err
	}
	var user storage.User
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, realname, avatar_url FROM users WHERE user_id = ?`,
		userID,
	).Scan(&user.UserID, &user.Realname, &user.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, ErrNotFound
		}
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Users lists all directory accounts.
func (s *Store) Users(ctx context.Context) ([]storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT user_id, realname, avatar_url FROM users ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []storage.User
	for rows.Next() {
		var user storage.User
		if err := rows.Scan(&user.UserID, &user.Realname, &user.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// CreateRequest records a pending friend request from userID to friendID.
func (s *Store) CreateRequest(ctx context.Context, userID int64, friendID int64) (storage.Relation, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Relation{}, err
	}
	if userID == friendID {
		return storage.Relation{}, fmt.Errorf("friend id must differ from user id")
	}

	relation := storage.Relation{
		UserID:    userID,
		FriendID:  friendID,
		Status:    storage.RelationPending,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO relations (user_id, friend_id, status, created_at) VALUES (?, ?, ?, ?)`,
		relation.UserID,
		relation.FriendID,
		relation.Status,
		toMillis(relation.CreatedAt),
	)
	if err != nil {
		return storage.Relation{}, fmt.Errorf("create friend request: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		relation.RelationID = id
	}
	return relation, nil
}

// AcceptRequest marks a pending request accepted. Only the recipient may
// accept it.
func (s *Store) AcceptRequest(ctx context.Context, relationID int64, recipientID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE relations SET status = ? WHERE relation_id = ? AND friend_id = ? AND status = ?`,
		storage.RelationAccepted,
		relationID,
		recipientID,
		storage.RelationPending,
	)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectRequest deletes a pending request. Only the recipient may reject
// it.
func (s *Store) RejectRequest(ctx context.Context, relationID int64, recipientID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM relations WHERE relation_id = ? AND friend_id = ? AND status = ?`,
		relationID,
		recipientID,
		storage.RelationPending,
	)
	if err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Unfriend removes an accepted relation in either direction.
func (s *Store) Unfriend(ctx context.Context, userID int64, friendID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM relations
		 WHERE status = ?
		   AND ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))`,
		storage.RelationAccepted,
		userID,
		friendID,
		friendID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("unfriend: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FriendListing is a relation joined with the counterpart account.
type FriendListing struct {
	RelationID int64
	Friend     storage.User
	Status     int
	CreatedAt  time.Time
}

// Friends lists accepted relations for a user, in either direction.
func (s *Store) Friends(ctx context.Context, userID int64) ([]FriendListing, error) {
	return s.listRelations(
		ctx,
		`SELECT r.relation_id,
		        CASE WHEN r.user_id = ? THEN r.friend_id ELSE r.user_id END AS other_id,
		        u.realname, u.avatar_url, r.status, r.created_at
		 FROM relations r
		 JOIN users u ON u.user_id = CASE WHEN r.user_id = ? THEN r.friend_id ELSE r.user_id END
		 WHERE r.status = ? AND (r.user_id = ? OR r.friend_id = ?)
		 ORDER BY r.relation_id ASC`,
		userID, userID, storage.RelationAccepted, userID, userID,
	)
}

// SentRequests lists pending requests initiated by the user.
func (s *Store) SentRequests(ctx context.Context, userID int64) ([]FriendListing, error) {
	return s.listRelations(
		ctx,
		`SELECT r.relation_id, r.friend_id, u.realname, u.avatar_url, r.status, r.created_at
		 FROM relations r
		 JOIN users u ON u.user_id = r.friend_id
		 WHERE r.status = ? AND r.user_id = ?
		 ORDER BY r.relation_id ASC`,
		storage.RelationPending, userID,
	)
}

// IncomingRequests lists pending requests awaiting the user's decision.
func (s *Store) IncomingRequests(ctx context.Context, userID int64) ([]FriendListing, error) {
	return s.listRelations(
		ctx,
		`SELECT r.relation_id, r.user_id, u.realname, u.avatar_url, r.status, r.created_at
		 FROM relations r
		 JOIN users u ON u.user_id = r.user_id
		 WHERE r.status = ? AND r.friend_id = ?
		 ORDER BY r.relation_id ASC`,
		storage.RelationPending, userID,
	)
}

func (s *Store) listRelations(ctx context.Context, query string, args ...any) ([]FriendListing, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []FriendListing
	for rows.Next() {
		var listing FriendListing
		var createdAt int64
		if err := rows.Scan(&listing.RelationID, &listing.Friend.UserID, &listing.Friend.Realname, &listing.Friend.AvatarURL, &listing.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		listing.CreatedAt = fromMillis(createdAt)
		out = append(out, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return out, nil
}

// CreateGroup stores a group with its initial members.
func (s *Store) CreateGroup(ctx context.Context, name string, avatarURL string, memberIDs ...int64) (storage.Group, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Group{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Group{}, fmt.Errorf("group name is required")
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO groups (group_name, avatar_url) VALUES (?, ?)`,
		name,
		avatarURL,
	)
	if err != nil {
		return storage.Group{}, fmt.Errorf("create group: %w", err)
	}
	group := storage.Group{GroupName: name, AvatarURL: avatarURL}
	if id, err := res.LastInsertId(); err == nil {
		group.GroupID = id
	}
	for _, memberID := range memberIDs {
		if _, err := s.sqlDB.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)`,
			group.GroupID,
			memberID,
		); err != nil {
			return storage.Group{}, fmt.Errorf("add group member: %w", err)
		}
	}
	return group, nil
}

// GroupsFor lists groups the user belongs to.
func (s *Store) GroupsFor(ctx context.Context, userID int64) ([]storage.Group, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT g.group_id, g.group_name, g.avatar_url
		 FROM groups g
		 JOIN group_members m ON m.group_id = g.group_id
		 WHERE m.user_id = ?
		 ORDER BY g.group_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []storage.Group
	for rows.Next() {
		var group storage.Group
		if err := rows.Scan(&group.GroupID, &group.GroupName, &group.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}

// IsGroupMember reports whether the user belongs to the group.
func (s *Store) IsGroupMember(ctx context.Context, groupID int64, userID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var found int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID,
		userID,
	).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check group member: %w", err)
	}
	return true, nil
}
