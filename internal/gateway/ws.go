package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/websocket"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage"
)

const (
	// maxDecodeErrors is how many malformed frames a connection may send
	// before the gateway drops it.
	maxDecodeErrors = 3
	// maxContentRunes caps the length of a single chat message.
	maxContentRunes = 2000
)

type identityKey struct{}

func identityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// wsHandler authenticates the upgrade request and hands the socket to the
// frame loop with the caller identity in the request context.
func (s *Server) wsHandler() http.Handler {
	server := websocket.Server{
		Handler: s.serveSocket,
		// Browser clients connect cross-origin from the web app; the bearer
		// token is the access control, not the Origin header.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			log.Printf("ws auth rejected: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		server.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) serveSocket(conn *websocket.Conn) {
	defer conn.Close()

	req := conn.Request()
	identity, ok := identityFrom(req.Context())
	if !ok {
		log.Printf("ws socket without identity, dropping")
		return
	}

	p := &peer{
		identity: identity,
		locale:   negotiateLocale(req.Header.Get("Accept-Language")),
		encoder:  json.NewEncoder(conn),
	}
	defer s.hub.drop(p)

	log.Printf("ws connected user=%d", identity.UserID)

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame wire.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("ws closed user=%d", identity.UserID)
				return
			}
			decodeErrors++
			if decodeErrors >= maxDecodeErrors {
				log.Printf("ws dropping user=%d after %d malformed frames: %v", identity.UserID, decodeErrors, err)
				return
			}
			// Resync the stream: a fresh decoder skips the partial value.
			decoder = json.NewDecoder(io.MultiReader(decoder.Buffered(), conn))
			continue
		}

		switch frame.Event {
		case wire.EventSetActiveRoom:
			s.handleSetActiveRoom(req.Context(), p, frame)
		case wire.EventChatMessage:
			s.handleChatSend(req.Context(), p, frame)
		default:
			// Unknown events are ignored so older clients keep working.
		}
	}
}

func (s *Server) handleSetActiveRoom(ctx context.Context, p *peer, frame wire.Frame) {
	var payload wire.SetActiveRoom
	if err := frame.Decode(&payload); err != nil {
		log.Printf("ws setActiveRoom user=%d: %v", p.identity.UserID, err)
		return
	}
	if payload.RoomID == nil || strings.TrimSpace(*payload.RoomID) == "" {
		s.hub.setActive(p, activeRoom{})
		return
	}

	roomID := strings.TrimSpace(*payload.RoomID)
	room, err := s.store.Room(ctx, roomID)
	if err != nil {
		log.Printf("ws setActiveRoom user=%d room=%s: %v", p.identity.UserID, roomID, err)
		return
	}
	ok, err := s.authorizeRoom(ctx, room, p.identity.UserID)
	if err != nil {
		log.Printf("ws setActiveRoom user=%d room=%s: %v", p.identity.UserID, roomID, err)
		return
	}
	if !ok {
		log.Printf("ws setActiveRoom user=%d denied for room=%s", p.identity.UserID, roomID)
		return
	}

	s.hub.setActive(p, activeRoom{ID: room.RoomID, Kind: room.Kind})
	s.sendJoinNotice(ctx, p, room)
}

// sendJoinNotice delivers a localized system line to the joining peer only.
func (s *Server) sendJoinNotice(ctx context.Context, p *peer, room storage.Room) {
	counterpart := ""
	if room.Kind == storage.RoomKindDirect {
		if otherID, ok := directCounterpart(room.Key, p.identity.UserID); ok {
			if user, err := s.store.User(ctx, otherID); err == nil {
				counterpart = user.Realname
			}
		}
	}

	frame, err := wire.NewFrame(wire.EventChatMessage, wire.ChatMessage{
		UserID:     0,
		Content:    joinNoticeBody(p.locale, counterpart),
		Timestamp:  s.now(),
		RoomID:     room.RoomID,
		SenderName: systemLabel(p.locale),
	})
	if err != nil {
		log.Printf("ws join notice: %v", err)
		return
	}
	if err := p.writeFrame(frame); err != nil {
		log.Printf("ws join notice user=%d: %v", p.identity.UserID, err)
	}
}

func (s *Server) handleChatSend(ctx context.Context, p *peer, frame wire.Frame) {
	var payload wire.ChatSend
	if err := frame.Decode(&payload); err != nil {
		log.Printf("ws chatMessage user=%d: %v", p.identity.UserID, err)
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		log.Printf("ws chatMessage user=%d rejected: content too long", p.identity.UserID)
		return
	}

	active, ok := s.hub.activeFor(p)
	if !ok || strings.TrimSpace(payload.RoomID) != active.ID {
		// Messages only land in the room the connection subscribes to.
		log.Printf("ws chatMessage user=%d rejected: not subscribed to room %q", p.identity.UserID, payload.RoomID)
		return
	}

	stored, err := s.store.AppendMessage(ctx, storage.Message{
		RoomID:     active.ID,
		SenderID:   p.identity.UserID,
		SenderName: p.identity.Name,
		AvatarURL:  p.identity.AvatarURL,
		Content:    content,
		SentAt:     s.now(),
	})
	if err != nil {
		log.Printf("ws chatMessage user=%d room=%s: %v", p.identity.UserID, active.ID, err)
		return
	}

	outFrame, err := wire.NewFrame(wire.EventChatMessage, toWireMessage(stored, active.Kind))
	if err != nil {
		log.Printf("ws chatMessage user=%d: %v", p.identity.UserID, err)
		return
	}
	s.hub.broadcast(active.ID, outFrame)
}

// toWireMessage shapes a stored message for broadcast. Sender identity only
// rides along for group rooms; direct rooms derive it from the room itself.
func toWireMessage(msg storage.Message, kind string) wire.ChatMessage {
	out := wire.ChatMessage{
		UserID:    msg.SenderID,
		Content:   msg.Content,
		Timestamp: msg.SentAt,
		RoomID:    msg.RoomID,
	}
	if kind == storage.RoomKindGroup {
		out.SenderName = msg.SenderName
		out.AvatarURL = msg.AvatarURL
	}
	return out
}

// authorizeRoom reports whether the user may subscribe to or read the room.
func (s *Server) authorizeRoom(ctx context.Context, room storage.Room, userID int64) (bool, error) {
	switch room.Kind {
	case storage.RoomKindDirect:
		a, b, ok := directPair(room.Key)
		if !ok {
			return false, fmt.Errorf("malformed direct room key %q", room.Key)
		}
		return userID == a || userID == b, nil
	case storage.RoomKindGroup:
		var groupID int64
		if _, err := fmt.Sscanf(room.Key, "g:%d", &groupID); err != nil {
			return false, fmt.Errorf("malformed group room key %q: %w", room.Key, err)
		}
		return s.store.IsGroupMember(ctx, groupID, userID)
	default:
		return false, fmt.Errorf("unknown room kind %q", room.Kind)
	}
}

func directPair(key string) (int64, int64, bool) {
	var a, b int64
	if _, err := fmt.Sscanf(key, "d:%d:%d", &a, &b); err != nil {
		return 0, 0, false
	}
	return a, b, true
}

func directCounterpart(key string, userID int64) (int64, bool) {
	a, b, ok := directPair(key)
	if !ok {
		return 0, false
	}
	if userID == a {
		return b, true
	}
	if userID == b {
		return a, true
	}
	return 0, false
}
