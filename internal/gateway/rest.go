package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage/sqlite"
)

// Response and request shapes for the REST surface. The field names are the
// contract with the web and terminal clients, so they stay stable even where
// the spelling is unusual.

type roomResponse struct {
	RoomID string `json:"roomId"`
}

type messageListing struct {
	Message []wire.ChatMessage `json:"message"`
}

type friendEntry struct {
	FriendID       int64  `json:"friendId"`
	FriendRealname string `json:"friendRealname"`
	AvatarURL      string `json:"avatarUrl"`
	Status         int    `json:"status"`
}

type requestEntry struct {
	RelationID     int64  `json:"relationId"`
	FriendID       int64  `json:"friendId"`
	FriendRealname string `json:"friendRealname"`
	AvatarURL      string `json:"avatarUrl"`
	Status         int    `json:"status"`
	CreatedAt      string `json:"create_at"`
}

type userEntry struct {
	UserID    int64  `json:"userId"`
	Realname  string `json:"realname"`
	AvatarURL string `json:"avatarUrl"`
}

type groupEntry struct {
	GroupID   int64  `json:"groupId"`
	GroupName string `json:"groupName"`
	AvatarURL string `json:"avatarUrl"`
}

type friendListing struct {
	FriendInfo []friendEntry `json:"friendInfo"`
}

type requestListing struct {
	RelationFriendInfo []requestEntry `json:"relationFriendInfo"`
}

type userListing struct {
	UserTraVe []userEntry `json:"userTraVe"`
}

type groupListing struct {
	GroupInfo []groupEntry `json:"groupInfo"`
}

type friendIDRequest struct {
	FriendID int64 `json:"friendId"`
}

type relationIDRequest struct {
	RelationID int64 `json:"relationId"`
}

type groupIDRequest struct {
	GroupID int64 `json:"groupId"`
}

// withIdentity authenticates the request and passes the caller identity to
// the handler.
func (s *Server) withIdentity(next func(http.ResponseWriter, *http.Request, Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, identity)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleDirectRoom(w http.ResponseWriter, r *http.Request, identity Identity) {
	ctx, span := s.tracer.Start(r.Context(), "gateway.DirectRoom")
	defer span.End()

	var payload friendIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if payload.FriendID <= 0 || payload.FriendID == identity.UserID {
		http.Error(w, "friend id is required", http.StatusBadRequest)
		return
	}

	room, err := s.store.EnsureDirectRoom(ctx, identity.UserID, payload.FriendID)
	if err != nil {
		log.Printf("direct room user=%d friend=%d: %v", identity.UserID, payload.FriendID, err)
		http.Error(w, "could not resolve room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: room.RoomID})
}

func (s *Server) handleGroupRoom(w http.ResponseWriter, r *http.Request, identity Identity) {
	ctx, span := s.tracer.Start(r.Context(), "gateway.GroupRoom")
	defer span.End()

	var payload groupIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if payload.GroupID <= 0 {
		http.Error(w, "group id is required", http.StatusBadRequest)
		return
	}

	member, err := s.store.IsGroupMember(ctx, payload.GroupID, identity.UserID)
	if err != nil {
		log.Printf("group room user=%d group=%d: %v", identity.UserID, payload.GroupID, err)
		http.Error(w, "could not resolve room", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "not a group member", http.StatusForbidden)
		return
	}

	room, err := s.store.EnsureGroupRoom(ctx, payload.GroupID)
	if err != nil {
		log.Printf("group room user=%d group=%d: %v", identity.UserID, payload.GroupID, err)
		http.Error(w, "could not resolve room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: room.RoomID})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, identity Identity) {
	ctx, span := s.tracer.Start(r.Context(), "gateway.Messages")
	defer span.End()

	roomID := strings.TrimSpace(r.URL.Query().Get("roomId"))
	if roomID == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return
	}

	room, err := s.store.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		log.Printf("messages user=%d room=%s: %v", identity.UserID, roomID, err)
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	ok, err := s.authorizeRoom(ctx, room, identity.UserID)
	if err != nil {
		log.Printf("messages user=%d room=%s: %v", identity.UserID, roomID, err)
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	stored, err := s.store.Messages(ctx, room.RoomID)
	if err != nil {
		log.Printf("messages user=%d room=%s: %v", identity.UserID, roomID, err)
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	listing := messageListing{Message: make([]wire.ChatMessage, 0, len(stored))}
	for _, msg := range stored {
		listing.Message = append(listing.Message, toWireMessage(msg, room.Kind))
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleAllFriends(w http.ResponseWriter, r *http.Request, identity Identity) {
	relations, err := s.store.Friends(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("all-friend user=%d: %v", identity.UserID, err)
		http.Error(w, "could not list friends", http.StatusInternalServerError)
		return
	}
	listing := friendListing{FriendInfo: make([]friendEntry, 0, len(relations))}
	for _, rel := range relations {
		listing.FriendInfo = append(listing.FriendInfo, friendEntry{
			FriendID:       rel.Friend.UserID,
			FriendRealname: rel.Friend.Realname,
			AvatarURL:      rel.Friend.AvatarURL,
			Status:         rel.Status,
		})
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleSentRequests(w http.ResponseWriter, r *http.Request, identity Identity) {
	relations, err := s.store.SentRequests(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("sent-friend user=%d: %v", identity.UserID, err)
		http.Error(w, "could not list requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRequestListing(relations))
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request, identity Identity) {
	relations, err := s.store.IncomingRequests(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("incoming-friend user=%d: %v", identity.UserID, err)
		http.Error(w, "could not list requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRequestListing(relations))
}

func toRequestListing(relations []sqlite.FriendListing) requestListing {
	listing := requestListing{RelationFriendInfo: make([]requestEntry, 0, len(relations))}
	for _, rel := range relations {
		listing.RelationFriendInfo = append(listing.RelationFriendInfo, requestEntry{
			RelationID:     rel.RelationID,
			FriendID:       rel.Friend.UserID,
			FriendRealname: rel.Friend.Realname,
			AvatarURL:      rel.Friend.AvatarURL,
			Status:         rel.Status,
			CreatedAt:      rel.CreatedAt.Format(time.RFC3339),
		})
	}
	return listing
}

func (s *Server) handleAllGroups(w http.ResponseWriter, r *http.Request, identity Identity) {
	groups, err := s.store.GroupsFor(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("all-group user=%d: %v", identity.UserID, err)
		http.Error(w, "could not list groups", http.StatusInternalServerError)
		return
	}
	listing := groupListing{GroupInfo: make([]groupEntry, 0, len(groups))}
	for _, group := range groups {
		listing.GroupInfo = append(listing.GroupInfo, groupEntry{
			GroupID:   group.GroupID,
			GroupName: group.GroupName,
			AvatarURL: group.AvatarURL,
		})
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleAllUsers(w http.ResponseWriter, r *http.Request, identity Identity) {
	users, err := s.store.Users(r.Context())
	if err != nil {
		log.Printf("all-user user=%d: %v", identity.UserID, err)
		http.Error(w, "could not list users", http.StatusInternalServerError)
		return
	}
	listing := userListing{UserTraVe: make([]userEntry, 0, len(users))}
	for _, user := range users {
		listing.UserTraVe = append(listing.UserTraVe, userEntry{
			UserID:    user.UserID,
			Realname:  user.Realname,
			AvatarURL: user.AvatarURL,
		})
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request, identity Identity) {
	var payload friendIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if payload.FriendID <= 0 || payload.FriendID == identity.UserID {
		http.Error(w, "friend id is required", http.StatusBadRequest)
		return
	}
	if _, err := s.store.User(r.Context(), payload.FriendID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Printf("add-friend user=%d friend=%d: %v", identity.UserID, payload.FriendID, err)
		http.Error(w, "could not send request", http.StatusInternalServerError)
		return
	}
	if _, err := s.store.CreateRequest(r.Context(), identity.UserID, payload.FriendID); err != nil {
		log.Printf("add-friend user=%d friend=%d: %v", identity.UserID, payload.FriendID, err)
		http.Error(w, "could not send request", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAcceptFriend(w http.ResponseWriter, r *http.Request, identity Identity) {
	var payload relationIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if err := s.store.AcceptRequest(r.Context(), payload.RelationID, identity.UserID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		log.Printf("accept-friend user=%d relation=%d: %v", identity.UserID, payload.RelationID, err)
		http.Error(w, "could not accept request", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRejectFriend(w http.ResponseWriter, r *http.Request, identity Identity) {
	var payload relationIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if err := s.store.RejectRequest(r.Context(), payload.RelationID, identity.UserID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		log.Printf("reject-friend user=%d relation=%d: %v", identity.UserID, payload.RelationID, err)
		http.Error(w, "could not reject request", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUnfriend(w http.ResponseWriter, r *http.Request, identity Identity) {
	var payload friendIDRequest
	if !readJSON(w, r, &payload) {
		return
	}
	if err := s.store.Unfriend(r.Context(), identity.UserID, payload.FriendID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "friend not found", http.StatusNotFound)
			return
		}
		log.Printf("unfriend user=%d friend=%d: %v", identity.UserID, payload.FriendID, err)
		http.Error(w, "could not unfriend", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
