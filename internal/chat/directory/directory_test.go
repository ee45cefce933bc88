package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/session"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, session.StaticToken("test-token"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFriendsListing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/social_network/all-friend" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer credential, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"friendInfo": []map[string]any{
				{"friendId": 2, "friendRealname": "Binh", "avatarUrl": "b.png", "status": 1},
			},
		})
	}))

	friends, err := client.Friends(context.Background())
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(friends) != 1 {
		t.Fatalf("expected one friend, got %d", len(friends))
	}
	if friends[0].FriendID != 2 || friends[0].FriendRealname != "Binh" {
		t.Fatalf("unexpected friend: %+v", friends[0])
	}
}

func TestIncomingRequestsListing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/social_network/incoming-friend" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"relationFriendInfo": []map[string]any{
				{"relationId": 5, "friendId": 9, "friendRealname": "Chi", "status": 0, "create_at": "2025-03-01T12:00:00Z"},
			},
		})
	}))

	requests, err := client.IncomingRequests(context.Background())
	if err != nil {
		t.Fatalf("list incoming requests: %v", err)
	}
	if len(requests) != 1 || requests[0].RelationID != 5 || requests[0].CreatedAt == "" {
		t.Fatalf("unexpected requests: %+v", requests)
	}
}

func TestUsersListing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/all-user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userTraVe": []map[string]any{
				{"userId": 3, "realname": "Chi", "avatarUrl": ""},
			},
		})
	}))

	users, err := client.Users(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].UserID != 3 {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestAddFriendSendsPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/social_network/add-friend" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]int64
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["friendId"] != 9 {
			t.Errorf("unexpected payload: %v err=%v", payload, err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.AddFriend(context.Background(), 9); err != nil {
		t.Fatalf("add friend: %v", err)
	}
}

func TestAcceptFriendUsesPatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/social_network/accept-friend" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.AcceptFriend(context.Background(), 5); err != nil {
		t.Fatalf("accept friend: %v", err)
	}
}

func TestMutationStatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	if err := client.Unfriend(context.Background(), 2); err == nil {
		t.Fatal("expected error for rejected mutation")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("  ", session.StaticToken("t")); err == nil {
		t.Fatal("expected error for blank base url")
	}
	if _, err := NewClient("http://localhost", nil); err == nil {
		t.Fatal("expected error for missing token source")
	}
}
