package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage"
	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	t     *testing.T
	srv   *httptest.Server
	store *sqlite.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	verifier, err := gateway.NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	handler, err := gateway.NewHandler(store, verifier)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{t: t, srv: srv, store: store}
}

func (env *testEnv) seedUser(userID int64, name string) {
	env.t.Helper()
	if err := env.store.UpsertUser(context.Background(), storage.User{UserID: userID, Realname: name}); err != nil {
		env.t.Fatalf("seed user %d: %v", userID, err)
	}
}

func (env *testEnv) token(userID int64, name string) string {
	env.t.Helper()
	token, err := gateway.SignAccessToken(testSecret, gateway.Identity{UserID: userID, Name: name}, time.Hour)
	if err != nil {
		env.t.Fatalf("sign token: %v", err)
	}
	return token
}

func (env *testEnv) do(method string, path string, token string, payload any) *http.Response {
	env.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			env.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, body)
	if err != nil {
		env.t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		env.t.Fatalf("call %s %s: %v", method, path, err)
	}
	env.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

type wsClient struct {
	conn    *websocket.Conn
	decoder *json.Decoder
	encoder *json.Encoder
}

func (env *testEnv) dialWS(token string, acceptLanguage string) *wsClient {
	env.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws-chat"
	cfg, err := websocket.NewConfig(wsURL, env.srv.URL)
	if err != nil {
		env.t.Fatalf("websocket config: %v", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer "+token)
	if acceptLanguage != "" {
		cfg.Header.Set("Accept-Language", acceptLanguage)
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		env.t.Fatalf("dial websocket: %v", err)
	}
	env.t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &wsClient{conn: conn, decoder: json.NewDecoder(conn), encoder: json.NewEncoder(conn)}
}

func (c *wsClient) send(t *testing.T, event string, payload any) {
	t.Helper()
	frame, err := wire.NewFrame(event, payload)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	if err := c.encoder.Encode(frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func (c *wsClient) readMessage(t *testing.T) wire.ChatMessage {
	t.Helper()
	var frame wire.Frame
	if err := c.decoder.Decode(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Event != wire.EventChatMessage {
		t.Fatalf("expected %s frame, got %s", wire.EventChatMessage, frame.Event)
	}
	var msg wire.ChatMessage
	if err := frame.Decode(&msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

// subscribe joins a room and consumes the system join notice.
func (c *wsClient) subscribe(t *testing.T, roomID string) {
	t.Helper()
	c.send(t, wire.EventSetActiveRoom, wire.SetActiveRoom{RoomID: &roomID})
	notice := c.readMessage(t)
	if notice.UserID != 0 {
		t.Fatalf("expected system join notice first, got sender %d", notice.UserID)
	}
}

func TestUpEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.srv.Client().Get(env.srv.URL + "/up")
	if err != nil {
		t.Fatalf("call /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRESTRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/chat/1-1", "", map[string]int64{"friendId": 2})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDirectRoomResolveIsStable(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")

	resp := env.do(http.MethodPost, "/chat/1-1", env.token(1, "An"), map[string]int64{"friendId": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	first := decodeBody[map[string]string](t, resp)

	// The counterpart resolving the same pair gets the same room.
	resp = env.do(http.MethodPost, "/chat/1-1", env.token(2, "Binh"), map[string]int64{"friendId": 1})
	second := decodeBody[map[string]string](t, resp)
	if first["roomId"] == "" || first["roomId"] != second["roomId"] {
		t.Fatalf("expected stable room id, got %q and %q", first["roomId"], second["roomId"])
	}
}

func TestGroupRoomRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	group, err := env.store.CreateGroup(context.Background(), "team", "", 1, 2)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	resp := env.do(http.MethodPost, "/chat/group", env.token(3, "Chi"), map[string]int64{"groupId": group.GroupID})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodPost, "/chat/group", env.token(1, "An"), map[string]int64{"groupId": group.GroupID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for member, got %d", resp.StatusCode)
	}
}

func TestMessagesAuthorization(t *testing.T) {
	env := newTestEnv(t)
	room, err := env.store.EnsureDirectRoom(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	resp := env.do(http.MethodGet, "/chat/message?roomId="+room.RoomID, env.token(3, "Chi"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodGet, "/chat/message?roomId=missing", env.token(1, "An"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodGet, "/chat/message?roomId="+room.RoomID, env.token(1, "An"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for participant, got %d", resp.StatusCode)
	}
}

func TestFriendLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")

	resp := env.do(http.MethodPost, "/social_network/add-friend", env.token(1, "An"), map[string]int64{"friendId": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add friend: expected 200, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodGet, "/social_network/incoming-friend", env.token(2, "Binh"), nil)
	incoming := decodeBody[struct {
		RelationFriendInfo []struct {
			RelationID     int64  `json:"relationId"`
			FriendID       int64  `json:"friendId"`
			FriendRealname string `json:"friendRealname"`
		} `json:"relationFriendInfo"`
	}](t, resp)
	if len(incoming.RelationFriendInfo) != 1 || incoming.RelationFriendInfo[0].FriendID != 1 {
		t.Fatalf("unexpected incoming listing: %+v", incoming)
	}

	resp = env.do(http.MethodPatch, "/social_network/accept-friend", env.token(2, "Binh"),
		map[string]int64{"relationId": incoming.RelationFriendInfo[0].RelationID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept friend: expected 200, got %d", resp.StatusCode)
	}

	for _, tc := range []struct {
		token  string
		friend int64
	}{
		{env.token(1, "An"), 2},
		{env.token(2, "Binh"), 1},
	} {
		resp = env.do(http.MethodGet, "/social_network/all-friend", tc.token, nil)
		friends := decodeBody[struct {
			FriendInfo []struct {
				FriendID int64 `json:"friendId"`
			} `json:"friendInfo"`
		}](t, resp)
		if len(friends.FriendInfo) != 1 || friends.FriendInfo[0].FriendID != tc.friend {
			t.Fatalf("unexpected friend listing: %+v", friends)
		}
	}

	resp = env.do(http.MethodDelete, "/social_network/unfriend", env.token(1, "An"), map[string]int64{"friendId": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unfriend: expected 200, got %d", resp.StatusCode)
	}
}

func TestAllUsersListing(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")

	resp := env.do(http.MethodGet, "/auth/all-user", env.token(1, "An"), nil)
	users := decodeBody[struct {
		UserTraVe []struct {
			UserID int64 `json:"userId"`
		} `json:"userTraVe"`
	}](t, resp)
	if len(users.UserTraVe) != 2 {
		t.Fatalf("expected two users, got %+v", users)
	}
}

func TestWebsocketChatRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")
	room, err := env.store.EnsureDirectRoom(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	sender := env.dialWS(env.token(1, "An"), "")
	listener := env.dialWS(env.token(2, "Binh"), "")
	sender.subscribe(t, room.RoomID)
	listener.subscribe(t, room.RoomID)

	sender.send(t, wire.EventChatMessage, wire.ChatSend{RoomID: room.RoomID, Content: "  hello  "})

	for _, client := range []*wsClient{sender, listener} {
		msg := client.readMessage(t)
		if msg.UserID != 1 || msg.Content != "hello" || msg.RoomID != room.RoomID {
			t.Fatalf("unexpected echo: %+v", msg)
		}
		// Direct rooms do not carry sender identity on the wire.
		if msg.SenderName != "" {
			t.Fatalf("expected no sender name for direct room, got %q", msg.SenderName)
		}
	}

	resp := env.do(http.MethodGet, "/chat/message?roomId="+room.RoomID, env.token(2, "Binh"), nil)
	page := decodeBody[struct {
		Message []wire.ChatMessage `json:"message"`
	}](t, resp)
	if len(page.Message) != 1 || page.Message[0].Content != "hello" {
		t.Fatalf("expected persisted message, got %+v", page.Message)
	}
}

func TestWebsocketGroupMessageCarriesSenderIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	group, err := env.store.CreateGroup(context.Background(), "team", "", 1, 2)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	room, err := env.store.EnsureGroupRoom(context.Background(), group.GroupID)
	if err != nil {
		t.Fatalf("ensure group room: %v", err)
	}

	client := env.dialWS(env.token(1, "An"), "")
	client.subscribe(t, room.RoomID)
	client.send(t, wire.EventChatMessage, wire.ChatSend{RoomID: room.RoomID, Content: "hello team"})

	msg := client.readMessage(t)
	if msg.SenderName != "An" {
		t.Fatalf("expected group echo to carry sender name, got %+v", msg)
	}
}

func TestWebsocketLocalizedJoinNotice(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")
	room, err := env.store.EnsureDirectRoom(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	client := env.dialWS(env.token(1, "An"), "vi-VN,vi;q=0.9")
	roomID := room.RoomID
	client.send(t, wire.EventSetActiveRoom, wire.SetActiveRoom{RoomID: &roomID})

	notice := client.readMessage(t)
	if notice.UserID != 0 {
		t.Fatalf("expected system notice, got sender %d", notice.UserID)
	}
	if !strings.Contains(notice.Content, "tham gia") || !strings.Contains(notice.Content, "Binh") {
		t.Fatalf("expected vietnamese notice naming the counterpart, got %q", notice.Content)
	}
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws-chat"
	cfg, err := websocket.NewConfig(wsURL, env.srv.URL)
	if err != nil {
		t.Fatalf("websocket config: %v", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer garbage")

	if _, err := websocket.DialConfig(cfg); err == nil {
		t.Fatal("expected handshake rejection for bad token")
	}
}

func TestWebsocketIgnoresSendForUnsubscribedRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "An")
	env.seedUser(2, "Binh")
	subscribed, err := env.store.EnsureDirectRoom(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	other, err := env.store.EnsureDirectRoom(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("ensure other room: %v", err)
	}

	client := env.dialWS(env.token(1, "An"), "")
	client.subscribe(t, subscribed.RoomID)

	// A send tagged with a room the connection is not subscribed to is
	// dropped; the follow-up valid send proves the first was processed.
	client.send(t, wire.EventChatMessage, wire.ChatSend{RoomID: other.RoomID, Content: "smuggled"})
	client.send(t, wire.EventChatMessage, wire.ChatSend{RoomID: subscribed.RoomID, Content: "legit"})
	if msg := client.readMessage(t); msg.Content != "legit" {
		t.Fatalf("unexpected echo: %+v", msg)
	}

	msgs, err := env.store.Messages(context.Background(), other.RoomID)
	if err != nil {
		t.Fatalf("list other room: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages persisted for unsubscribed room, got %+v", msgs)
	}
}
