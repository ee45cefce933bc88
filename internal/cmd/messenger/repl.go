package messenger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/directory"
	"github.com/DANG-PH/NgocRongOnline/internal/chat/history"
	"github.com/DANG-PH/NgocRongOnline/internal/chat/session"
)

type clientConfig struct {
	selfID   int64
	wsURL    string
	tokens   session.TokenSource
	backend  *history.Client
	contacts *directory.Client
	input    io.Reader
	output   io.Writer
}

// client is the terminal front end over the session engine. It owns no chat
// state of its own; it renders engine callbacks and translates slash
// commands into engine and directory calls.
type client struct {
	cfg    clientConfig
	engine *session.Engine
}

func newClient(cfg clientConfig) *client {
	return &client{cfg: cfg}
}

func (c *client) run(ctx context.Context) error {
	engine, err := session.New(session.Config{
		SelfID:   c.cfg.selfID,
		Dialer:   session.GatewayDialer{URL: c.cfg.wsURL},
		Tokens:   c.cfg.tokens,
		Resolver: c.cfg.backend,
		History:  c.cfg.backend,
		OnStatus: func(status session.Status) {
			c.printf("* connection %s\n", status)
		},
		OnTimeline: c.renderTimeline,
		OnNotice: func(text string) {
			c.printf("! %s\n", text)
		},
	})
	if err != nil {
		return err
	}
	c.engine = engine

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(runCtx)
	}()

	engine.Connect()
	c.printf("commands: /friends /requests /users /groups /open <friendId> /group <groupId> /add <userId> /accept <relationId> /reject <relationId> /unfriend <friendId> /close /quit\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.cfg.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			engine.Close()
			return <-runErr
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok {
				engine.Close()
				return <-runErr
			}
			if quit := c.dispatch(ctx, line); quit {
				engine.Close()
				return <-runErr
			}
		}
	}
}

// dispatch handles one input line and reports whether the user quit.
func (c *client) dispatch(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.engine.Send(line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit":
		return true
	case "/close":
		c.engine.CloseRoom()
	case "/friends":
		c.listFriends(ctx)
	case "/requests":
		c.listRequests(ctx)
	case "/users":
		c.listUsers(ctx)
	case "/groups":
		c.listGroups(ctx)
	case "/open":
		c.openDirect(ctx, arg)
	case "/group":
		c.openGroup(ctx, arg)
	case "/add":
		c.mutate(ctx, arg, c.cfg.contacts.AddFriend, "friend request sent")
	case "/accept":
		c.mutate(ctx, arg, c.cfg.contacts.AcceptFriend, "friend request accepted")
	case "/reject":
		c.mutate(ctx, arg, c.cfg.contacts.RejectFriend, "friend request rejected")
	case "/unfriend":
		c.mutate(ctx, arg, c.cfg.contacts.Unfriend, "friend removed")
	default:
		c.printf("! unknown command %s\n", command)
	}
	return false
}

func (c *client) openDirect(ctx context.Context, arg string) {
	friendID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || friendID <= 0 {
		c.printf("! usage: /open <friendId>\n")
		return
	}
	name, avatarURL := "", ""
	if friends, err := c.cfg.contacts.Friends(ctx); err == nil {
		for _, friend := range friends {
			if friend.FriendID == friendID {
				name, avatarURL = friend.FriendRealname, friend.AvatarURL
				break
			}
		}
	}
	c.engine.OpenDirect(friendID, name, avatarURL)
}

func (c *client) openGroup(ctx context.Context, arg string) {
	groupID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || groupID <= 0 {
		c.printf("! usage: /group <groupId>\n")
		return
	}
	name := ""
	if groups, err := c.cfg.contacts.Groups(ctx); err == nil {
		for _, group := range groups {
			if group.GroupID == groupID {
				name = group.GroupName
				break
			}
		}
	}
	c.engine.OpenGroup(groupID, name)
}

func (c *client) mutate(ctx context.Context, arg string, call func(context.Context, int64) error, done string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		c.printf("! an id is required\n")
		return
	}
	if err := call(ctx, id); err != nil {
		c.printf("! %v\n", err)
		return
	}
	c.printf("* %s\n", done)
}

func (c *client) listFriends(ctx context.Context) {
	friends, err := c.cfg.contacts.Friends(ctx)
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	if len(friends) == 0 {
		c.printf("* no friends yet\n")
		return
	}
	for _, friend := range friends {
		c.printf("  friend %d  %s\n", friend.FriendID, friend.FriendRealname)
	}
}

func (c *client) listRequests(ctx context.Context) {
	incoming, err := c.cfg.contacts.IncomingRequests(ctx)
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	for _, req := range incoming {
		c.printf("  incoming relation=%d from %d %s\n", req.RelationID, req.FriendID, req.FriendRealname)
	}
	sent, err := c.cfg.contacts.SentRequests(ctx)
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	for _, req := range sent {
		c.printf("  sent relation=%d to %d %s\n", req.RelationID, req.FriendID, req.FriendRealname)
	}
	if len(incoming) == 0 && len(sent) == 0 {
		c.printf("* no pending requests\n")
	}
}

func (c *client) listUsers(ctx context.Context) {
	users, err := c.cfg.contacts.Users(ctx)
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	for _, user := range users {
		c.printf("  user %d  %s\n", user.UserID, user.Realname)
	}
}

func (c *client) listGroups(ctx context.Context) {
	groups, err := c.cfg.contacts.Groups(ctx)
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	if len(groups) == 0 {
		c.printf("* no groups yet\n")
		return
	}
	for _, group := range groups {
		c.printf("  group %d  %s\n", group.GroupID, group.GroupName)
	}
}

func (c *client) renderTimeline(room session.Room, msgs []session.Message) {
	if room.ID == "" {
		c.printf("--- no open conversation ---\n")
		return
	}
	title := room.CounterpartName
	if title == "" {
		title = room.ID
	}
	c.printf("--- %s ---\n", title)
	for _, msg := range msgs {
		label := msg.SenderName
		if msg.Own {
			label = "me"
		} else if label == "" {
			label = room.CounterpartName
		}
		c.printf("[%s] %s: %s\n", msg.SentAt.Local().Format("15:04"), label, msg.Content)
	}
}

func (c *client) printf(format string, args ...any) {
	fmt.Fprintf(c.cfg.output, format, args...)
}
