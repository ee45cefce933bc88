package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
)

type eventKind int

const (
	evConnect eventKind = iota
	evDial
	evDialed
	evFrame
	evReadError
	evOpenDirect
	evOpenGroup
	evRoomResolved
	evHistory
	evCloseRoom
	evSend
	evShutdown
)

// event is the single input type for the run loop. seq guards transport
// events against a connection that has since been replaced, and room
// resolution or history results against a target that is no longer active.
type event struct {
	kind eventKind

	seq   uint64
	conn  Conn
	frame wire.Frame
	err   error

	target Room
	roomID string
	page   []wire.ChatMessage
	text   string
}

// Run processes commands and transport events until the context ends or
// Close is called. All engine state is confined to this goroutine.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil {
		return errors.New("engine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			if e.handle(ctx, ev) {
				return nil
			}
		}
	}
}

func (e *Engine) teardown() {
	e.closeConn()
	e.setStatus(StatusDisconnected)
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

func (e *Engine) handle(ctx context.Context, ev event) (stop bool) {
	switch ev.kind {
	case evConnect:
		e.startConnect(ctx)
	case evDial:
		if ev.seq != e.connSeq {
			return false
		}
		e.beginDial(ctx)
	case evDialed:
		if ev.seq != e.connSeq {
			if ev.conn != nil {
				_ = ev.conn.Close()
			}
			return false
		}
		if ev.err != nil {
			e.dialFailed(ev.err)
			return false
		}
		e.becomeConnected(ev.conn)
	case evFrame:
		if ev.seq != e.connSeq {
			return false
		}
		e.handleFrame(ev.frame)
	case evReadError:
		if ev.seq != e.connSeq {
			return false
		}
		e.connectionLost(ev.err)
	case evOpenDirect, evOpenGroup:
		e.openTarget(ctx, ev.target)
	case evRoomResolved:
		if ev.seq != e.openSeq {
			return false
		}
		if ev.err != nil {
			e.notice("could not open conversation")
			log.Printf("chat session: resolve room: %v", ev.err)
			return false
		}
		target := ev.target
		target.ID = ev.roomID
		e.activate(ctx, target)
	case evHistory:
		e.applyHistory(ev)
	case evCloseRoom:
		e.closeRoom()
	case evSend:
		e.send(ev.text)
	case evShutdown:
		return true
	}
	return false
}

func (e *Engine) startConnect(ctx context.Context) {
	switch e.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		return
	}
	if _, ok := e.cfg.Tokens.Token(); !ok {
		e.notice("not signed in")
		return
	}
	e.attempts = 0
	e.setStatus(StatusConnecting)
	e.beginDial(ctx)
}

// beginDial starts one dial attempt. The credential is read at dial time so
// a refreshed token is picked up between attempts.
func (e *Engine) beginDial(ctx context.Context) {
	token, ok := e.cfg.Tokens.Token()
	if !ok {
		e.notice("not signed in")
		e.setStatus(StatusDisconnected)
		return
	}

	e.connSeq++
	seq := e.connSeq
	dialer := e.cfg.Dialer
	go func() {
		conn, err := dialer.Dial(ctx, token)
		e.enqueue(event{kind: evDialed, seq: seq, conn: conn, err: err})
	}()
}

func (e *Engine) dialFailed(err error) {
	e.attempts++
	log.Printf("chat session: connect attempt %d/%d failed: %v", e.attempts, e.cfg.RetryAttempts, err)
	if e.attempts >= e.cfg.RetryAttempts {
		e.setStatus(StatusFailed)
		e.notice("connection lost")
		return
	}
	e.scheduleRetry()
}

// scheduleRetry arms one delayed dial. The seq check on delivery discards
// the timer when the connection cycle has moved on, so at most one
// reconnect attempt is ever in flight.
func (e *Engine) scheduleRetry() {
	seq := e.connSeq
	time.AfterFunc(e.cfg.RetryDelay, func() {
		e.enqueue(event{kind: evDial, seq: seq})
	})
}

func (e *Engine) becomeConnected(conn Conn) {
	e.conn = conn
	e.attempts = 0
	e.setStatus(StatusConnected)
	e.startReadPump(e.connSeq, conn)

	// Server-side subscriptions do not survive a transport reconnect, so
	// the active room is joined again on every connection.
	if join := e.rooms.Rejoin(); join != nil {
		e.writeSetActiveRoom(join)
	}
}

func (e *Engine) startReadPump(seq uint64, conn Conn) {
	go func() {
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				e.enqueue(event{kind: evReadError, seq: seq, err: err})
				return
			}
			e.enqueue(event{kind: evFrame, seq: seq, frame: frame})
		}
	}()
}

func (e *Engine) connectionLost(err error) {
	e.closeConn()
	log.Printf("chat session: connection lost: %v", err)
	e.attempts = 0
	e.setStatus(StatusReconnecting)
	e.scheduleRetry()
}

func (e *Engine) handleFrame(frame wire.Frame) {
	switch frame.Event {
	case wire.EventChatMessage:
		var msg wire.ChatMessage
		if err := frame.Decode(&msg); err != nil {
			log.Printf("chat session: %v", err)
			return
		}
		e.applyInbound(msg)
	default:
		// Unknown events are ignored so protocol additions stay compatible.
	}
}

// applyInbound appends a streamed message to the timeline. Messages for
// rooms other than the active one are dropped: only the active room's
// stream is subscribed, so anything else is a late echo from a room that
// was already left.
func (e *Engine) applyInbound(msg wire.ChatMessage) {
	active := e.rooms.Active()
	if active == nil || msg.RoomID != active.ID {
		return
	}
	if e.timeline.Append(e.toMessage(msg, *active)) {
		e.emitTimeline()
	}
}

func (e *Engine) openTarget(ctx context.Context, target Room) {
	if e.rooms.ActiveTarget(target.Kind, target.CounterpartID) {
		return
	}

	e.openSeq++
	seq := e.openSeq
	resolver := e.cfg.Resolver
	go func() {
		var roomID string
		var err error
		switch target.Kind {
		case RoomGroup:
			roomID, err = resolver.ResolveGroupRoom(ctx, target.CounterpartID)
		default:
			roomID, err = resolver.ResolveDirectRoom(ctx, target.CounterpartID)
		}
		e.enqueue(event{kind: evRoomResolved, seq: seq, target: target, roomID: roomID, err: err})
	}()
}

func (e *Engine) activate(ctx context.Context, room Room) {
	leave, join, changed := e.rooms.Activate(room)
	if !changed {
		return
	}
	if e.status == StatusConnected {
		if leave != nil {
			e.writeSetActiveRoom(nil)
		}
		e.writeSetActiveRoom(join)
	}

	// The previous room's timeline leaves working memory with the switch.
	e.timeline.Reset()
	e.emitTimeline()

	seq := e.openSeq
	fetcher := e.cfg.History
	go func() {
		page, err := fetcher.FetchPage(ctx, room.ID)
		e.enqueue(event{kind: evHistory, seq: seq, roomID: room.ID, page: page, err: err})
	}()
}

// applyHistory seeds the timeline with a fetched backlog page. A page for a
// room that is no longer active is discarded rather than applied; that is
// the guard keeping a slow fetch from overwriting a newer room's state.
func (e *Engine) applyHistory(ev event) {
	if ev.seq != e.openSeq {
		return
	}
	active := e.rooms.Active()
	if active == nil || ev.roomID != active.ID {
		return
	}
	if ev.err != nil {
		e.notice("could not load messages")
		log.Printf("chat session: fetch history for room %s: %v", ev.roomID, ev.err)
		return
	}

	page := make([]Message, 0, len(ev.page))
	for _, msg := range ev.page {
		page = append(page, e.toMessage(msg, *active))
	}
	e.timeline.Seed(page)
	e.emitTimeline()
}

func (e *Engine) closeRoom() {
	leave := e.rooms.Deactivate()
	if leave != nil && e.status == StatusConnected {
		e.writeSetActiveRoom(nil)
	}
	e.openSeq++
	e.timeline.Reset()
	e.emitTimeline()
}

func (e *Engine) send(text string) {
	text = strings.TrimSpace(text)
	active := e.rooms.Active()
	if text == "" || active == nil || e.status != StatusConnected || e.conn == nil {
		return
	}
	frame, err := wire.NewFrame(wire.EventChatMessage, wire.ChatSend{
		RoomID:  active.ID,
		Content: text,
	})
	if err != nil {
		log.Printf("chat session: %v", err)
		return
	}
	if err := e.conn.WriteFrame(frame); err != nil {
		log.Printf("chat session: send message: %v", err)
	}
}

func (e *Engine) writeSetActiveRoom(roomID *string) {
	if e.conn == nil {
		return
	}
	frame, err := wire.NewFrame(wire.EventSetActiveRoom, wire.SetActiveRoom{RoomID: roomID})
	if err != nil {
		log.Printf("chat session: %v", err)
		return
	}
	if err := e.conn.WriteFrame(frame); err != nil {
		log.Printf("chat session: set active room: %v", err)
	}
}

func (e *Engine) closeConn() {
	if e.conn == nil {
		return
	}
	_ = e.conn.Close()
	e.conn = nil
	e.connSeq++
}

func (e *Engine) toMessage(msg wire.ChatMessage, room Room) Message {
	out := Message{
		SenderID:   msg.UserID,
		Content:    msg.Content,
		SentAt:     msg.Timestamp,
		RoomID:     msg.RoomID,
		SenderName: msg.SenderName,
		AvatarURL:  msg.AvatarURL,
		Own:        msg.UserID == e.cfg.SelfID,
	}
	if !out.Own && out.SenderName == "" && room.Kind == RoomDirect {
		out.SenderName = room.CounterpartName
		out.AvatarURL = room.CounterpartAvatarURL
	}
	return out
}

func (e *Engine) setStatus(status Status) {
	if e.status == status {
		return
	}
	e.status = status
	if e.cfg.OnStatus != nil {
		e.cfg.OnStatus(status)
	}
}

func (e *Engine) emitTimeline() {
	if e.cfg.OnTimeline == nil {
		return
	}
	if active := e.rooms.Active(); active != nil {
		e.cfg.OnTimeline(*active, e.timeline.Snapshot())
		return
	}
	e.cfg.OnTimeline(Room{}, nil)
}

func (e *Engine) notice(text string) {
	if e.cfg.OnNotice != nil {
		e.cfg.OnNotice(text)
	}
}
