package gateway

import (
	"encoding/json"
	"sync"

	"golang.org/x/text/language"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
)

// peer is one connected websocket subscriber.
type peer struct {
	identity Identity
	locale   language.Tag

	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *peer) writeFrame(frame wire.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// activeRoom is the room a peer currently subscribes to.
type activeRoom struct {
	ID   string
	Kind string
}

// hub tracks room subscriptions. Each peer subscribes to at most one room
// at a time; switching rooms implicitly leaves the previous one.
type hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*peer]struct{}
	active map[*peer]activeRoom
}

func newHub() *hub {
	return &hub{
		rooms:  make(map[string]map[*peer]struct{}),
		active: make(map[*peer]activeRoom),
	}
}

// setActive moves the peer to the given room, leaving its previous room
// first. A zero room clears the subscription.
func (h *hub) setActive(p *peer, room activeRoom) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(p)
	if room.ID == "" {
		return
	}
	members, ok := h.rooms[room.ID]
	if !ok {
		members = make(map[*peer]struct{})
		h.rooms[room.ID] = members
	}
	members[p] = struct{}{}
	h.active[p] = room
}

// activeFor returns the peer's current subscription, if any.
func (h *hub) activeFor(p *peer) (activeRoom, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.active[p]
	return room, ok
}

// drop removes a disconnected peer from the hub.
func (h *hub) drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(p)
}

func (h *hub) leaveLocked(p *peer) {
	room, ok := h.active[p]
	if !ok {
		return
	}
	delete(h.active, p)
	members, ok := h.rooms[room.ID]
	if !ok {
		return
	}
	delete(members, p)
	if len(members) == 0 {
		delete(h.rooms, room.ID)
	}
}

// broadcast delivers a frame to every subscriber of the room, including the
// sender. Writes happen outside the hub lock so one slow peer cannot stall
// room bookkeeping.
func (h *hub) broadcast(roomID string, frame wire.Frame) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.rooms[roomID]))
	for p := range h.rooms[roomID] {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, p := range targets {
		_ = p.writeFrame(frame)
	}
}
