package session

// roomController enforces the single-active-room invariant: at most one
// room is subscribed per session at any instant.
//
// The controller is a pure state machine. Transitions return the leave and
// join signals they require instead of performing I/O, and the caller must
// emit the leave signal before the join signal so the gateway never
// considers two rooms subscribed at once.
type roomController struct {
	active *Room
}

// Active returns the currently subscribed room, or nil.
func (c *roomController) Active() *Room {
	return c.active
}

// ActiveTarget reports whether the active room already points at the given
// chat target. Activation is resolved from a target, not a room id, so this
// is what makes re-opening the same conversation a no-op.
func (c *roomController) ActiveTarget(kind RoomKind, counterpartID int64) bool {
	return c.active != nil && c.active.Kind == kind && c.active.CounterpartID == counterpartID
}

// Activate switches the subscription to room. When room is already active
// no signals are returned and changed is false. Otherwise the previous
// room's id is returned as the leave signal (nil when no room was active)
// and the new room's id as the join signal.
func (c *roomController) Activate(room Room) (leave *string, join *string, changed bool) {
	if c.active != nil && c.active.ID == room.ID {
		return nil, nil, false
	}
	if c.active != nil {
		previous := c.active.ID
		leave = &previous
	}
	next := room
	c.active = &next
	return leave, &next.ID, true
}

// Deactivate clears the subscription and returns the leave signal for the
// previously active room, or nil when none was set.
func (c *roomController) Deactivate() (leave *string) {
	if c.active == nil {
		return nil
	}
	previous := c.active.ID
	c.active = nil
	return &previous
}

// Rejoin returns the join signal to re-issue after a reconnect. The
// gateway does not keep subscriptions across transports, so a fresh
// connection must join the active room again.
func (c *roomController) Rejoin() (join *string) {
	if c.active == nil {
		return nil
	}
	id := c.active.ID
	return &id
}
