package session

import "testing"

func TestRoomControllerActivateReturnsSignals(t *testing.T) {
	var rc roomController

	leave, join, changed := rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})
	if !changed {
		t.Fatal("expected first activation to change state")
	}
	if leave != nil {
		t.Fatalf("expected no leave signal, got %q", *leave)
	}
	if join == nil || *join != "room-1" {
		t.Fatalf("expected join signal for room-1, got %v", join)
	}
}

func TestRoomControllerActivateIsIdempotent(t *testing.T) {
	var rc roomController
	rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})

	leave, join, changed := rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})
	if changed || leave != nil || join != nil {
		t.Fatal("re-activating the active room must produce no signals")
	}
}

func TestRoomControllerSwitchLeavesPrevious(t *testing.T) {
	var rc roomController
	rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})

	leave, join, changed := rc.Activate(Room{ID: "room-2", Kind: RoomDirect, CounterpartID: 2})
	if !changed {
		t.Fatal("expected switch to change state")
	}
	if leave == nil || *leave != "room-1" {
		t.Fatalf("expected leave signal for room-1, got %v", leave)
	}
	if join == nil || *join != "room-2" {
		t.Fatalf("expected join signal for room-2, got %v", join)
	}
	if active := rc.Active(); active == nil || active.ID != "room-2" {
		t.Fatalf("expected room-2 active, got %+v", active)
	}
}

func TestRoomControllerActiveTarget(t *testing.T) {
	var rc roomController
	rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 7})

	if !rc.ActiveTarget(RoomDirect, 7) {
		t.Fatal("expected active target match")
	}
	if rc.ActiveTarget(RoomGroup, 7) {
		t.Fatal("group target must not match a direct room")
	}
	if rc.ActiveTarget(RoomDirect, 8) {
		t.Fatal("different counterpart must not match")
	}
}

func TestRoomControllerDeactivate(t *testing.T) {
	var rc roomController

	if leave := rc.Deactivate(); leave != nil {
		t.Fatalf("deactivating with no room must be a no-op, got %q", *leave)
	}

	rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})
	if leave := rc.Deactivate(); leave == nil || *leave != "room-1" {
		t.Fatalf("expected leave signal for room-1, got %v", leave)
	}
	if rc.Active() != nil {
		t.Fatal("expected no active room after deactivate")
	}
}

func TestRoomControllerRejoin(t *testing.T) {
	var rc roomController

	if join := rc.Rejoin(); join != nil {
		t.Fatalf("rejoin with no room must be nil, got %q", *join)
	}

	rc.Activate(Room{ID: "room-1", Kind: RoomDirect, CounterpartID: 1})
	if join := rc.Rejoin(); join == nil || *join != "room-1" {
		t.Fatalf("expected rejoin signal for room-1, got %v", join)
	}
}
