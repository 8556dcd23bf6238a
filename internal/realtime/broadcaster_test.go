package realtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

type fixture struct {
	registry    *Registry
	rooms       *Rooms
	broadcaster *Broadcaster
}

func newFixture() *fixture {
	registry := NewRegistry(zerolog.Nop())
	rooms := NewRooms()
	// same wiring as the process: last connection gone -> leave every room
	registry.OnOffline(func(userID string) { rooms.LeaveAll(userID) })
	return &fixture{
		registry:    registry,
		rooms:       rooms,
		broadcaster: NewBroadcaster(registry, rooms, zerolog.Nop()),
	}
}

func (f *fixture) connect(t *testing.T, userID string, rooms ...string) *Client {
	t.Helper()
	c := NewClient(userID, newFakeConn())
	f.registry.Register(userID, c)
	for _, room := range rooms {
		f.rooms.Join(userID, room)
	}
	return c
}

func decodeEvent(t *testing.T, channel, payload string) Event {
	t.Helper()
	ev, err := DecodeNotification(channel, []byte(payload))
	if err != nil {
		t.Fatalf("decode %s: %v", channel, err)
	}
	return ev
}

func TestNewMessageSkipsSender(t *testing.T) {
	f := newFixture()
	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	f.broadcaster.Broadcast(decodeEvent(t, "new_message", newMessagePayload))

	frame := takeFrame(t, bob)
	var out struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if out.Type != "new_message" {
		t.Fatalf("frame type = %q, want new_message", out.Type)
	}
	assertNoFrame(t, alice)
}

func TestTypingIndicatorSkipsTypist(t *testing.T) {
	f := newFixture()
	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	f.broadcaster.Broadcast(decodeEvent(t, "typing_indicator",
		`{"conversation_id":"conv-1","user_id":"bob","user":{},"is_typing":true}`))

	takeFrame(t, alice)
	assertNoFrame(t, bob)
}

func TestEditReachesEveryMember(t *testing.T) {
	f := newFixture()
	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	f.broadcaster.Broadcast(decodeEvent(t, "message_edited",
		`{"id":"m1","conversation_id":"conv-1","content":"x","is_edited":true,"edited_at":"t"}`))

	takeFrame(t, alice)
	takeFrame(t, bob)
}

func TestOfflineMemberIsNotATarget(t *testing.T) {
	f := newFixture()
	bob := f.connect(t, "bob", "conv-1")
	// carol durably participates but has no live connection and therefore
	// no room membership
	f.broadcaster.Broadcast(decodeEvent(t, "message_deleted",
		`{"id":"m1","conversation_id":"conv-1","deleted_at":"t"}`))

	takeFrame(t, bob)
	for _, member := range f.rooms.MembersOf("conv-1") {
		if member == "carol" {
			t.Fatalf("carol must not appear as a deliverable target")
		}
	}
}

func TestMultiDeviceReceivesOncePerConnection(t *testing.T) {
	f := newFixture()
	a1 := f.connect(t, "alice", "conv-1")
	a2 := NewClient("alice", newFakeConn())
	f.registry.Register("alice", a2)

	f.broadcaster.Broadcast(decodeEvent(t, "message_deleted",
		`{"id":"m1","conversation_id":"conv-1","deleted_at":"t"}`))

	takeFrame(t, a1)
	takeFrame(t, a2)
	assertNoFrame(t, a1)
	assertNoFrame(t, a2)
}

func TestDisconnectLastConnectionLeavesRooms(t *testing.T) {
	f := newFixture()
	a1 := f.connect(t, "alice", "conv-1")
	a2 := NewClient("alice", newFakeConn())
	f.registry.Register("alice", a2)

	f.registry.Unregister("alice", a1)
	if got := f.rooms.MembersOf("conv-1"); len(got) != 1 {
		t.Fatalf("alice must stay in conv-1 while a2 lives, members = %v", got)
	}

	f.registry.Unregister("alice", a2)
	if got := f.rooms.MembersOf("conv-1"); got != nil {
		t.Fatalf("members after last disconnect = %v, want none", got)
	}
}

func TestParticipantAddedJoinsOnlineMember(t *testing.T) {
	f := newFixture()
	f.connect(t, "alice", "conv-1")
	carol := f.connect(t, "carol") // online, not yet a member

	f.broadcaster.Broadcast(decodeEvent(t, "participant_added",
		`{"conversation_id":"conv-1","user_id":"carol","user":{},"role":"member"}`))

	// carol joined before delivery, so she hears her own addition
	takeFrame(t, carol)

	f.broadcaster.Broadcast(decodeEvent(t, "message_deleted",
		`{"id":"m1","conversation_id":"conv-1","deleted_at":"t"}`))
	takeFrame(t, carol)
}

func TestParticipantRemovedLeavesAfterDelivery(t *testing.T) {
	f := newFixture()
	carol := f.connect(t, "carol", "conv-1")

	f.broadcaster.Broadcast(decodeEvent(t, "participant_removed",
		`{"conversation_id":"conv-1","user_id":"carol"}`))

	// carol still heard about her own removal
	takeFrame(t, carol)

	f.broadcaster.Broadcast(decodeEvent(t, "message_deleted",
		`{"id":"m1","conversation_id":"conv-1","deleted_at":"t"}`))
	assertNoFrame(t, carol)
}

func TestSendPersonalTargetsOneUser(t *testing.T) {
	f := newFixture()
	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	f.broadcaster.SendPersonal("bob", decodeEvent(t, "message_read",
		`{"message_id":"m1","user_id":"alice","read_at":"t","conversation_id":"conv-1"}`))

	takeFrame(t, bob)
	assertNoFrame(t, alice)
}

func TestBroadcastAndPersonalShareFraming(t *testing.T) {
	f := newFixture()
	bob := f.connect(t, "bob", "conv-1")
	ev := decodeEvent(t, "message_read",
		`{"message_id":"m1","user_id":"alice","read_at":"t","conversation_id":"conv-1"}`)

	f.broadcaster.Broadcast(ev)
	broadcast := takeFrame(t, bob)
	f.broadcaster.SendPersonal("bob", ev)
	personal := takeFrame(t, bob)

	if string(broadcast) != string(personal) {
		t.Fatalf("broadcast frame %s != personal frame %s", broadcast, personal)
	}
}

func TestBroadcastSameConversationKeepsOrder(t *testing.T) {
	f := newFixture()
	bob := f.connect(t, "bob", "conv-1")

	for i := 0; i < 5; i++ {
		f.broadcaster.Broadcast(decodeEvent(t, "message_edited", fmt.Sprintf(
			`{"id":"m%d","conversation_id":"conv-1","content":"x","is_edited":true,"edited_at":"t"}`, i)))
	}
	for i := 0; i < 5; i++ {
		var out struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(takeFrame(t, bob), &out); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if want := fmt.Sprintf("m%d", i); out.Data.ID != want {
			t.Fatalf("frame %d id = %q, want %q", i, out.Data.ID, want)
		}
	}
}
