package realtime

import (
	"sort"
	"testing"
)

func sortedMembers(r *Rooms, conversationID string) []string {
	members := r.MembersOf(conversationID)
	sort.Strings(members)
	return members
}

func TestJoinAndMembersOf(t *testing.T) {
	r := NewRooms()
	r.Join("alice", "conv-1")
	r.Join("bob", "conv-1")
	r.Join("alice", "conv-2")

	got := sortedMembers(r, "conv-1")
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("conv-1 members = %v, want [alice bob]", got)
	}
	if got := r.MembersOf("conv-3"); got != nil {
		t.Fatalf("empty room members = %v, want nil", got)
	}
}

func TestLeaveRemovesOnlyThatRoom(t *testing.T) {
	r := NewRooms()
	r.Join("alice", "conv-1")
	r.Join("alice", "conv-2")

	r.Leave("alice", "conv-1")

	if got := r.MembersOf("conv-1"); got != nil {
		t.Fatalf("conv-1 members = %v, want nil", got)
	}
	if got := r.MembersOf("conv-2"); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("conv-2 members = %v, want [alice]", got)
	}

	// leaving twice is harmless
	r.Leave("alice", "conv-1")
}

func TestLeaveAllEmptiesEveryRoom(t *testing.T) {
	r := NewRooms()
	r.Join("alice", "conv-1")
	r.Join("alice", "conv-2")
	r.Join("bob", "conv-1")

	r.LeaveAll("alice")

	if got := r.MembersOf("conv-1"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("conv-1 members = %v, want [bob]", got)
	}
	if got := r.MembersOf("conv-2"); got != nil {
		t.Fatalf("conv-2 members = %v, want nil", got)
	}
}
