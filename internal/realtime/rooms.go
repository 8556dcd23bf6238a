package realtime

import "sync"

// Rooms caches which users currently want events for which conversation.
// It is rebuilt per session from durable participant rows, so a stale entry
// self-heals on the next reconnect. It is never the authoritative record of
// conversation membership.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // conversation id -> user ids
	joined  map[string]map[string]struct{} // user id -> conversation ids
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (r *Rooms) Join(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[conversationID]
	if !ok {
		set = make(map[string]struct{})
		r.members[conversationID] = set
	}
	set[userID] = struct{}{}

	rooms, ok := r.joined[userID]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[userID] = rooms
	}
	rooms[conversationID] = struct{}{}
}

func (r *Rooms) Leave(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(userID, conversationID)
}

// LeaveAll drops the user from every room; called on full disconnect.
func (r *Rooms) LeaveAll(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conversationID := range r.joined[userID] {
		r.leaveLocked(userID, conversationID)
	}
}

// MembersOf returns a snapshot of the room's member set. Delivery happens
// outside the lock so a stalled socket cannot stall unrelated rooms.
func (r *Rooms) MembersOf(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[conversationID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

func (r *Rooms) leaveLocked(userID, conversationID string) {
	if set, ok := r.members[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.members, conversationID)
		}
	}
	if rooms, ok := r.joined[userID]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(r.joined, userID)
		}
	}
}
