package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeConn satisfies ConnLike without a transport. Reads block forever
// unless the connection is closed.
type fakeConn struct {
	closed   chan struct{}
	writeErr error

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("connection closed")
}

func (f *fakeConn) WriteMessage(_ int, payload []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	f.writes = append(f.writes, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

// takeFrame pops the next queued frame or fails.
func takeFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	default:
		t.Fatalf("expected a queued frame, got none")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("expected no frame, got %s", frame)
	default:
	}
}

func TestDeliverReachesEveryConnectionOnce(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	a1 := NewClient("alice", newFakeConn())
	a2 := NewClient("alice", newFakeConn())
	r.Register("alice", a1)
	r.Register("alice", a2)

	r.Deliver("alice", []byte("hello"))

	for _, c := range []*Client{a1, a2} {
		if got := string(takeFrame(t, c)); got != "hello" {
			t.Fatalf("frame = %q, want %q", got, "hello")
		}
		assertNoFrame(t, c)
	}
}

func TestRegisterSameHandleTwiceIsNoop(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	c := NewClient("alice", newFakeConn())
	r.Register("alice", c)
	r.Register("alice", c)

	r.Deliver("alice", []byte("once"))
	takeFrame(t, c)
	assertNoFrame(t, c)

	if !r.Unregister("alice", c) {
		t.Fatalf("expected offline signal after removing the only connection")
	}
	if r.Online("alice") {
		t.Fatalf("alice should be offline")
	}
}

func TestUnregisterSignalsOfflineOnlyForLastConnection(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	var offline []string
	r.OnOffline(func(userID string) { offline = append(offline, userID) })

	a1 := NewClient("alice", newFakeConn())
	a2 := NewClient("alice", newFakeConn())
	r.Register("alice", a1)
	r.Register("alice", a2)

	if r.Unregister("alice", a1) {
		t.Fatalf("first disconnect must not signal offline")
	}
	if len(offline) != 0 {
		t.Fatalf("offline hook ran early: %v", offline)
	}
	if !r.Online("alice") {
		t.Fatalf("alice should still be online via a2")
	}

	if !r.Unregister("alice", a2) {
		t.Fatalf("last disconnect must signal offline")
	}
	if len(offline) != 1 || offline[0] != "alice" {
		t.Fatalf("offline hook calls = %v, want exactly [alice]", offline)
	}

	// Idempotent: removing an absent handle is a no-op, not a second signal.
	if r.Unregister("alice", a2) {
		t.Fatalf("repeat unregister must not signal offline again")
	}
	if len(offline) != 1 {
		t.Fatalf("offline hook ran again: %v", offline)
	}
}

func TestOfflineTeardownCannotInterleaveWithReconnect(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	rooms := NewRooms()
	entered := make(chan struct{})
	release := make(chan struct{})
	r.OnOffline(func(userID string) {
		close(entered)
		<-release
		rooms.LeaveAll(userID)
	})

	c1 := NewClient("alice", newFakeConn())
	r.Register("alice", c1)
	rooms.Join("alice", "conv-1")

	// Reconnect racing the disconnect: it must not complete while the
	// offline teardown is still running, or its fresh room membership
	// would be wiped.
	reconnected := make(chan struct{})
	go func() {
		<-entered
		c2 := NewClient("alice", newFakeConn())
		r.Register("alice", c2)
		rooms.Join("alice", "conv-1")
		close(reconnected)
	}()

	done := make(chan struct{})
	go func() {
		r.Unregister("alice", c1)
		close(done)
	}()

	<-entered
	select {
	case <-reconnected:
		t.Fatalf("reconnect completed while offline teardown was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	<-reconnected

	if !r.Online("alice") {
		t.Fatalf("reconnected user must be online")
	}
	if members := rooms.MembersOf("conv-1"); len(members) != 1 || members[0] != "alice" {
		t.Fatalf("members(conv-1) = %v, want [alice]", members)
	}
}

func TestDeliverToUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Deliver("ghost", []byte("x")) // must not panic
	if r.Online("ghost") {
		t.Fatalf("ghost should not be online")
	}
}

func TestFailedSendRemovesConnectionAndSignalsOffline(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	var offline int
	r.OnOffline(func(string) { offline++ })

	c := NewClient("alice", newFakeConn())
	r.Register("alice", c)
	c.shutdown()

	r.Deliver("alice", []byte("x"))

	if r.Online("alice") {
		t.Fatalf("alice should be offline after the failed send")
	}
	if offline != 1 {
		t.Fatalf("offline signals = %d, want 1", offline)
	}

	// Concurrent-disconnect shape: delivering to the already-removed
	// connection again is a no-op, never a fault.
	r.Deliver("alice", []byte("y"))
	if offline != 1 {
		t.Fatalf("offline signals after second deliver = %d, want 1", offline)
	}
}

func TestFailedSendOnOneDeviceKeepsTheOther(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	var offline int
	r.OnOffline(func(string) { offline++ })

	dead := NewClient("alice", newFakeConn())
	live := NewClient("alice", newFakeConn())
	r.Register("alice", dead)
	r.Register("alice", live)
	dead.shutdown()

	r.Deliver("alice", []byte("x"))

	if !r.Online("alice") {
		t.Fatalf("alice should remain online via the live connection")
	}
	if offline != 0 {
		t.Fatalf("offline signals = %d, want 0", offline)
	}
	if got := string(takeFrame(t, live)); got != "x" {
		t.Fatalf("live connection frame = %q, want %q", got, "x")
	}
}
