package realtime

import (
	"errors"
	"testing"
	"time"
)

func TestEnqueueAfterShutdownFails(t *testing.T) {
	c := NewClient("alice", newFakeConn())
	c.shutdown()
	if c.enqueue([]byte("x")) {
		t.Fatalf("enqueue on a shut-down client must fail")
	}
}

func TestEnqueueFullBufferFails(t *testing.T) {
	c := NewClient("alice", newFakeConn())
	for i := 0; i < sendBuffer; i++ {
		if !c.enqueue([]byte("x")) {
			t.Fatalf("enqueue %d failed before the buffer was full", i)
		}
	}
	if c.enqueue([]byte("overflow")) {
		t.Fatalf("enqueue must fail once the buffer is full")
	}
}

func TestWritePumpFlushesFrames(t *testing.T) {
	conn := newFakeConn()
	c := NewClient("alice", conn)
	c.enqueue([]byte("one"))
	c.enqueue([]byte("two"))

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		conn.mu.Lock()
		n := len(conn.writes)
		conn.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("frames written = %d, want 2", n)
		case <-time.After(time.Millisecond):
		}
	}

	c.shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("write pump did not stop after shutdown")
	}
}

func TestWritePumpStopsOnWriteError(t *testing.T) {
	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	c := NewClient("alice", conn)
	c.enqueue([]byte("x"))

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("write pump did not stop on write error")
	}
	if c.enqueue([]byte("y")) {
		t.Fatalf("client must reject frames after a failed write")
	}
}

func TestReadLoopReturnsOnTransportClose(t *testing.T) {
	conn := newFakeConn()
	c := NewClient("alice", conn)

	done := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(done)
	}()

	_ = conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("read loop did not return after transport close")
	}
}
