package realtime

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// ConnLike is the slice of a websocket connection the registry needs.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

const sendBuffer = 32

// Client is one live transport connection belonging to a single user. A user
// on several devices owns several Clients.
type Client struct {
	UserID string
	Conn   ConnLike

	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClient(userID string, conn ConnLike) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A full buffer or
// a closed client counts as a failed send.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown tears the transport down. Safe to call from any goroutine, any
// number of times.
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// WritePump drains queued frames onto the socket until the client shuts down
// or a write fails.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// ReadLoop consumes inbound frames until the transport closes or errors.
// Inbound content is ignored; clients send frames only to keep the
// connection alive. Returns once the session should be torn down.
func (c *Client) ReadLoop() {
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			c.shutdown()
			return
		}
	}
}
