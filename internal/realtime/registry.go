package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks every live connection keyed by user id. It is the only
// component that mutates the connection map; everything else goes through
// Register, Unregister and Deliver.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Client]struct{}

	offline func(userID string)
	log     zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

// OnOffline installs the hook invoked whenever a user's last connection goes
// away, from either Unregister or a failed Deliver. The hook runs with the
// registry lock held so its teardown cannot interleave with a reconnect; it
// must not call back into the registry. Set once during wiring, before any
// connection is registered.
func (r *Registry) OnOffline(fn func(userID string)) {
	r.offline = fn
}

// Register adds the connection to the user's set. Registering the same
// handle twice is a no-op.
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	r.log.Debug().Str("user_id", userID).Int("connections", total).Msg("connection registered")
}

// Unregister removes the handle and reports whether the user went offline
// (their last connection was removed). Removing an absent handle is a no-op.
func (r *Registry) Unregister(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	wentOffline := false
	if set, ok := r.conns[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.conns, userID)
			wentOffline = true
		}
	}
	if wentOffline {
		r.log.Debug().Str("user_id", userID).Msg("user went offline")
		if r.offline != nil {
			// Still under the lock: a reconnect cannot land between the
			// map delete and the hook's teardown.
			r.offline(userID)
		}
	}
	return wentOffline
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	_, ok := r.conns[userID]
	r.mu.RUnlock()
	return ok
}

// Deliver sends the frame to every live connection of the user. A connection
// that cannot accept the frame is shut down and unregistered; transport
// failure never surfaces to the caller.
func (r *Registry) Deliver(userID string, frame []byte) {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.conns[userID]))
	for c := range r.conns[userID] {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		if c.enqueue(frame) {
			continue
		}
		r.log.Debug().Str("user_id", userID).Msg("send failed, dropping connection")
		c.shutdown()
		r.Unregister(userID, c)
	}
}
