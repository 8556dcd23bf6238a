package realtime

import "github.com/rs/zerolog"

// EventSink receives decoded change-feed events. The bridge dispatches into
// it; swapping in a broker-backed sink is the extension point for running
// more than one process.
type EventSink interface {
	Broadcast(ev Event)
}

// Broadcaster fans one event out to every live connection of every room
// member, minus the event's excluded user. Delivery is best effort and
// at most once per connection; a failed send is connection cleanup, not a
// retry, since the durable record already exists.
type Broadcaster struct {
	registry *Registry
	rooms    *Rooms
	log      zerolog.Logger
}

func NewBroadcaster(registry *Registry, rooms *Rooms, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, rooms: rooms, log: log}
}

func (b *Broadcaster) Broadcast(ev Event) {
	// Membership events keep the room cache in sync. An added participant
	// joins before delivery so they hear their own addition; a removed one
	// leaves after, for the same reason.
	if ev.Kind == KindParticipantAdded && b.registry.Online(ev.MemberUserID) {
		b.rooms.Join(ev.MemberUserID, ev.ConversationID)
	}

	frame, err := ev.Envelope()
	if err != nil {
		b.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("encode event envelope")
		return
	}

	for _, userID := range b.rooms.MembersOf(ev.ConversationID) {
		if userID == ev.ExcludeUserID {
			continue
		}
		b.sendFrame(userID, frame)
	}

	if ev.Kind == KindParticipantRemoved {
		b.rooms.Leave(ev.MemberUserID, ev.ConversationID)
	}
}

// SendPersonal delivers one event to a single user's connections, bypassing
// room resolution.
func (b *Broadcaster) SendPersonal(userID string, ev Event) {
	frame, err := ev.Envelope()
	if err != nil {
		b.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("encode event envelope")
		return
	}
	b.sendFrame(userID, frame)
}

// sendFrame is the single per-user delivery primitive. Broadcast funnels
// every member through it with one pre-encoded frame; SendPersonal is the
// same primitive for a single recipient.
func (b *Broadcaster) sendFrame(userID string, frame []byte) {
	b.registry.Deliver(userID, frame)
}
