package realtime

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the notification channels the store emits on.
type Kind string

const (
	KindNewMessage         Kind = "new_message"
	KindMessageEdited      Kind = "message_edited"
	KindMessageDeleted     Kind = "message_deleted"
	KindTypingIndicator    Kind = "typing_indicator"
	KindMessageRead        Kind = "message_read"
	KindParticipantAdded   Kind = "participant_added"
	KindParticipantRemoved Kind = "participant_removed"
)

// Event is one decoded change-feed notification. Payload is the raw
// notification body, forwarded verbatim to clients inside the envelope.
type Event struct {
	Kind           Kind
	ConversationID string
	// ExcludeUserID is the user skipped during fan-out (the sender of a
	// message, the user who is typing). Empty when no one is excluded.
	ExcludeUserID string
	// MemberUserID is the subject of a membership change, set only for the
	// participant_* kinds.
	MemberUserID string
	Payload      json.RawMessage
}

// kindSpec describes one notification channel: which payload fields must be
// present, which field names the excluded user, and whether user_id names a
// membership change subject. Per-kind behavior is data here, not branches.
type kindSpec struct {
	required []string
	exclude  string
	member   bool
}

var kindSpecs = map[Kind]kindSpec{
	KindNewMessage: {
		required: []string{"id", "conversation_id", "sender_id", "content", "message_type", "file_url", "file_name", "created_at", "sender"},
		exclude:  "sender_id",
	},
	KindMessageEdited: {
		required: []string{"id", "conversation_id", "content", "is_edited", "edited_at"},
	},
	KindMessageDeleted: {
		required: []string{"id", "conversation_id", "deleted_at"},
	},
	KindTypingIndicator: {
		required: []string{"conversation_id", "user_id", "user", "is_typing"},
		exclude:  "user_id",
	},
	KindMessageRead: {
		required: []string{"message_id", "user_id", "read_at", "conversation_id"},
	},
	KindParticipantAdded: {
		required: []string{"conversation_id", "user_id", "user", "role"},
		member:   true,
	},
	KindParticipantRemoved: {
		required: []string{"conversation_id", "user_id"},
		member:   true,
	},
}

// Channels returns every notification channel the bridge must listen on.
func Channels() []string {
	return []string{
		string(KindNewMessage),
		string(KindMessageEdited),
		string(KindMessageDeleted),
		string(KindTypingIndicator),
		string(KindMessageRead),
		string(KindParticipantAdded),
		string(KindParticipantRemoved),
	}
}

// DecodeNotification turns one raw notification into an Event. Unknown
// channels and payloads missing schema fields are rejected; the caller drops
// such notifications without stopping the feed.
func DecodeNotification(channel string, payload []byte) (Event, error) {
	spec, ok := kindSpecs[Kind(channel)]
	if !ok {
		return Event{}, fmt.Errorf("realtime: unknown channel %q", channel)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Event{}, fmt.Errorf("realtime: decode %s: %w", channel, err)
	}
	for _, name := range spec.required {
		if _, ok := fields[name]; !ok {
			return Event{}, fmt.Errorf("realtime: decode %s: missing field %q", channel, name)
		}
	}

	conversationID, err := stringField(fields, "conversation_id")
	if err != nil {
		return Event{}, fmt.Errorf("realtime: decode %s: %w", channel, err)
	}

	ev := Event{
		Kind:           Kind(channel),
		ConversationID: conversationID,
		Payload:        json.RawMessage(payload),
	}
	if spec.exclude != "" {
		if ev.ExcludeUserID, err = stringField(fields, spec.exclude); err != nil {
			return Event{}, fmt.Errorf("realtime: decode %s: %w", channel, err)
		}
	}
	if spec.member {
		if ev.MemberUserID, err = stringField(fields, "user_id"); err != nil {
			return Event{}, fmt.Errorf("realtime: decode %s: %w", channel, err)
		}
	}
	return ev, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return "", fmt.Errorf("field %q is not a string", name)
	}
	if s == "" {
		return "", fmt.Errorf("field %q is empty", name)
	}
	return s, nil
}

// envelope is the outbound client frame.
type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope renders the {type, data} frame delivered to clients.
func (e Event) Envelope() ([]byte, error) {
	return json.Marshal(envelope{Type: e.Kind, Data: e.Payload})
}
