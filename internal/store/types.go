package store

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeVideo  = "video"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	IsOnline    bool      `json:"is_online"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
}

type Participant struct {
	User     User      `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type Conversation struct {
	ID           string        `json:"id"`
	Name         *string       `json:"name"`
	IsGroup      bool          `json:"is_group"`
	AvatarURL    *string       `json:"avatar_url"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Participants []Participant `json:"participants"`
	UnreadCount  int           `json:"unread_count"`
	MyRole       string        `json:"my_role,omitempty"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	FileURL        *string    `json:"file_url"`
	FileName       *string    `json:"file_name"`
	FileSize       *int64     `json:"file_size"`
	IsEdited       bool       `json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at"`
	CreatedAt      time.Time  `json:"created_at"`
	Sender         User       `json:"sender"`
	ReadBy         []string   `json:"read_by"`
}
