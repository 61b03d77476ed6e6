package types

import (
	"time"
)

type User struct {
	Id            int       `json:"id"`
	EmailAddress  string    `json:"email_address"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture,omitempty"`
	Location      string    `json:"location,omitempty"`
	CommunityRoom string    `json:"community_room,omitempty"`
	Password      string    `json:"-"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	RoomId      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	MemberCount int    `json:"member_count"`
}

type Message struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"room_id"`
	UserEmail   string    `json:"user_email"`
	UserName    string    `json:"user_name"`
	UserPicture string    `json:"user_picture,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	MediaUrl    string    `json:"media_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsOwn       bool      `json:"is_own,omitempty"`
}

// OnlineUser is a presence snapshot entry. It only exists while the user
// has at least one open connection to the room.
type OnlineUser struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}
