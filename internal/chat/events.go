package chat

import (
	"time"

	"github.com/agrichat/community-chat/internal/types"
)

// Inbound event types.
const (
	EventMessage = "message"
	EventTyping  = "typing"
)

// Outbound event types.
const (
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventNewMessage        = "new_message"
	EventMessageDeleted    = "message_deleted"
	EventModerationWarning = "moderation_warning"
	EventError             = "error"
)

// ClientEvent is a frame received from a connection. Type discriminates;
// the remaining fields are only meaningful for "message" frames.
type ClientEvent struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	MediaUrl    string `json:"media_url,omitempty"`
	ClientId    string `json:"client_id,omitempty"`
}

// ServerEvent is a frame sent to connections. Message carries either the
// stored message object (new_message) or a warning string
// (moderation_warning, error); the wire field is "message" in both
// cases, matching the frontend contract.
type ServerEvent struct {
	Type        string `json:"type"`
	UserName    string `json:"user_name,omitempty"`
	UserPicture string `json:"user_picture,omitempty"`
	OnlineCount int    `json:"online_count,omitempty"`
	ClientId    string `json:"client_id,omitempty"`
	MessageId   string `json:"message_id,omitempty"`
	Message     any    `json:"message,omitempty"`
}

func UserJoinedEvent(name, picture string, onlineCount int) *ServerEvent {
	return &ServerEvent{
		Type:        EventUserJoined,
		UserName:    name,
		UserPicture: picture,
		OnlineCount: onlineCount,
	}
}

func UserLeftEvent(name string, onlineCount int) *ServerEvent {
	return &ServerEvent{
		Type:        EventUserLeft,
		UserName:    name,
		OnlineCount: onlineCount,
	}
}

func NewMessageEvent(msg types.Message, clientId string) *ServerEvent {
	return &ServerEvent{
		Type:     EventNewMessage,
		ClientId: clientId,
		Message:  msg,
	}
}

func MessageDeletedEvent(messageId string) *ServerEvent {
	return &ServerEvent{
		Type:      EventMessageDeleted,
		MessageId: messageId,
	}
}

func ModerationWarningEvent(reason, clientId string) *ServerEvent {
	return &ServerEvent{
		Type:     EventModerationWarning,
		ClientId: clientId,
		Message:  "Message blocked: " + reason,
	}
}

func ErrorEvent(text, clientId string) *ServerEvent {
	return &ServerEvent{
		Type:     EventError,
		ClientId: clientId,
		Message:  text,
	}
}

func TypingEvent(name string) *ServerEvent {
	return &ServerEvent{
		Type:     EventTyping,
		UserName: name,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
