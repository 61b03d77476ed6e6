package chat

import (
	"errors"
	"fmt"
	"log"

	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/types"
	"github.com/teris-io/shortid"
)

// retentionCap is the maximum number of non-deleted messages a room
// keeps; the sweep after each append physically deletes the excess.
const retentionCap = 50

const deletedPlaceholder = "[Message deleted]"

var ErrNotAuthor = errors.New("message can only be deleted by its author")

// MessageStore is the durable message log. Appending does not enforce
// the retention cap itself; EnforceRetention runs as a separate step
// after every successful append.
type MessageStore struct {
	db  database.CommunityRepository
	cap int
	log *log.Logger
}

func NewMessageStore(db database.CommunityRepository, logger *log.Logger) *MessageStore {
	return &MessageStore{
		db:  db,
		cap: retentionCap,
		log: logger,
	}
}

func (s *MessageStore) Append(params database.CreateMessageParams) (types.Message, error) {
	id, err := shortid.Generate()
	if err != nil {
		return types.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	params.ExternalId = id
	if params.MessageType == "" {
		params.MessageType = "text"
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = Now()
	}

	msg, err := s.db.CreateMessage(params)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return toApiMessage(msg, ""), nil
}

// EnforceRetention counts the room's non-deleted messages and physically
// deletes the oldest excess beyond the cap. Safe to run concurrently
// from multiple sessions: worst case two sweeps observe the same excess
// and over-delete a just-in-range message, which is acceptable; the cap
// is never under-enforced past the next append.
func (s *MessageStore) EnforceRetention(roomId string) (int, error) {
	count, err := s.db.CountMessages(roomId)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	var deleted int
	if count > s.cap {
		deleted, err = s.db.DeleteOldestMessages(roomId, count-s.cap)
		if err != nil {
			return 0, fmt.Errorf("delete oldest messages: %w", err)
		}
	}

	if purged, err := s.db.PurgeDeletedMessages(roomId); err != nil {
		s.log.Printf("purge deleted messages in %q: %v", roomId, err)
	} else if purged > 0 {
		s.log.Printf("purged %d soft-deleted messages in %q", purged, roomId)
	}

	return deleted, nil
}

// List returns up to limit most recent non-deleted messages in
// chronological order. The store queries newest-first for an efficient
// "last N" and reverses for display; requesterEmail marks ownership.
func (s *MessageStore) List(roomId string, limit int, requesterEmail string) ([]types.Message, error) {
	recent, err := s.db.GetRecentMessages(roomId, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}

	messages := make([]types.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		messages = append(messages, toApiMessage(recent[i], requesterEmail))
	}

	return messages, nil
}

// SoftDelete marks the message deleted and rewrites its body to a fixed
// placeholder. Only the author may delete; the row itself persists until
// a retention sweep purges it.
func (s *MessageStore) SoftDelete(messageId, requesterEmail string) (types.Message, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get message: %w", err)
	}

	if msg.UserEmail != requesterEmail {
		return types.Message{}, ErrNotAuthor
	}

	if err := s.db.SoftDeleteMessage(messageId, deletedPlaceholder); err != nil {
		return types.Message{}, fmt.Errorf("soft delete message: %w", err)
	}

	return toApiMessage(msg, requesterEmail), nil
}

func toApiMessage(msg database.Message, requesterEmail string) types.Message {
	return types.Message{
		Id:          msg.ExternalId,
		RoomId:      msg.RoomId,
		UserEmail:   msg.UserEmail,
		UserName:    msg.UserName,
		UserPicture: msg.UserPicture,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		MediaUrl:    msg.MediaUrl,
		CreatedAt:   msg.CreatedAt,
		IsOwn:       requesterEmail != "" && msg.UserEmail == requesterEmail,
	}
}
