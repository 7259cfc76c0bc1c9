package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	UserID    string
	Username  string
	Content   string
	CreatedAt time.Time
}

func NewChatMessage(roomID uuid.UUID, userID string, username string, content string, at time.Time) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		Content:   content,
		CreatedAt: at.UTC(),
	}
}
