package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

type RoomResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	Host            string    `json:"host"`
	Participants    []string  `json:"participants"`
	DocumentContent string    `json:"documentContent"`
	CreatedAt       time.Time `json:"createdAt"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	participants := r.Participants
	if participants == nil {
		participants = []string{}
	}
	return &RoomResponse{
		ID:              r.ID,
		Name:            r.Name,
		Code:            r.Code,
		Host:            r.Host,
		Participants:    participants,
		DocumentContent: r.DocumentContent,
		CreatedAt:       r.CreatedAt,
	}
}

func RoomsToApi(rooms []*domain.Room) []*RoomResponse {
	out := make([]*RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomToApi(r))
	}
	return out
}

func MessagesToApi(messages []*domain.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UserID:    m.UserID,
			Username:  m.Username,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return out
}
