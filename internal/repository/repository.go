package repository

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks . Gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomCodeExists = errors.New("room code already exists")
)

// Gateway is the narrow persistence surface the real-time core depends on.
type Gateway interface {
	// FindRoom resolves a room by its uuid or by its 6-digit code.
	FindRoom(ctx context.Context, idOrCode string) (*domain.Room, error)
	// AddParticipant adds the user to the durable participant set; repeated adds are no-ops.
	AddParticipant(ctx context.Context, roomID uuid.UUID, userID string) error
	// SaveDocument overwrites the room's document content.
	SaveDocument(ctx context.Context, roomID uuid.UUID, content string) error
	// AppendMessage stores a chat message and returns it with its server-assigned id and timestamp.
	AppendMessage(ctx context.Context, roomID uuid.UUID, userID, username, content string) (*domain.ChatMessage, error)
}

type RoomRepository interface {
	Gateway
	Create(ctx context.Context, room *domain.Room) error
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, limit int) ([]*domain.Room, error)
	// ListMessages returns the newest limit messages of a room in ascending time order.
	ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
}

// ParseRoomRef splits a room reference into an id or a code. Both are zero for
// references that can be neither.
func ParseRoomRef(ref string) (uuid.UUID, string) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return id, ""
	}
	if domain.IsRoomCode(ref) {
		return uuid.Nil, ref
	}
	return uuid.Nil, ""
}
