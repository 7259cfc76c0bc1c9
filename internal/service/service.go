package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
)

var (
	ErrPersistence       = errors.New("persistence failed")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrNotInRoom         = errors.New("connection is not in a room")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrRoomCodeExhausted = errors.New("no free room code found")
)

// Sink is the outbound side of one live connection. Send must not block;
// it reports false when the event could not be queued.
type Sink interface {
	Send(event domain.Event) bool
	Close()
}

type RoomInteractor interface {
	CreateRoom(ctx context.Context, name string, host string) (*domain.Room, error)
	GetRoom(ctx context.Context, idOrCode string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	ListMessages(ctx context.Context, idOrCode string, limit int) ([]*domain.ChatMessage, error)
}

type RealtimeInteractor interface {
	Open(sink Sink) string
	Handle(ctx context.Context, connID string, event domain.Inbound) error
	Reject(connID string, err error)
	Close(connID string)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// resolveRoomID returns the durable id for a room key, asking the gateway only
// when the key is not already a uuid.
func resolveRoomID(ctx context.Context, gateway repository.Gateway, key string) (uuid.UUID, error) {
	if id, err := uuid.Parse(key); err == nil {
		return id, nil
	}
	room, err := gateway.FindRoom(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	return room.ID, nil
}
