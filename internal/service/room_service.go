package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

const (
	roomListLimit       = 50
	DefaultHistoryLimit = 100
	maxRoomNameLength   = 255
)

type RoomService struct {
	rooms       repository.RoomRepository
	log         *slog.Logger
	newCode     func() string
	maxAttempts int
}

type RoomServiceOption func(*RoomService)

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(gen func() string) RoomServiceOption {
	return func(s *RoomService) {
		s.newCode = gen
	}
}

// WithMaxCodeAttempts bounds the number of code draws per room. Zero means unbounded.
func WithMaxCodeAttempts(n int) RoomServiceOption {
	return func(s *RoomService) {
		s.maxAttempts = n
	}
}

func NewRoomService(rooms repository.RoomRepository, log *slog.Logger, opts ...RoomServiceOption) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	s := &RoomService{
		rooms:   rooms,
		log:     log,
		newCode: domain.GenerateRoomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom draws codes until one is free and stores the room with the host as
// its first participant.
func (s *RoomService) CreateRoom(ctx context.Context, name string, host string) (*domain.Room, error) {
	const op = "service.room.create"
	log := s.log.With(slog.String("op", op))

	name = strings.TrimSpace(name)
	host = strings.TrimSpace(host)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrInvalidMessage)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, fmt.Errorf("%w: room name is too long", ErrInvalidMessage)
	}

	for attempt := 1; s.maxAttempts <= 0 || attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code := s.newCode()
		exists, err := s.rooms.CodeExists(ctx, code)
		if err != nil {
			log.Error("failed to check room code", sl.Err(err))
			return nil, err
		}
		if exists {
			log.Debug("room code taken", slog.Int("attempt", attempt))
			continue
		}

		room := domain.NewRoom(name, host, code)
		if err := s.rooms.Create(ctx, room); err != nil {
			if errors.Is(err, repository.ErrRoomCodeExists) {
				continue
			}
			log.Error("failed to create room", sl.Err(err))
			return nil, err
		}

		log.Info("room created",
			slog.String("room_id", room.ID.String()),
			slog.String("code", room.Code),
		)
		return room, nil
	}

	return nil, ErrRoomCodeExhausted
}

func (s *RoomService) GetRoom(ctx context.Context, idOrCode string) (*domain.Room, error) {
	return s.rooms.FindRoom(ctx, idOrCode)
}

// ListRooms returns the newest rooms first.
func (s *RoomService) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	return s.rooms.List(ctx, roomListLimit)
}

// ListMessages returns the room's latest messages in ascending time order.
func (s *RoomService) ListMessages(ctx context.Context, idOrCode string, limit int) ([]*domain.ChatMessage, error) {
	const op = "service.room.messages"

	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	room, err := s.rooms.FindRoom(ctx, idOrCode)
	if err != nil {
		return nil, err
	}

	messages, err := s.rooms.ListMessages(ctx, room.ID, limit)
	if err != nil {
		s.log.Error("failed to list messages",
			slog.String("op", op),
			slog.String("room_id", room.ID.String()),
			sl.Err(err),
		)
		return nil, err
	}
	return messages, nil
}
