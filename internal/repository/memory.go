package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

// InMemoryRoomRepository keeps rooms and chat history for the life of the process.
// Used for local runs and tests.
type InMemoryRoomRepository struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]*domain.Room
	codes    map[string]uuid.UUID
	messages map[uuid.UUID][]*domain.ChatMessage
	clock    *stampClock
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms:    make(map[uuid.UUID]*domain.Room),
		codes:    make(map[string]uuid.UUID),
		messages: make(map[uuid.UUID][]*domain.ChatMessage),
		clock:    newStampClock(nil),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[room.Code]; ok {
		return ErrRoomCodeExists
	}

	r.rooms[room.ID] = room.Clone()
	r.codes[room.Code] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.codes[code]
	return ok, nil
}

func (r *InMemoryRoomRepository) FindRoom(ctx context.Context, idOrCode string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, code := ParseRoomRef(idOrCode)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if code != "" {
		var ok bool
		if id, ok = r.codes[code]; !ok {
			return nil, ErrRoomNotFound
		}
	}

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (r *InMemoryRoomRepository) AddParticipant(ctx context.Context, roomID uuid.UUID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !room.HasParticipant(userID) {
		room.Participants = append(room.Participants, userID)
	}
	return nil
}

func (r *InMemoryRoomRepository) SaveDocument(ctx context.Context, roomID uuid.UUID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.DocumentContent = content
	return nil
}

func (r *InMemoryRoomRepository) AppendMessage(ctx context.Context, roomID uuid.UUID, userID, username, content string) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}

	msg := domain.NewChatMessage(roomID, userID, username, content, r.clock.Stamp(roomID))
	r.messages[roomID] = append(r.messages[roomID], msg)

	stored := *msg
	return &stored, nil
}

func (r *InMemoryRoomRepository) List(ctx context.Context, limit int) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		result = append(result, room.Clone())
	}
	slices.SortFunc(result, func(a, b *domain.Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *InMemoryRoomRepository) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}

	history := r.messages[roomID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	result := make([]*domain.ChatMessage, 0, len(history))
	for _, msg := range history {
		m := *msg
		result = append(result, &m)
	}
	slices.SortStableFunc(result, func(a, b *domain.ChatMessage) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	return result, nil
}
