package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRoomRepository stores rooms, participants and chat history through gorm.
// Production runs it on PostgreSQL; tests run it on in-memory SQLite.
type GormRoomRepository struct {
	db    *gorm.DB
	clock *stampClock
}

func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db, clock: newStampClock(nil)}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Room{}, &model.Participant{}, &model.Message{})
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	roomModel := toModelRoom(room)

	if err := r.db.WithContext(ctx).Create(roomModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomCodeExists
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (r *GormRoomRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count room codes: %w", err)
	}
	return count > 0, nil
}

func (r *GormRoomRepository) FindRoom(ctx context.Context, idOrCode string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, code := ParseRoomRef(idOrCode)

	query := r.db.WithContext(ctx).Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC")
	})
	switch {
	case code != "":
		query = query.Where("code = ?", code)
	case id != uuid.Nil:
		query = query.Where("id = ?", id)
	default:
		return nil, ErrRoomNotFound
	}

	var room model.Room
	if err := query.First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}

	return toDomainRoom(&room), nil
}

func (r *GormRoomRepository) AddParticipant(ctx context.Context, roomID uuid.UUID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRoom(tx, roomID); err != nil {
			return err
		}

		participant := model.Participant{
			RoomID:   roomID,
			UserID:   userID,
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participant).Error; err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		return nil
	})
}

func (r *GormRoomRepository) SaveDocument(ctx context.Context, roomID uuid.UUID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).Update("document_content", content)
	if res.Error != nil {
		return fmt.Errorf("save document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *GormRoomRepository) AppendMessage(ctx context.Context, roomID uuid.UUID, userID, username, content string) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg *domain.ChatMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRoom(tx, roomID); err != nil {
			return err
		}

		var last int64
		if err := tx.Model(&model.Message{}).
			Where("room_id = ?", roomID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("next message seq: %w", err)
		}

		msg = domain.NewChatMessage(roomID, userID, username, content, r.clock.Stamp(roomID))
		row := toModelMessage(msg)
		row.Seq = last + 1
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *GormRoomRepository) List(ctx context.Context, limit int) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Preload("Participants").Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rooms []model.Room
	if err := query.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

func (r *GormRoomRepository) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := ensureRoom(r.db.WithContext(ctx), roomID); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at DESC").Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []model.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := make([]*domain.ChatMessage, 0, len(messages))
	for i := range messages {
		result = append(result, toDomainMessage(&messages[i]))
	}
	slices.Reverse(result)
	return result, nil
}

func ensureRoom(tx *gorm.DB, roomID uuid.UUID) error {
	var count int64
	if err := tx.Model(&model.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup room: %w", err)
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func toModelRoom(room *domain.Room) *model.Room {
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	participants := make([]model.Participant, 0, len(room.Participants))
	for _, userID := range room.Participants {
		participants = append(participants, model.Participant{
			RoomID:   room.ID,
			UserID:   userID,
			JoinedAt: createdAt.UTC(),
		})
	}

	return &model.Room{
		ID:              room.ID,
		Name:            room.Name,
		Code:            room.Code,
		Host:            room.Host,
		DocumentContent: room.DocumentContent,
		CreatedAt:       createdAt.UTC(),
		Participants:    participants,
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	participants := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, p.UserID)
	}

	return &domain.Room{
		ID:              room.ID,
		Name:            room.Name,
		Code:            room.Code,
		Host:            room.Host,
		Participants:    participants,
		DocumentContent: room.DocumentContent,
		CreatedAt:       room.CreatedAt.UTC(),
	}
}

func toModelMessage(msg *domain.ChatMessage) *model.Message {
	return &model.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func toDomainMessage(msg *model.Message) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC(),
	}
}
