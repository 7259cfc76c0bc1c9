package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name            string        `gorm:"size:255;not null"`
	Code            string        `gorm:"size:6;uniqueIndex;not null"`
	Host            string        `gorm:"size:255;not null"`
	DocumentContent string        `gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time     `gorm:"index;not null"`
	UpdatedAt       time.Time
	Participants    []Participant `gorm:"constraint:OnDelete:CASCADE"`
}

// Participant is one row of a room's durable participant set.
type Participant struct {
	RoomID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   string    `gorm:"size:255;primaryKey"`
	JoinedAt time.Time `gorm:"not null"`
}

// Message is a stored chat line. Seq numbers the messages of one room in
// append order and breaks ties between equal timestamps.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID `gorm:"type:uuid;index:idx_messages_room_created,priority:1;index:idx_messages_room_seq,priority:1;not null"`
	Seq       int64     `gorm:"index:idx_messages_room_seq,priority:2;not null;default:0"`
	UserID    string    `gorm:"size:255;not null"`
	Username  string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_messages_room_created,priority:2;not null"`
}
