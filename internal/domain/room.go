package domain

import (
	"crypto/rand"
	"math/big"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	roomCodeMin  = 100000
	roomCodeSpan = 900000
)

// Room is the durable study room record. Participants only ever grows:
// leaving a room updates presence, not membership.
type Room struct {
	ID              uuid.UUID
	Name            string
	Code            string
	Host            string
	Participants    []string
	DocumentContent string
	CreatedAt       time.Time
}

// NewRoom constructs a room with a generated id. The host is its first participant.
func NewRoom(name string, host string, code string) *Room {
	return &Room{
		ID:           uuid.New(),
		Name:         name,
		Code:         code,
		Host:         host,
		Participants: []string{host},
		CreatedAt:    time.Now().UTC(),
	}
}

// HasParticipant reports whether the user ever joined the room.
func (r *Room) HasParticipant(userID string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.Participants, userID)
}

// Clone returns a deep copy safe to hand across goroutines.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = slices.Clone(r.Participants)
	return &c
}

// GenerateRoomCode draws a random 6-digit code. Uniqueness is the caller's job.
func GenerateRoomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(roomCodeSpan))
	if err != nil {
		panic("failed to draw room code: " + err.Error())
	}
	return strconv.FormatInt(roomCodeMin+n.Int64(), 10)
}

// IsRoomCode reports whether s has the shape of a room code.
func IsRoomCode(s string) bool {
	if len(s) != 6 || s[0] == '0' {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
