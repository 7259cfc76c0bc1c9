package domain

import "time"

// Connection is the registry's view of one live transport session.
// Values are replaced wholesale on every change, never mutated in place.
type Connection struct {
	ID          string
	UserID      string
	Username    string
	RoomID      string
	ConnectedAt time.Time
}

func NewConnection(id string) Connection {
	return Connection{
		ID:          id,
		ConnectedAt: time.Now().UTC(),
	}
}

func (c Connection) InRoom() bool {
	return c.RoomID != ""
}

// WithRoom returns a copy associated with the given room and identity.
func (c Connection) WithRoom(roomID, userID, username string) Connection {
	c.RoomID = roomID
	c.UserID = userID
	c.Username = username
	return c
}

// Detached returns a copy with the room and identity cleared.
func (c Connection) Detached() Connection {
	c.RoomID = ""
	c.UserID = ""
	c.Username = ""
	return c
}
