package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// stampClock hands out message timestamps that never go backwards within a room,
// even if the wall clock does.
type stampClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[uuid.UUID]time.Time
}

func newStampClock(now func() time.Time) *stampClock {
	if now == nil {
		now = time.Now
	}
	return &stampClock{
		now:  now,
		last: make(map[uuid.UUID]time.Time),
	}
}

func (c *stampClock) Stamp(roomID uuid.UUID) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Postgres keeps microseconds; truncating keeps stored and broadcast values equal.
	t := c.now().UTC().Truncate(time.Microsecond)
	if last, ok := c.last[roomID]; ok && t.Before(last) {
		t = last
	}
	c.last[roomID] = t
	return t
}
