// Package cache puts a Redis read-through cache in front of room lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RoomCache wraps a Gateway. Lookups are served from Redis when possible and
// writes that change a room drop its cached copy. Redis failures never fail a
// call: the cache degrades to the wrapped gateway.
type RoomCache struct {
	next   repository.Gateway
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
	group  singleflight.Group
}

type cachedRoom struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	Host            string    `json:"host"`
	Participants    []string  `json:"participants"`
	DocumentContent string    `json:"document_content"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewRoomCache(next repository.Gateway, client *redis.Client, prefix string, ttl time.Duration, log *slog.Logger) *RoomCache {
	if log == nil {
		log = slog.Default()
	}
	return &RoomCache{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (c *RoomCache) idKey(id uuid.UUID) string {
	return c.prefix + "id:" + id.String()
}

func (c *RoomCache) codeKey(code string) string {
	return c.prefix + "code:" + code
}

func (c *RoomCache) FindRoom(ctx context.Context, idOrCode string) (*domain.Room, error) {
	const op = "cache.room.find"
	log := c.log.With(slog.String("op", op), slog.String("ref", idOrCode))

	id, code := repository.ParseRoomRef(idOrCode)
	if id == uuid.Nil && code == "" {
		return nil, repository.ErrRoomNotFound
	}

	if code != "" {
		cachedID, err := c.client.Get(ctx, c.codeKey(code)).Result()
		switch {
		case err == nil:
			if parsed, perr := uuid.Parse(cachedID); perr == nil {
				id = parsed
			}
		case !errors.Is(err, redis.Nil):
			log.Warn("cache code lookup failed", sl.Err(err))
		}
	}

	if id != uuid.Nil {
		room, err := c.get(ctx, id)
		if err != nil {
			log.Warn("cache get failed", sl.Err(err))
		}
		if room != nil {
			return room, nil
		}
	}

	val, err, _ := c.group.Do(idOrCode, func() (any, error) {
		room, err := c.next.FindRoom(ctx, idOrCode)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, room); err != nil {
			log.Warn("cache set failed", sl.Err(err))
		}
		return room, nil
	})
	if err != nil {
		return nil, err
	}

	return val.(*domain.Room).Clone(), nil
}

func (c *RoomCache) AddParticipant(ctx context.Context, roomID uuid.UUID, userID string) error {
	if err := c.next.AddParticipant(ctx, roomID, userID); err != nil {
		return err
	}
	c.invalidate(ctx, roomID)
	return nil
}

func (c *RoomCache) SaveDocument(ctx context.Context, roomID uuid.UUID, content string) error {
	if err := c.next.SaveDocument(ctx, roomID, content); err != nil {
		return err
	}
	c.invalidate(ctx, roomID)
	return nil
}

func (c *RoomCache) AppendMessage(ctx context.Context, roomID uuid.UUID, userID, username, content string) (*domain.ChatMessage, error) {
	return c.next.AppendMessage(ctx, roomID, userID, username, content)
}

func (c *RoomCache) get(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	data, err := c.client.Get(ctx, c.idKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var cached cachedRoom
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}

	return &domain.Room{
		ID:              cached.ID,
		Name:            cached.Name,
		Code:            cached.Code,
		Host:            cached.Host,
		Participants:    cached.Participants,
		DocumentContent: cached.DocumentContent,
		CreatedAt:       cached.CreatedAt,
	}, nil
}

func (c *RoomCache) set(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(cachedRoom{
		ID:              room.ID,
		Name:            room.Name,
		Code:            room.Code,
		Host:            room.Host,
		Participants:    room.Participants,
		DocumentContent: room.DocumentContent,
		CreatedAt:       room.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.idKey(room.ID), data, c.ttl)
	pipe.Set(ctx, c.codeKey(room.Code), room.ID.String(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RoomCache) invalidate(ctx context.Context, roomID uuid.UUID) {
	if err := c.client.Del(ctx, c.idKey(roomID)).Err(); err != nil {
		c.log.Warn("cache invalidate failed",
			slog.String("op", "cache.room.invalidate"),
			slog.String("room_id", roomID.String()),
			sl.Err(err),
		)
	}
}

// Ping checks that Redis is reachable.
func (c *RoomCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
