package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

// PresenceBroadcaster turns joins and leaves into presence deltas for the
// other connections of a room.
type PresenceBroadcaster struct {
	registry *ConnectionRegistry
	gateway  repository.Gateway
	locks    *keyedMutex
	docs     *DocumentSync
	timeout  time.Duration
	log      *slog.Logger
}

func NewPresenceBroadcaster(
	registry *ConnectionRegistry,
	gateway repository.Gateway,
	locks *keyedMutex,
	docs *DocumentSync,
	timeout time.Duration,
	log *slog.Logger,
) *PresenceBroadcaster {
	return &PresenceBroadcaster{
		registry: registry,
		gateway:  gateway,
		locks:    locks,
		docs:     docs,
		timeout:  timeout,
		log:      log,
	}
}

// Join attaches the connection to the room, records the user as a durable
// participant, then announces it to the peers already there and replays them
// to the joiner. It returns the presence key of the room.
//
// The participant write happens outside the room lock. Peers that attach
// while it runs learn about the joiner from their own replay, so the fan-out
// only covers the peers present at attach time that are still in the room.
func (p *PresenceBroadcaster) Join(ctx context.Context, connID, roomRef, userID, username string) (string, error) {
	const op = "service.presence.join"
	log := p.log.With(
		slog.String("op", op),
		slog.String("conn_id", connID),
		slog.String("room", roomRef),
	)

	conn, ok := p.registry.Lookup(connID)
	if !ok {
		return "", ErrUnknownConnection
	}

	roomKey, roomID, err := p.resolve(ctx, roomRef)
	if err != nil {
		return "", err
	}

	rejoin := conn.RoomID == roomKey
	if conn.InRoom() && !rejoin {
		p.Leave(connID)
	}

	unlock := p.locks.Lock(roomKey)
	p.registry.Attach(connID, roomKey, userID, username)
	before := p.registry.PeersOf(roomKey, connID)
	unlock()

	if roomID != uuid.Nil && userID != "" {
		pctx, cancel := withTimeout(ctx, p.timeout)
		if err := p.gateway.AddParticipant(pctx, roomID, userID); err != nil {
			log.Warn("failed to record participant", sl.Err(err))
		}
		cancel()
	}

	unlock = p.locks.Lock(roomKey)
	current, ok := p.registry.Lookup(connID)
	if !ok || current.RoomID != roomKey {
		unlock()
		log.Debug("connection moved before join was announced")
		return roomKey, nil
	}
	peers := stillIn(before, p.registry.PeersOf(roomKey, connID))
	if !rejoin {
		joined := domain.UserJoinedEvent(current)
		for _, peer := range peers {
			p.registry.Deliver(peer, joined)
		}
	}
	p.registry.Deliver(connID, domain.ExistingParticipantsEvent(peers))
	unlock()

	log.Info("connection joined room",
		slog.String("room_id", roomKey),
		slog.String("user_id", userID),
		slog.Int("peers", len(peers)),
	)

	return roomKey, nil
}

// Leave detaches the connection and tells the rest of its room. It is a no-op
// for connections that are not in a room.
func (p *PresenceBroadcaster) Leave(connID string) (domain.Connection, bool) {
	const op = "service.presence.leave"

	conn, ok := p.registry.Lookup(connID)
	if !ok || !conn.InRoom() {
		return domain.Connection{}, false
	}

	unlock := p.locks.Lock(conn.RoomID)
	prev, ok := p.registry.Detach(connID)
	if !ok || !prev.InRoom() {
		unlock()
		return domain.Connection{}, false
	}
	peers := p.registry.PeersOf(prev.RoomID, connID)
	left := domain.UserLeftEvent(prev)
	for _, peer := range peers {
		p.registry.Deliver(peer, left)
	}
	unlock()

	p.log.Info("connection left room",
		slog.String("op", op),
		slog.String("conn_id", connID),
		slog.String("room_id", prev.RoomID),
		slog.Int("remaining", len(peers)),
	)

	if len(peers) == 0 && p.docs != nil && p.registry.RoomSize(prev.RoomID) == 0 {
		p.docs.Release(prev.RoomID)
	}

	return prev, true
}

// stillIn keeps the ids of before that are also in now, in the order of now.
func stillIn(before, now []string) []string {
	out := make([]string, 0, len(now))
	for _, id := range now {
		if slices.Contains(before, id) {
			out = append(out, id)
		}
	}
	return out
}

// resolve maps a client supplied room reference to the presence key. Lookup
// failures other than a missing room fall back to the reference itself.
func (p *PresenceBroadcaster) resolve(ctx context.Context, ref string) (string, uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", uuid.Nil, fmt.Errorf("%w: room id is required", ErrInvalidMessage)
	}

	fctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	room, err := p.gateway.FindRoom(fctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return "", uuid.Nil, err
		}
		p.log.Warn("room lookup failed, joining by reference",
			slog.String("op", "service.presence.resolve"),
			slog.String("room", ref),
			sl.Err(err),
		)
		id, _ := uuid.Parse(ref)
		return ref, id, nil
	}

	return room.ID.String(), room.ID, nil
}
