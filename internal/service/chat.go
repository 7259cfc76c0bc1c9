package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

const (
	maxChatMessageLength = 4000
	maxChatSenderLength  = 255
)

// MessageRelay persists chat messages and only then fans them out to the room.
type MessageRelay struct {
	registry *ConnectionRegistry
	gateway  repository.Gateway
	locks    *keyedMutex
	chats    *keyedMutex
	timeout  time.Duration
	log      *slog.Logger
}

func NewMessageRelay(
	registry *ConnectionRegistry,
	gateway repository.Gateway,
	locks *keyedMutex,
	timeout time.Duration,
	log *slog.Logger,
) *MessageRelay {
	return &MessageRelay{
		registry: registry,
		gateway:  gateway,
		locks:    locks,
		chats:    newKeyedMutex(),
		timeout:  timeout,
		log:      log,
	}
}

// Submit stores the message and broadcasts it to every connection in the room,
// sender included. Nothing is broadcast when persistence fails.
func (m *MessageRelay) Submit(ctx context.Context, roomKey, userID, username, content string) (*domain.ChatMessage, error) {
	const op = "service.chat.submit"
	log := m.log.With(
		slog.String("op", op),
		slog.String("room_id", roomKey),
		slog.String("user_id", userID),
	)

	content, username, err := validateChat(content, username)
	if err != nil {
		return nil, err
	}

	pctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	roomID, err := resolveRoomID(pctx, m.gateway, roomKey)
	if err != nil {
		log.Warn("failed to resolve room", sl.Err(err))
		return nil, err
	}

	// Messages of one room are stored and delivered one at a time so delivery
	// order matches timestamp order.
	unlockChat := m.chats.Lock(roomID.String())
	defer unlockChat()

	msg, err := m.gateway.AppendMessage(pctx, roomID, userID, username, content)
	if err != nil {
		log.Error("failed to save chat message", sl.Err(err))
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	event := domain.ChatMessageEvent(msg)

	// A room joined while lookups were failing lives under the raw reference,
	// so both the caller's key and the canonical id receive the message.
	var peers []string
	for _, key := range presenceKeys(roomKey, roomID.String()) {
		unlock := m.locks.Lock(key)
		delivered := m.registry.PeersOf(key, "")
		for _, peer := range delivered {
			m.registry.Deliver(peer, event)
		}
		unlock()
		peers = append(peers, delivered...)
	}

	log.Debug("chat message relayed",
		slog.String("message_id", msg.ID.String()),
		slog.Int("recipients", len(peers)),
	)

	return msg, nil
}

func presenceKeys(roomKey, canonical string) []string {
	roomKey = strings.TrimSpace(roomKey)
	if roomKey == canonical {
		return []string{canonical}
	}
	return []string{roomKey, canonical}
}

func validateChat(content, username string) (string, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", fmt.Errorf("%w: chat message cannot be empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > maxChatMessageLength {
		return "", "", fmt.Errorf("%w: chat message is too long", ErrInvalidMessage)
	}

	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) > maxChatSenderLength {
		return "", "", fmt.Errorf("%w: chat sender is too long", ErrInvalidMessage)
	}

	return content, username, nil
}
