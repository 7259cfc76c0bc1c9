package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

type Options struct {
	DocumentQuietPeriod time.Duration
	PersistTimeout      time.Duration
}

// Coordinator owns the real-time components and dispatches every inbound
// event of a connection to the one that handles it.
type Coordinator struct {
	registry  *ConnectionRegistry
	presence  *PresenceBroadcaster
	chat      *MessageRelay
	signaling *SignalingRelay
	docs      *DocumentSync
	log       *slog.Logger
}

func NewCoordinator(gateway repository.Gateway, opts Options, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.DocumentQuietPeriod <= 0 {
		opts.DocumentQuietPeriod = 2 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}

	registry := NewConnectionRegistry()
	locks := newKeyedMutex()
	docs := NewDocumentSync(registry, gateway, locks, opts.DocumentQuietPeriod, opts.PersistTimeout, log)

	return &Coordinator{
		registry:  registry,
		presence:  NewPresenceBroadcaster(registry, gateway, locks, docs, opts.PersistTimeout, log),
		chat:      NewMessageRelay(registry, gateway, locks, opts.PersistTimeout, log),
		signaling: NewSignalingRelay(registry, log),
		docs:      docs,
		log:       log,
	}
}

func (c *Coordinator) Registry() *ConnectionRegistry {
	return c.registry
}

func (c *Coordinator) Documents() *DocumentSync {
	return c.docs
}

// Open registers a new connection and greets it with its id.
func (c *Coordinator) Open(sink Sink) string {
	connID := uuid.NewString()
	c.registry.Register(connID, sink)
	c.registry.Deliver(connID, domain.NewEvent(domain.EventConnected, domain.ConnectedData{ConnectionID: connID}))

	c.log.Debug("connection opened",
		slog.String("op", "service.coordinator.open"),
		slog.String("conn_id", connID),
	)
	return connID
}

// Handle dispatches one inbound event. Errors the client should see are also
// sent to it as an error event.
func (c *Coordinator) Handle(ctx context.Context, connID string, event domain.Inbound) error {
	const op = "service.coordinator.handle"
	log := c.log.With(slog.String("op", op), slog.String("conn_id", connID))

	conn, ok := c.registry.Lookup(connID)
	if !ok {
		return ErrUnknownConnection
	}

	switch e := event.(type) {
	case domain.JoinRoom:
		if _, err := c.presence.Join(ctx, connID, e.RoomID, e.UserID, e.Username); err != nil {
			log.Info("join rejected", slog.String("room", e.RoomID), sl.Err(err))
			return c.fail(connID, err)
		}

	case domain.LeaveRoom:
		c.presence.Leave(connID)

	case domain.SendChat:
		roomKey := roomOf(conn, e.RoomID)
		if roomKey == "" {
			return c.fail(connID, ErrNotInRoom)
		}
		userID := firstNonEmpty(e.UserID, conn.UserID)
		username := firstNonEmpty(e.Username, conn.Username)
		if _, err := c.chat.Submit(ctx, roomKey, userID, username, e.Content); err != nil {
			return c.fail(connID, err)
		}

	case domain.Signal:
		c.signaling.Relay(e.Kind, e.Payload, connID, e.To)

	case domain.DocumentUpdate:
		roomKey := roomOf(conn, e.RoomID)
		if roomKey == "" {
			return c.fail(connID, ErrNotInRoom)
		}
		c.docs.OnEdit(roomKey, e.Content, connID)

	case domain.DocumentSave:
		roomKey := roomOf(conn, e.RoomID)
		if roomKey == "" {
			return c.fail(connID, ErrNotInRoom)
		}
		if err := c.docs.Save(ctx, roomKey, e.Content); err != nil {
			return c.fail(connID, err)
		}

	case domain.Ping:
		c.registry.Deliver(connID, domain.NewEvent(domain.EventPong, nil))

	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEvent, event)
	}

	return nil
}

// Close runs the implicit leave and forgets the connection.
func (c *Coordinator) Close(connID string) {
	c.presence.Leave(connID)
	c.registry.Unregister(connID)

	c.log.Debug("connection closed",
		slog.String("op", "service.coordinator.close"),
		slog.String("conn_id", connID),
	)
}

// Shutdown closes every live connection and writes pending documents.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	for _, sink := range c.registry.sinks() {
		sink.Close()
	}
	return c.docs.Flush(ctx)
}

// Reject reports a transport level problem, such as an undecodable frame, to
// the connection.
func (c *Coordinator) Reject(connID string, err error) {
	c.registry.Deliver(connID, domain.ErrorEvent(clientMessage(err)))
}

func (c *Coordinator) fail(connID string, err error) error {
	c.registry.Deliver(connID, domain.ErrorEvent(clientMessage(err)))
	return err
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, ErrNotInRoom):
		return "join a room first"
	case errors.Is(err, ErrPersistence):
		return "failed to save, try again"
	case errors.Is(err, ErrInvalidMessage),
		errors.Is(err, domain.ErrMalformedFrame),
		errors.Is(err, domain.ErrUnknownEvent):
		return err.Error()
	default:
		return "internal error"
	}
}

// roomOf picks the room an event targets. Codes and empty references mean the
// room the connection joined.
func roomOf(conn domain.Connection, ref string) string {
	if ref == "" {
		return conn.RoomID
	}
	if _, err := uuid.Parse(ref); err != nil && conn.InRoom() {
		return conn.RoomID
	}
	return ref
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
