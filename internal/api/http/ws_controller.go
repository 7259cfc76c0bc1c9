package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/service"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

type RealtimeController struct {
	realtime service.RealtimeInteractor
	upgrader websocket.Upgrader
	cfg      WSConfig
	log      *slog.Logger
}

func NewRealtimeController(realtime service.RealtimeInteractor, cfg WSConfig, allowedOrigins []string, log *slog.Logger) *RealtimeController {
	if log == nil {
		log = slog.Default()
	}
	return &RealtimeController{
		realtime: realtime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		cfg: cfg.withDefaults(),
		log: log,
	}
}

// Serve upgrades the request and runs the connection until either side closes
// it. roomId, userId and username query parameters join a room right away.
func (c *RealtimeController) Serve(ctx *gin.Context) {
	const op = "api.http.realtime.serve"
	log := c.log.With(slog.String("op", op))

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Info("failed to upgrade connection", sl.Err(err))
		return
	}

	client := newWSClient(conn, c.cfg, log)
	connID := c.realtime.Open(client)
	log = log.With(slog.String("conn_id", connID))

	defer func() {
		client.Close()
		c.realtime.Close(connID)
	}()

	go client.writePump()

	reqCtx := context.WithoutCancel(ctx.Request.Context())

	if roomID := ctx.Query("roomId"); roomID != "" {
		_ = c.realtime.Handle(reqCtx, connID, domain.JoinRoom{
			RoomID:   roomID,
			UserID:   ctx.Query("userId"),
			Username: ctx.Query("username"),
		})
	}

	client.readPump(func(raw []byte) {
		event, err := domain.DecodeInbound(raw)
		if err != nil {
			log.Debug("rejecting frame", sl.Err(err))
			c.realtime.Reject(connID, err)
			return
		}
		if err := c.realtime.Handle(reqCtx, connID, event); err != nil {
			log.Debug("event failed", slog.String("event", eventName(event)), sl.Err(err))
		}
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool {
			return true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func eventName(event domain.Inbound) string {
	switch e := event.(type) {
	case domain.JoinRoom:
		return string(domain.EventJoinRoom)
	case domain.LeaveRoom:
		return string(domain.EventLeaveRoom)
	case domain.SendChat:
		return string(domain.EventChatMessage)
	case domain.Signal:
		return string(e.Kind.EventType())
	case domain.DocumentUpdate:
		return string(domain.EventDocumentUpdate)
	case domain.DocumentSave:
		return string(domain.EventDocumentSave)
	case domain.Ping:
		return string(domain.EventPing)
	default:
		return "unknown"
	}
}
