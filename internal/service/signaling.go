package service

import (
	"encoding/json"
	"log/slog"

	"github.com/immxrtalbeast/studyroom/internal/domain"
)

// SignalingRelay forwards WebRTC negotiation payloads between two connections
// without looking inside them.
type SignalingRelay struct {
	registry *ConnectionRegistry
	log      *slog.Logger
}

func NewSignalingRelay(registry *ConnectionRegistry, log *slog.Logger) *SignalingRelay {
	return &SignalingRelay{registry: registry, log: log}
}

// Relay delivers the payload to the target only. Unknown targets are dropped.
func (s *SignalingRelay) Relay(kind domain.SignalKind, payload json.RawMessage, from, to string) bool {
	const op = "service.signaling.relay"
	log := s.log.With(
		slog.String("op", op),
		slog.String("kind", string(kind)),
		slog.String("from", from),
		slog.String("to", to),
	)

	if !kind.Valid() || to == "" {
		log.Debug("dropping signal without target or kind")
		return false
	}

	envelope := domain.SignalEnvelope{
		Kind:    kind,
		Payload: payload,
		From:    from,
		To:      to,
	}
	if !s.registry.Deliver(to, envelope.Event()) {
		log.Debug("dropping signal for unknown target")
		return false
	}

	return true
}
