package domain

import "encoding/json"

// SignalKind is one of the WebRTC negotiation steps relayed between two connections.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// EventType is the wire event name used for this kind in both directions.
func (k SignalKind) EventType() EventType {
	switch k {
	case SignalOffer:
		return EventVideoOffer
	case SignalAnswer:
		return EventVideoAnswer
	case SignalICECandidate:
		return EventICECandidate
	default:
		return ""
	}
}

// Field is the payload field name carrying the opaque negotiation data.
func (k SignalKind) Field() string {
	if k == SignalICECandidate {
		return "candidate"
	}
	return string(k)
}

func (k SignalKind) Valid() bool {
	return k.EventType() != ""
}

// SignalEnvelope is a transient point-to-point negotiation payload. Payload is opaque.
type SignalEnvelope struct {
	Kind    SignalKind
	Payload json.RawMessage
	From    string
	To      string
}

// Event renders the envelope as seen by the target: the payload plus the sender id.
func (e SignalEnvelope) Event() Event {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return NewEvent(e.Kind.EventType(), map[string]any{
		e.Kind.Field(): payload,
		"from":         e.From,
	})
}
