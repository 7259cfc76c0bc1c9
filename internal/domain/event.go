package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventType string

// Client to server.
const (
	EventJoinRoom       EventType = "join-room"
	EventLeaveRoom      EventType = "leave-room"
	EventChatMessage    EventType = "chat-message"
	EventVideoOffer     EventType = "video-offer"
	EventVideoAnswer    EventType = "video-answer"
	EventICECandidate   EventType = "ice-candidate"
	EventDocumentUpdate EventType = "document-update"
	EventDocumentSave   EventType = "document-save"
	EventPing           EventType = "ping"
)

// Server to client. chat-message, the signaling events and document-update
// are shared with the inbound side.
const (
	EventConnected            EventType = "connected"
	EventUserJoined           EventType = "user-joined"
	EventExistingParticipants EventType = "existing-participants"
	EventUserLeft             EventType = "user-left"
	EventError                EventType = "error"
	EventPong                 EventType = "pong"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// Frame is the JSON envelope of every WebSocket message in both directions.
type Frame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound message; Data is marshalled as the frame's data field.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data}
}

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
}

type UserJoinedData struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

type UserLeftData struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

type ChatMessageData struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type DocumentData struct {
	Content string `json:"content"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func UserJoinedEvent(c Connection) Event {
	return NewEvent(EventUserJoined, UserJoinedData{
		UserID:       c.UserID,
		Username:     c.Username,
		ConnectionID: c.ID,
	})
}

// ExistingParticipantsEvent carries the bare list of connection ids, never null.
func ExistingParticipantsEvent(ids []string) Event {
	if ids == nil {
		ids = []string{}
	}
	return NewEvent(EventExistingParticipants, ids)
}

func UserLeftEvent(c Connection) Event {
	return NewEvent(EventUserLeft, UserLeftData{
		ConnectionID: c.ID,
		Username:     c.Username,
	})
}

func ChatMessageEvent(m *ChatMessage) Event {
	return NewEvent(EventChatMessage, ChatMessageData{
		ID:        m.ID.String(),
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	})
}

func DocumentUpdateEvent(content string) Event {
	return NewEvent(EventDocumentUpdate, DocumentData{Content: content})
}

func ErrorEvent(message string) Event {
	return NewEvent(EventError, ErrorData{Message: message})
}

// Inbound is the closed set of client events. Dispatch with a type switch.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type SendChat struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Content  string `json:"content"`
}

type Signal struct {
	Kind    SignalKind
	Payload json.RawMessage
	To      string
}

type DocumentUpdate struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type DocumentSave struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type Ping struct{}

func (JoinRoom) inbound()       {}
func (LeaveRoom) inbound()      {}
func (SendChat) inbound()       {}
func (Signal) inbound()         {}
func (DocumentUpdate) inbound() {}
func (DocumentSave) inbound()   {}
func (Ping) inbound()           {}

type signalData struct {
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
	To        string          `json:"to"`
}

// DecodeInbound parses one raw frame into its typed event.
func DecodeInbound(raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case EventJoinRoom:
		return decodeAs[JoinRoom](frame)
	case EventLeaveRoom:
		return decodeAs[LeaveRoom](frame)
	case EventChatMessage:
		return decodeAs[SendChat](frame)
	case EventDocumentUpdate:
		return decodeAs[DocumentUpdate](frame)
	case EventDocumentSave:
		return decodeAs[DocumentSave](frame)
	case EventPing:
		return Ping{}, nil
	case EventVideoOffer, EventVideoAnswer, EventICECandidate:
		data, err := decodeData[signalData](frame)
		if err != nil {
			return nil, err
		}
		sig := Signal{To: data.To}
		switch frame.Type {
		case EventVideoOffer:
			sig.Kind, sig.Payload = SignalOffer, data.Offer
		case EventVideoAnswer:
			sig.Kind, sig.Payload = SignalAnswer, data.Answer
		default:
			sig.Kind, sig.Payload = SignalICECandidate, data.Candidate
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}
}

func decodeAs[T Inbound](frame Frame) (Inbound, error) {
	v, err := decodeData[T](frame)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeData[T any](frame Frame) (T, error) {
	var v T
	if len(frame.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(frame.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, frame.Type, err)
	}
	return v, nil
}
