package ws

import (
	"encoding/json"
	"fmt"

	"realtime-chat-service/internal/models"
)

// Envelope is the wire frame: a named event plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame builds an outbound frame.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Client -> server event names.
const (
	eventJoinConversation  = "join_conversation"
	eventLeaveConversation = "leave_conversation"
	eventSendMessage       = "send_message"
	eventTypingStart       = "typing_start"
	eventTypingStop        = "typing_stop"
	eventMarkAsRead        = "mark_as_read"
	eventEditMessage       = "edit_message"
	eventPingHealth        = "ping_health"
)

// Inbound is the closed set of events a client may send. Decoding into a
// tagged variant makes an unhandled event kind a compile-checked omission in
// the dispatch switch rather than a silent no-op.
type Inbound interface {
	isInbound()
	EventName() string
}

type JoinConversation struct {
	ConversationID string `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessage struct {
	ConversationID string             `json:"conversation_id"`
	Content        string             `json:"content"`
	Type           string             `json:"type,omitempty"`
	Attachment     *models.Attachment `json:"attachment,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
}

type TypingStart struct {
	ConversationID string `json:"conversation_id"`
	UserName       string `json:"user_name,omitempty"`
}

type TypingStop struct {
	ConversationID string `json:"conversation_id"`
	UserName       string `json:"user_name,omitempty"`
}

type MarkAsRead struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type EditMessage struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type PingHealth struct{}

func (JoinConversation) isInbound()  {}
func (LeaveConversation) isInbound() {}
func (SendMessage) isInbound()       {}
func (TypingStart) isInbound()       {}
func (TypingStop) isInbound()        {}
func (MarkAsRead) isInbound()        {}
func (EditMessage) isInbound()       {}
func (PingHealth) isInbound()        {}

func (JoinConversation) EventName() string  { return eventJoinConversation }
func (LeaveConversation) EventName() string { return eventLeaveConversation }
func (SendMessage) EventName() string       { return eventSendMessage }
func (TypingStart) EventName() string       { return eventTypingStart }
func (TypingStop) EventName() string        { return eventTypingStop }
func (MarkAsRead) EventName() string        { return eventMarkAsRead }
func (EditMessage) EventName() string       { return eventEditMessage }
func (PingHealth) EventName() string        { return eventPingHealth }

// ErrUnknownEvent reports an event name outside the closed set.
type ErrUnknownEvent struct {
	Event string
}

func (e ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event %q", e.Event)
}

// DecodeInbound parses a raw frame into its typed variant.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	decode := func(into Inbound) (Inbound, error) {
		if len(env.Data) == 0 {
			return into, nil
		}
		if err := json.Unmarshal(env.Data, into); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		return into, nil
	}

	switch env.Event {
	case eventJoinConversation:
		return decode(&JoinConversation{})
	case eventLeaveConversation:
		return decode(&LeaveConversation{})
	case eventSendMessage:
		return decode(&SendMessage{})
	case eventTypingStart:
		return decode(&TypingStart{})
	case eventTypingStop:
		return decode(&TypingStop{})
	case eventMarkAsRead:
		return decode(&MarkAsRead{})
	case eventEditMessage:
		return decode(&EditMessage{})
	case eventPingHealth:
		return decode(&PingHealth{})
	default:
		return nil, ErrUnknownEvent{Event: env.Event}
	}
}
