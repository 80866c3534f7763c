package ws

import "encoding/json"

// Client-to-server event names.
const (
	EventSendMessage      = "send-message"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventMessageDelivered = "message-delivered"
	EventMessagesRead     = "messages-read"
)

// Server-to-client event names.
const (
	EventNewMessage           = "new-message"
	EventUserTyping           = "user-typing"
	EventUserStopTyping       = "user-stop-typing"
	EventMessageStatusUpdated = "message-status-updated"
	EventMessagesReadUpdate   = "messages-read-update"
	EventError                = "error"
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// Inbound payloads.

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

type MessageDeliveredPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type MessagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// Outbound payloads.

type UserTypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type StatusUpdatedPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Status    string `json:"status"`
}

type ReadUpdatePayload struct {
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
}
