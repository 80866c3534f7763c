package model

import "time"

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	SenderID       string    `db:"sender_id" json:"senderId"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// MessageStatus is the per-recipient delivery marker for one message.
type MessageStatus struct {
	MessageID string        `db:"message_id" json:"messageId"`
	UserID    string        `db:"user_id" json:"userId"`
	Status    DeliveryState `db:"status" json:"status"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// DeliveryState is the per-recipient message state. Transitions are monotonic:
// sent -> delivered -> read, never backwards.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
)

// Rank orders delivery states so advancement can be compared numerically.
// Unknown states rank below sent and therefore never overwrite anything.
func (s DeliveryState) Rank() int {
	switch s {
	case DeliverySent:
		return 1
	case DeliveryDelivered:
		return 2
	case DeliveryRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known states.
func (s DeliveryState) Valid() bool {
	return s.Rank() > 0
}
