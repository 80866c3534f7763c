package model

import "time"

type Conversation struct {
	ID        string    `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"isGroup"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Participant binds a user to a conversation. Removal is soft: RemovedAt is
// set instead of deleting the row, so message history survives a leave.
type Participant struct {
	ConversationID string     `db:"conversation_id" json:"conversationId"`
	UserID         string     `db:"user_id" json:"userId"`
	JoinedAt       time.Time  `db:"joined_at" json:"joinedAt"`
	RemovedAt      *time.Time `db:"removed_at" json:"removedAt,omitempty"`
}
