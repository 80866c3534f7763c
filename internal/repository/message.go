package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/converse/chat-server-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	// Insert creates the message row. Call through WithTx so status rows
	// land in the same transaction.
	Insert(ctx context.Context, conversationID, senderID, content string) (*model.Message, error)
	// InsertStatusRows creates one 'sent' status row per active participant
	// of the conversation, the sender included.
	InsertStatusRows(ctx context.Context, messageID, conversationID string) (int64, error)
	// AdvanceStatus moves the (message, user) row to target iff target is
	// strictly later than the current state. Returns whether a row changed.
	AdvanceStatus(ctx context.Context, messageID, userID string, target model.DeliveryState) (bool, error)
	// AdvanceStatusBulk applies AdvanceStatus per id; unknown ids are
	// ignored. Returns the ids whose row actually changed.
	AdvanceStatusBulk(ctx context.Context, messageIDs []string, userID string, target model.DeliveryState) ([]string, error)
	StatusFor(ctx context.Context, messageID, userID string) (*model.MessageStatus, error)
	// WithTx returns a new repository bound to the given transaction.
	WithTx(tx *sqlx.Tx) MessageRepository
}

// messageDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type messageDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type messageRepo struct {
	db messageDB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	return msgs, err
}

func (r *messageRepo) Insert(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING *
	`, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) InsertStatusRows(ctx context.Context, messageID, conversationID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO message_status (message_id, user_id, status)
		SELECT $1, user_id, 'sent'
		FROM conversation_participants
		WHERE conversation_id = $2
		AND removed_at IS NULL
	`, messageID, conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageRepo) AdvanceStatus(ctx context.Context, messageID, userID string, target model.DeliveryState) (bool, error) {
	// The CASE ordinal enforces monotonicity in the store itself, so
	// concurrent delivered/read events from multiple devices cannot move a
	// row backwards regardless of arrival order.
	result, err := r.db.ExecContext(ctx, `
		UPDATE message_status SET
			status = $3,
			updated_at = $4
		WHERE message_id = $1
		AND user_id = $2
		AND CASE status
			WHEN 'sent' THEN 1
			WHEN 'delivered' THEN 2
			WHEN 'read' THEN 3
		END < CASE $3::text
			WHEN 'sent' THEN 1
			WHEN 'delivered' THEN 2
			WHEN 'read' THEN 3
		END
	`, messageID, userID, string(target), time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *messageRepo) AdvanceStatusBulk(ctx context.Context, messageIDs []string, userID string, target model.DeliveryState) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		UPDATE message_status SET
			status = ?,
			updated_at = ?
		WHERE message_id IN (?)
		AND user_id = ?
		AND CASE status
			WHEN 'sent' THEN 1
			WHEN 'delivered' THEN 2
			WHEN 'read' THEN 3
		END < CASE ?
			WHEN 'sent' THEN 1
			WHEN 'delivered' THEN 2
			WHEN 'read' THEN 3
		END
		RETURNING message_id
	`, string(target), time.Now(), messageIDs, userID, string(target))
	if err != nil {
		return nil, err
	}

	var updated []string
	err = r.db.SelectContext(ctx, &updated, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *messageRepo) StatusFor(ctx context.Context, messageID, userID string) (*model.MessageStatus, error) {
	var status model.MessageStatus
	err := r.db.GetContext(ctx, &status, `
		SELECT * FROM message_status
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID)
	return HandleNotFound(&status, err)
}
