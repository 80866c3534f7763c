package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/converse/chat-server-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// IsMember reports whether the user is an active, non-removed
	// participant of the conversation.
	IsMember(ctx context.Context, userID, conversationID string) (bool, error)
	// ListConversationIDs returns every conversation the user actively
	// participates in.
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	// ListParticipantIDs returns the active participants of a conversation.
	ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	// FindPrivateBetween returns the private conversation shared by the two
	// users, if one exists. At most one can exist per unordered pair.
	FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error)
	CreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, error)
	RemoveParticipant(ctx context.Context, conversationID, userID string) error
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = $1`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE user_id = $1
			AND conversation_id = $2
			AND removed_at IS NULL
		)
	`, userID, conversationID)
	return exists, err
}

func (r *conversationRepo) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT conversation_id
		FROM conversation_participants
		WHERE user_id = $1
		AND removed_at IS NULL
	`, userID)
	return ids, err
}

func (r *conversationRepo) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1
		AND removed_at IS NULL
	`, conversationID)
	return ids, err
}

func (r *conversationRepo) FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT c.*
		FROM conversations c
		JOIN conversation_participants cp1 ON cp1.conversation_id = c.id
		JOIN conversation_participants cp2 ON cp2.conversation_id = c.id
		WHERE c.is_group = false
		AND cp1.user_id = $1
		AND cp2.user_id = $2
	`, userA, userB)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) CreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	var conv model.Conversation
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &conv, `
			INSERT INTO conversations (is_group)
			VALUES (false)
			RETURNING *
		`); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2), ($1, $3)
		`, conv.ID, userA, userB)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants SET removed_at = $3
		WHERE conversation_id = $1 AND user_id = $2 AND removed_at IS NULL
	`, conversationID, userID, time.Now())
	return err
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
