package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/database"
	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/repository"
)

// TxRunner executes a function inside a database transaction. *database.DB
// satisfies it; tests substitute a fake.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// MessageService persists messages and advances per-recipient delivery
// state. Creation is all-or-nothing: a message never exists without its
// status rows.
type MessageService struct {
	db      TxRunner
	msgRepo repository.MessageRepository
}

func NewMessageService(db TxRunner, msgRepo repository.MessageRepository) *MessageService {
	return &MessageService{db: db, msgRepo: msgRepo}
}

// CreateMessage inserts the message and one 'sent' status row per current
// participant (sender included) in a single transaction.
func (s *MessageService) CreateMessage(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	var msg *model.Message

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.msgRepo.WithTx(tx)

		created, err := repo.Insert(ctx, conversationID, senderID, content)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := repo.InsertStatusRows(ctx, created.ID, conversationID); err != nil {
			return fmt.Errorf("insert status rows: %w", err)
		}

		msg = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("messageId", msg.ID).
		Str("conversationId", conversationID).
		Str("senderId", senderID).
		Msg("message created")

	return msg, nil
}

// AdvanceStatus moves the recipient's status row forward. Re-applying the
// current or an earlier state is a no-op, which makes delivery and read
// acknowledgments safe to retry.
func (s *MessageService) AdvanceStatus(ctx context.Context, messageID, userID string, target model.DeliveryState) (bool, error) {
	if !target.Valid() {
		return false, fmt.Errorf("unknown delivery state %q", target)
	}

	changed, err := s.msgRepo.AdvanceStatus(ctx, messageID, userID, target)
	if err != nil {
		return false, fmt.Errorf("advance status: %w", err)
	}
	return changed, nil
}

// AdvanceStatusBulk advances every listed message for the user. Ids with no
// matching row are ignored. Returns the ids that actually changed.
func (s *MessageService) AdvanceStatusBulk(ctx context.Context, messageIDs []string, userID string, target model.DeliveryState) ([]string, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown delivery state %q", target)
	}

	updated, err := s.msgRepo.AdvanceStatusBulk(ctx, messageIDs, userID, target)
	if err != nil {
		return nil, fmt.Errorf("advance status bulk: %w", err)
	}
	return updated, nil
}

// StatusFor returns the user's delivery-state row for a message, or nil when
// no row exists.
func (s *MessageService) StatusFor(ctx context.Context, messageID, userID string) (*model.MessageStatus, error) {
	status, err := s.msgRepo.StatusFor(ctx, messageID, userID)
	if err != nil {
		return nil, fmt.Errorf("message status: %w", err)
	}
	return status, nil
}

func (s *MessageService) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	msgs, err := s.msgRepo.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
