package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/repository"
)

type ConversationService struct {
	repo repository.ConversationRepository
}

func NewConversationService(repo repository.ConversationRepository) *ConversationService {
	return &ConversationService{repo: repo}
}

// FindOrCreatePrivate returns the private conversation between the two
// users, creating it if absent. At most one private conversation exists per
// unordered pair.
func (s *ConversationService) FindOrCreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, bool, error) {
	existing, err := s.repo.FindPrivateBetween(ctx, userA, userB)
	if err != nil {
		return nil, false, fmt.Errorf("find private conversation: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	conv, err := s.repo.CreatePrivate(ctx, userA, userB)
	if err != nil {
		return nil, false, fmt.Errorf("create private conversation: %w", err)
	}

	log.Info().
		Str("conversationId", conv.ID).
		Msg("private conversation created")

	return conv, true, nil
}

func (s *ConversationService) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return s.repo.FindByID(ctx, id)
}

// Leave soft-removes the user from the conversation; history is preserved.
func (s *ConversationService) Leave(ctx context.Context, conversationID, userID string) error {
	if err := s.repo.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}
