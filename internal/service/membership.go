package service

import (
	"context"
	"fmt"

	"github.com/converse/chat-server-go/internal/repository"
)

// MembershipService gates every message-affecting operation. Membership is
// checked per event, not per connection, because a participant can be
// removed while their connection stays open.
type MembershipService struct {
	convRepo repository.ConversationRepository
}

func NewMembershipService(convRepo repository.ConversationRepository) *MembershipService {
	return &MembershipService{convRepo: convRepo}
}

func (s *MembershipService) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	ok, err := s.convRepo.IsMember(ctx, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// ListConversations enumerates the user's live conversations. The gateway
// calls this once at connection activation to compute channel subscriptions.
func (s *MembershipService) ListConversations(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.convRepo.ListConversationIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}

// ListParticipants returns the active participant ids of a conversation.
func (s *MembershipService) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	ids, err := s.convRepo.ListParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ids, nil
}
