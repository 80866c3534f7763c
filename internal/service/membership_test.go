package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/converse/chat-server-go/internal/model"
)

type mockConversationRepo struct {
	mock.Mock
}

func (m *mockConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	args := m.Called(ctx, userID, conversationID)
	return args.Bool(0), args.Error(1)
}

func (m *mockConversationRepo) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockConversationRepo) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockConversationRepo) FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) CreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func TestIsMember(t *testing.T) {
	ctx := context.Background()
	repo := new(mockConversationRepo)
	svc := NewMembershipService(repo)

	repo.On("IsMember", ctx, "user-1", "conv-1").Return(true, nil)
	repo.On("IsMember", ctx, "user-2", "conv-1").Return(false, nil)

	ok, err := svc.IsMember(ctx, "user-1", "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsMember(ctx, "user-2", "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsMemberRepositoryError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockConversationRepo)
	svc := NewMembershipService(repo)

	repo.On("IsMember", ctx, "user-1", "conv-1").Return(false, errors.New("db down"))

	ok, err := svc.IsMember(ctx, "user-1", "conv-1")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	repo := new(mockConversationRepo)
	svc := NewMembershipService(repo)

	repo.On("ListConversationIDs", ctx, "user-1").Return([]string{"conv-1", "conv-2"}, nil)

	ids, err := svc.ListConversations(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"conv-1", "conv-2"}, ids)
}
