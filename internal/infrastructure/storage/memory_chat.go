package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
)

type memoryChatRepository struct {
	mu            sync.RWMutex
	conversations map[string][]entity.Message
}

// NewMemoryChatRepository in-memory chat repository yaratish
func NewMemoryChatRepository() repository.ChatRepository {
	return &memoryChatRepository{
		conversations: make(map[string][]entity.Message),
	}
}

// Append xabarni saqlash
func (m *memoryChatRepository) Append(ctx context.Context, message entity.Message) error {
	if message.ConversationID == "" {
		return errs.ErrConversationRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[message.ConversationID] = append(m.conversations[message.ConversationID], message)
	return nil
}

// List suhbat tarixini olish
func (m *memoryChatRepository) List(ctx context.Context, conversationID string) ([]entity.Message, error) {
	if conversationID == "" {
		return nil, errs.ErrConversationRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.conversations[conversationID]
	out := make([]entity.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// Conversations barcha suhbat kalitlari
func (m *memoryChatRepository) Conversations(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryChatRepository) Close() error {
	return nil
}
