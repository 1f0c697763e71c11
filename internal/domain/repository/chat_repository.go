package repository

import (
	"context"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
)

// ChatRepository append-only chat history storage
type ChatRepository interface {
	// Append xabarni tarix oxiriga qo'shish
	Append(ctx context.Context, message entity.Message) error

	// List conversation tarixini qo'shilish tartibida olish
	List(ctx context.Context, conversationID string) ([]entity.Message, error)

	// Conversations mavjud suhbatlar ro'yxati
	Conversations(ctx context.Context) ([]string, error)

	Close() error
}
