package repository

import (
	"context"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
)

// AIRepository AI bilan ishlash uchun interface
type AIRepository interface {
	// GenerateResponse returns the model's reply to prompt. history holds earlier
	// turns of the conversation and may be empty.
	GenerateResponse(ctx context.Context, prompt string, history []entity.Message) (string, error)

	Close() error
}
