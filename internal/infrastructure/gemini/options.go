package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"go.uber.org/zap"
)

const (
	SDKGenAI  = "genai"
	SDKLegacy = "legacy"

	DefaultModel = "gemini-1.5-flash"
)

// Options Gemini client sozlamalari
type Options struct {
	APIKey            string
	Model             string
	Temperature       float32
	MaxOutputTokens   int32
	SystemInstruction string
	MaxConcurrent     int
	MinInterval       time.Duration
	// BaseURL overrides the API endpoint (genai SDK only).
	BaseURL string
}

func (o Options) model() string {
	if o.Model == "" {
		return DefaultModel
	}
	return o.Model
}

// New builds the AI repository for the requested SDK.
func New(ctx context.Context, sdk string, opts Options, log *zap.Logger) (repository.AIRepository, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	switch sdk {
	case SDKGenAI, "":
		return NewGenAIClient(ctx, opts, log)
	case SDKLegacy:
		return NewGeminiClient(ctx, opts, log)
	default:
		return nil, fmt.Errorf("unknown gemini sdk %q", sdk)
	}
}

type turn struct {
	user bool
	text string
}

// historyTurns converts stored messages into model turns. Fallback bot texts are
// dropped since the model never produced them.
func historyTurns(history []entity.Message) []turn {
	turns := make([]turn, 0, len(history))
	for _, msg := range history {
		if msg.Text == "" {
			continue
		}
		if !msg.IsUser() && (msg.Text == entity.FailureText || msg.Text == entity.EmptyResponseText) {
			continue
		}
		turns = append(turns, turn{user: msg.IsUser(), text: msg.Text})
	}
	return turns
}
