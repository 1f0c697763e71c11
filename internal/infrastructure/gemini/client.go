package gemini

import (
	"context"
	"fmt"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// geminiClient is the generative-ai-go backed client.
type geminiClient struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	throttle *throttle
	log      *zap.Logger
}

// NewGeminiClient yangi Gemini AI client yaratish
func NewGeminiClient(ctx context.Context, opts Options, log *zap.Logger) (repository.AIRepository, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(opts.model())
	model.SetTemperature(opts.Temperature)
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(opts.MaxOutputTokens)
	}
	if opts.SystemInstruction != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(opts.SystemInstruction))
	}

	return &geminiClient{
		client:   client,
		model:    model,
		throttle: newThrottle(opts.MaxConcurrent, opts.MinInterval),
		log:      log.Named("gemini").With(zap.String("sdk", SDKLegacy), zap.String("model", opts.model())),
	}, nil
}

// GenerateResponse javob yaratish
func (g *geminiClient) GenerateResponse(ctx context.Context, prompt string, history []entity.Message) (string, error) {
	release, err := g.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var resp *genai.GenerateContentResponse
	turns := historyTurns(history)
	if len(turns) == 0 {
		resp, err = g.model.GenerateContent(ctx, genai.Text(prompt))
	} else {
		cs := g.model.StartChat()
		cs.History = legacyHistory(turns)
		resp, err = cs.SendMessage(ctx, genai.Text(prompt))
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", errs.ErrEmptyResponse
	}
	g.log.Debug("response received", zap.Int("chars", len(text)), zap.Int("history", len(turns)))
	return text, nil
}

func legacyHistory(turns []turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "model"
		if t.user {
			role = "user"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.text)}})
	}
	return contents
}

// extractText reads the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok && text != "" {
			return string(text)
		}
	}
	return ""
}

// Close client ni yopish
func (g *geminiClient) Close() error {
	return g.client.Close()
}
