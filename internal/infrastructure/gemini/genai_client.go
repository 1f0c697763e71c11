package gemini

import (
	"context"
	"fmt"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// genaiClient is backed by the unified google.golang.org/genai SDK.
type genaiClient struct {
	client   *genai.Client
	model    string
	config   *genai.GenerateContentConfig
	throttle *throttle
	log      *zap.Logger
}

// NewGenAIClient creates a client for the Gemini Developer API.
func NewGenAIClient(ctx context.Context, opts Options, log *zap.Logger) (repository.AIRepository, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(opts.Temperature),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = opts.MaxOutputTokens
	}
	if opts.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}

	return &genaiClient{
		client:   client,
		model:    opts.model(),
		config:   config,
		throttle: newThrottle(opts.MaxConcurrent, opts.MinInterval),
		log:      log.Named("gemini").With(zap.String("sdk", SDKGenAI), zap.String("model", opts.model())),
	}, nil
}

// GenerateResponse sends prior turns followed by prompt and returns the first candidate's text.
func (g *genaiClient) GenerateResponse(ctx context.Context, prompt string, history []entity.Message) (string, error) {
	release, err := g.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	turns := historyTurns(history)
	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		role := genai.Role(genai.RoleModel)
		if t.user {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(t.text, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	text := firstCandidateText(resp)
	if text == "" {
		return "", errs.ErrEmptyResponse
	}
	g.log.Debug("response received", zap.Int("chars", len(text)), zap.Int("history", len(turns)))
	return text, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		return part.Text
	}
	return ""
}

func (g *genaiClient) Close() error {
	return nil
}
