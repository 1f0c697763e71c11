package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ChatUseCase chat bilan bog'liq business logic
type ChatUseCase interface {
	// Send appends text as a user message, asks the model and appends its reply.
	Send(ctx context.Context, conversationID, text string) (entity.Exchange, error)
	// Ask forwards text to the model without touching history.
	Ask(ctx context.Context, text string) (string, error)
	History(ctx context.Context, conversationID string) ([]entity.Message, error)
	Conversations(ctx context.Context) ([]string, error)
	Export(ctx context.Context, conversationID string, w io.Writer) error
	// ExportFormat reports the MIME type and file extension Export writes.
	ExportFormat() (contentType, extension string)
	// Import appends messages read from r after the existing history.
	Import(ctx context.Context, conversationID string, r io.Reader) (int, error)
	IsLoading(conversationID string) bool
	Greeting() entity.Message
}

// Options chat usecase sozlamalari
type Options struct {
	// ContextMessages is how many earlier messages are sent with each prompt; 0 sends the prompt alone.
	ContextMessages int
	RequestTimeout  time.Duration
	Greeting        string
}

type chatUseCase struct {
	aiRepo   repository.AIRepository
	chatRepo repository.ChatRepository
	exporter repository.HistoryExporter
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	loading map[string]bool
}

// NewChatUseCase yangi ChatUseCase yaratish
func NewChatUseCase(
	aiRepo repository.AIRepository,
	chatRepo repository.ChatRepository,
	exporter repository.HistoryExporter,
	opts Options,
	log *zap.Logger,
) ChatUseCase {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	if opts.Greeting == "" {
		opts.Greeting = entity.GreetingText
	}
	return &chatUseCase{
		aiRepo:   aiRepo,
		chatRepo: chatRepo,
		exporter: exporter,
		opts:     opts,
		log:      log.Named("chat"),
		now:      func() time.Time { return time.Now().UTC() },
		loading:  make(map[string]bool),
	}
}

// Send foydalanuvchi xabarini qayta ishlash
func (u *chatUseCase) Send(ctx context.Context, conversationID, text string) (entity.Exchange, error) {
	if conversationID == "" {
		return entity.Exchange{}, errs.ErrConversationRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return entity.Exchange{}, errs.ErrEmptyMessage
	}
	if !u.begin(conversationID) {
		return entity.Exchange{}, errs.ErrBusy
	}
	defer u.end(conversationID)

	var history []entity.Message
	if u.opts.ContextMessages > 0 {
		all, err := u.chatRepo.List(ctx, conversationID)
		if err != nil {
			return entity.Exchange{}, fmt.Errorf("failed to get history: %w", err)
		}
		history = lo.Subset(all, -u.opts.ContextMessages, uint(u.opts.ContextMessages))
	}

	// once the user message is stored its reply must be stored too, even if the caller goes away
	store := context.WithoutCancel(ctx)

	userMsg := u.newMessage(conversationID, entity.RoleUser, text)
	if err := u.chatRepo.Append(store, userMsg); err != nil {
		return entity.Exchange{}, fmt.Errorf("failed to save message: %w", err)
	}

	reply, failed := u.generate(ctx, text, history)

	botMsg := u.newMessage(conversationID, entity.RoleBot, reply)
	if err := u.chatRepo.Append(store, botMsg); err != nil {
		return entity.Exchange{}, fmt.Errorf("failed to save response: %w", err)
	}

	u.log.Info("exchange stored",
		zap.String("conversation", conversationID),
		zap.Int("prompt_chars", len(text)),
		zap.Bool("failed", failed))

	return entity.Exchange{User: userMsg, Bot: botMsg, Failed: failed}, nil
}

// Ask tarixsiz, bir martalik so'rov
func (u *chatUseCase) Ask(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.ErrEmptyMessage
	}
	reply, _ := u.generate(ctx, text, nil)
	return reply, nil
}

// generate never fails: errors become the fixed fallback texts.
func (u *chatUseCase) generate(ctx context.Context, text string, history []entity.Message) (string, bool) {
	// AI so'rovlarini osilib qolmasligi uchun timeout
	ctx, cancel := context.WithTimeout(ctx, u.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	reply, err := u.aiRepo.GenerateResponse(ctx, text, history)
	switch {
	case errors.Is(err, errs.ErrEmptyResponse):
		u.log.Warn("model returned no text")
		return entity.EmptyResponseText, false
	case err != nil:
		u.log.Error("model request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return entity.FailureText, true
	case strings.TrimSpace(reply) == "":
		return entity.EmptyResponseText, false
	}
	u.log.Debug("model replied", zap.Duration("elapsed", time.Since(start)))
	return reply, false
}

func (u *chatUseCase) newMessage(conversationID string, role entity.Role, text string) entity.Message {
	return entity.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		Timestamp:      u.now(),
	}
}

func (u *chatUseCase) begin(conversationID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loading[conversationID] {
		return false
	}
	u.loading[conversationID] = true
	return true
}

func (u *chatUseCase) end(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.loading, conversationID)
}

// IsLoading javob kutilayotganini bildiradi
func (u *chatUseCase) IsLoading(conversationID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loading[conversationID]
}

// History foydalanuvchi tarixini olish
func (u *chatUseCase) History(ctx context.Context, conversationID string) ([]entity.Message, error) {
	return u.chatRepo.List(ctx, conversationID)
}

func (u *chatUseCase) Conversations(ctx context.Context) ([]string, error) {
	return u.chatRepo.Conversations(ctx)
}

func (u *chatUseCase) ExportFormat() (string, string) {
	return u.exporter.ContentType(), u.exporter.Extension()
}

// Export suhbatni exporter formatida yozish
func (u *chatUseCase) Export(ctx context.Context, conversationID string, w io.Writer) error {
	msgs, err := u.chatRepo.List(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	return u.exporter.Export(ctx, w, entity.Conversation{ID: conversationID, Messages: msgs})
}

func (u *chatUseCase) Import(ctx context.Context, conversationID string, r io.Reader) (int, error) {
	if conversationID == "" {
		return 0, errs.ErrConversationRequired
	}
	msgs, err := u.exporter.Import(ctx, r, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to read history: %w", err)
	}
	// an import must not land between a pending user message and its reply
	if !u.begin(conversationID) {
		return 0, errs.ErrBusy
	}
	defer u.end(conversationID)

	for i, msg := range msgs {
		if err := u.chatRepo.Append(ctx, msg); err != nil {
			return i, fmt.Errorf("failed to save imported message: %w", err)
		}
	}
	u.log.Info("history imported", zap.String("conversation", conversationID), zap.Int("messages", len(msgs)))
	return len(msgs), nil
}

// Greeting is shown before the history and never stored.
func (u *chatUseCase) Greeting() entity.Message {
	return entity.Message{
		ID:        "greeting",
		Role:      entity.RoleBot,
		Text:      u.opts.Greeting,
		Timestamp: u.now(),
	}
}
