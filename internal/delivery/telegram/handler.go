package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// Telegram rejects longer texts.
	maxMessageRunes = 4096
	historyLimit    = 20
	maxUploadBytes  = 5 << 20
)

// botAPI is the subset of *tgbotapi.BotAPI the handler uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// BotHandler Telegram bot handler
type BotHandler struct {
	bot        botAPI
	username   string
	chat       usecase.ChatUseCase
	httpClient *http.Client
	log        *zap.Logger

	// in-flight update handlers; Start waits for them before returning
	inflight sync.WaitGroup
}

// NewBotHandler yangi bot handler yaratish
func NewBotHandler(token string, chat usecase.ChatUseCase, log *zap.Logger) (*BotHandler, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newBotHandler(bot, bot.Self.UserName, chat, log), nil
}

func newBotHandler(bot botAPI, username string, chat usecase.ChatUseCase, log *zap.Logger) *BotHandler {
	return &BotHandler{
		bot:        bot,
		username:   username,
		chat:       chat,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Named("telegram"),
	}
}

// conversationFor maps a Telegram chat to its conversation id.
func conversationFor(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// Start long-polls updates until ctx is cancelled, then waits for the
// updates already being handled so their replies are stored.
func (h *BotHandler) Start(ctx context.Context) error {
	h.log.Info("bot started", zap.String("username", h.username))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.bot.GetUpdatesChan(u)
	defer h.bot.StopReceivingUpdates()

	// handlers outlive ctx; each exchange is bounded by the request timeout
	work := context.WithoutCancel(ctx)
	defer h.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("bot stopping")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			h.inflight.Add(1)
			go func(msg *tgbotapi.Message) {
				defer h.inflight.Done()
				h.handleMessage(work, msg)
			}(update.Message)
		}
	}
}

// handleMessage xabarni qayta ishlash
func (h *BotHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	switch {
	case message.Document != nil:
		h.handleDocumentMessage(ctx, message)
	case message.IsCommand():
		h.handleCommand(ctx, message)
	case strings.TrimSpace(message.Text) != "":
		h.handleTextMessage(ctx, message.Chat.ID, message.Text)
	}
}

// handleCommand komandalarni qayta ishlash
func (h *BotHandler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	switch message.Command() {
	case "start":
		h.sendMessage(chatID, h.chat.Greeting().Text)
	case "help":
		h.sendMessage(chatID, helpMessage)
	case "history":
		h.handleHistoryCommand(ctx, chatID)
	case "export":
		h.handleExportCommand(ctx, chatID)
	default:
		h.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

// handleTextMessage text xabarlarni qayta ishlash
func (h *BotHandler) handleTextMessage(ctx context.Context, chatID int64, text string) {
	convID := conversationFor(chatID)
	if h.chat.IsLoading(convID) {
		h.sendMessage(chatID, "Still thinking about your last message...")
		return
	}

	// "typing" indikatori
	if _, err := h.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		h.log.Debug("chat action failed", zap.Error(err))
	}

	exchange, err := h.chat.Send(ctx, convID, text)
	if err != nil {
		h.log.Warn("send failed", zap.String("conversation", convID), zap.Error(err))
		h.sendMessage(chatID, entity.FailureText)
		return
	}
	h.sendMessage(chatID, exchange.Bot.Text)
}

// handleHistoryCommand tarixni ko'rsatish
func (h *BotHandler) handleHistoryCommand(ctx context.Context, chatID int64) {
	history, err := h.chat.History(ctx, conversationFor(chatID))
	if err != nil {
		h.log.Error("history failed", zap.Int64("chat", chatID), zap.Error(err))
		h.sendMessage(chatID, "Could not load history.")
		return
	}
	h.sendMessage(chatID, formatHistory(history, historyLimit))
}

func (h *BotHandler) handleExportCommand(ctx context.Context, chatID int64) {
	var buf bytes.Buffer
	if err := h.chat.Export(ctx, conversationFor(chatID), &buf); err != nil {
		h.log.Error("export failed", zap.Int64("chat", chatID), zap.Error(err))
		h.sendMessage(chatID, "Could not export history.")
		return
	}
	_, ext := h.chat.ExportFormat()
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("neethos-%s.%s", time.Now().Format("20060102-150405"), ext),
		Bytes: buf.Bytes(),
	})
	if _, err := h.bot.Send(doc); err != nil {
		h.log.Error("failed to send export", zap.Error(err))
	}
}

// handleDocumentMessage imports an uploaded .xlsx history into the chat's conversation.
func (h *BotHandler) handleDocumentMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	doc := message.Document

	if doc.FileSize > maxUploadBytes {
		h.sendMessage(chatID, "File must be smaller than 5MB.")
		return
	}
	if _, ext := h.chat.ExportFormat(); !strings.HasSuffix(strings.ToLower(doc.FileName), "."+ext) {
		h.sendMessage(chatID, fmt.Sprintf("Only .%s files exported by /export can be imported.", ext))
		return
	}

	data, err := h.downloadFile(ctx, doc.FileID)
	if errors.Is(err, errFileTooLarge) {
		h.sendMessage(chatID, "File must be smaller than 5MB.")
		return
	}
	if err != nil {
		h.log.Error("file download failed", zap.Error(err))
		h.sendMessage(chatID, "Could not download the file.")
		return
	}

	n, err := h.chat.Import(ctx, conversationFor(chatID), bytes.NewReader(data))
	if err != nil {
		h.log.Warn("import failed", zap.Error(err))
		h.sendMessage(chatID, fmt.Sprintf("Import failed: %v", err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("Imported %d messages from %s.", n, doc.FileName))
}

// errFileTooLarge is returned when the body outgrows the declared file size.
var errFileTooLarge = errors.New("file exceeds upload limit")

// downloadFile Telegram dan faylni yuklash
func (h *BotHandler) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxUploadBytes {
		return nil, errFileTooLarge
	}
	return data, nil
}

// sendMessage oddiy xabar yuborish, uzun matnlar bo'laklarga bo'linadi
func (h *BotHandler) sendMessage(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			h.log.Error("failed to send message", zap.Int64("chat", chatID), zap.Error(err))
			return
		}
	}
}

// formatHistory renders the last limit messages, oldest first.
func formatHistory(history []entity.Message, limit int) string {
	if len(history) == 0 {
		return "Your chat history is empty."
	}
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d of %d messages:\n", len(history)-start, len(history))
	for _, msg := range history[start:] {
		who := "AI"
		if msg.IsUser() {
			who = "You"
		}
		fmt.Fprintf(&sb, "\n[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), who, msg.Text)
	}
	return sb.String()
}

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

const helpMessage = `Commands:
/start - greeting
/history - last messages of this chat
/export - download this chat as .xlsx
/help - this list

Send an .xlsx file produced by /export to import it into this chat.
Any other text is sent to the AI.`
