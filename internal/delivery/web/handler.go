package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/markdown"
	"github.com/codeneeth/neethos-chat/internal/theme"
	"github.com/codeneeth/neethos-chat/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	conversationCookie = "neethos_conversation"
	conversationHeader = "X-Conversation-ID"
	themeCookie        = "neethos_theme"

	maxBodyBytes = 64 << 10
)

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:.-]{1,128}$`)

// Handler chat HTTP handler
type Handler struct {
	chat      usecase.ChatUseCase
	renderers map[string]*markdown.Renderer
	themes    *theme.Registry
	log       *zap.Logger

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	sockets sync.WaitGroup
}

// NewHandler creates the web handler. One markdown renderer is built per code style in use.
func NewHandler(chat usecase.ChatUseCase, themes *theme.Registry, log *zap.Logger) *Handler {
	h := &Handler{
		chat:      chat,
		renderers: make(map[string]*markdown.Renderer),
		themes:    themes,
		log:       log,
		closing:   make(chan struct{}),
	}
	for _, name := range themes.Names() {
		style := themes.Lookup(name).CodeStyle
		if _, ok := h.renderers[style]; !ok {
			h.renderers[style] = markdown.New(style, log)
		}
	}
	return h
}

// Shutdown closes open websockets and waits for their handlers to finish,
// including any exchange still waiting on a reply. New sockets are refused.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.closing)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sockets.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trackSocket registers a websocket handler; false once Shutdown has begun.
func (h *Handler) trackSocket() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sockets.Add(1)
	return true
}

// RegisterRoutes API marshrutlarini ro'yxatdan o'tkazish
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)
	r.Get("/messages/export.xlsx", h.handleExport)
	r.Post("/gemini", h.handleGemini)
	r.Get("/themes", h.handleThemes)
	r.Get("/ws", h.handleWebSocket)
}

type messageView struct {
	entity.Message
	HTML template.HTML `json:"html"`
	Time string        `json:"time"`
}

func (h *Handler) renderer(r *http.Request) *markdown.Renderer {
	return h.renderers[h.themeFor(r).CodeStyle]
}

func (h *Handler) view(md *markdown.Renderer, msg entity.Message) messageView {
	return messageView{
		Message: msg,
		HTML:    md.RenderMessage(msg),
		Time:    msg.Timestamp.Local().Format("15:04"),
	}
}

// conversationID resolves the caller's conversation from the header or cookie,
// issuing a new cookie when neither is present.
func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) string {
	id, fresh := resolveConversation(r)
	if fresh {
		http.SetCookie(w, conversationCookieFor(id))
	}
	return id
}

func resolveConversation(r *http.Request) (id string, fresh bool) {
	if id := r.Header.Get(conversationHeader); conversationIDPattern.MatchString(id) {
		return id, false
	}
	if c, err := r.Cookie(conversationCookie); err == nil && conversationIDPattern.MatchString(c.Value) {
		return c.Value, false
	}
	return uuid.NewString(), true
}

func conversationCookieFor(id string) *http.Cookie {
	return &http.Cookie{
		Name:     conversationCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
	}
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	convID := h.conversationID(w, r)
	history, err := h.chat.History(r.Context(), convID)
	if err != nil {
		h.log.Error("failed to load history", zap.String("conversation", convID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	md := h.renderer(r)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"conversationId": convID,
		"loading":        h.chat.IsLoading(convID),
		"messages":       lo.Map(history, func(m entity.Message, _ int) messageView { return h.view(md, m) }),
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	convID := h.conversationID(w, r)
	exchange, err := h.chat.Send(r.Context(), convID, payload.Text)
	if err != nil {
		h.respondSendError(w, convID, err)
		return
	}

	md := h.renderer(r)
	h.respondJSON(w, http.StatusCreated, map[string]any{
		"conversationId": convID,
		"user":           h.view(md, exchange.User),
		"bot":            h.view(md, exchange.Bot),
		"failed":         exchange.Failed,
	})
}

func (h *Handler) respondSendError(w http.ResponseWriter, convID string, err error) {
	switch {
	case errors.Is(err, errs.ErrEmptyMessage):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrBusy):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("send failed", zap.String("conversation", convID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to store message")
	}
}

// handleGemini is the stateless proxy used by the vanilla front-end: {userText} -> {text}.
func (h *Handler) handleGemini(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserText string `json:"userText"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text, err := h.chat.Ask(r.Context(), payload.UserText)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	convID := h.conversationID(w, r)

	var buf bytes.Buffer
	if err := h.chat.Export(r.Context(), convID, &buf); err != nil {
		h.log.Error("export failed", zap.String("conversation", convID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	contentType, ext := h.chat.ExportFormat()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportName(time.Now(), ext)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func exportName(now time.Time, ext string) string {
	return "neethos-" + now.Format("20060102-150405") + "." + ext
}

func (h *Handler) handleThemes(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"default": h.themes.DefaultName(),
		"current": h.themeFor(r).Name,
		"themes":  h.themes.Names(),
	})
}

func (h *Handler) handleCodeCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(h.renderer(r).CSS()))
}
