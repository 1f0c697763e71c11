package web

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/theme"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	ConversationID string
	Messages       []messageView
	Loading        bool
	Theme          theme.Theme
	Themes         []string
	Year           int
	FailureText    string
}

// themeFor picks the theme from ?theme=, then the theme cookie, then the default.
func (h *Handler) themeFor(r *http.Request) theme.Theme {
	if name := r.URL.Query().Get("theme"); h.themes.Has(name) {
		return h.themes.Lookup(name)
	}
	if c, err := r.Cookie(themeCookie); err == nil && h.themes.Has(c.Value) {
		return h.themes.Lookup(c.Value)
	}
	return h.themes.Lookup(h.themes.DefaultName())
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	convID := h.conversationID(w, r)
	current := h.themeFor(r)
	if name := r.URL.Query().Get("theme"); h.themes.Has(name) {
		http.SetCookie(w, &http.Cookie{Name: themeCookie, Value: current.Name, Path: "/", SameSite: http.SameSiteLaxMode, MaxAge: 365 * 24 * 3600})
	}

	history, err := h.chat.History(r.Context(), convID)
	if err != nil {
		h.log.Error("failed to load history", zap.String("conversation", convID), zap.Error(err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	md := h.renderers[current.CodeStyle]
	views := make([]messageView, 0, len(history)+1)
	views = append(views, h.view(md, h.chat.Greeting()))
	for _, msg := range history {
		views = append(views, h.view(md, msg))
	}

	data := pageData{
		ConversationID: convID,
		Messages:       views,
		Loading:        h.chat.IsLoading(convID),
		Theme:          current,
		Themes:         h.themes.Names(),
		Year:           time.Now().Year(),
		FailureText:    entity.FailureText,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.ExecuteTemplate(w, "index.html", data); err != nil {
		h.log.Error("failed to render page", zap.Error(err))
	}
}

// handleFormSend serves browsers without JavaScript: post, then redirect back to the page.
func (h *Handler) handleFormSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	convID := h.conversationID(w, r)
	if _, err := h.chat.Send(r.Context(), convID, r.PostForm.Get("text")); err != nil {
		h.log.Info("form send rejected", zap.String("conversation", convID), zap.Error(err))
	}
	http.Redirect(w, r, "/#bottom", http.StatusSeeOther)
}
