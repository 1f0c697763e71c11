package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/exporter"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/storage"
	"github.com/codeneeth/neethos-chat/internal/theme"
	"github.com/codeneeth/neethos-chat/internal/usecase"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	release chan struct{}
	entered chan struct{}
}

func (s *stubAI) GenerateResponse(ctx context.Context, _ string, _ []entity.Message) (string, error) {
	s.mu.Lock()
	release, entered := s.release, s.entered
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *stubAI) Close() error { return nil }

func newTestServer(t *testing.T, ai *stubAI) *httptest.Server {
	t.Helper()
	uc := usecase.NewChatUseCase(ai, storage.NewMemoryChatRepository(), exporter.NewExcelExporter(),
		usecase.Options{RequestTimeout: 5 * time.Second, Greeting: entity.GreetingText}, zap.NewNop())
	h := NewHandler(uc, theme.NewRegistry(theme.Default), zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, target, convID string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if convID != "" {
		req.Header.Set(conversationHeader, convID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type sendResponse struct {
	ConversationID string         `json:"conversationId"`
	User           map[string]any `json:"user"`
	Bot            map[string]any `json:"bot"`
	Failed         bool           `json:"failed"`
}

func TestSendMessage_StoresExchange(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "**bold** answer"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages", "conv-1", map[string]string{"text": "hello"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	var got sendResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&got))
	req.Equal("conv-1", got.ConversationID)
	req.Equal("user", got.User["role"])
	req.Equal("hello", got.User["text"])
	req.Equal("bot", got.Bot["role"])
	req.Contains(got.Bot["html"], "<strong>bold</strong>")
	req.False(got.Failed)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/messages", "conv-1", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var list struct {
		Messages []map[string]any `json:"messages"`
		Loading  bool             `json:"loading"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&list))
	req.Len(list.Messages, 2)
	req.Equal("hello", list.Messages[0]["text"])
	req.Equal("**bold** answer", list.Messages[1]["text"])
	req.False(list.Loading)
}

func TestSendMessage_FailureFallback(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{err: errors.New("upstream 500")})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages", "conv-f", map[string]string{"text": "hi"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	var got sendResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&got))
	req.True(got.Failed)
	req.Equal(entity.FailureText, got.Bot["text"])
}

func TestSendMessage_RejectsEmptyAndMalformed(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "x"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages", "conv-e", map[string]string{"text": "   "})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader("{"))
	req.NoError(err)
	defer raw.Body.Close()
	req.Equal(http.StatusBadRequest, raw.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/messages", "conv-e", nil)
	var list struct {
		Messages []map[string]any `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&list))
	req.Empty(list.Messages)
}

func TestSendMessage_ConflictWhileLoading(t *testing.T) {
	req := require.New(t)
	ai := &stubAI{reply: "done", release: make(chan struct{}), entered: make(chan struct{}, 1)}
	srv := newTestServer(t, ai)

	first := make(chan int, 1)
	go func() {
		body := strings.NewReader(`{"text":"first"}`)
		r, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/messages", body)
		r.Header.Set(conversationHeader, "busy")
		resp, err := http.DefaultClient.Do(r)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	<-ai.entered

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/messages", "busy", nil)
	var list struct {
		Loading bool `json:"loading"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&list))
	req.True(list.Loading)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/messages", "busy", map[string]string{"text": "second"})
	req.Equal(http.StatusConflict, resp.StatusCode)

	close(ai.release)
	req.Equal(http.StatusCreated, <-first)
}

func TestConversationCookieIssued(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "x"})

	resp, err := http.Get(srv.URL + "/api/messages")
	req.NoError(err)
	defer resp.Body.Close()

	var issued *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == conversationCookie {
			issued = c
		}
	}
	req.NotNil(issued)
	req.Regexp(conversationIDPattern, issued.Value)
}

func TestGeminiProxy(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "proxied"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/gemini", "", map[string]string{"userText": "ping"})
	req.Equal(http.StatusOK, resp.StatusCode)
	var got map[string]string
	req.NoError(json.NewDecoder(resp.Body).Decode(&got))
	req.Equal("proxied", got["text"])

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/gemini", "", map[string]string{"userText": ""})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestExportXLSX(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "answer"})

	doJSON(t, http.MethodPost, srv.URL+"/api/messages", "exp", map[string]string{"text": "question"})
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/messages/export.xlsx", "exp", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(resp.Header.Get("Content-Disposition"), ".xlsx")
	req.Equal(exporter.NewExcelExporter().ContentType(), resp.Header.Get("Content-Type"))

	msgs, err := exporter.ParseHistory(context.Background(), resp.Body, "exp")
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("question", msgs[0].Text)
	req.Equal(entity.RoleBot, msgs[1].Role)
}

func TestPage_GreetingFirstAndEscapedUserText(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "## Title"})

	doJSON(t, http.MethodPost, srv.URL+"/api/messages", "page", map[string]string{"text": "<b>raw</b>"})

	r, err := http.NewRequest(http.MethodGet, srv.URL+"/?theme=indigo", nil)
	req.NoError(err)
	r.Header.Set(conversationHeader, "page")
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	html := string(body)

	greeting := strings.Index(html, "NeethOs AI. How can I help")
	user := strings.Index(html, "&lt;b&gt;raw&lt;/b&gt;")
	bot := strings.Index(html, "<h2>Title</h2>")
	req.Positive(greeting)
	req.Greater(user, greeting)
	req.Greater(bot, user)
	req.NotContains(html, "<b>raw</b>")
	req.Contains(html, "--accent: #6366f1")

	var themed bool
	for _, c := range resp.Cookies() {
		themed = themed || (c.Name == themeCookie && c.Value == "indigo")
	}
	req.True(themed)
}

func TestFormSend_Redirects(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "form reply"})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	r, err := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(url.Values{"text": {"from form"}}.Encode()))
	req.NoError(err)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(conversationHeader, "form")
	resp, err := client.Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusSeeOther, resp.StatusCode)

	list := doJSON(t, http.MethodGet, srv.URL+"/api/messages", "form", nil)
	var got struct {
		Messages []map[string]any `json:"messages"`
	}
	req.NoError(json.NewDecoder(list.Body).Decode(&got))
	req.Len(got.Messages, 2)
	req.Equal("form reply", got.Messages[1]["text"])
}

func TestThemesAndStatic(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/themes", "", nil)
	var got struct {
		Default string   `json:"default"`
		Themes  []string `json:"themes"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&got))
	req.Equal(theme.Default, got.Default)
	req.Contains(got.Themes, "indigo")

	css, err := http.Get(srv.URL + "/static/chroma.css")
	req.NoError(err)
	defer css.Body.Close()
	req.Equal(http.StatusOK, css.StatusCode)
	req.Contains(css.Header.Get("Content-Type"), "text/css")

	health := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	req.Equal(http.StatusOK, health.StatusCode)
}

func TestWebSocket_RoundTrip(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "over the wire"})

	header := http.Header{}
	header.Set(conversationHeader, "ws")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", header)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.WriteJSON(wsInbound{Text: "hello socket"}))

	var frames []wsOutbound
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(frames) < 4 {
		var f wsOutbound
		req.NoError(conn.ReadJSON(&f))
		frames = append(frames, f)
	}

	req.Equal("loading", frames[0].Type)
	req.True(*frames[0].Loading)
	req.Equal("message", frames[1].Type)
	req.Equal(entity.RoleUser, frames[1].Message.Role)
	req.Equal("hello socket", frames[1].Message.Text)
	req.Equal("message", frames[2].Type)
	req.Equal("over the wire", frames[2].Message.Text)
	req.Equal("loading", frames[3].Type)
	req.False(*frames[3].Loading)

	req.NoError(conn.WriteJSON(wsInbound{Text: "  "}))
	var f wsOutbound
	req.NoError(conn.ReadJSON(&f))
	req.Equal("error", f.Type)
	req.NotEmpty(f.Error)
}

func TestPage_ThemeNameCaseAndFailureFallbackScript(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubAI{reply: "x"})

	resp, err := http.Get(srv.URL + "/?theme=Indigo")
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	html := string(body)
	req.Contains(html, "--accent: #6366f1")
	req.Contains(html, entity.FailureText)

	var themed string
	for _, c := range resp.Cookies() {
		if c.Name == themeCookie {
			themed = c.Value
		}
	}
	req.Equal("indigo", themed)
}

func TestShutdown_WaitsForSocketExchange(t *testing.T) {
	req := require.New(t)
	ai := &stubAI{reply: "late reply", release: make(chan struct{}), entered: make(chan struct{}, 1)}
	uc := usecase.NewChatUseCase(ai, storage.NewMemoryChatRepository(), exporter.NewExcelExporter(),
		usecase.Options{RequestTimeout: 5 * time.Second}, zap.NewNop())
	h := NewHandler(uc, theme.NewRegistry(theme.Default), zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	header := http.Header{}
	header.Set(conversationHeader, "draining")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.WriteJSON(wsInbound{Text: "answer before you go"}))
	<-ai.entered

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- h.Shutdown(ctx)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a reply was pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(ai.release)
	req.NoError(<-done)

	hist, err := uc.History(context.Background(), "draining")
	req.NoError(err)
	req.Len(hist, 2)
	req.Equal("late reply", hist[1].Text)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}
