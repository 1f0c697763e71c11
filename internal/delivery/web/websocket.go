package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsInbound struct {
	Text string `json:"text"`
}

type wsOutbound struct {
	Type    string       `json:"type"`
	Loading *bool        `json:"loading,omitempty"`
	Message *messageView `json:"message,omitempty"`
	Failed  bool         `json:"failed,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// handleWebSocket keeps one conversation open over a socket.
// Each inbound {text} produces loading, user, bot and loading=false frames in that order.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.trackSocket() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.sockets.Done()

	convID, fresh := resolveConversation(r)
	header := http.Header{}
	if fresh {
		header.Add("Set-Cookie", conversationCookieFor(convID).String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("conversation", convID))
	log.Debug("websocket connected")

	md := h.renderer(r)
	ctx := r.Context()

	done := make(chan struct{})
	defer close(done)

	// on shutdown the read loop is unblocked; a pending Send still completes first
	go func() {
		select {
		case <-h.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// writes are serialised through this channel; the pinger shares it
	out := make(chan wsOutbound, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case frame := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(frame); err != nil {
					log.Debug("websocket write failed", zap.Error(err))
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	send := func(frame wsOutbound) {
		select {
		case out <- frame:
		case <-writerDone:
		}
	}
	loading := func(v bool) wsOutbound {
		return wsOutbound{Type: "loading", Loading: &v}
	}

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if strings.TrimSpace(in.Text) == "" {
			send(wsOutbound{Type: "error", Error: errs.ErrEmptyMessage.Error()})
			continue
		}
		if h.chat.IsLoading(convID) {
			send(wsOutbound{Type: "error", Error: errs.ErrBusy.Error()})
			continue
		}

		send(loading(true))
		exchange, err := h.chat.Send(ctx, convID, in.Text)
		if err != nil {
			if !errors.Is(err, errs.ErrEmptyMessage) && !errors.Is(err, errs.ErrBusy) {
				log.Error("websocket send failed", zap.Error(err))
			}
			send(wsOutbound{Type: "error", Error: err.Error()})
			send(loading(false))
			continue
		}

		user := h.view(md, exchange.User)
		bot := h.view(md, exchange.Bot)
		send(wsOutbound{Type: "message", Message: &user})
		send(wsOutbound{Type: "message", Message: &bot, Failed: exchange.Failed})
		send(loading(false))
	}
}
