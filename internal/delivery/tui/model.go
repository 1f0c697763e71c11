// Package tui is the terminal chat client.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/theme"
	"github.com/codeneeth/neethos-chat/internal/usecase"
)

const (
	headerHeight = 1
	footerHeight = 1
	inputHeight  = 3
	statusHeight = 1
)

type historyMsg struct {
	messages []entity.Message
	err      error
}

type exchangeMsg struct {
	exchange entity.Exchange
	err      error
}

// Model is the bubbletea model for one conversation.
type Model struct {
	ctx    context.Context
	chat   usecase.ChatUseCase
	convID string
	log    *zap.Logger
	styles Styles

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	history []entity.Message
	// submit waits for the stored history so a reload cannot drop the pending message
	historyLoaded bool
	pending       bool
	loading bool
	errText string

	width int
	ready bool
}

// New builds the model; history is loaded by Init.
func New(ctx context.Context, chat usecase.ChatUseCase, conversationID string, t theme.Theme, log *zap.Logger) Model {
	styles := NewStyles(t)

	ta := textarea.New()
	ta.Placeholder = "Type your message here... (Enter to send, Alt+Enter for newline)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 8000
	ta.SetHeight(inputHeight)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		ctx:      ctx,
		chat:     chat,
		convID:   conversationID,
		log:      log.Named("tui"),
		styles:   styles,
		textarea: ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		history:  []entity.Message{chat.Greeting()},
	}
	m.renderer = m.newRenderer(80)
	return m
}

func (m Model) newRenderer(width int) *glamour.TermRenderer {
	style := "dark"
	if !m.styles.Dark {
		style = "light"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		m.log.Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	return r
}

// Init loads the stored history.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadHistory())
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		msgs, err := m.chat.History(m.ctx, m.convID)
		return historyMsg{messages: msgs, err: err}
	}
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		ex, err := m.chat.Send(m.ctx, m.convID, text)
		return exchangeMsg{exchange: ex, err: err}
	}
}

// Update handles keys, window size and results of background sends.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			if msg.Alt {
				break
			}
			return m.submit()
		}
		if m.loading {
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight-inputHeight-statusHeight-1, 3)
		m.renderer = m.newRenderer(msg.Width)
		m.ready = true
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.log.Error("failed to load history", zap.Error(msg.err))
			m.errText = "Could not load history"
		}
		m.history = append([]entity.Message{m.chat.Greeting()}, msg.messages...)
		m.historyLoaded = true
		m.refresh()
		return m, nil

	case exchangeMsg:
		m.loading = false
		m.textarea.Focus()
		if msg.err != nil {
			m.log.Warn("send rejected", zap.Error(msg.err))
			m.errText = msg.err.Error()
			if m.pending {
				m.history = m.history[:len(m.history)-1]
			}
		} else {
			if m.pending {
				m.history[len(m.history)-1] = msg.exchange.User
			}
			m.history = append(m.history, msg.exchange.Bot)
		}
		m.pending = false
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the input unless a reply is still pending or history is not loaded yet.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.loading || !m.historyLoaded {
		return m, nil
	}
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return m, nil
	}

	m.textarea.Reset()
	m.textarea.Blur()
	m.errText = ""
	m.loading = true
	m.pending = true
	m.history = append(m.history, entity.Message{
		ConversationID: m.convID,
		Role:           entity.RoleUser,
		Text:           text,
		Timestamp:      time.Now(),
	})
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.send(text))
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, chat usecase.ChatUseCase, conversationID string, t theme.Theme, log *zap.Logger) error {
	p := tea.NewProgram(New(ctx, chat, conversationID, t, log), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
